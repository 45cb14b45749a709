package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage keeps each snapshot in its own directory under basePath:
//
//	<basePath>/<id>/data.tar.gz
//	<basePath>/<id>/metadata.json
//
// The per-snapshot directory is also where the backup operation drops its
// best-effort copies of configuration and data files, so one directory is
// a complete point-in-time snapshot.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(config *LocalConfig) (*LocalStorage, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path is required for local storage")
	}

	if err := os.MkdirAll(config.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		basePath: config.BasePath,
	}, nil
}

// SnapshotDir returns the directory holding the given snapshot.
func (l *LocalStorage) SnapshotDir(id string) string {
	return filepath.Join(l.basePath, id)
}

func (l *LocalStorage) Store(ctx context.Context, snap *Snapshot) error {
	dir := l.SnapshotDir(snap.ID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	dataPath := filepath.Join(dir, dataFileName)
	dataFile, err := os.Create(dataPath) // #nosec G304 - controlled snapshot path
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}

	if _, err := io.Copy(dataFile, snap.DataReader); err != nil {
		_ = dataFile.Close()
		_ = os.RemoveAll(dir)
		return fmt.Errorf("failed to write snapshot data: %w", err)
	}
	if err := dataFile.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	metaFile, err := os.Create(filepath.Join(dir, metaFileName)) // #nosec G304 - controlled snapshot path
	if err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer func() {
		_ = metaFile.Close()
	}()

	if err := json.NewEncoder(metaFile).Encode(snap.Metadata); err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}

func (l *LocalStorage) Retrieve(ctx context.Context, id string) (*Snapshot, error) {
	dir := l.SnapshotDir(id)

	metaFile, err := os.Open(filepath.Join(dir, metaFileName)) // #nosec G304 - controlled snapshot path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot not found: %s", id)
		}
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer func() {
		_ = metaFile.Close()
	}()

	var metadata Metadata
	if err := json.NewDecoder(metaFile).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	dataFile, err := os.Open(filepath.Join(dir, dataFileName)) // #nosec G304 - controlled snapshot path
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}

	return &Snapshot{
		ID:         id,
		Metadata:   metadata,
		DataReader: dataFile,
	}, nil
}

func (l *LocalStorage) List(ctx context.Context) ([]Metadata, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []Metadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		metaPath := filepath.Join(l.basePath, entry.Name(), metaFileName)
		metaFile, err := os.Open(metaPath) // #nosec G304 - controlled snapshot path
		if err != nil {
			// Not a snapshot directory.
			continue
		}

		var metadata Metadata
		err = json.NewDecoder(metaFile).Decode(&metadata)
		_ = metaFile.Close()
		if err != nil {
			continue
		}

		snapshots = append(snapshots, metadata)
	}

	return snapshots, nil
}

func (l *LocalStorage) Delete(ctx context.Context, id string) error {
	dir := l.SnapshotDir(id)

	if _, err := os.Stat(filepath.Join(dir, metaFileName)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("snapshot not found: %s", id)
		}
		return fmt.Errorf("failed to check snapshot: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove snapshot directory: %w", err)
	}
	return nil
}

func (l *LocalStorage) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := os.Stat(filepath.Join(l.SnapshotDir(id), metaFileName)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return true, nil
}
