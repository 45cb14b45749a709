package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// VersionFormat is the timestamp layout used in versioned snapshot IDs.
const VersionFormat = "20060102-150405"

// SnapshotStore adds timestamped versioning on top of a Backend. Snapshots
// are stored under IDs of the form "name@version" and resolved by name
// (latest version) or by the full versioned ID.
type SnapshotStore struct {
	backend Backend
	now     func() time.Time
}

// NewSnapshotStore creates a versioning layer over a backend.
func NewSnapshotStore(backend Backend) *SnapshotStore {
	return &SnapshotStore{
		backend: backend,
		now:     time.Now,
	}
}

// Store saves a snapshot under a fresh timestamped version of name and
// returns the versioned ID.
func (s *SnapshotStore) Store(ctx context.Context, name string, snap *Snapshot) (string, error) {
	if name == "" {
		return "", fmt.Errorf("snapshot name is required")
	}
	name = cleanName(name)

	version := s.now().Format(VersionFormat)
	versionedID := fmt.Sprintf("%s@%s", name, version)

	snap.ID = versionedID
	snap.Metadata.ID = versionedID
	snap.Metadata.Name = name
	snap.Metadata.Version = version
	snap.Metadata.CreatedAt = s.now()

	if err := s.backend.Store(ctx, snap); err != nil {
		return "", err
	}
	return versionedID, nil
}

// Get retrieves a snapshot by "name" (latest version) or "name@version".
func (s *SnapshotStore) Get(ctx context.Context, nameOrVersioned string) (*Snapshot, error) {
	nameOrVersioned = cleanName(nameOrVersioned)

	if strings.Contains(nameOrVersioned, "@") {
		return s.backend.Retrieve(ctx, nameOrVersioned)
	}

	latest, err := s.LatestVersion(ctx, nameOrVersioned)
	if err != nil {
		return nil, err
	}

	return s.backend.Retrieve(ctx, fmt.Sprintf("%s@%s", nameOrVersioned, latest))
}

// List returns the metadata of all stored snapshot versions, newest first.
func (s *SnapshotStore) List(ctx context.Context) ([]Metadata, error) {
	all, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	// Only versioned snapshot entries belong to this layer.
	var snapshots []Metadata
	for _, m := range all {
		if strings.Contains(m.ID, "@") {
			snapshots = append(snapshots, m)
		}
	}

	// Insertion sort by creation time, newest first. Snapshot counts are
	// small enough that this stays simple.
	for i := 1; i < len(snapshots); i++ {
		for j := i; j > 0 && snapshots[j].CreatedAt.After(snapshots[j-1].CreatedAt); j-- {
			snapshots[j], snapshots[j-1] = snapshots[j-1], snapshots[j]
		}
	}

	return snapshots, nil
}

// Versions returns the metadata of every version of the named snapshot.
func (s *SnapshotStore) Versions(ctx context.Context, name string) ([]Metadata, error) {
	name = cleanName(name)

	all, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	var versions []Metadata
	for _, m := range all {
		if strings.HasPrefix(m.ID, name+"@") {
			versions = append(versions, m)
		}
	}
	return versions, nil
}

// LatestVersion returns the version string of the newest stored version.
func (s *SnapshotStore) LatestVersion(ctx context.Context, name string) (string, error) {
	versions, err := s.Versions(ctx, name)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("no snapshots found with name '%s'", name)
	}

	latest := versions[0]
	for _, v := range versions {
		if v.CreatedAt.After(latest.CreatedAt) {
			latest = v
		}
	}
	return latest.Version, nil
}

// Delete removes one version ("name@version") or every version ("name").
func (s *SnapshotStore) Delete(ctx context.Context, nameOrVersioned string) error {
	nameOrVersioned = cleanName(nameOrVersioned)

	if strings.Contains(nameOrVersioned, "@") {
		return s.backend.Delete(ctx, nameOrVersioned)
	}

	versions, err := s.Versions(ctx, nameOrVersioned)
	if err != nil {
		return fmt.Errorf("failed to list versions for deletion: %w", err)
	}
	if len(versions) == 0 {
		return fmt.Errorf("no snapshots found with name '%s'", nameOrVersioned)
	}

	for _, v := range versions {
		if err := s.backend.Delete(ctx, v.ID); err != nil {
			return fmt.Errorf("failed to delete version %s: %w", v.Version, err)
		}
	}
	return nil
}

// cleanName keeps snapshot names safe for use as storage IDs.
func cleanName(name string) string {
	name = strings.TrimSuffix(name, ".tar.gz")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}
