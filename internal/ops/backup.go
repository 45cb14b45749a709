package ops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/logibot/botctl/internal/crypto"
	"github.com/logibot/botctl/internal/storage"
)

// Backup takes a point-in-time snapshot of the deployment: the project is
// stopped, the database volume is archived through an ephemeral container
// and stored under a timestamped version, and the configuration files and
// data directories are copied best-effort into the local snapshot
// directory. Returns the versioned snapshot ID, or "" when there is
// nothing to back up.
func (c *Client) Backup(ctx context.Context) (string, error) {
	composePath := c.cfg.ComposeFilePath()
	if _, err := os.Stat(composePath); err != nil {
		if os.IsNotExist(err) {
			c.printf("No compose file at %s, nothing to back up", composePath)
			return "", nil
		}
		return "", fmt.Errorf("failed to check compose file: %w", err)
	}

	c.printf("🛑 Stopping project '%s'...", c.cfg.Project)
	if err := c.compose.Run(ctx, "stop"); err != nil {
		return "", err
	}

	// Archive the database volume to a temp file first so the upload
	// knows its size.
	tempFile, err := os.CreateTemp("", "botctl-backup-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempFile.Name())
	}()

	volumeName := c.cfg.DBVolumeName()

	var spinner *Spinner
	if !c.quiet {
		spinner = NewSpinner("💾 Archiving database volume")
	}
	err = c.engine.ArchiveVolume(ctx, volumeName, tempFile)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return "", fmt.Errorf("failed to archive volume '%s': %w", volumeName, err)
	}

	if _, err := tempFile.Seek(0, 0); err != nil {
		return "", fmt.Errorf("failed to seek temp file: %w", err)
	}
	stat, err := tempFile.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat archive file: %w", err)
	}

	var finalReader io.Reader = tempFile
	storedSize := stat.Size()
	isEncrypted := false

	if c.encryptEnabled {
		password := c.password
		if password == "" {
			password = c.promptPassword("Enter encryption password: ", true)
			if password == "" {
				return "", fmt.Errorf("encryption password is required")
			}
		}

		encryptReader, header, err := crypto.NewEncryptReader(tempFile, password)
		if err != nil {
			return "", fmt.Errorf("failed to create encryption: %w", err)
		}

		var headerBuf bytes.Buffer
		if err := crypto.WriteHeader(&headerBuf, header); err != nil {
			return "", fmt.Errorf("failed to write encryption header: %w", err)
		}

		finalReader = io.MultiReader(&headerBuf, encryptReader)
		// Header + data + GCM overhead per 64KB chunk.
		storedSize = int64(headerBuf.Len()) + stat.Size() + (stat.Size()/64/1024+1)*16
		isEncrypted = true

		c.logf("🔐 Encryption enabled")
	}

	dataReader := finalReader
	var progress *ProgressReader
	if !c.quiet && storedSize > 0 {
		progress = NewProgressReader(finalReader, storedSize, "📤 Storing snapshot")
		dataReader = progress
	}

	snapshots := storage.NewSnapshotStore(c.store)
	id, err := snapshots.Store(ctx, c.cfg.Project, &storage.Snapshot{
		Metadata: storage.Metadata{
			Project:     c.cfg.Project,
			VolumeName:  volumeName,
			Size:        storedSize,
			Description: fmt.Sprintf("Database volume snapshot of %s", c.cfg.Project),
			Encrypted:   isEncrypted,
		},
		DataReader: dataReader,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store snapshot: %w", err)
	}

	if progress != nil {
		_ = progress.Close()
	}

	c.copySnapshotFiles(id)

	c.printf("✅ Snapshot created: %s (%.1f MB)", id, float64(stat.Size())/(1024*1024))
	return id, nil
}

// copySnapshotFiles copies the configuration files and data directories
// into the local snapshot directory. They stay local even when the volume
// archive goes to a remote backend. Failures are ignored: the files may
// legitimately not exist yet, and a missing settings copy must never fail
// the backup of the database itself.
func (c *Client) copySnapshotFiles(snapshotID string) {
	snapDir := filepath.Join(c.cfg.BackupPath(), snapshotID)
	if err := os.MkdirAll(snapDir, 0750); err != nil {
		c.logf("Warning: failed to create snapshot directory: %v", err)
		return
	}

	for _, name := range c.cfg.ConfigFiles {
		src := filepath.Join(c.cfg.ProjectDir, name)
		if err := copyFile(src, filepath.Join(snapDir, name)); err != nil {
			c.logf("Warning: skipped %s: %v", name, err)
		}
	}

	for _, dir := range c.cfg.DataDirs {
		src := filepath.Join(c.cfg.ProjectDir, dir)
		if err := copyDir(src, filepath.Join(snapDir, dir)); err != nil {
			c.logf("Warning: skipped %s: %v", dir, err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - operator-controlled project dir
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst) // #nosec G304 - controlled snapshot path
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	_, err = io.Copy(out, in)
	return err
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0750)
		}
		return copyFile(path, target)
	})
}
