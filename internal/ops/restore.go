package ops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/logibot/botctl/internal/crypto"
	"github.com/logibot/botctl/internal/storage"
)

// Restore overwrites the database volume with a stored snapshot, by name
// (latest version) or "name@version". The project is stopped first and
// left stopped so the operator restarts it deliberately.
func (c *Client) Restore(ctx context.Context, nameOrVersioned string, dryRun, force bool) error {
	snapshots := storage.NewSnapshotStore(c.store)
	snap, err := snapshots.Get(ctx, nameOrVersioned)
	if err != nil {
		return fmt.Errorf("failed to retrieve snapshot: %w", err)
	}
	defer func() {
		if closer, ok := snap.DataReader.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	volumeName := snap.Metadata.VolumeName
	if volumeName == "" {
		volumeName = c.cfg.DBVolumeName()
	}

	c.logf("📦 Snapshot info:")
	c.logf("   Name: %s", snap.Metadata.Name)
	c.logf("   Version: %s", snap.Metadata.Version)
	c.logf("   Created: %s", snap.Metadata.CreatedAt.Format("2006-01-02 15:04:05"))
	c.logf("   Size: %.1f MB", float64(snap.Metadata.Size)/(1024*1024))
	c.logf("   Volume: %s", volumeName)
	c.logf("   Encrypted: %v", snap.Metadata.Encrypted)

	if dryRun {
		fmt.Printf("🎯 Would restore %s into volume '%s'\n", snap.ID, volumeName)
		fmt.Println("✋ Dry run - no changes made")
		return nil
	}

	if !force {
		fmt.Printf("⚠️  This will overwrite the contents of volume '%s'\n", volumeName)
		fmt.Print("Continue? (y/N): ")

		var response string
		if _, err := fmt.Scanln(&response); err != nil {
			response = "N"
		}
		if response != "y" && response != "Y" {
			fmt.Println("Restore cancelled")
			return nil
		}
	}

	c.printf("🛑 Stopping project '%s'...", c.cfg.Project)
	if err := c.compose.Run(ctx, "stop"); err != nil {
		return err
	}

	exists, err := c.engine.VolumeExists(ctx, volumeName)
	if err != nil {
		return fmt.Errorf("failed to check volume: %w", err)
	}
	if !exists {
		return fmt.Errorf("volume '%s' not found: deploy the project first", volumeName)
	}

	finalReader := snap.DataReader
	if snap.Metadata.Encrypted {
		finalReader, err = c.decryptReader(snap.DataReader)
		if err != nil {
			return err
		}
	}

	tempFile, err := os.CreateTemp("", "botctl-restore-*.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempFile.Name())
	}()

	var writer io.Writer = tempFile
	var progress *ProgressWriter
	if !c.quiet && snap.Metadata.Size > 0 {
		progress = NewProgressWriter(tempFile, snap.Metadata.Size, "📥 Fetching snapshot")
		writer = progress
	}

	if _, err := io.Copy(writer, finalReader); err != nil {
		return fmt.Errorf("failed to write snapshot data: %w", err)
	}
	if progress != nil {
		_ = progress.Close()
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	var spinner *Spinner
	if !c.quiet {
		spinner = NewSpinner("📥 Restoring volume data")
	}
	err = c.engine.RestoreVolume(ctx, volumeName, tempFile.Name())
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return fmt.Errorf("failed to restore volume: %w", err)
	}

	c.printf("✅ Volume '%s' restored from %s", volumeName, snap.ID)
	c.printf("   Run 'botctl start' to bring the project back up")
	return nil
}

// decryptReader unwraps an encrypted snapshot stream, prompting for the
// password when it was not given on the command line.
func (c *Client) decryptReader(r io.Reader) (io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	if !crypto.IsEncrypted(head[:n]) {
		return nil, fmt.Errorf("snapshot marked as encrypted but no encryption header found")
	}

	password := c.password
	if password == "" {
		password = c.promptPassword("Enter decryption password: ", false)
		if password == "" {
			return nil, fmt.Errorf("decryption password is required")
		}
	}

	full := io.MultiReader(bytes.NewReader(head[:n]), r)

	header, err := crypto.ReadHeader(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read encryption header: %w", err)
	}

	decryptReader, err := crypto.NewDecryptReader(full, password, header)
	if err != nil {
		return nil, fmt.Errorf("failed to create decryption: %w", err)
	}

	c.logf("🔓 Decrypting snapshot...")
	return decryptReader, nil
}
