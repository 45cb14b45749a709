package ops

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/logibot/botctl/internal/storage"
)

// Status prints the state of the project's containers.
func (c *Client) Status(ctx context.Context) error {
	return c.compose.Run(ctx, "ps")
}

// Logs follows log output for the whole project or a single service.
func (c *Client) Logs(ctx context.Context, service string) error {
	args := []string{"logs", "-f"}
	if service != "" {
		args = append(args, service)
	}
	return c.compose.Run(ctx, args...)
}

// StopProject stops all project containers without removing them.
func (c *Client) StopProject(ctx context.Context) error {
	c.printf("🛑 Stopping project '%s'...", c.cfg.Project)
	if err := c.compose.Run(ctx, "stop"); err != nil {
		return err
	}
	c.printf("✅ Project stopped")
	return nil
}

// StartProject starts previously stopped project containers.
func (c *Client) StartProject(ctx context.Context) error {
	c.printf("▶️  Starting project '%s'...", c.cfg.Project)
	if err := c.compose.Run(ctx, "start"); err != nil {
		return err
	}
	c.printf("✅ Project started")
	return nil
}

// Restart restarts all project containers.
func (c *Client) Restart(ctx context.Context) error {
	c.printf("🔄 Restarting project '%s'...", c.cfg.Project)
	if err := c.compose.Run(ctx, "restart"); err != nil {
		return err
	}
	c.printf("✅ Project restarted")
	return nil
}

// Cleanup removes dangling images and unused volumes and reports the
// space reclaimed.
func (c *Client) Cleanup(ctx context.Context) error {
	c.printf("🧹 Pruning dangling images...")
	imageBytes, err := c.engine.PruneImages(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune images: %w", err)
	}

	c.printf("🧹 Pruning unused volumes...")
	volumeBytes, err := c.engine.PruneVolumes(ctx)
	if err != nil {
		return fmt.Errorf("failed to prune volumes: %w", err)
	}

	total := imageBytes + volumeBytes
	c.printf("✅ Cleanup complete: %.1f MB reclaimed", float64(total)/(1024*1024))
	return nil
}

// Snapshots lists stored snapshots, newest first.
func (c *Client) Snapshots(ctx context.Context) error {
	snapshots := storage.NewSnapshotStore(c.store)
	list, err := snapshots.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No snapshots found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tCREATED\tSIZE\tENCRYPTED")
	for _, meta := range list {
		encrypted := " "
		if meta.Encrypted {
			encrypted = "🔒"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f MB\t%s\n",
			meta.Name,
			meta.Version,
			meta.CreatedAt.Format("2006-01-02 15:04:05"),
			float64(meta.Size)/(1024*1024),
			encrypted,
		)
	}
	return w.Flush()
}
