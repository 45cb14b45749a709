package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// Client wraps the Docker SDK client with the operations the deployment
// tool needs: daemon checks, volume archiving and pruning.
type Client struct {
	docker *client.Client
}

// NewClient creates a Docker client and verifies the daemon is reachable.
// This doubles as the runtime prerequisite check: a missing or stopped
// daemon fails here, before any operation mutates anything.
func NewClient(ctx context.Context) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("cannot connect to Docker daemon: %w", err)
	}

	return &Client{docker: cli}, nil
}

// VolumeExists checks if a named volume exists.
func (c *Client) VolumeExists(ctx context.Context, volumeName string) (bool, error) {
	_, err := c.docker.VolumeInspect(ctx, volumeName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect volume '%s': %w", volumeName, err)
	}
	return true, nil
}

// PruneImages removes dangling images and returns the reclaimed bytes.
func (c *Client) PruneImages(ctx context.Context) (uint64, error) {
	report, err := c.docker.ImagesPrune(ctx, filters.NewArgs())
	if err != nil {
		return 0, fmt.Errorf("failed to prune images: %w", err)
	}
	return report.SpaceReclaimed, nil
}

// PruneVolumes removes unused anonymous volumes and returns the reclaimed
// bytes.
func (c *Client) PruneVolumes(ctx context.Context) (uint64, error) {
	report, err := c.docker.VolumesPrune(ctx, filters.NewArgs())
	if err != nil {
		return 0, fmt.Errorf("failed to prune volumes: %w", err)
	}
	return report.SpaceReclaimed, nil
}

// Close releases the underlying client connection.
func (c *Client) Close() error {
	return c.docker.Close()
}
