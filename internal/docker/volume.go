package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
)

const (
	// helperImage is the throwaway image used to reach volume contents.
	helperImage = "alpine:latest"

	// maxArchiveSize caps extraction to guard against decompression bombs
	// (100GB).
	maxArchiveSize = 100 * 1024 * 1024 * 1024
)

// ArchiveVolume streams the contents of a named volume as a tar.gz archive
// into w. The volume is mounted read-only into an ephemeral container which
// tars it up; the archive is then copied out and the container removed.
func (c *Client) ArchiveVolume(ctx context.Context, volumeName string, w io.Writer) error {
	resp, err := c.docker.ContainerCreate(
		ctx,
		&container.Config{
			Image: helperImage,
			Cmd:   []string{"tar", "czf", "/backup.tar.gz", "-C", "/data", "."},
		},
		&container.HostConfig{
			Binds: []string{
				fmt.Sprintf("%s:/data:ro", volumeName),
			},
		},
		nil,
		nil,
		"",
	)
	if err != nil {
		return fmt.Errorf("failed to create archive container: %w", err)
	}
	defer c.removeContainer(resp.ID)

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start archive container: %w", err)
	}

	if err := c.waitForContainer(ctx, resp.ID); err != nil {
		return err
	}

	reader, _, err := c.docker.CopyFromContainer(ctx, resp.ID, "/backup.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to copy archive from container: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	// CopyFromContainer wraps the file in an outer tar stream.
	tarReader := tar.NewReader(reader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream: %w", err)
		}

		if header.Name == "backup.tar.gz" || strings.HasSuffix(header.Name, "/backup.tar.gz") {
			if _, err := io.CopyN(w, tarReader, maxArchiveSize); err != nil && err != io.EOF {
				return fmt.Errorf("failed to copy archive data: %w", err)
			}
			return nil
		}
	}

	return fmt.Errorf("backup.tar.gz not found in tar stream")
}

// RestoreVolume replaces the contents of a named volume with the tar.gz
// archive at archivePath, again through an ephemeral container. Existing
// volume contents are deleted first.
func (c *Client) RestoreVolume(ctx context.Context, volumeName, archivePath string) error {
	data, err := os.ReadFile(archivePath) // #nosec G304 - controlled snapshot path
	if err != nil {
		return fmt.Errorf("failed to read archive file: %w", err)
	}

	resp, err := c.docker.ContainerCreate(
		ctx,
		&container.Config{
			Image: helperImage,
			Cmd:   []string{"sh", "-c", "rm -rf /data/* /data/.[^.]* && cd /data && tar xzf /backup.tar.gz"},
		},
		&container.HostConfig{
			Binds: []string{
				fmt.Sprintf("%s:/data", volumeName),
			},
		},
		nil,
		nil,
		"",
	)
	if err != nil {
		return fmt.Errorf("failed to create restore container: %w", err)
	}
	defer c.removeContainer(resp.ID)

	if err := c.docker.CopyToContainer(ctx, resp.ID, "/",
		tarWithFile("backup.tar.gz", data), types.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("failed to copy archive to container: %w", err)
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start restore container: %w", err)
	}

	return c.waitForContainer(ctx, resp.ID)
}

// waitForContainer blocks until the container exits and surfaces a non-zero
// exit code as an error, including the container logs when available.
func (c *Client) waitForContainer(ctx context.Context, containerID string) error {
	statusCh, errCh := c.docker.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("helper container error: %w", err)
		}
	case status := <-statusCh:
		if status.StatusCode != 0 {
			if logData := c.containerLogs(ctx, containerID); logData != "" {
				return fmt.Errorf("helper container exited with code %d: %s", status.StatusCode, logData)
			}
			return fmt.Errorf("helper container exited with code %d", status.StatusCode)
		}
	}
	return nil
}

func (c *Client) containerLogs(ctx context.Context, containerID string) string {
	logs, err := c.docker.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return ""
	}
	defer func() {
		_ = logs.Close()
	}()

	data, _ := io.ReadAll(logs)
	return strings.TrimSpace(string(data))
}

func (c *Client) removeContainer(containerID string) {
	_ = c.docker.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
}

// tarWithFile builds a tar stream containing a single file, as required by
// CopyToContainer.
func tarWithFile(filename string, data []byte) io.Reader {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)

	header := &tar.Header{
		Name: filename,
		Mode: 0600,
		Size: int64(len(data)),
	}

	if err := tw.WriteHeader(header); err != nil {
		return bytes.NewReader(nil)
	}
	if _, err := tw.Write(data); err != nil {
		return bytes.NewReader(nil)
	}
	if err := tw.Close(); err != nil {
		return bytes.NewReader(nil)
	}

	return buf
}
