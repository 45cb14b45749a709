// Package compose shells out to the Docker Compose CLI. Compose has no SDK
// surface, so project lifecycle operations (build, up, stop, logs, exec) are
// executed as child processes with streaming output.
package compose

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// CLI runs compose subcommands for a single project. It supports both
// invocation forms: the `docker compose` plugin and the standalone
// `docker-compose` binary.
type CLI struct {
	bin      string
	baseArgs []string
	project  string
	dir      string

	// Stdout and Stderr receive the child process output. They default
	// to the calling process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Detect locates a usable orchestration CLI. The plugin form is preferred;
// the standalone binary is the fallback. Returns an error when neither is
// available.
func Detect(ctx context.Context, projectName, projectDir string) (*CLI, error) {
	if path, err := exec.LookPath("docker"); err == nil {
		probe := exec.CommandContext(ctx, path, "compose", "version")
		if probe.Run() == nil {
			return newCLI(path, []string{"compose"}, projectName, projectDir), nil
		}
	}

	if path, err := exec.LookPath("docker-compose"); err == nil {
		return newCLI(path, nil, projectName, projectDir), nil
	}

	return nil, fmt.Errorf("no Docker Compose CLI found: install the compose plugin or docker-compose")
}

func newCLI(bin string, baseArgs []string, projectName, projectDir string) *CLI {
	return &CLI{
		bin:      bin,
		baseArgs: baseArgs,
		project:  projectName,
		dir:      projectDir,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// Run executes one compose subcommand ("up -d", "stop", "logs -f app", ...)
// in the project directory with output streamed through. A non-zero exit
// is returned as an error so callers can abort on the first failure.
func (c *CLI) Run(ctx context.Context, args ...string) error {
	full := c.fullArgs(args...)

	cmd := exec.CommandContext(ctx, c.bin, full...)
	cmd.Dir = c.dir
	cmd.Env = os.Environ()
	cmd.Stdin = os.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("compose %s failed: %w", args[0], err)
	}
	return nil
}

// fullArgs assembles the final argument list. The project name is pinned
// with -p so invocations are stable regardless of the directory name.
func (c *CLI) fullArgs(args ...string) []string {
	full := make([]string, 0, len(c.baseArgs)+2+len(args))
	full = append(full, c.baseArgs...)
	full = append(full, "-p", c.project)
	full = append(full, args...)
	return full
}
