package ops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
)

// Deploy builds the images from scratch and brings the project up. The
// environment file must exist before anything is built; with initDB the
// one-shot database initialization runs inside the app container once the
// database has had time to come up.
func (c *Client) Deploy(ctx context.Context, initDB bool) error {
	envPath := c.cfg.EnvFilePath()
	if _, err := os.Stat(envPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("environment file %s not found: create it before deploying", envPath)
		}
		return fmt.Errorf("failed to check environment file: %w", err)
	}

	// The bind-mounted data directories must exist before `up`, otherwise
	// the runtime creates them root-owned.
	for _, dir := range c.cfg.DataDirs {
		path := filepath.Join(c.cfg.ProjectDir, dir)
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", path, err)
		}
	}

	c.printf("🔨 Building images...")
	if err := c.compose.Run(ctx, "build", "--no-cache"); err != nil {
		return err
	}

	c.printf("🚀 Starting project '%s'...", c.cfg.Project)
	if err := c.compose.Run(ctx, "up", "-d"); err != nil {
		return err
	}

	c.waitForDatabase()

	if err := c.compose.Run(ctx, "ps"); err != nil {
		return err
	}

	if initDB {
		c.printf("🗄️  Initializing database...")
		args := append([]string{"exec", "-T", c.cfg.AppService}, c.cfg.InitDBCommand...)
		if err := c.compose.Run(ctx, args...); err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
	}

	c.printf("✅ Deploy complete")
	return nil
}

// Update refreshes a running deployment: backup first, then pull new
// source if the project directory is a git repository, rebuild and bring
// the project back up.
func (c *Client) Update(ctx context.Context) error {
	if _, err := c.Backup(ctx); err != nil {
		return fmt.Errorf("backup before update failed: %w", err)
	}

	if err := c.pullSource(); err != nil {
		return err
	}

	c.printf("🔨 Rebuilding images...")
	if err := c.compose.Run(ctx, "build", "--no-cache"); err != nil {
		return err
	}

	c.printf("🚀 Starting project '%s'...", c.cfg.Project)
	return c.compose.Run(ctx, "up", "-d")
}

// pullSource fast-forwards the project directory from its origin remote.
// A directory that is not a git repository is only a warning; the update
// proceeds with whatever source is on disk.
func (c *Client) pullSource() error {
	repo, err := git.PlainOpen(c.cfg.ProjectDir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			c.printf("⚠️  %s is not a git repository, skipping source update", c.cfg.ProjectDir)
			return nil
		}
		return fmt.Errorf("failed to open repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	c.printf("📥 Pulling latest source...")
	err = worktree.Pull(&git.PullOptions{RemoteName: "origin"})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		c.printf("   Already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to pull source: %w", err)
	}
	return nil
}

// waitForDatabase blocks for the configured delay before the database is
// assumed ready. There is no health probe; the delay mirrors what the
// deployment has always relied on.
func (c *Client) waitForDatabase() {
	wait := c.cfg.DBWait()
	if wait <= 0 {
		return
	}

	if c.quiet {
		time.Sleep(wait)
		return
	}

	spinner := NewSpinner(fmt.Sprintf("⏳ Waiting %s for the database", wait))
	time.Sleep(wait)
	spinner.Stop()
}
