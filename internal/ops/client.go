// Package ops implements the deployment operations: deploy, update, backup,
// restore and the compose pass-throughs. Each operation is a linear sequence
// of external calls that aborts on the first failure.
package ops

import (
	"context"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/logibot/botctl/internal/config"
	"github.com/logibot/botctl/internal/storage"
)

// Runner executes compose subcommands for the project. The production
// implementation shells out to the detected orchestration CLI.
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// Engine is the container runtime surface the operations need beyond
// compose: volume archiving and pruning.
type Engine interface {
	VolumeExists(ctx context.Context, volumeName string) (bool, error)
	ArchiveVolume(ctx context.Context, volumeName string, w io.Writer) error
	RestoreVolume(ctx context.Context, volumeName, archivePath string) error
	PruneImages(ctx context.Context) (uint64, error)
	PruneVolumes(ctx context.Context) (uint64, error)
}

// Client runs operations against one deployment.
type Client struct {
	cfg     *config.Config
	compose Runner
	engine  Engine
	store   storage.Backend

	verbose bool
	quiet   bool

	encryptEnabled bool
	password       string
}

// New creates an operations client. The storage backend may be nil for
// operations that never touch snapshots.
func New(cfg *config.Config, compose Runner, engine Engine, store storage.Backend) *Client {
	return &Client{
		cfg:     cfg,
		compose: compose,
		engine:  engine,
		store:   store,
	}
}

// SetVerbose sets the verbose mode for the client.
func (c *Client) SetVerbose(verbose bool) {
	c.verbose = verbose
}

// SetQuiet sets the quiet mode for the client.
func (c *Client) SetQuiet(quiet bool) {
	c.quiet = quiet
}

// SetEncryption sets encryption settings for snapshot archives.
func (c *Client) SetEncryption(enabled bool, password string) {
	c.encryptEnabled = enabled
	c.password = password
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.verbose {
		fmt.Printf(format+"\n", args...)
	}
}

func (c *Client) printf(format string, args ...interface{}) {
	if !c.quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// promptPassword prompts the user for a password without echo.
func (c *Client) promptPassword(prompt string, confirm bool) string {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		c.logf("Error reading password: %v", err)
		return ""
	}

	password := string(bytePassword)

	if confirm {
		fmt.Print("Confirm password: ")
		byteConfirm, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			c.logf("Error reading password confirmation: %v", err)
			return ""
		}
		if password != string(byteConfirm) {
			fmt.Println("❌ Passwords do not match")
			return ""
		}
	}

	return password
}
