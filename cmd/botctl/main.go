package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/logibot/botctl/internal/compose"
	"github.com/logibot/botctl/internal/config"
	"github.com/logibot/botctl/internal/docker"
	"github.com/logibot/botctl/internal/ops"
	"github.com/logibot/botctl/internal/storage"
	"github.com/logibot/botctl/pkg/version"
)

// Global variables for CLI flags
var (
	projectDir string
	verbose    bool
	quiet      bool
	initDB     bool
	dryRun     bool
	force      bool
	// Storage flags
	storageType  string
	gcsBucket    string
	gcsProject   string
	gcsCredsFile string
	s3Bucket     string
	s3Region     string
	s3Endpoint   string
	s3AccessKey  string
	s3SecretKey  string
	// Encryption flags
	encrypt  bool
	password string
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildStorageConfig(cfg *config.Config) (*storage.Config, error) {
	storageConfig := &storage.Config{
		Type: storageType,
	}

	switch storageType {
	case "local":
		storageConfig.Local = &storage.LocalConfig{
			BasePath: cfg.BackupPath(),
		}
	case "gcs":
		if gcsBucket == "" {
			return nil, fmt.Errorf("GCS bucket is required when using GCS storage")
		}
		storageConfig.GCS = &storage.GCSConfig{
			Bucket:      gcsBucket,
			ProjectID:   gcsProject,
			Credentials: gcsCredsFile,
		}
	case "s3":
		if s3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required when using S3 storage")
		}
		storageConfig.S3 = &storage.S3Config{
			Bucket:    s3Bucket,
			Region:    s3Region,
			Endpoint:  s3Endpoint,
			AccessKey: s3AccessKey,
			SecretKey: s3SecretKey,
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}

	return storageConfig, nil
}

// newComposeClient wires an operations client with only the compose CLI
// behind it, for commands that never touch volumes or snapshots.
func newComposeClient(ctx context.Context) (*ops.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	composeCLI, err := compose.Detect(ctx, cfg.Project, cfg.ProjectDir)
	if err != nil {
		return nil, err
	}

	client := ops.New(cfg, composeCLI, nil, nil)
	client.SetVerbose(verbose && !quiet)
	client.SetQuiet(quiet)
	return client, nil
}

// newFullClient wires an operations client with the compose CLI, the
// container engine and the snapshot storage backend. The returned cleanup
// closes the engine connection.
func newFullClient(ctx context.Context) (*ops.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	composeCLI, err := compose.Detect(ctx, cfg.Project, cfg.ProjectDir)
	if err != nil {
		return nil, nil, err
	}

	engine, err := docker.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}

	storageConfig, err := buildStorageConfig(cfg)
	if err != nil {
		_ = engine.Close()
		return nil, nil, err
	}

	backend, err := storage.NewBackend(ctx, storageConfig)
	if err != nil {
		_ = engine.Close()
		return nil, nil, err
	}

	client := ops.New(cfg, composeCLI, engine, backend)
	client.SetVerbose(verbose && !quiet)
	client.SetQuiet(quiet)
	if encrypt || password != "" {
		client.SetEncryption(true, password)
	}

	cleanup := func() {
		_ = engine.Close()
	}
	return client, cleanup, nil
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "botctl",
		Short:         "Deployment manager for the logistics bot",
		Long:          "botctl deploys, updates and backs up the containerized logistics bot: compose lifecycle, database snapshots and source updates in one tool",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "C", ".", "Project directory containing the compose file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet output")

	// Storage backend flags
	rootCmd.PersistentFlags().StringVar(&storageType, "storage", "local", "Snapshot storage backend (local, gcs, s3)")

	// GCS flags
	rootCmd.PersistentFlags().StringVar(&gcsBucket, "gcs-bucket", "", "GCS bucket name")
	rootCmd.PersistentFlags().StringVar(&gcsProject, "gcs-project", "", "GCS project ID")
	rootCmd.PersistentFlags().StringVar(&gcsCredsFile, "gcs-creds", "", "Path to GCS credentials file")

	// S3 flags
	rootCmd.PersistentFlags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().StringVar(&s3Region, "s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3 endpoint (for S3-compatible services)")
	rootCmd.PersistentFlags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")

	// Add commands
	rootCmd.AddCommand(createDeployCommand())
	rootCmd.AddCommand(createStatusCommand())
	rootCmd.AddCommand(createUpdateCommand())
	rootCmd.AddCommand(createStopCommand())
	rootCmd.AddCommand(createStartCommand())
	rootCmd.AddCommand(createRestartCommand())
	rootCmd.AddCommand(createLogsCommand())
	rootCmd.AddCommand(createBackupCommand())
	rootCmd.AddCommand(createRestoreCommand())
	rootCmd.AddCommand(createSnapshotsCommand())
	rootCmd.AddCommand(createCleanupCommand())
	rootCmd.AddCommand(createVersionCommand())

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createDeployCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build images and start the project",
		Long:  "Build the images from scratch, create the data directories and bring the project up. Requires the environment file to exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newComposeClient(ctx)
			if err != nil {
				return err
			}

			return client.Deploy(ctx, initDB)
		},
	}

	cmd.Flags().BoolVar(&initDB, "init-db", false, "Run the one-shot database initialization after startup")

	return cmd
}

func createStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show container status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newComposeClient(ctx)
			if err != nil {
				return err
			}

			return client.Status(ctx)
		},
	}
}

func createUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Backup, pull the latest source and rebuild",
		Long:  "Take a snapshot first, fast-forward the project source from its origin remote, then rebuild and restart the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, cleanup, err := newFullClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return client.Update(ctx)
		},
	}

	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the pre-update snapshot with AES-256")
	cmd.Flags().StringVar(&password, "password", "", "Password for encryption (will prompt if not provided)")

	return cmd
}

func createStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the project containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newComposeClient(ctx)
			if err != nil {
				return err
			}

			return client.StopProject(ctx)
		},
	}
}

func createStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start stopped project containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newComposeClient(ctx)
			if err != nil {
				return err
			}

			return client.StartProject(ctx)
		},
	}
}

func createRestartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the project containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newComposeClient(ctx)
			if err != nil {
				return err
			}

			return client.Restart(ctx)
		},
	}
}

func createLogsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logs [service]",
		Short: "Follow log output",
		Long:  "Follow log output for the whole project, or for a single service (e.g. 'app' or 'db')",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, err := newComposeClient(ctx)
			if err != nil {
				return err
			}

			service := ""
			if len(args) == 1 {
				service = args[0]
			}
			return client.Logs(ctx, service)
		},
	}
}

func createBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database volume and configuration",
		Long: "Stop the project, archive the database volume into a timestamped snapshot and copy the configuration files and data directories alongside it.\n" +
			"With a remote storage backend (--storage gcs|s3) only the volume archive and metadata go offsite; the configuration and data copies always stay in the local backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, cleanup, err := newFullClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = client.Backup(ctx)
			return err
		},
	}

	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Encrypt the snapshot with AES-256")
	cmd.Flags().StringVar(&password, "password", "", "Password for encryption (will prompt if not provided)")

	return cmd
}

func createRestoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Restore the database volume from a snapshot",
		Long:  "Restore the database volume from a stored snapshot by name (latest version) or name@version (format: name@YYYYMMDD-HHMMSS)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			client, cleanup, err := newFullClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			return client.Restore(ctx, args[0], dryRun, force)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be restored without making changes")
	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompts")
	cmd.Flags().StringVar(&password, "password", "", "Password for decryption (will prompt if encrypted and not provided)")

	return cmd
}

func createSnapshotsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			storageConfig, err := buildStorageConfig(cfg)
			if err != nil {
				return err
			}

			backend, err := storage.NewBackend(ctx, storageConfig)
			if err != nil {
				return err
			}

			client := ops.New(cfg, nil, nil, backend)
			client.SetVerbose(verbose && !quiet)
			client.SetQuiet(quiet)
			return client.Snapshots(ctx)
		},
	}
}

func createCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Prune dangling images and unused volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			engine, err := docker.NewClient(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = engine.Close()
			}()

			client := ops.New(cfg, nil, engine, nil)
			client.SetVerbose(verbose && !quiet)
			client.SetQuiet(quiet)
			return client.Cleanup(ctx)
		},
	}
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Info())
		},
	}
}
