package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the optional per-deployment configuration file, looked up
// in the project directory.
const FileName = "botctl.yaml"

// Config holds the resolved settings for one bot deployment. Every name
// that the shell tooling used to hard-code (compose project, database
// volume, service names) is configurable here.
type Config struct {
	// ProjectDir is the deployment directory holding the compose file,
	// the env file and the data directories. Set from the CLI, not from
	// the config file.
	ProjectDir string `yaml:"-"`

	// Project is the compose project name. Container, network and volume
	// names are derived from it by the orchestration CLI.
	Project string `yaml:"project"`

	// ComposeFile is the compose file name inside ProjectDir.
	ComposeFile string `yaml:"compose_file"`

	// EnvFile is the environment file required before a deploy.
	EnvFile string `yaml:"env_file"`

	// AppService and DBService are the compose service names of the bot
	// application and its database.
	AppService string `yaml:"app_service"`
	DBService  string `yaml:"db_service"`

	// DBVolume is the compose volume holding the database data, without
	// the project prefix.
	DBVolume string `yaml:"db_volume"`

	// DataDirs are the bind-mounted data directories that deploy creates
	// and backup copies into each snapshot.
	DataDirs []string `yaml:"data_dirs"`

	// ConfigFiles are loose files copied into each snapshot alongside the
	// data directories.
	ConfigFiles []string `yaml:"config_files"`

	// DBWaitSeconds is how long deploy waits after `up` before assuming
	// the database accepts connections.
	DBWaitSeconds int `yaml:"db_wait_seconds"`

	// BackupDir is where local snapshots are written.
	BackupDir string `yaml:"backup_dir"`

	// InitDBCommand is the one-shot command run inside the app container
	// when deploy is invoked with --init-db.
	InitDBCommand []string `yaml:"init_db_command"`
}

// Default returns the configuration matching the logistics bot deployment
// this tool was written for.
func Default() *Config {
	return &Config{
		ProjectDir:    ".",
		Project:       "logistics-bot",
		ComposeFile:   "docker-compose.yml",
		EnvFile:       ".env",
		AppService:    "app",
		DBService:     "db",
		DBVolume:      "db_data",
		DataDirs:      []string{"photos", "reports", "user_logs"},
		ConfigFiles:   []string{".env", "settings.json"},
		DBWaitSeconds: 10,
		BackupDir:     "backups",
		InitDBCommand: []string{"python", "-c", "from database import create_tables; create_tables()"},
	}
}

// Load resolves the configuration for a project directory. A botctl.yaml
// in that directory overrides the defaults field by field; a missing file
// is not an error.
func Load(projectDir string) (*Config, error) {
	cfg := Default()
	cfg.ProjectDir = projectDir

	path := filepath.Join(projectDir, FileName)
	data, err := os.ReadFile(path) // #nosec G304 - operator-controlled project dir
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ProjectDir = projectDir

	return cfg, nil
}

// ComposeFilePath returns the absolute-ish path of the compose file.
func (c *Config) ComposeFilePath() string {
	return filepath.Join(c.ProjectDir, c.ComposeFile)
}

// EnvFilePath returns the path of the required environment file.
func (c *Config) EnvFilePath() string {
	return filepath.Join(c.ProjectDir, c.EnvFile)
}

// DBVolumeName returns the full Docker volume name of the database volume.
// Compose prefixes volume names with the project name.
func (c *Config) DBVolumeName() string {
	return fmt.Sprintf("%s_%s", c.Project, c.DBVolume)
}

// BackupPath returns the local snapshot directory, resolving a relative
// BackupDir against the project directory.
func (c *Config) BackupPath() string {
	if filepath.IsAbs(c.BackupDir) {
		return c.BackupDir
	}
	return filepath.Join(c.ProjectDir, c.BackupDir)
}

// DBWait returns the database readiness delay as a duration.
func (c *Config) DBWait() time.Duration {
	return time.Duration(c.DBWaitSeconds) * time.Second
}
