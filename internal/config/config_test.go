package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "logistics-bot", cfg.Project)
	assert.Equal(t, "docker-compose.yml", cfg.ComposeFile)
	assert.Equal(t, ".env", cfg.EnvFile)
	assert.Equal(t, []string{"photos", "reports", "user_logs"}, cfg.DataDirs)
	assert.Equal(t, 10*time.Second, cfg.DBWait())
	assert.Equal(t, dir, cfg.ProjectDir)

	// The schema setup entrypoint the app actually exports.
	assert.Equal(t,
		[]string{"python", "-c", "from database import create_tables; create_tables()"},
		cfg.InitDBCommand)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `project: fleet-bot
db_volume: pgdata
db_wait_seconds: 3
data_dirs:
  - exports
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "fleet-bot", cfg.Project)
	assert.Equal(t, "fleet-bot_pgdata", cfg.DBVolumeName())
	assert.Equal(t, 3*time.Second, cfg.DBWait())
	assert.Equal(t, []string{"exports"}, cfg.DataDirs)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, ".env", cfg.EnvFile)
	assert.Equal(t, "app", cfg.AppService)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("project: [broken"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestDBVolumeName(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "logistics-bot_db_data", cfg.DBVolumeName())
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.ProjectDir = "/srv/bot"

	assert.Equal(t, filepath.Join("/srv/bot", "docker-compose.yml"), cfg.ComposeFilePath())
	assert.Equal(t, filepath.Join("/srv/bot", ".env"), cfg.EnvFilePath())
}
