package ops

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logibot/botctl/internal/config"
	"github.com/logibot/botctl/internal/crypto"
	"github.com/logibot/botctl/internal/storage"
)

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, args ...string) error {
	f.calls = append(f.calls, args)
	return f.err
}

type fakeEngine struct {
	archived        []string
	restored        []string
	archiveData     []byte
	restoredArchive []byte
	volumeExists    bool
	pruneImages     uint64
	pruneVolumes    uint64
}

func (f *fakeEngine) VolumeExists(_ context.Context, _ string) (bool, error) {
	return f.volumeExists, nil
}

func (f *fakeEngine) ArchiveVolume(_ context.Context, volumeName string, w io.Writer) error {
	f.archived = append(f.archived, volumeName)
	data := f.archiveData
	if data == nil {
		data = []byte("fake archive data")
	}
	_, err := w.Write(data)
	return err
}

func (f *fakeEngine) RestoreVolume(_ context.Context, volumeName, archivePath string) error {
	f.restored = append(f.restored, volumeName)
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	f.restoredArchive = data
	return nil
}

func (f *fakeEngine) PruneImages(_ context.Context) (uint64, error) {
	return f.pruneImages, nil
}

func (f *fakeEngine) PruneVolumes(_ context.Context) (uint64, error) {
	return f.pruneVolumes, nil
}

// testConfig returns a config rooted in a temp project directory with a
// compose file and env file already in place and no database wait.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.ProjectDir = dir
	cfg.DBWaitSeconds = 0

	require.NoError(t, os.WriteFile(cfg.ComposeFilePath(), []byte("services: {}\n"), 0600))
	require.NoError(t, os.WriteFile(cfg.EnvFilePath(), []byte("BOT_TOKEN=x\n"), 0600))
	return cfg
}

func testClient(t *testing.T, cfg *config.Config, runner *fakeRunner, engine *fakeEngine) *Client {
	t.Helper()

	backend, err := storage.NewLocalStorage(&storage.LocalConfig{
		BasePath: cfg.BackupPath(),
	})
	require.NoError(t, err)

	c := New(cfg, runner, engine, backend)
	c.SetQuiet(true)
	return c
}

func TestDeployRequiresEnvFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(cfg.EnvFilePath()))

	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	err := c.Deploy(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment file")
	assert.Empty(t, runner.calls, "nothing should be built without an env file")
}

func TestDeployCreatesDataDirs(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	require.NoError(t, c.Deploy(context.Background(), false))

	for _, dir := range cfg.DataDirs {
		info, err := os.Stat(filepath.Join(cfg.ProjectDir, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestDeployCommandOrder(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	require.NoError(t, c.Deploy(context.Background(), true))

	require.Len(t, runner.calls, 4)
	assert.Equal(t, []string{"build", "--no-cache"}, runner.calls[0])
	assert.Equal(t, []string{"up", "-d"}, runner.calls[1])
	assert.Equal(t, []string{"ps"}, runner.calls[2])
	assert.Equal(t, "exec", runner.calls[3][0])
	assert.Equal(t, "-T", runner.calls[3][1])
	assert.Equal(t, cfg.AppService, runner.calls[3][2])
	assert.Equal(t, cfg.InitDBCommand, runner.calls[3][3:])
}

func TestDeployWithoutInitDBSkipsExec(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	require.NoError(t, c.Deploy(context.Background(), false))

	for _, call := range runner.calls {
		assert.NotEqual(t, "exec", call[0])
	}
}

func TestBackupWithoutComposeFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.Remove(cfg.ComposeFilePath()))

	runner := &fakeRunner{}
	engine := &fakeEngine{}
	c := testClient(t, cfg, runner, engine)

	id, err := c.Backup(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, runner.calls)
	assert.Empty(t, engine.archived)
}

func TestBackupCreatesSnapshot(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.ProjectDir, "settings.json"), []byte("{}"), 0600))
	photosDir := filepath.Join(cfg.ProjectDir, "photos")
	require.NoError(t, os.MkdirAll(photosDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(photosDir, "a.jpg"), []byte("jpeg"), 0600))

	runner := &fakeRunner{}
	engine := &fakeEngine{archiveData: []byte("pg data archive")}
	c := testClient(t, cfg, runner, engine)

	id, err := c.Backup(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Equal(t, [][]string{{"stop"}}, runner.calls)
	require.Equal(t, []string{cfg.DBVolumeName()}, engine.archived)

	// The snapshot directory holds the database archive plus the copied
	// configuration and data files.
	snapDir := filepath.Join(cfg.BackupPath(), id)
	data, err := os.ReadFile(filepath.Join(snapDir, "data.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pg data archive"), data)

	_, err = os.Stat(filepath.Join(snapDir, "metadata.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(snapDir, ".env"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(snapDir, "settings.json"))
	assert.NoError(t, err)
	copied, err := os.ReadFile(filepath.Join(snapDir, "photos", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), copied)
}

func TestBackupSkipsMissingDataDirs(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	id, err := c.Backup(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = os.Stat(filepath.Join(cfg.BackupPath(), id, "data.tar.gz"))
	assert.NoError(t, err)
}

func TestUpdateBacksUpFirst(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	require.NoError(t, c.Update(context.Background()))

	require.Len(t, runner.calls, 3)
	assert.Equal(t, []string{"stop"}, runner.calls[0], "backup stop must precede the rebuild")
	assert.Equal(t, []string{"build", "--no-cache"}, runner.calls[1])
	assert.Equal(t, []string{"up", "-d"}, runner.calls[2])
}

func TestRestoreRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	engine := &fakeEngine{volumeExists: true, archiveData: []byte("pg data archive")}
	c := testClient(t, cfg, runner, engine)

	id, err := c.Backup(context.Background())
	require.NoError(t, err)

	runner.calls = nil
	require.NoError(t, c.Restore(context.Background(), id, false, true))

	assert.Equal(t, [][]string{{"stop"}}, runner.calls)
	assert.Equal(t, []string{cfg.DBVolumeName()}, engine.restored)
}

func TestBackupRestoreEncrypted(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	// Larger than one encryption chunk so the sealed stream spans
	// several chunks, the way a real database archive does.
	archive := bytes.Repeat([]byte("pg page "), 16*1024)
	engine := &fakeEngine{volumeExists: true, archiveData: archive}
	c := testClient(t, cfg, runner, engine)
	c.SetEncryption(true, "hunter2")

	id, err := c.Backup(context.Background())
	require.NoError(t, err)

	stored, err := os.ReadFile(filepath.Join(cfg.BackupPath(), id, "data.tar.gz"))
	require.NoError(t, err)
	assert.True(t, crypto.IsEncrypted(stored))
	assert.NotContains(t, string(stored), "pg page")

	require.NoError(t, c.Restore(context.Background(), id, false, true))
	assert.Equal(t, archive, engine.restoredArchive, "restored archive must match the original plaintext")
}

func TestRestoreDryRun(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	engine := &fakeEngine{volumeExists: true}
	c := testClient(t, cfg, runner, engine)

	id, err := c.Backup(context.Background())
	require.NoError(t, err)

	runner.calls = nil
	require.NoError(t, c.Restore(context.Background(), id, true, true))

	assert.Empty(t, runner.calls, "dry run must not touch the project")
	assert.Empty(t, engine.restored)
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	cfg := testConfig(t)
	c := testClient(t, cfg, &fakeRunner{}, &fakeEngine{})

	err := c.Restore(context.Background(), "no-such-snapshot", false, true)
	require.Error(t, err)
}

func TestLogsScoping(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	require.NoError(t, c.Logs(context.Background(), ""))
	require.NoError(t, c.Logs(context.Background(), cfg.DBService))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"logs", "-f"}, runner.calls[0])
	assert.Equal(t, []string{"logs", "-f", "db"}, runner.calls[1])
}

func TestPassthroughCommands(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	c := testClient(t, cfg, runner, &fakeEngine{})

	ctx := context.Background()
	require.NoError(t, c.Status(ctx))
	require.NoError(t, c.StopProject(ctx))
	require.NoError(t, c.StartProject(ctx))
	require.NoError(t, c.Restart(ctx))

	assert.Equal(t, [][]string{
		{"ps"},
		{"stop"},
		{"start"},
		{"restart"},
	}, runner.calls)
}

func TestCleanup(t *testing.T) {
	cfg := testConfig(t)
	engine := &fakeEngine{pruneImages: 1024, pruneVolumes: 2048}
	c := testClient(t, cfg, &fakeRunner{}, engine)

	require.NoError(t, c.Cleanup(context.Background()))
}
