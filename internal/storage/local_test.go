package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T) *LocalStorage {
	t.Helper()
	l, err := NewLocalStorage(&LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return l
}

func TestLocalStoreRetrieveRoundTrip(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	snap := &Snapshot{
		ID: "logistics-bot@20260831-120000",
		Metadata: Metadata{
			ID:         "logistics-bot@20260831-120000",
			Name:       "logistics-bot",
			VolumeName: "logistics-bot_db_data",
			Size:       12,
			CreatedAt:  time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		},
		DataReader: strings.NewReader("archive-bytes"),
	}

	require.NoError(t, l.Store(ctx, snap))

	// Snapshot is laid out as a directory with data and metadata files.
	dir := l.SnapshotDir(snap.ID)
	assert.FileExists(t, filepath.Join(dir, dataFileName))
	assert.FileExists(t, filepath.Join(dir, metaFileName))

	got, err := l.Retrieve(ctx, snap.ID)
	require.NoError(t, err)
	defer func() {
		if closer, ok := got.DataReader.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	assert.Equal(t, "logistics-bot", got.Metadata.Name)
	assert.Equal(t, "logistics-bot_db_data", got.Metadata.VolumeName)

	data, err := io.ReadAll(got.DataReader)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestLocalRetrieveMissing(t *testing.T) {
	l := newTestLocal(t)

	_, err := l.Retrieve(context.Background(), "nope@20260101-000000")
	assert.ErrorContains(t, err, "snapshot not found")
}

func TestLocalListSkipsForeignDirectories(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Store(ctx, &Snapshot{
		ID:         "logistics-bot@20260831-120000",
		Metadata:   Metadata{ID: "logistics-bot@20260831-120000", Name: "logistics-bot"},
		DataReader: strings.NewReader("x"),
	}))

	// A directory without metadata must not show up in listings.
	require.NoError(t, os.MkdirAll(filepath.Join(l.basePath, "random-junk"), 0o750))

	list, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "logistics-bot", list[0].Name)
}

func TestLocalDelete(t *testing.T) {
	l := newTestLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Store(ctx, &Snapshot{
		ID:         "logistics-bot@20260831-120000",
		Metadata:   Metadata{ID: "logistics-bot@20260831-120000"},
		DataReader: strings.NewReader("x"),
	}))

	exists, err := l.Exists(ctx, "logistics-bot@20260831-120000")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, l.Delete(ctx, "logistics-bot@20260831-120000"))

	exists, err = l.Exists(ctx, "logistics-bot@20260831-120000")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, l.Delete(ctx, "logistics-bot@20260831-120000"))
}
