package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hashroot"
	"github.com/hupe1980/hashroot/blobstore"
	"github.com/hupe1980/hashroot/config"
	"github.com/hupe1980/hashroot/snapshot"
)

func TestVerifyFile(t *testing.T) {
	menu := map[string]snapshot.MenuEntry{
		"ab": {Level: 0, Timestamp: 1700000000.5, Meta: map[string]any{"type": "data"}},
	}
	root, err := snapshot.Root(menu)
	require.NoError(t, err)

	data, err := snapshot.Encode(snapshot.Snapshot{RootHash: root, Menu: menu}, nil, snapshot.Zstd)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), snapshot.Zstd.Name(snapshot.FileName))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var out bytes.Buffer
	require.NoError(t, verifyFile(path, &out))
	assert.Equal(t, "OK "+root+" (1 entries)\n", out.String())

	tampered, err := snapshot.Encode(snapshot.Snapshot{RootHash: "00", Menu: menu}, nil, snapshot.None)
	require.NoError(t, err)
	bad := filepath.Join(t.TempDir(), snapshot.FileName)
	require.NoError(t, os.WriteFile(bad, tampered, 0o644))
	assert.ErrorIs(t, verifyFile(bad, &out), snapshot.ErrRootMismatch)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(config.LogConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	_, err = newLogger(config.LogConfig{Level: "loud", Format: "text"})
	assert.Error(t, err)
}

func TestOpenSink(t *testing.T) {
	dir := t.TempDir()
	store, closeStore, err := openSink(context.Background(), config.SinkConfig{Kind: "local", Dir: dir})
	require.NoError(t, err)

	_, ok := store.(*blobstore.LocalStore)
	assert.True(t, ok)

	_, _, err = openSink(context.Background(), config.SinkConfig{Kind: "local", Dir: dir})
	var initErr *hashroot.StorageInitError
	require.ErrorAs(t, err, &initErr)
	assert.True(t, errors.Is(err, blobstore.ErrLocked))

	require.NoError(t, closeStore())

	_, _, err = openSink(context.Background(), config.SinkConfig{Kind: "tape"})
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "tape", initErr.Sink)
}

func TestRunOnce(t *testing.T) {
	cfg := config.Default()
	cfg.Sink.Dir = t.TempDir()
	cfg.Source.Generate = 3

	logger := hashroot.NoopLogger()
	require.NoError(t, run(context.Background(), cfg, logger, true, false))

	store, closeStore, err := openSink(context.Background(), cfg.Sink)
	require.NoError(t, err)
	defer closeStore()

	raw, err := store.Get(context.Background(), snapshot.FileName)
	require.NoError(t, err)
	snap, err := snapshot.Decode(raw, snapshot.None)
	require.NoError(t, err)
	assert.Len(t, snap.Menu, 3)
	assert.NoError(t, snapshot.Verify(snap))
}

func TestRunMenu_DoesNotBuildSyncers(t *testing.T) {
	cfg := config.Default()
	cfg.Sink.Dir = t.TempDir()
	cfg.Source.Generate = 2
	logger := hashroot.NoopLogger()
	require.NoError(t, run(context.Background(), cfg, logger, true, false))

	// A missing profile makes the AWS config loader fail.
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
	t.Setenv("AWS_PROFILE", "hashroot-missing-profile")
	cfg.Sync.DynamoDB.Enabled = true

	assert.ErrorContains(t, run(context.Background(), cfg, logger, true, false), "load aws config")
	assert.NoError(t, run(context.Background(), cfg, logger, false, true))
}
