package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewLocalStore(tmpDir)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// 1. Put a blob
	data := []byte(`{"root_hash":"abc"}`)
	require.NoError(t, store.Put(ctx, "root_hash.json", data))

	// Verify file exists on disk
	_, err = os.Stat(filepath.Join(tmpDir, "root_hash.json"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "root_hash.json"), store.Path("root_hash.json"))

	// 2. Get
	got, err := store.Get(ctx, "root_hash.json")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// 3. Overwrite
	require.NoError(t, store.Put(ctx, "root_hash.json", []byte("v2")))
	got, err = store.Get(ctx, "root_hash.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	// 4. Nested names and List
	require.NoError(t, store.Put(ctx, "history/0001.json", []byte("h1")))
	require.NoError(t, store.Put(ctx, "history/0002.json", []byte("h2")))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"history/0001.json", "history/0002.json", "root_hash.json"}, names)

	names, err = store.List(ctx, "history/")
	require.NoError(t, err)
	assert.Len(t, names, 2)

	// 5. Delete, twice
	require.NoError(t, store.Delete(ctx, "history/0001.json"))
	require.NoError(t, store.Delete(ctx, "history/0001.json"))
	_, err = store.Get(ctx, "history/0001.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_ExclusiveLock(t *testing.T) {
	dir := t.TempDir()

	first, err := NewLocalStore(dir)
	require.NoError(t, err)

	_, err = NewLocalStore(dir)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second, err := NewLocalStore(dir)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestLocalStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	defer store.Close()

	for range 5 {
		require.NoError(t, store.Put(context.Background(), "snap.json", []byte("x")))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var files []string
	for _, e := range entries {
		files = append(files, e.Name())
	}
	assert.ElementsMatch(t, []string{LockFileName, "snap.json"}, files)
}

func TestLocalStore_InitFailsOnFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := NewLocalStore(file)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "b", data))
	require.NoError(t, store.Put(ctx, "a", []byte("1")))
	data[0] = 'X'

	got, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, store.Delete(ctx, "b"))
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
