package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		_, err := NewLocalStore(uploadDir)
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})

	t.Run("reloads index from sidecars", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewLocalStore(dir)
		require.NoError(t, err)
		info, err := first.Save(context.Background(), "a.jpg", "image/jpeg", strings.NewReader("abc"))
		require.NoError(t, err)

		second, err := NewLocalStore(dir)
		require.NoError(t, err)
		got, err := second.Get(context.Background(), info.ID)
		require.NoError(t, err)
		assert.Equal(t, "a.jpg", got.Name)
		assert.Equal(t, "image/jpeg", got.ContentType)
		assert.Equal(t, int64(3), got.Size)
	})

	t.Run("skips sidecar without blob", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "x"+metaSuffix), []byte(`{"id":"x"}`), 0644))
		store, err := NewLocalStore(dir)
		require.NoError(t, err)
		_, err = store.Get(context.Background(), "x")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestLocalStore_SaveAndOpen(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	info, err := store.Save(ctx, "../../etc/wheat.png", "image/png", strings.NewReader("Hello, World!"))
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "wheat.png", info.Name, "directory parts are stripped")
	assert.Equal(t, int64(13), info.Size)

	rc, got, err := store.Open(ctx, info.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(data))
	assert.Equal(t, info.ID, got.ID)
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n > 0 {
		f.n--
		p[0] = 'x'
		return 1, nil
	}
	return 0, errors.New("connection reset")
}

func TestLocalStore_SaveRemovesPartialBlob(t *testing.T) {
	store := createTestStore(t)

	_, err := store.Save(context.Background(), "a.bin", "", &failingReader{n: 3})
	require.Error(t, err)

	entries, err := os.ReadDir(store.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_SaveHonoursContext(t *testing.T) {
	store := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Save(ctx, "a.bin", "", strings.NewReader("data"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var n int
	store.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}

	for _, name := range []string{"one", "two", "three"} {
		_, err := store.Save(ctx, name, "text/plain", strings.NewReader(name))
		require.NoError(t, err)
	}

	list, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].Name)
	assert.Equal(t, "two", list[1].Name)

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	info, err := store.Save(ctx, "a.txt", "text/plain", strings.NewReader("a"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, info.ID))
	_, err = store.Get(ctx, info.ID)
	assert.ErrorIs(t, err, ErrFileNotFound)
	assert.NoFileExists(t, filepath.Join(store.uploadDir, info.ID))
	assert.NoFileExists(t, filepath.Join(store.uploadDir, info.ID+metaSuffix))

	assert.ErrorIs(t, store.Delete(ctx, info.ID), ErrFileNotFound)
}
