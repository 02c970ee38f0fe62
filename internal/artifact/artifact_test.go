package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_SaveAndOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static")
	store := NewFSStore(dir)

	require.NoError(t, store.Save(context.Background(), "llm_context_widgets.txt", []byte("hello")))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	rc, size, err := store.Open("llm_context_widgets.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), size)
}

func TestFSStore_Overwrite(t *testing.T) {
	store := NewFSStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a.txt", []byte("first version")))
	require.NoError(t, store.Save(ctx, "a.txt", []byte("second")))

	data, err := os.ReadFile(filepath.Join(store.Dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFSStore_InvalidNames(t *testing.T) {
	store := NewFSStore(t.TempDir())
	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.txt", `a\b.txt`, "..hidden", "x\x00y"} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, store.Save(context.Background(), name, []byte("x")), ErrInvalidName)
			_, _, err := store.Open(name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestFSStore_OpenMissing(t *testing.T) {
	store := NewFSStore(t.TempDir())
	_, _, err := store.Open("nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, os.Mkdir(filepath.Join(store.Dir, "sub"), 0o755))
	_, _, err = store.Open("sub")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_SaveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewFSStore(t.TempDir())
	assert.ErrorIs(t, store.Save(ctx, "a.txt", nil), context.Canceled)
}

func TestFSStore_SaveUnwritableDir(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := NewFSStore(filepath.Join(blocker, "static"))
	err := store.Save(context.Background(), "a.txt", []byte("x"))
	assert.ErrorContains(t, err, "create artifact dir")
}
