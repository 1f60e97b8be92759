package server

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) add(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, p)
}

func (c *changes) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	got := &changes{}
	w, err := NewWatcher([]string{dir}, 50*time.Millisecond, got.add, nil)
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "speedo.gfx")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o644))
	}

	require.Eventually(t, func() bool { return len(got.list()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{path}, got.list())
}

func TestWatcher_SkipsMissingDirectory(t *testing.T) {
	w, err := NewWatcher([]string{"", filepath.Join(t.TempDir(), "missing")}, 0, func(string) {}, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestWatcher_CloseDropsPending(t *testing.T) {
	dir := t.TempDir()
	got := &changes{}
	w, err := NewWatcher([]string{dir}, time.Second, got.add, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte("{}"), 0o644))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Close())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got.list())
}
