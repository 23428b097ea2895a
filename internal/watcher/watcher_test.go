package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers onChange batches
type collector struct {
	mu      sync.Mutex
	batches [][]string
}

func (c *collector) onChange(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, paths)
}

func (c *collector) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *collector) allPaths() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make(map[string]bool)
	for _, batch := range c.batches {
		for _, p := range batch {
			paths[p] = true
		}
	}
	return paths
}

func TestWatcherBatchesBurstIntoOneCallback(t *testing.T) {
	dir := t.TempDir()
	var c collector

	w, err := New(dir, c.onChange, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// A burst of writes within one debounce window
	for _, name := range []string{"a.go", "b.go", "c.go"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0o644))
	}

	require.Eventually(t, func() bool {
		return c.batchCount() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, 1, c.batchCount(), "burst should coalesce into one callback")

	paths := c.allPaths()
	assert.True(t, paths[filepath.Join(dir, "a.go")])
	assert.True(t, paths[filepath.Join(dir, "c.go")])
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	var c collector

	w, err := New(dir, c.onChange, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// Give the watcher a moment to register the new directory
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.go"), []byte("package pkg\n"), 0o644))

	require.Eventually(t, func() bool {
		return c.allPaths()[filepath.Join(sub, "new.go")]
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherCloseStopsCallbacks(t *testing.T) {
	dir := t.TempDir()
	var c collector

	w, err := New(dir, c.onChange, WithDebounce(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.go"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, 0, c.batchCount())
}
