package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeCollector struct {
	mutex sync.Mutex
	seen  [][]string
}

func (c *changeCollector) handle(paths []string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.seen = append(c.seen, paths)
}

func (c *changeCollector) batches() [][]string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	out := make([][]string, len(c.seen))
	copy(out, c.seen)

	return out
}

func TestRelevantFiltersByExtension(t *testing.T) {
	w, err := New(0, func([]string) {}, nil)
	require.NoError(t, err)
	defer w.watcher.Close()

	testCases := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"welcome.tsx", fsnotify.Write, true},
		{"welcome.jsx", fsnotify.Create, true},
		{"helper.ts", fsnotify.Write, true},
		{"notes.md", fsnotify.Write, false},
		{".welcome.tsx.swp", fsnotify.Write, false},
		{"welcome.tsx", fsnotify.Chmod, false},
	}

	for _, tc := range testCases {
		event := fsnotify.Event{Name: filepath.Join("templates", tc.name), Op: tc.op}
		assert.Equal(t, tc.want, w.relevant(event), "%s %s", tc.name, tc.op)
	}
}

func TestDebounceGroupsBursts(t *testing.T) {
	collector := &changeCollector{}
	w, err := New(50*time.Millisecond, collector.handle, nil)
	require.NoError(t, err)
	defer w.watcher.Close()

	// A burst of writes to two files within the window.
	for i := 0; i < 5; i++ {
		w.record("a.tsx")
		w.record("b.tsx")
	}

	assert.Eventually(t, func() bool {
		return len(collector.batches()) == 1
	}, time.Second, 10*time.Millisecond)

	batches := collector.batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestWatchRealWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "welcome.tsx")
	require.NoError(t, os.WriteFile(path, []byte("export default () => <p>v1</p>;"), 0o644))

	collector := &changeCollector{}
	w, err := New(50*time.Millisecond, collector.handle, nil)
	require.NoError(t, err)
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("export default () => <p>v2</p>;"), 0o644))

	assert.Eventually(t, func() bool {
		for _, batch := range collector.batches() {
			for _, p := range batch {
				if p == path {
					return true
				}
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRunStopsOnCancel(t *testing.T) {
	w, err := New(0, func([]string) {}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
