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

func TestOpString(t *testing.T) {
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "unknown", Op(42).String())
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		op       fsnotify.Op
		expected Op
		relevant bool
	}{
		{"write", fsnotify.Write, OpWrite, true},
		{"create", fsnotify.Create, OpCreate, true},
		{"remove", fsnotify.Remove, OpRemove, true},
		{"rename away", fsnotify.Rename, OpRemove, true},
		{"create and write", fsnotify.Create | fsnotify.Write, OpCreate, true},
		{"chmod only", fsnotify.Chmod, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			op, relevant := classify(tc.op)
			assert.Equal(t, tc.relevant, relevant)
			if tc.relevant {
				assert.Equal(t, tc.expected, op)
			}
		})
	}
}

func TestBatch_KeepsLatestOpInFirstSeenOrder(t *testing.T) {
	var b batch
	b.add(Change{Path: "a", Op: OpWrite})
	b.add(Change{Path: "b", Op: OpCreate})
	b.add(Change{Path: "a", Op: OpRemove})

	assert.Equal(t, []Change{{Path: "a", Op: OpRemove}, {Path: "b", Op: OpCreate}}, b.drain())
	assert.Empty(t, b.drain())
}

func TestCleanDir(t *testing.T) {
	clean, err := cleanDir("./signals/./")
	require.NoError(t, err)
	assert.Equal(t, "signals", clean)

	_, err = cleanDir("../etc")
	assert.Error(t, err)

	_, err = cleanDir("  ")
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	match := BaseName("signal.yml")

	assert.True(t, match("/tmp/x/signal.yml"))
	assert.False(t, match("/tmp/x/.signal.yml.swp"))
	assert.False(t, match("/tmp/x/other.yml"))
}

func TestNew_RequiresHandler(t *testing.T) {
	_, err := New(time.Millisecond, nil, nil, nil)
	assert.Error(t, err)
}

// recorder collects every batch a Watcher delivers
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) handle(_ context.Context, changes []Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
	return nil
}

func (r *recorder) last(path string) (Op, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.changes) - 1; i >= 0; i-- {
		if r.changes[i].Path == path {
			return r.changes[i].Op, true
		}
	}
	return 0, false
}

func (r *recorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var paths []string
	for _, c := range r.changes {
		paths = append(paths, c.Path)
	}
	return paths
}

func TestWatcher_ReportsMatchingChanges(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "signal.yml")
	require.NoError(t, os.WriteFile(target, []byte("network: 4g\n"), 0o644))

	rec := &recorder{}
	w, err := New(20*time.Millisecond, BaseName("signal.yml"), rec.handle, nil)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(target, []byte("network: 3g\n"), 0o644))

	assert.Eventually(t, func() bool {
		op, ok := rec.last(target)
		return ok && op == OpWrite
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(target))
	assert.Eventually(t, func() bool {
		op, ok := rec.last(target)
		return ok && op == OpRemove
	}, 2*time.Second, 10*time.Millisecond)

	for _, path := range rec.paths() {
		assert.Equal(t, target, path)
	}
}

func TestWatcher_AddRejectsBadDirs(t *testing.T) {
	w, err := New(10*time.Millisecond, nil, (&recorder{}).handle, nil)
	require.NoError(t, err)

	assert.Error(t, w.Add(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, w.Add("../outside"))

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
