package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/cache"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a Source driven by the test.
type fakeSource struct {
	batches chan []Event
	errs    chan error
	closed  atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		batches: make(chan []Event, 4),
		errs:    make(chan error, 4),
	}
}

func (f *fakeSource) Batches() <-chan []Event { return f.batches }
func (f *fakeSource) Errors() <-chan error    { return f.errs }

func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

type sessionHarness struct {
	root   string
	source *fakeSource
	out    chan WatchUpdate
	cancel context.CancelFunc
	done   chan error
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func startSession(t *testing.T, files map[string]string, prepopulate bool, opts ...SessionOption) *sessionHarness {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeFiles(t, root, files)

	h := &sessionHarness{
		root:   root,
		source: newFakeSource(),
		out:    make(chan WatchUpdate, 16),
		done:   make(chan error, 1),
	}

	opts = append(opts, WithSourceFactory(func(gotRoot string, _ WatcherConfig, excludeDir func(string) bool) (Source, error) {
		assert.Equal(t, root, gotRoot)
		assert.True(t, excludeDir(".git"))
		return h.source, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)

	session := NewSession(root, nil, opts...)
	go func() {
		h.done <- session.Run(ctx, h.out, prepopulate)
	}()
	return h
}

func (h *sessionHarness) next(t *testing.T) WatchUpdate {
	t.Helper()
	select {
	case u := <-h.out:
		return u
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an update")
		return WatchUpdate{}
	}
}

func (h *sessionHarness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}

func (h *sessionHarness) path(rel string) string {
	return filepath.Join(h.root, filepath.FromSlash(rel))
}

func TestSession_PrepopulateThenDiff(t *testing.T) {
	h := startSession(t, map[string]string{
		"main.go":         "package main\n",
		".gitignore":      "vendor/\n",
		"vendor/dep.go":   "package dep\n",
		"assets/logo.png": "png",
	}, true)

	u := h.next(t)
	require.Equal(t, UpdatePrepopulationFinished, u.Kind)
	assert.Equal(t, 2, u.Count)

	writeFiles(t, h.root, map[string]string{"main.go": "package main\n\nfunc main() {}\n"})
	h.source.batches <- []Event{NewEvent(EventModify, SubData, h.path("main.go"))}

	u = h.next(t)
	require.Equal(t, UpdateChangeReceived, u.Kind)
	assert.Equal(t, "main.go", u.Change.Path)
	assert.Equal(t, ChangeModified, u.Change.Kind)
	require.NotNil(t, u.Change.Modification)
	require.NotNil(t, u.Change.Modification.Diff, "a prepopulated file yields a diff, not a snapshot")

	assert.NoError(t, h.stop(t))
	assert.True(t, h.source.closed.Load())
}

func TestSession_ColdCacheAndOrdering(t *testing.T) {
	h := startSession(t, map[string]string{"a.txt": "a\n", "b.txt": "b\n"}, false)

	h.source.errs <- errors.New("queue overflow")
	h.source.batches <- []Event{
		NewEvent(EventModify, SubData, h.path("a.txt")),
		NewEvent(EventCreate, SubFile, h.path("b.txt")),
		NewEvent(EventRemove, SubFile, h.path("gone.txt")),
	}

	first := h.next(t)
	second := h.next(t)
	third := h.next(t)

	assert.Equal(t, "a.txt", first.Change.Path)
	assert.True(t, first.Change.Modification.Snapshot)
	assert.Equal(t, "b.txt", second.Change.Path)
	assert.Equal(t, ChangeCreated, second.Change.Kind)
	assert.Equal(t, "b\n", second.Change.Content)
	assert.Equal(t, "gone.txt", third.Change.Path)
	assert.Equal(t, ChangeRemovedFile, third.Change.Kind)

	assert.NoError(t, h.stop(t))
}

func TestSession_SourceClosedEndsRun(t *testing.T) {
	h := startSession(t, nil, false)
	close(h.source.batches)

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end when the source closed")
	}
}

func TestSession_CancelWhileBlockedOnConsumer(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeFiles(t, root, map[string]string{"a.txt": "a\n"})

	source := newFakeSource()
	out := make(chan WatchUpdate) // nobody reads
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- NewSession(root, nil, WithSourceFactory(func(string, WatcherConfig, func(string) bool) (Source, error) {
			return source, nil
		})).Run(ctx, out, false)
	}()

	source.batches <- []Event{NewEvent(EventCreate, SubFile, filepath.Join(root, "a.txt"))}
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("a blocked send must give way to cancellation")
	}
}

func TestSession_PrepopulationLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxPrepopulateFiles = 3

	h := startSession(t, map[string]string{
		"1.txt": "1\n", "2.txt": "2\n", "3.txt": "3\n", "4.txt": "4\n", "5.txt": "5\n",
	}, true, WithConfig(config))

	u := h.next(t)
	require.Equal(t, UpdatePrepopulationFinished, u.Kind)
	assert.Equal(t, 3, u.Count)
	assert.NoError(t, h.stop(t))
}

func TestSession_SetupFailures(t *testing.T) {
	fileRoot := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(fileRoot, []byte("x"), 0o644))

	badIgnore := t.TempDir()
	writeFiles(t, badIgnore, map[string]string{".gitignore": "ok\n[unterminated\n"})

	noWatch := errors.New("inotify limit reached")

	tests := []struct {
		name    string
		root    string
		factory SourceFactory
		wantErr error
	}{
		{"MissingRoot", filepath.Join(t.TempDir(), "missing"), nil, os.ErrNotExist},
		{"RootIsFile", fileRoot, nil, common.ErrRootNotDir},
		{"EmptyRoot", "", nil, common.ErrPathEmpty},
		{"MalformedIgnoreFile", badIgnore, nil, common.ErrBadPattern},
		{"WatchFails", t.TempDir(), func(string, WatcherConfig, func(string) bool) (Source, error) {
			return nil, noWatch
		}, noWatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := tt.factory
			if factory == nil {
				factory = func(string, WatcherConfig, func(string) bool) (Source, error) {
					t.Fatal("no source is established after a setup failure")
					return nil, nil
				}
			}

			out := make(chan WatchUpdate, 1)
			err := NewSession(tt.root, cache.NewShared(nil), WithSourceFactory(factory)).Run(context.Background(), out, true)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, out, "nothing is reported when setup fails")
		})
	}
}

func TestSession_ID(t *testing.T) {
	shared := cache.NewShared(nil)
	a := NewSession(".", shared)
	b := NewSession(".", nil)

	_, err := uuid.Parse(a.ID())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Same(t, shared, a.Cache())
	assert.NotNil(t, b.Cache())
}
