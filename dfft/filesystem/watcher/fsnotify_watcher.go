package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher implements Source using fsnotify. fsnotify watches single
// directories, so the whole tree is registered up front and directories
// created later are registered as they appear.
type FSNotifyWatcher struct {
	watcher     *fsnotify.Watcher
	root        string
	errorChan   chan error
	debouncer   Debouncer
	config      WatcherConfig
	excludeDir  func(rel string) bool
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	watchedDirs map[string]bool
	closeOnce   sync.Once
}

// NewFSNotifyWatcher creates a new fsnotify-based watcher for root. excludeDir
// receives slash-separated root-relative paths; directories it rejects are
// not watched. It may be nil.
func NewFSNotifyWatcher(root string, config WatcherConfig, excludeDir func(rel string) bool) (*FSNotifyWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	config = config.withDefaults()
	if excludeDir == nil {
		excludeDir = func(string) bool { return false }
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FSNotifyWatcher{
		watcher:     fsWatcher,
		root:        root,
		errorChan:   make(chan error, 10),
		debouncer:   NewDebouncer(config.DebounceDelay, config.MaxDebounceDelay, config.QueueCapacity),
		config:      config,
		excludeDir:  excludeDir,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		watchedDirs: make(map[string]bool),
	}, nil
}

// NewFSNotifySource is the default SourceFactory: it creates and starts an
// FSNotifyWatcher.
func NewFSNotifySource(root string, config WatcherConfig, excludeDir func(rel string) bool) (Source, error) {
	w, err := NewFSNotifyWatcher(root, config, excludeDir)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// Start registers the tree and begins the event loop. Failing to watch the
// root itself is an error; failing on a subdirectory is logged.
func (w *FSNotifyWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch root %s: %w", w.root, err)
	}
	w.watchedDirs[w.root] = true

	if _, err := w.addPathRecursive(w.root, false); err != nil {
		w.logger.Warn("Failed to walk watch root", "root", w.root, "error", err)
	}

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info("FSNotify watcher started", "root", w.root, "directories", len(w.watchedDirs))
	return nil
}

// Batches returns the debounced event batches
func (w *FSNotifyWatcher) Batches() <-chan []Event {
	return w.debouncer.Events()
}

// Errors returns the error channel
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errorChan
}

// WatchedDirs returns the number of directories currently registered
func (w *FSNotifyWatcher) WatchedDirs() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.watchedDirs)
}

// Close stops watching and cleans up resources
func (w *FSNotifyWatcher) Close() error {
	var closeErr error
	w.closeOnce.Do(func() {
		w.cancel()

		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("Error closing fsnotify watcher", "error", err)
			closeErr = err
		}

		// The loop may be blocked handing events to a stalled debouncer;
		// closing the debouncer releases it.
		w.debouncer.Close()

		// Wait for the loop before closing the channel it writes to
		w.wg.Wait()
		close(w.errorChan)

		w.logger.Info("FSNotify watcher closed", "root", w.root)
	})
	return closeErr
}

// addPathRecursive registers dir and every non-excluded directory below it.
// Called with mu held. With collectFiles set it returns the files found, which
// lets a freshly created directory report content written before its watch
// existed.
func (w *FSNotifyWatcher) addPathRecursive(dir string, collectFiles bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug("Skipping unreadable path", "path", path, "error", err)
			return nil
		}

		if !d.IsDir() {
			if collectFiles {
				files = append(files, path)
			}
			return nil
		}

		if path != w.root && w.excludeDir(w.relative(path)) {
			return filepath.SkipDir
		}
		if w.watchedDirs[path] {
			return nil
		}

		if err := w.watcher.Add(path); err != nil {
			// Don't return error, continue with other directories
			w.logger.Warn("Failed to add subdirectory to watcher", "path", path, "error", err)
			return nil
		}
		w.watchedDirs[path] = true
		return nil
	})
	return files, err
}

// forgetDir drops dir and everything below it from the watched set and
// releases their kernel watches. A moved directory keeps its watch and would
// go on reporting under the old name. Called with mu held.
func (w *FSNotifyWatcher) forgetDir(dir string) {
	prefix := dir + string(filepath.Separator)
	for p := range w.watchedDirs {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(w.watchedDirs, p)
			// a removed directory's watch is already gone
			_ = w.watcher.Remove(p)
		}
	}
}

// watchLoop is the main event processing loop
func (w *FSNotifyWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			for _, ev := range w.convertEvent(event) {
				w.debouncer.Add(ev)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.errorChan <- err:
			case <-w.ctx.Done():
				return
			default:
				w.logger.Warn("Error channel full, dropping error", "error", err)
			}
		}
	}
}

// convertEvent converts an fsnotify.Event into raw watcher events
func (w *FSNotifyWatcher) convertEvent(event fsnotify.Event) []Event {
	path := event.Name

	switch {
	case event.Has(fsnotify.Create):
		return w.convertCreate(path)

	case event.Has(fsnotify.Write):
		return []Event{NewEvent(EventModify, SubData, path)}

	case event.Has(fsnotify.Remove):
		if w.dropDir(path) {
			return []Event{NewEvent(EventRemove, SubFolder, path)}
		}
		return []Event{NewEvent(EventRemove, SubFile, path)}

	case event.Has(fsnotify.Rename):
		// the old name of a moved directory is gone together with its subtree
		if w.dropDir(path) {
			return []Event{NewEvent(EventRemove, SubFolder, path)}
		}
		return []Event{NewEvent(EventModify, SubName, path)}

	case event.Has(fsnotify.Chmod):
		return []Event{NewEvent(EventModify, SubMetadata, path)}

	default:
		return nil // Ignore unknown events
	}
}

func (w *FSNotifyWatcher) convertCreate(path string) []Event {
	info, err := os.Stat(path)
	if err != nil {
		// gone before we looked; the classifier decides what that means
		return []Event{NewEvent(EventCreate, SubAny, path)}
	}
	if !info.IsDir() {
		return []Event{NewEvent(EventCreate, SubFile, path)}
	}

	if w.excludeDir(w.relative(path)) {
		return nil
	}

	w.mu.Lock()
	files, err := w.addPathRecursive(path, true)
	w.mu.Unlock()
	if err != nil {
		w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
	}

	events := make([]Event, 0, len(files)+1)
	events = append(events, NewEvent(EventCreate, SubFolder, path))
	for _, f := range files {
		events = append(events, NewEvent(EventCreate, SubFile, f))
	}
	return events
}

// dropDir forgets path if it was a watched directory and reports whether it was
func (w *FSNotifyWatcher) dropDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watchedDirs[path] {
		return false
	}
	w.forgetDir(path)
	return true
}

func (w *FSNotifyWatcher) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
