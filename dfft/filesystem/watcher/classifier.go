package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/dfft/dfft/diff"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/cache"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/common"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/filter"

	"github.com/spf13/afero"
)

// Classifier turns raw events into semantic changes, keeping the content
// cache in step with what it reports. It is the only writer of the cache
// while a session runs and is not safe for concurrent use.
type Classifier struct {
	root   string
	fs     afero.Fs
	policy *filter.Policy
	cache  *cache.Shared
	paths  *common.PathUtils
	logger *slog.Logger

	// oversized remembers files skipped for size so their removal stays silent
	oversized map[string]struct{}
}

// NewClassifier creates a classifier for paths under root. Event paths are
// expected to be absolute and are resolved against fsys.
func NewClassifier(root string, fsys afero.Fs, policy *filter.Policy, c *cache.Shared) *Classifier {
	return &Classifier{
		root:      root,
		fs:        fsys,
		policy:    policy,
		cache:     c,
		paths:     common.NewPathUtils(),
		logger:    slog.Default(),
		oversized: make(map[string]struct{}),
	}
}

// SetLogger replaces the logger used for skip and suppression messages.
func (c *Classifier) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// ProcessBatch classifies every path of every event in delivery order and
// hands each resulting change to emit. It stops early only when ctx is done
// or emit fails.
func (c *Classifier) ProcessBatch(ctx context.Context, events []Event, emit func(Change) error) error {
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, p := range ev.Paths {
			change, ok := c.Classify(ev, p)
			if !ok {
				continue
			}
			if err := emit(change); err != nil {
				return err
			}
		}
	}
	return nil
}

// Classify decides what a single event means for one of its paths. The
// boolean is false when nothing is to be reported.
func (c *Classifier) Classify(ev Event, path string) (Change, bool) {
	rel, err := c.paths.RelativeKey(c.root, path)
	if err != nil {
		c.logger.Debug("Skipping path outside root", "path", path, "error", err)
		return Change{}, false
	}

	if c.excluded(ev, rel) {
		return Change{}, false
	}

	switch ev.Kind {
	case EventCreate:
		if ev.Sub == SubFolder {
			// files inside arrive as their own creates
			return Change{}, false
		}
		return c.classifyCreate(ev.Sub, path, rel)

	case EventModify:
		return c.classifyModify(ev.Sub, path, rel)

	case EventRemove:
		switch ev.Sub {
		case SubFolder:
			return c.classifyRemoveDir(rel)
		case SubFile:
			return c.classifyRemoveFile(path, rel)
		default:
			return c.classifyRemoveAny(path, rel)
		}

	default:
		return Change{}, false
	}
}

func (c *Classifier) excluded(ev Event, rel string) bool {
	if ev.Kind == EventRemove && ev.Sub == SubFolder {
		return c.policy.ExcludedDir(rel)
	}
	return c.policy.Excluded(rel)
}

func (c *Classifier) classifyCreate(sub SubKind, path, rel string) (Change, bool) {
	info, err := c.fs.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return Change{}, false
		}
		if c.policy.TooLarge(info.Size()) {
			c.skipOversized(rel, info.Size())
			return Change{}, false
		}
	case sub == SubAny && common.IsNotFound(err):
		// gone before anyone could tell whether it was a file
		return Change{}, false
	}

	content, err := c.readFile(path, rel)
	if err != nil {
		if _, had := c.cache.Get(rel); had {
			return ModifiedErr(rel, err), true
		}
		return CreatedErr(rel, err), true
	}

	prev, had := c.store(rel, content)
	if had {
		d := diff.Compute(prev, content)
		if d == nil {
			return Change{}, false
		}
		return ModifiedDiff(rel, d), true
	}
	return Created(rel, content), true
}

func (c *Classifier) classifyModify(sub SubKind, path, rel string) (Change, bool) {
	info, err := c.fs.Stat(path)
	if err != nil {
		if common.IsNotFound(err) {
			if _, had := c.remove(rel); had {
				return RemovedFile(rel), true
			}
			return Change{}, false
		}
		return ModifiedErr(rel, fmt.Errorf("failed to stat %s: %w", rel, err)), true
	}

	if info.IsDir() {
		return Change{}, false
	}

	if c.policy.TooLarge(info.Size()) {
		// a stale entry would make the next diff meaningless once the file shrinks
		if _, had := c.remove(rel); had {
			c.logger.Debug("Dropped cached content of file that outgrew the size ceiling", "path", rel)
		}
		c.skipOversized(rel, info.Size())
		return Change{}, false
	}

	content, err := c.readFile(path, rel)
	if err != nil {
		if _, had := c.cache.Get(rel); !had && sub == SubName {
			return CreatedErr(rel, err), true
		}
		return ModifiedErr(rel, err), true
	}

	prev, had := c.store(rel, content)
	if had {
		d := diff.Compute(prev, content)
		if d == nil {
			return Change{}, false
		}
		return ModifiedDiff(rel, d), true
	}

	// editors that write a temp file and rename it over the target
	if sub == SubName {
		return Created(rel, content), true
	}
	return ModifiedSnapshot(rel), true
}

func (c *Classifier) classifyRemoveFile(path, rel string) (Change, bool) {
	if c.existsOnDisk(path) {
		c.logger.Debug("Suppressing removal of path that exists again", "path", rel)
		return Change{}, false
	}

	if _, skipped := c.oversized[rel]; skipped {
		delete(c.oversized, rel)
		return Change{}, false
	}

	c.remove(rel)
	return RemovedFile(rel), true
}

func (c *Classifier) classifyRemoveDir(rel string) (Change, bool) {
	prefix := rel + "/"
	for p := range c.oversized {
		if strings.HasPrefix(p, prefix) {
			delete(c.oversized, p)
		}
	}

	var removed bool
	c.cache.Update(func(fc *cache.FileCache) {
		removed = fc.RemoveSubtree(rel)
	})
	if !removed {
		return Change{}, false
	}
	return RemovedDir(rel), true
}

// classifyRemoveAny handles removals whose source could not say whether a
// file or a directory went away. The cache decides.
func (c *Classifier) classifyRemoveAny(path, rel string) (Change, bool) {
	if c.existsOnDisk(path) {
		c.logger.Debug("Suppressing removal of path that exists again", "path", rel)
		return Change{}, false
	}

	if _, had := c.cache.Get(rel); !had && c.holdsUnder(rel) {
		return c.classifyRemoveDir(rel)
	}
	return c.classifyRemoveFile(path, rel)
}

func (c *Classifier) skipOversized(rel string, size int64) {
	c.oversized[rel] = struct{}{}
	c.logger.Debug("Skipping oversized file", "path", rel, "size", size)
}

func (c *Classifier) existsOnDisk(path string) bool {
	_, err := c.fs.Stat(path)
	return err == nil || !common.IsNotFound(err)
}

func (c *Classifier) holdsUnder(dir string) (found bool) {
	c.cache.View(func(fc *cache.FileCache) {
		found = fc.HasSubtree(dir)
	})
	return found
}

func (c *Classifier) store(rel, content string) (prev string, had bool) {
	delete(c.oversized, rel)
	c.cache.Update(func(fc *cache.FileCache) {
		prev, had = fc.Insert(rel, content)
	})
	return prev, had
}

func (c *Classifier) remove(rel string) (prev string, had bool) {
	c.cache.Update(func(fc *cache.FileCache) {
		prev, had = fc.Remove(rel)
	})
	return prev, had
}

// readFile reads a whole file as text. Invalid UTF-8 is a per-path error.
func (c *Classifier) readFile(path, rel string) (string, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", rel, common.ErrNotUTF8)
	}
	return string(data), nil
}
