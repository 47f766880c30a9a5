// Package cache holds the last observed content of every tracked file, keyed by
// slash-separated path relative to the watch root.
package cache

import (
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/armon/go-radix"
)

// FileCache maps relative paths to file content using a compressed trie so a
// removed directory can be evicted with a single prefix walk.
//
// FileCache is not safe for concurrent use; share it through Shared.
type FileCache struct {
	tree *radix.Tree
}

// New creates an empty cache.
func New() *FileCache {
	return &FileCache{tree: radix.New()}
}

// Get returns the cached content for path.
func (c *FileCache) Get(p string) (string, bool) {
	v, ok := c.tree.Get(normalizeKey(p))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Insert stores content for path and returns the content it replaced.
func (c *FileCache) Insert(p, content string) (string, bool) {
	old, updated := c.tree.Insert(normalizeKey(p), content)
	if !updated {
		return "", false
	}
	return old.(string), true
}

// Remove deletes path and returns the content it held.
func (c *FileCache) Remove(p string) (string, bool) {
	old, deleted := c.tree.Delete(normalizeKey(p))
	if !deleted {
		return "", false
	}
	return old.(string), true
}

// RemoveSubtree deletes prefix itself and every entry below it. Matching is
// per path segment: removing "foo" keeps "foo-bar.txt". It reports whether any
// entry was removed.
func (c *FileCache) RemoveSubtree(prefix string) bool {
	prefix = normalizeKey(prefix)

	var doomed []string
	if prefix == "" {
		c.tree.Walk(func(key string, _ interface{}) bool {
			doomed = append(doomed, key)
			return false
		})
	} else {
		if _, ok := c.tree.Get(prefix); ok {
			doomed = append(doomed, prefix)
		}
		c.tree.WalkPrefix(prefix+"/", func(key string, _ interface{}) bool {
			doomed = append(doomed, key)
			return false
		})
	}

	for _, key := range doomed {
		c.tree.Delete(key)
	}

	if len(doomed) > 0 {
		slog.Debug("Cache subtree removed", "prefix", prefix, "entries", len(doomed))
	}
	return len(doomed) > 0
}

// HasSubtree reports whether any entry lies strictly below dir.
func (c *FileCache) HasSubtree(dir string) bool {
	dir = normalizeKey(dir)

	found := false
	walk := func(string, interface{}) bool {
		found = true
		return true
	}
	if dir == "" {
		c.tree.Walk(walk)
	} else {
		c.tree.WalkPrefix(dir+"/", walk)
	}
	return found
}

// Len returns the number of cached files.
func (c *FileCache) Len() int {
	return c.tree.Len()
}

// Paths returns every cached path in lexical order.
func (c *FileCache) Paths() []string {
	paths := make([]string, 0, c.tree.Len())
	c.tree.Walk(func(key string, _ interface{}) bool {
		paths = append(paths, key)
		return false
	})
	return paths
}

// normalizeKey ensures consistent key formatting: forward slashes, no ./ or
// trailing slash. The empty string stands for the root.
func normalizeKey(p string) string {
	normalized := strings.ReplaceAll(p, "\\", "/")
	normalized = path.Clean(normalized)
	normalized = strings.TrimPrefix(normalized, "/")
	if normalized == "." {
		return ""
	}
	return normalized
}

// Shared guards a FileCache with a reader/writer lock. The classifier is the
// only writer once a session is running; readers may come from any goroutine.
type Shared struct {
	mu    sync.RWMutex
	cache *FileCache
}

// NewShared wraps c, creating an empty cache when c is nil.
func NewShared(c *FileCache) *Shared {
	if c == nil {
		c = New()
	}
	return &Shared{cache: c}
}

// View runs fn with the read lock held.
func (s *Shared) View(fn func(c *FileCache)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.cache)
}

// Update runs fn with the write lock held.
func (s *Shared) Update(fn func(c *FileCache)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cache)
}

// Get is a read-locked FileCache.Get.
func (s *Shared) Get(p string) (content string, ok bool) {
	s.View(func(c *FileCache) {
		content, ok = c.Get(p)
	})
	return content, ok
}

// Len is a read-locked FileCache.Len.
func (s *Shared) Len() (n int) {
	s.View(func(c *FileCache) {
		n = c.Len()
	})
	return n
}
