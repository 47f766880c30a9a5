package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/cache"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/common"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/filter"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

// errWalkLimit stops the walk once enough candidates are collected
var errWalkLimit = errors.New("prepopulation file limit reached")

// Prepopulator seeds the content cache from a walk of the watch root so the
// first real edit of a file yields a diff.
type Prepopulator struct {
	root     string
	fs       afero.Fs
	policy   *filter.Policy
	cache    *cache.Shared
	maxFiles int
	workers  int
	logger   *slog.Logger
}

// NewPrepopulator creates a prepopulator bounded by config's file cap and
// worker count.
func NewPrepopulator(root string, fsys afero.Fs, policy *filter.Policy, c *cache.Shared, config WatcherConfig) *Prepopulator {
	config = config.withDefaults()
	return &Prepopulator{
		root:     root,
		fs:       fsys,
		policy:   policy,
		cache:    c,
		maxFiles: config.MaxPrepopulateFiles,
		workers:  config.PrepopulateWorkers,
		logger:   slog.Default(),
	}
}

type seed struct {
	rel     string
	content string
	ok      bool
}

// Run walks the tree and fills the cache. It returns the number of files
// cached. Unreadable, oversized and non-UTF-8 files are skipped; a walk
// failure or cancellation is returned as an error and leaves whatever was
// already cached in place.
func (p *Prepopulator) Run(ctx context.Context) (int, error) {
	candidates, err := p.collect(ctx)
	if err != nil {
		return 0, err
	}

	workers := pool.NewWithResults[seed]().
		WithContext(ctx).
		WithMaxGoroutines(p.workers)

	for _, c := range candidates {
		c := c
		workers.Go(func(ctx context.Context) (seed, error) {
			if err := ctx.Err(); err != nil {
				return seed{}, err
			}
			return p.read(c), nil
		})
	}

	seeds, err := workers.Wait()
	if err != nil {
		return 0, fmt.Errorf("prepopulation cancelled: %w", err)
	}

	count := 0
	p.cache.Update(func(fc *cache.FileCache) {
		for _, s := range seeds {
			if !s.ok {
				continue
			}
			fc.Insert(s.rel, s.content)
			count++
		}
	})

	p.logger.Info("Prepopulation finished", "root", p.root, "candidates", len(candidates), "cached", count)
	return count, nil
}

// collect walks the root and returns the files eligible for caching, at most
// maxFiles of them.
func (p *Prepopulator) collect(ctx context.Context) ([]string, error) {
	pu := common.NewPathUtils()
	var candidates []string

	err := afero.Walk(p.fs, p.root, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == p.root {
				return err
			}
			p.logger.Debug("Skipping unreadable path during prepopulation", "path", path, "error", err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == p.root {
			return nil
		}

		rel, relErr := pu.RelativeKey(p.root, path)
		if relErr != nil {
			return nil
		}

		if info.IsDir() {
			if p.policy.ExcludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !info.Mode().IsRegular() || p.policy.Excluded(rel) || p.policy.TooLarge(info.Size()) {
			return nil
		}

		if len(candidates) >= p.maxFiles {
			return errWalkLimit
		}
		candidates = append(candidates, path)
		return nil
	})

	if errors.Is(err, errWalkLimit) {
		p.logger.Warn("Prepopulation stopped at file limit", "root", p.root, "limit", p.maxFiles)
		return candidates, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", p.root, err)
	}
	return candidates, nil
}

// read loads one candidate. Failures only mean the file is left uncached.
func (p *Prepopulator) read(path string) seed {
	rel, err := common.NewPathUtils().RelativeKey(p.root, path)
	if err != nil {
		return seed{}
	}

	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Debug("Skipping unreadable file", "path", rel, "error", err)
		}
		return seed{}
	}
	if !utf8.Valid(data) || p.policy.TooLarge(int64(len(data))) {
		return seed{}
	}

	return seed{rel: rel, content: string(data), ok: true}
}
