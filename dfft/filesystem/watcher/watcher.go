package watcher

import (
	"time"

	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/filter"
)

const (
	// DefaultMaxPrepopulateFiles bounds startup latency on very large trees
	DefaultMaxPrepopulateFiles = 10000

	// DefaultPrepopulateWorkers is the number of concurrent prepopulation reads
	DefaultPrepopulateWorkers = 8
)

// DefaultConfig returns a default watcher configuration
func DefaultConfig() WatcherConfig {
	return WatcherConfig{
		DebounceDelay:       100 * time.Millisecond,
		MaxDebounceDelay:    2 * time.Second,
		QueueCapacity:       64,
		MaxFileSize:         filter.DefaultMaxFileSize,
		MaxPrepopulateFiles: DefaultMaxPrepopulateFiles,
		PrepopulateWorkers:  DefaultPrepopulateWorkers,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c WatcherConfig) withDefaults() WatcherConfig {
	def := DefaultConfig()
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = def.DebounceDelay
	}
	if c.MaxDebounceDelay <= 0 {
		c.MaxDebounceDelay = def.MaxDebounceDelay
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = def.MaxFileSize
	}
	if c.MaxPrepopulateFiles <= 0 {
		c.MaxPrepopulateFiles = def.MaxPrepopulateFiles
	}
	if c.PrepopulateWorkers <= 0 {
		c.PrepopulateWorkers = def.PrepopulateWorkers
	}
	return c
}
