package watcher

import (
	"context"
	"log/slog"

	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/cache"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/common"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/filter"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Session watches one root and reports every observed change, in order, on
// an output channel.
type Session struct {
	id      string
	root    string
	cache   *cache.Shared
	config  WatcherConfig
	factory SourceFactory
	fs      afero.Fs
	logger  *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithConfig overrides DefaultConfig. Zero fields keep their defaults.
func WithConfig(config WatcherConfig) SessionOption {
	return func(s *Session) {
		s.config = config.withDefaults()
	}
}

// WithSourceFactory replaces the fsnotify event source.
func WithSourceFactory(factory SourceFactory) SessionOption {
	return func(s *Session) {
		if factory != nil {
			s.factory = factory
		}
	}
}

// WithLogger sets the logger; the session id is attached to every record.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession creates a session for root. A nil cache starts empty.
func NewSession(root string, c *cache.Shared, opts ...SessionOption) *Session {
	if c == nil {
		c = cache.NewShared(nil)
	}

	s := &Session{
		id:      uuid.NewString(),
		root:    root,
		cache:   c,
		config:  DefaultConfig(),
		factory: NewFSNotifySource,
		fs:      afero.NewOsFs(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Cache returns the content cache the session maintains.
func (s *Session) Cache() *cache.Shared {
	return s.cache
}

// Run establishes the watch, optionally prepopulates the cache and then
// forwards changes until ctx is done or the event source closes. Setup
// failures are returned; once running, Run returns nil on cancellation.
// Sends on out block until the consumer receives or ctx is done.
func (s *Session) Run(ctx context.Context, out chan<- WatchUpdate, prepopulate bool) error {
	logger := s.logger.With("session", s.id)
	errUtils := common.NewErrorUtils()

	root, err := common.NewPathUtils().Canonicalize(s.root)
	if err != nil {
		return errUtils.LogAndWrapError(logger, err, slog.LevelError, "failed to canonicalize watch root")
	}
	logger = logger.With("root", root)

	policy, err := filter.NewPolicy(s.fs, root, filter.WithMaxFileSize(s.config.MaxFileSize))
	if err != nil {
		return errUtils.LogAndWrapError(logger, err, slog.LevelError, "invalid ignore rules")
	}
	if m := policy.Matcher(); m != nil {
		logger.Debug("Ignore rules loaded", "sources", m.Sources())
	}

	source, err := s.factory(root, s.config, policy.ExcludedDir)
	if err != nil {
		return errUtils.LogAndWrapError(logger, err, slog.LevelError, "failed to establish watch on %s", root)
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warn("Error closing event source", "error", err)
		}
	}()

	logger.Info("Watch session started", "prepopulate", prepopulate)

	if prepopulate {
		prepopulator := NewPrepopulator(root, s.fs, policy, s.cache, s.config)
		prepopulator.logger = logger

		update := WatchUpdate{Kind: UpdatePrepopulationFinished}
		n, err := prepopulator.Run(ctx)
		if err != nil {
			logger.Warn("Prepopulation failed, continuing with a cold cache", "error", err)
			update = WatchUpdate{Kind: UpdatePrepopulationFailed, Err: err}
		} else {
			update.Count = n
		}

		if err := send(ctx, out, update); err != nil {
			logger.Info("Watch session stopped during prepopulation")
			return nil
		}
	}

	classifier := NewClassifier(root, s.fs, policy, s.cache)
	classifier.SetLogger(logger)
	emit := func(change Change) error {
		return send(ctx, out, WatchUpdate{Kind: UpdateChangeReceived, Change: change})
	}

	batches := source.Batches()
	errs := source.Errors()
	for {
		if ctx.Err() != nil {
			logger.Info("Watch session stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Info("Watch session stopped")
			return nil

		case batch, ok := <-batches:
			if !ok {
				logger.Info("Event source closed, watch session ending")
				return nil
			}

			logger.Debug("Processing event batch", "events", len(batch))
			if err := classifier.ProcessBatch(ctx, batch, emit); err != nil {
				if ctx.Err() != nil {
					logger.Info("Watch session stopped")
					return nil
				}
				return errUtils.WrapError(err, "failed to process event batch")
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("Event source error", "error", err)
		}
	}
}

// Run is shorthand for NewSession(root, c).Run(ctx, out, prepopulate).
func Run(ctx context.Context, root string, c *cache.Shared, out chan<- WatchUpdate, prepopulate bool) error {
	return NewSession(root, c).Run(ctx, out, prepopulate)
}

func send(ctx context.Context, out chan<- WatchUpdate, update WatchUpdate) error {
	select {
	case out <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
