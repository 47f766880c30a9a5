package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	internal "github.com/ZanzyTHEbar/dfft/dfft"
	"github.com/ZanzyTHEbar/dfft/dfft/config"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/cache"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/watcher"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type watchOptions struct {
	configPath    string
	noPrepopulate bool
	debounce      time.Duration
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           internal.DefaultAppCMDShortCut,
		Short:         "Watch a directory tree and print every change as a diff",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newWatchCmd())
	return root
}

func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Watch root (default: config or current directory) and print changes",
		Long: `Watch a directory tree and report every file change.

The watcher will:
- Seed its content cache from the tree unless --no-prepopulate is given
- Honour .gitignore, .git/info/exclude and .dfftignore
- Skip version-control directories, binary formats and files over the size ceiling
- Batch rapid bursts of events before classifying them
- Print creations, removals and line diffs with inline highlights`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a config file (default: ./config.yaml or "+internal.DefaultConfigFile+")")
	cmd.Flags().BoolVar(&opts.noPrepopulate, "no-prepopulate", false, "Start with an empty cache")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 0, "Settle window for event batches (default from config)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string, opts *watchOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	logger := internal.GetConsoleLogger(level)

	root := cfg.Watch.Root
	if len(args) == 1 {
		root = args[0]
	}

	watcherConfig := cfg.Watch.WatcherConfig()
	if opts.debounce > 0 {
		watcherConfig.DebounceDelay = opts.debounce
	}
	prepopulate := cfg.Watch.Prepopulate && !opts.noPrepopulate

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := watcher.NewSession(root, cache.NewShared(nil),
		watcher.WithConfig(watcherConfig),
		watcher.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)}))),
	)

	logger.Info().
		Str("root", root).
		Str("session", session.ID()).
		Bool("prepopulate", prepopulate).
		Dur("debounce", watcherConfig.DebounceDelay).
		Msg("Starting watch")

	updates := make(chan watcher.WatchUpdate, watcherConfig.QueueCapacity)
	errc := make(chan error, 1)
	go func() {
		errc <- session.Run(ctx, updates, prepopulate)
		close(updates)
	}()

	printer := NewPrinter(cmd.OutOrStdout())
	for update := range updates {
		printer.Print(update)
	}

	if err := <-errc; err != nil {
		logger.Error().Err(err).Msg("Watch failed")
		return err
	}
	if ctx.Err() != nil {
		logger.Info().Msg("Watch stopped")
	}
	return nil
}

func slogLevel(level zerolog.Level) slog.Level {
	switch {
	case level <= zerolog.DebugLevel:
		return slog.LevelDebug
	case level == zerolog.InfoLevel:
		return slog.LevelInfo
	case level == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
