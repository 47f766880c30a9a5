package internal

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is the name used for config directories and ignore files
	DefaultAppName        = "dfft"
	DefaultAppCMDShortCut = "dfft"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultConfigFile     = filepath.Join(DefaultConfigPath, "config.yaml")

	// DefaultIgnoreFile is the tool-specific ignore file looked up in the watch root
	DefaultIgnoreFile = "." + DefaultAppName + "ignore"

	// DefaultEnvPrefix prefixes environment overrides, e.g. DFFT_WATCH_DEBOUNCEDELAY
	DefaultEnvPrefix = "DFFT"
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// GetConsoleLogger returns a zerolog logger that writes human-readable output
// to stderr, leaving stdout to the change printer.
func GetConsoleLogger(level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}
