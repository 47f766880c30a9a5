package common

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"syscall"
)

// Common error types used across filesystem packages
var (
	ErrPathEmpty   = errors.New("path cannot be empty")
	ErrRootNotDir  = errors.New("watch root is not a directory")
	ErrOutsideRoot = errors.New("path is outside the watch root")
	ErrNotUTF8     = errors.New("file content is not valid UTF-8")
	ErrBadPattern  = errors.New("malformed ignore pattern")
)

// PatternError reports a malformed line in an ignore file
type PatternError struct {
	File    string
	Line    int
	Pattern string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%s:%d: %s %q", e.File, e.Line, ErrBadPattern, e.Pattern)
}

func (e *PatternError) Unwrap() error {
	return ErrBadPattern
}

// ErrorUtils provides common error handling utilities
type ErrorUtils struct{}

// NewErrorUtils creates a new ErrorUtils instance
func NewErrorUtils() *ErrorUtils {
	return &ErrorUtils{}
}

// WrapError wraps an error with additional context
func (eu *ErrorUtils) WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(message, args...)
	return fmt.Errorf("%s: %w", msg, err)
}

// LogAndWrapError logs an error and wraps it with context
func (eu *ErrorUtils) LogAndWrapError(logger *slog.Logger, err error, level slog.Level, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	msg := fmt.Sprintf(message, args...)
	logger.Log(context.Background(), level, msg, "error", err)

	return fmt.Errorf("%s: %w", msg, err)
}

// IsNotFound reports whether err means the path no longer exists. A path whose
// parent was replaced by a file surfaces as ENOTDIR, which is the same outcome
// for a watcher.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	return errors.Is(err, syscall.ENOTDIR)
}
