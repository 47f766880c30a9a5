package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathUtils provides path manipulation utilities used across filesystem packages
type PathUtils struct{}

// NewPathUtils creates a new PathUtils instance
func NewPathUtils() *PathUtils {
	return &PathUtils{}
}

// Canonicalize resolves root to an absolute, symlink-free directory path.
func (pu *PathUtils) Canonicalize(root string) (string, error) {
	if err := pu.ValidatePath(root); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to make %s absolute: %w", root, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", abs, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", resolved, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", resolved, ErrRootNotDir)
	}

	return resolved, nil
}

// RelativeKey converts an absolute path under root into the slash-separated
// relative form used as cache key and change path.
func (pu *PathUtils) RelativeKey(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}

	return filepath.ToSlash(rel), nil
}

// Ancestors returns every proper ancestor directory of a slash-separated
// relative path, outermost first: "a/b/c.txt" yields "a", "a/b".
func (pu *PathUtils) Ancestors(rel string) []string {
	parts := strings.Split(rel, "/")
	if len(parts) < 2 {
		return nil
	}

	out := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		out = append(out, strings.Join(parts[:i], "/"))
	}
	return out
}

// ValidatePath validates that a path is safe and accessible
func (pu *PathUtils) ValidatePath(path string) error {
	if path == "" {
		return ErrPathEmpty
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("path contains null character")
	}

	if len(path) > 4096 {
		return fmt.Errorf("path too long (max 4096 characters)")
	}

	return nil
}
