// Package filter decides which paths under a watch root are observable.
package filter

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/dfft/dfft"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/common"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreSources are the ignore files consulted under the watch root, in the
// order their rules are applied. Later files can negate earlier rules.
var IgnoreSources = []string{
	filepath.Join(".git", "info", "exclude"),
	".gitignore",
	internal.DefaultIgnoreFile,
}

// Matcher answers whether a root-relative path is excluded by ignore rules.
type Matcher struct {
	gi      *ignore.GitIgnore
	sources []string
}

// Build compiles the ignore rules found under root. It returns nil and no
// error when none of the ignore files exist, so callers can skip matching.
func Build(fsys afero.Fs, root string) (*Matcher, error) {
	lines := make([]string, 0, 16)
	for _, vcs := range VCSDirs {
		lines = append(lines, vcs+"/")
	}

	var sources []string
	for _, name := range IgnoreSources {
		p := filepath.Join(root, name)

		fileLines, err := readIgnoreFile(fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		lines = append(lines, fileLines...)
		sources = append(sources, p)
	}

	if len(sources) == 0 {
		slog.Debug("No ignore files found", "root", root)
		return nil, nil
	}

	slog.Debug("Compiled ignore rules", "root", root, "sources", sources, "lines", len(lines))
	return &Matcher{
		gi:      ignore.CompileIgnoreLines(lines...),
		sources: sources,
	}, nil
}

// readIgnoreFile reads an ignore file and validates each pattern. A missing
// file is reported as fs.ErrNotExist.
func readIgnoreFile(fsys afero.Fs, p string) ([]string, error) {
	f, err := fsys.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fs.ErrNotExist
		}
		return nil, fmt.Errorf("failed to open ignore file %s: %w", p, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat ignore file %s: %w", p, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("ignore file %s is a directory", p)
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if err := validatePattern(line); err != nil {
			return nil, &common.PatternError{File: p, Line: lineNo, Pattern: line}
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file %s: %w", p, err)
	}
	return lines, nil
}

// validatePattern rejects gitignore lines whose glob syntax is broken: an
// unterminated character class or a trailing unescaped backslash.
func validatePattern(line string) error {
	line = trimTrailingSpaces(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if i == len(line)-1 {
				return common.ErrBadPattern
			}
			i++
		case '[':
			end := classEnd(line, i+1)
			if end < 0 {
				return common.ErrBadPattern
			}
			i = end
		}
	}
	return nil
}

// trimTrailingSpaces drops trailing spaces unless they are escaped with a
// backslash.
func trimTrailingSpaces(line string) string {
	for strings.HasSuffix(line, " ") {
		rest := line[:len(line)-1]
		backslashes := len(rest) - len(strings.TrimRight(rest, "\\"))
		if backslashes%2 == 1 {
			break
		}
		line = rest
	}
	return line
}

// classEnd returns the index of the "]" closing a class whose body starts at
// start, or -1. A leading "!" or "^" negates, and a "]" right after the
// opening bracket (or the negation) is a literal.
func classEnd(line string, start int) int {
	i := start
	if i < len(line) && (line[i] == '!' || line[i] == '^') {
		i++
	}
	if i < len(line) && line[i] == ']' {
		i++
	}
	for ; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case ']':
			return i
		}
	}
	return -1
}

// IsIgnored reports whether rel, or any directory containing it, matches the
// ignore rules. A nil Matcher ignores nothing.
func (m *Matcher) IsIgnored(rel string) bool {
	if m == nil || rel == "" {
		return false
	}
	if m.gi.MatchesPath(rel) {
		return true
	}
	for _, dir := range common.NewPathUtils().Ancestors(rel) {
		if m.gi.MatchesPath(dir + "/") {
			return true
		}
	}
	return false
}

// IsIgnoredDir is IsIgnored for a path known to be a directory, so that
// directory-only patterns such as "build/" apply to it.
func (m *Matcher) IsIgnoredDir(rel string) bool {
	if m == nil || rel == "" {
		return false
	}
	return m.IsIgnored(rel) || m.gi.MatchesPath(rel+"/")
}

// Sources returns the ignore files the matcher was built from.
func (m *Matcher) Sources() []string {
	if m == nil {
		return nil
	}
	return m.sources
}

// Policy combines ignore rules with the fixed exclusions: version-control
// directories, binary extensions and the file size ceiling.
type Policy struct {
	matcher     *Matcher
	maxFileSize int64
}

// Option configures a Policy.
type Option func(*Policy)

// WithMaxFileSize overrides DefaultMaxFileSize. Non-positive values are ignored.
func WithMaxFileSize(n int64) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxFileSize = n
		}
	}
}

// NewPolicy builds the policy for a watch root. Any ignore file that cannot be
// read or parsed fails construction.
func NewPolicy(fsys afero.Fs, root string, opts ...Option) (*Policy, error) {
	m, err := Build(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("failed to build ignore rules for %s: %w", root, err)
	}

	p := &Policy{matcher: m, maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Matcher returns the compiled ignore rules, nil when there are none.
func (p *Policy) Matcher() *Matcher {
	return p.matcher
}

// MaxFileSize returns the size ceiling in bytes.
func (p *Policy) MaxFileSize() int64 {
	return p.maxFileSize
}

// Excluded reports whether a file path is filtered out before any I/O.
func (p *Policy) Excluded(rel string) bool {
	return IsVCSPath(rel) || HasDisallowedExtension(rel) || p.matcher.IsIgnored(rel)
}

// ExcludedDir reports whether a directory path is filtered out.
func (p *Policy) ExcludedDir(rel string) bool {
	return IsVCSPath(rel) || p.matcher.IsIgnoredDir(rel)
}

// TooLarge reports whether a file of the given size exceeds the ceiling.
func (p *Policy) TooLarge(size int64) bool {
	return size > p.maxFileSize
}
