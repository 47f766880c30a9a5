package filter

import (
	"path/filepath"
	"testing"

	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/common"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "/repo"

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(testRoot, 0o755))
	for name, content := range files {
		p := filepath.Join(testRoot, name)
		require.NoError(t, fsys.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, afero.WriteFile(fsys, p, []byte(content), 0o644))
	}
	return fsys
}

func TestBuild_NoIgnoreFiles(t *testing.T) {
	fsys := newFs(t, map[string]string{"main.go": "package main\n"})

	m, err := Build(fsys, testRoot)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.False(t, m.IsIgnored("main.go"), "nil matcher ignores nothing")

	p, err := NewPolicy(fsys, testRoot)
	require.NoError(t, err)
	assert.Nil(t, p.Matcher())

	assert.True(t, p.Excluded(".git/config"))
	assert.True(t, p.Excluded(".jj/repo/store/x"))
	assert.True(t, p.Excluded("sub/.hg/hgrc"))
	assert.True(t, p.Excluded(".svn/entries"))
	assert.True(t, p.ExcludedDir(".git"))
	assert.False(t, p.Excluded("main.go"))
	assert.False(t, p.Excluded(".gitignore"))
}

func TestPolicy_Gitignore(t *testing.T) {
	fsys := newFs(t, map[string]string{
		".gitignore": "# build output\n*.log\nbuild/\n/secret.txt\n\nnode_modules\n",
	})

	p, err := NewPolicy(fsys, testRoot)
	require.NoError(t, err)
	require.NotNil(t, p.Matcher())
	assert.Equal(t, []string{filepath.Join(testRoot, ".gitignore")}, p.Matcher().Sources())

	tests := []struct {
		path     string
		excluded bool
	}{
		{"app.log", true},
		{"nested/deep/app.log", true},
		{"build/out.txt", true},
		{"build/deep/x.go", true},
		{"secret.txt", true},
		{"nested/secret.txt", false},
		{"node_modules/pkg/index.js", true},
		{"src/main.go", false},
		{"buildinfo.go", false},
		{".git/HEAD", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.excluded, p.Excluded(tt.path))
		})
	}

	assert.True(t, p.ExcludedDir("build"))
	assert.False(t, p.ExcludedDir("src"))
}

func TestPolicy_AllSourcesCombined(t *testing.T) {
	fsys := newFs(t, map[string]string{
		".git/info/exclude": "private/\n",
		".gitignore":        "*.log\n",
		".dfftignore":       "!keep.log\ngenerated/\n",
	})

	p, err := NewPolicy(fsys, testRoot)
	require.NoError(t, err)
	assert.Len(t, p.Matcher().Sources(), 3)

	assert.True(t, p.Excluded("private/notes.md"))
	assert.True(t, p.Excluded("other.log"))
	assert.False(t, p.Excluded("keep.log"), "later source negates earlier rule")
	assert.True(t, p.Excluded("generated/api.go"))
	assert.False(t, p.Excluded("README.md"))
}

func TestMatcher_AncestorDirectories(t *testing.T) {
	fsys := newFs(t, map[string]string{
		".dfftignore": "logs/\n!keep.txt\n",
	})

	m, err := Build(fsys, testRoot)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.True(t, m.IsIgnored("logs/keep.txt"), "files inside an ignored directory stay ignored")
	assert.True(t, m.IsIgnored("logs/2024/01/app.txt"))
	assert.False(t, m.IsIgnored("keep.txt"))
	assert.True(t, m.IsIgnoredDir("logs"))
	assert.False(t, m.IsIgnored("logs"), "directory-only pattern does not match a file named logs")
}

func TestNewPolicy_MalformedPattern(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		line    int
	}{
		{"unterminated class", ".dfftignore", "ok.txt\nfoo[bar\n", 2},
		{"dangling escape", ".gitignore", "trailing\\\n", 1},
		{"exclude file", ".git/info/exclude", "# comment\n\n[\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := newFs(t, map[string]string{tt.file: tt.content})

			_, err := NewPolicy(fsys, testRoot)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrBadPattern)

			var perr *common.PatternError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.line, perr.Line)
			assert.Equal(t, filepath.Join(testRoot, tt.file), perr.File)
		})
	}
}

func TestNewPolicy_ValidPatternSyntax(t *testing.T) {
	lines := []string{
		"*.log",
		"foo\\ ",
		"[a-]",
		"[]x]",
		"[!]]",
		"\\#literal",
		"path\\[1]",
		"trailing   ",
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			fsys := newFs(t, map[string]string{".gitignore": line + "\n"})

			p, err := NewPolicy(fsys, testRoot)
			require.NoError(t, err)
			assert.NotNil(t, p.Matcher())
		})
	}
}

func TestValidatePattern(t *testing.T) {
	assert.NoError(t, validatePattern("foo\\ "), "escaped trailing space")
	assert.NoError(t, validatePattern("foo\\\\  "), "escaped backslash, spaces trimmed")
	assert.ErrorIs(t, validatePattern("foo\\"), common.ErrBadPattern)
	assert.ErrorIs(t, validatePattern("[a-"), common.ErrBadPattern)
	assert.ErrorIs(t, validatePattern("[]"), common.ErrBadPattern)
	assert.ErrorIs(t, validatePattern("x[\\]"), common.ErrBadPattern)
}

func TestNewPolicy_UnreadableIgnoreFile(t *testing.T) {
	fsys := newFs(t, nil)
	// a directory where a file is expected cannot be read as patterns
	require.NoError(t, fsys.MkdirAll(filepath.Join(testRoot, ".gitignore"), 0o755))

	_, err := NewPolicy(fsys, testRoot)
	assert.Error(t, err)
}

func TestPolicy_Extensions(t *testing.T) {
	p, err := NewPolicy(newFs(t, nil), testRoot)
	require.NoError(t, err)

	for _, excluded := range []string{"logo.png", "assets/Photo.JPG", "dist/app.wasm", "a/b/c.tar", "lib.so"} {
		assert.True(t, p.Excluded(excluded), excluded)
	}
	for _, allowed := range []string{"main.go", "Makefile", "icon.svg", "notes.txt", "archive.tar.gz.md"} {
		assert.False(t, p.Excluded(allowed), allowed)
	}
}

func TestPolicy_TooLarge(t *testing.T) {
	p, err := NewPolicy(newFs(t, nil), testRoot)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxFileSize, p.MaxFileSize())
	assert.False(t, p.TooLarge(DefaultMaxFileSize))
	assert.True(t, p.TooLarge(DefaultMaxFileSize+1))

	small, err := NewPolicy(newFs(t, nil), testRoot, WithMaxFileSize(10))
	require.NoError(t, err)
	assert.True(t, small.TooLarge(11))

	unchanged, err := NewPolicy(newFs(t, nil), testRoot, WithMaxFileSize(0))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxFileSize, unchanged.MaxFileSize())
}
