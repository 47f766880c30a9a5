package filter

import (
	"path"
	"strings"
)

// DefaultMaxFileSize is the largest file, in bytes, that is read and diffed.
const DefaultMaxFileSize int64 = 1 << 20

// VCSDirs are version-control metadata directories that are never observed.
var VCSDirs = []string{".git", ".jj", ".hg", ".svn"}

// disallowedExtensions lists binary and media formats that never produce a
// useful text diff. Keys are lower case without the dot.
var disallowedExtensions = map[string]struct{}{
	// images
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {}, "ico": {}, "webp": {},
	"tif": {}, "tiff": {}, "psd": {}, "heic": {}, "avif": {},
	// audio & video
	"mp3": {}, "wav": {}, "ogg": {}, "flac": {}, "aac": {}, "m4a": {},
	"mp4": {}, "mov": {}, "avi": {}, "mkv": {}, "webm": {},
	// archives
	"zip": {}, "tar": {}, "gz": {}, "tgz": {}, "bz2": {}, "xz": {}, "zst": {},
	"7z": {}, "rar": {}, "jar": {}, "war": {},
	// documents
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "ppt": {}, "pptx": {},
	// fonts
	"ttf": {}, "otf": {}, "woff": {}, "woff2": {}, "eot": {},
	// compiled objects & binaries
	"exe": {}, "dll": {}, "so": {}, "dylib": {}, "a": {}, "o": {}, "obj": {},
	"lib": {}, "class": {}, "pyc": {}, "pyo": {}, "wasm": {}, "bin": {},
	// databases
	"db": {}, "sqlite": {}, "sqlite3": {},
}

// HasDisallowedExtension reports whether the file name ends in a binary or
// media extension. Matching ignores case.
func HasDisallowedExtension(p string) bool {
	ext := path.Ext(p)
	if ext == "" {
		return false
	}
	_, ok := disallowedExtensions[strings.ToLower(ext[1:])]
	return ok
}

// IsVCSPath reports whether any segment of the slash-separated relative path
// is a version-control directory.
func IsVCSPath(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		for _, vcs := range VCSDirs {
			if seg == vcs {
				return true
			}
		}
	}
	return false
}
