package watcher

import (
	"github.com/ZanzyTHEbar/dfft/dfft/diff"
)

// ChangeKind represents the semantic effect observed on a path
type ChangeKind int

const (
	// ChangeCreated carries the new file's content, or Err if it could not be read
	ChangeCreated ChangeKind = iota
	// ChangeModified carries a Modification, or Err if the file could not be read
	ChangeModified
	// ChangeRemovedFile reports a file that no longer exists
	ChangeRemovedFile
	// ChangeRemovedDir reports a directory whose cached files were dropped
	ChangeRemovedDir
)

// String returns a human-readable representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		return "modified"
	case ChangeRemovedFile:
		return "removed_file"
	case ChangeRemovedDir:
		return "removed_dir"
	default:
		return "unknown"
	}
}

// Modification is either an initial snapshot (no earlier content to compare
// with) or a diff against the cached content.
type Modification struct {
	Snapshot bool
	Diff     *diff.Diff
}

// Change is one semantic change for one path. Path is relative to the watch
// root and slash-separated.
type Change struct {
	Path         string
	Kind         ChangeKind
	Content      string        // ChangeCreated
	Modification *Modification // ChangeModified
	Err          error         // read failure for ChangeCreated/ChangeModified
}

// Created builds a successful creation.
func Created(path, content string) Change {
	return Change{Path: path, Kind: ChangeCreated, Content: content}
}

// CreatedErr builds a creation whose content could not be read.
func CreatedErr(path string, err error) Change {
	return Change{Path: path, Kind: ChangeCreated, Err: err}
}

// ModifiedDiff builds a modification carrying a diff.
func ModifiedDiff(path string, d *diff.Diff) Change {
	return Change{Path: path, Kind: ChangeModified, Modification: &Modification{Diff: d}}
}

// ModifiedSnapshot builds a first-sighting modification.
func ModifiedSnapshot(path string) Change {
	return Change{Path: path, Kind: ChangeModified, Modification: &Modification{Snapshot: true}}
}

// ModifiedErr builds a modification whose content could not be read.
func ModifiedErr(path string, err error) Change {
	return Change{Path: path, Kind: ChangeModified, Err: err}
}

// RemovedFile builds a file removal.
func RemovedFile(path string) Change {
	return Change{Path: path, Kind: ChangeRemovedFile}
}

// RemovedDir builds a directory removal.
func RemovedDir(path string) Change {
	return Change{Path: path, Kind: ChangeRemovedDir}
}

// UpdateKind discriminates WatchUpdate
type UpdateKind int

const (
	UpdatePrepopulationFinished UpdateKind = iota
	UpdatePrepopulationFailed
	UpdateChangeReceived
)

// String returns a human-readable representation of the update kind.
func (k UpdateKind) String() string {
	switch k {
	case UpdatePrepopulationFinished:
		return "prepopulation_finished"
	case UpdatePrepopulationFailed:
		return "prepopulation_failed"
	case UpdateChangeReceived:
		return "change_received"
	default:
		return "unknown"
	}
}

// WatchUpdate is what a session sends to its consumer.
type WatchUpdate struct {
	Kind   UpdateKind
	Count  int    // UpdatePrepopulationFinished
	Err    error  // UpdatePrepopulationFailed
	Change Change // UpdateChangeReceived
}
