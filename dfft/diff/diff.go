// Package diff turns two snapshots of a text file into context-grouped hunks
// with per-character emphasis on modified lines.
package diff

import (
	"fmt"
	"strings"
)

// ContextLines is the number of unchanged lines kept around each change run.
const ContextLines = 3

// Diff is an ordered list of hunks. Consecutive hunks are separated by at
// least one unchanged line that is not shown.
type Diff struct {
	Hunks []Hunk
}

// Hunk represents a contiguous block of changes plus its context.
type Hunk struct {
	Lines []Line
}

// Line represents a single line within a hunk.
type Line struct {
	Kind       LineKind
	OldLineNum int // 1-based, 0 if the line is an insert
	NewLineNum int // 1-based, 0 if the line is a delete
	Changes    []InlineChange
}

// InlineChange is a fragment of a line. Emphasized fragments are the
// characters that differ from the paired line on the other side.
type InlineChange struct {
	Text       string
	Emphasized bool
}

// LineKind represents the type of a diff line.
type LineKind int

// Line kinds.
const (
	LineEqual LineKind = iota
	LineDelete
	LineInsert
)

// String returns a human-readable representation of the line kind.
func (k LineKind) String() string {
	switch k {
	case LineEqual:
		return "equal"
	case LineDelete:
		return "delete"
	case LineInsert:
		return "insert"
	default:
		return "unknown"
	}
}

// Text reassembles the line from its fragments, terminator included.
func (l Line) Text() string {
	if len(l.Changes) == 1 {
		return l.Changes[0].Text
	}
	var b strings.Builder
	for _, c := range l.Changes {
		b.WriteString(c.Text)
	}
	return b.String()
}

// Emphasized reports whether any fragment of the line is emphasized.
func (l Line) Emphasized() bool {
	for _, c := range l.Changes {
		if c.Emphasized {
			return true
		}
	}
	return false
}

// Header renders the unified "@@ -a,b +c,d @@" header for the hunk.
func (h Hunk) Header() string {
	oldStart, oldCount, newStart, newCount := h.Ranges()
	return fmt.Sprintf("@@ -%s +%s @@", formatRange(oldStart, oldCount), formatRange(newStart, newCount))
}

// Ranges returns the 1-based start and line count of the hunk on each side.
// Every hunk carries context on both sides unless one side of the file is
// empty, in which case that side reports 0,0 like unified diff does.
func (h Hunk) Ranges() (oldStart, oldCount, newStart, newCount int) {
	for _, l := range h.Lines {
		if l.OldLineNum > 0 {
			if oldCount == 0 {
				oldStart = l.OldLineNum
			}
			oldCount++
		}
		if l.NewLineNum > 0 {
			if newCount == 0 {
				newStart = l.NewLineNum
			}
			newCount++
		}
	}
	return oldStart, oldCount, newStart, newCount
}

func formatRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

// Stats counts inserted and deleted lines across all hunks.
func (d *Diff) Stats() (inserted, deleted int) {
	if d == nil {
		return 0, 0
	}
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			switch l.Kind {
			case LineInsert:
				inserted++
			case LineDelete:
				deleted++
			}
		}
	}
	return inserted, deleted
}
