package diff

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aymanbagabas/go-udiff"
)

// MaxInlineRunes bounds character-level emphasis. A paired line longer than
// this on either side is emphasized as a whole.
const MaxInlineRunes = 8192

type opTag byte

const (
	opEqual opTag = iota
	opReplace
	opDelete
	opInsert
)

// opCode describes how a[I1:I2] turns into b[J1:J2].
type opCode struct {
	Tag    opTag
	I1, I2 int
	J1, J2 int
}

// Compute diffs two snapshots of a file. It returns nil when they are
// identical, so callers can tell "nothing changed" apart from a change whose
// diff happens to be small.
func Compute(oldText, newText string) *Diff {
	if oldText == newText {
		return nil
	}

	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	groups := groupOpCodes(editScript(oldLines, newLines), ContextLines)

	d := &Diff{Hunks: make([]Hunk, 0, len(groups))}
	for _, group := range groups {
		d.Hunks = append(d.Hunks, buildHunk(group, oldLines, newLines))
	}
	return d
}

// editScript diffs two token sequences. Each distinct token is interned as a
// single rune so udiff's bounded LCS works on whole tokens, and the edits it
// returns are mapped back from byte offsets to token indices.
func editScript(a, b []string) []opCode {
	ids := make(map[string]rune, len(a)+len(b))
	encA, offA := encodeTokens(a, ids)
	encB, _ := encodeTokens(b, ids)

	var ops []opCode
	i, j := 0, 0
	for _, e := range udiff.Strings(encA, encB) {
		start := sort.SearchInts(offA, e.Start)
		end := sort.SearchInts(offA, e.End)
		inserted := utf8.RuneCountInString(e.New)

		ops = appendOp(ops, opEqual, i, start, j, j+start-i)
		j += start - i
		ops = appendOp(ops, changeTag(end-start, inserted), start, end, j, j+inserted)
		i, j = end, j+inserted
	}
	return appendOp(ops, opEqual, i, len(a), j, len(b))
}

// appendOp adds an opcode, dropping empty ranges and folding adjacent
// changes into a single replace.
func appendOp(ops []opCode, tag opTag, i1, i2, j1, j2 int) []opCode {
	if i1 == i2 && j1 == j2 {
		return ops
	}
	if n := len(ops); n > 0 {
		last := &ops[n-1]
		if tag != opEqual && last.Tag != opEqual {
			last.I2, last.J2 = i2, j2
			last.Tag = changeTag(last.I2-last.I1, last.J2-last.J1)
			return ops
		}
	}
	return append(ops, opCode{Tag: tag, I1: i1, I2: i2, J1: j1, J2: j2})
}

func changeTag(deleted, inserted int) opTag {
	switch {
	case deleted > 0 && inserted > 0:
		return opReplace
	case deleted > 0:
		return opDelete
	default:
		return opInsert
	}
}

// encodeTokens writes one rune per token, reusing ids across calls, and
// returns the byte offset of every token plus the end offset.
func encodeTokens(tokens []string, ids map[string]rune) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(tokens)+1)
	for _, tok := range tokens {
		id, ok := ids[tok]
		if !ok {
			id = tokenRune(len(ids))
			ids[tok] = id
		}
		offsets = append(offsets, b.Len())
		b.WriteRune(id)
	}
	offsets = append(offsets, b.Len())
	return b.String(), offsets
}

// tokenRune maps a token id onto a valid rune, skipping the surrogate block.
func tokenRune(n int) rune {
	r := rune(n)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

// groupOpCodes splits an edit script into hunks, keeping at most n lines of
// context around each change run. Runs separated by more than 2n unchanged
// lines land in different hunks.
func groupOpCodes(codes []opCode, n int) [][]opCode {
	if len(codes) == 0 {
		return nil
	}
	codes = append([]opCode(nil), codes...)

	if c := &codes[0]; c.Tag == opEqual {
		c.I1, c.J1 = max(c.I1, c.I2-n), max(c.J1, c.J2-n)
	}
	if c := &codes[len(codes)-1]; c.Tag == opEqual {
		c.I2, c.J2 = min(c.I2, c.I1+n), min(c.J2, c.J1+n)
	}

	var groups [][]opCode
	var group []opCode
	for _, c := range codes {
		if c.Tag == opEqual && c.I2-c.I1 > 2*n {
			group = append(group, opCode{opEqual, c.I1, min(c.I2, c.I1+n), c.J1, min(c.J2, c.J1+n)})
			groups = append(groups, group)
			group = nil
			c.I1, c.J1 = max(c.I1, c.I2-n), max(c.J1, c.J2-n)
		}
		group = append(group, c)
	}
	if len(group) > 0 && !(len(group) == 1 && group[0].Tag == opEqual) {
		groups = append(groups, group)
	}
	return groups
}

func buildHunk(group []opCode, oldLines, newLines []string) Hunk {
	var h Hunk
	for _, op := range group {
		switch op.Tag {
		case opEqual:
			for i := 0; i < op.I2-op.I1; i++ {
				h.Lines = append(h.Lines, Line{
					Kind:       LineEqual,
					OldLineNum: op.I1 + i + 1,
					NewLineNum: op.J1 + i + 1,
					Changes:    plain(oldLines[op.I1+i]),
				})
			}

		case opDelete:
			for i := op.I1; i < op.I2; i++ {
				h.Lines = append(h.Lines, deleteLine(i, plain(oldLines[i])))
			}

		case opInsert:
			for j := op.J1; j < op.J2; j++ {
				h.Lines = append(h.Lines, insertLine(j, plain(newLines[j])))
			}

		case opReplace:
			h.Lines = append(h.Lines, replaceLines(op, oldLines, newLines)...)
		}
	}
	return h
}

// replaceLines renders a replace run as all deletes followed by all inserts.
// The n-th deleted line is paired with the n-th inserted line and both get
// character-level emphasis; lines without a partner are plain.
func replaceLines(op opCode, oldLines, newLines []string) []Line {
	deleted := op.I2 - op.I1
	inserted := op.J2 - op.J1
	paired := min(deleted, inserted)

	oldChanges := make([][]InlineChange, deleted)
	newChanges := make([][]InlineChange, inserted)
	for k := 0; k < paired; k++ {
		oldChanges[k], newChanges[k] = Inline(oldLines[op.I1+k], newLines[op.J1+k])
	}
	for k := paired; k < deleted; k++ {
		oldChanges[k] = plain(oldLines[op.I1+k])
	}
	for k := paired; k < inserted; k++ {
		newChanges[k] = plain(newLines[op.J1+k])
	}

	lines := make([]Line, 0, deleted+inserted)
	for k := 0; k < deleted; k++ {
		lines = append(lines, deleteLine(op.I1+k, oldChanges[k]))
	}
	for k := 0; k < inserted; k++ {
		lines = append(lines, insertLine(op.J1+k, newChanges[k]))
	}
	return lines
}

// Inline marks the characters that differ between two versions of the same
// logical line. Concatenating either result reproduces its input exactly.
// Lines longer than MaxInlineRunes are emphasized whole.
func Inline(oldLine, newLine string) (oldChanges, newChanges []InlineChange) {
	a := splitRunes(oldLine)
	b := splitRunes(newLine)

	if len(a) > MaxInlineRunes || len(b) > MaxInlineRunes {
		return emphasizeAll(oldLine), emphasizeAll(newLine)
	}

	for _, op := range editScript(a, b) {
		oldText := strings.Join(a[op.I1:op.I2], "")
		newText := strings.Join(b[op.J1:op.J2], "")
		changed := op.Tag != opEqual

		oldChanges = appendFragment(oldChanges, oldText, changed)
		newChanges = appendFragment(newChanges, newText, changed)
	}

	if len(oldChanges) == 0 {
		oldChanges = plain(oldLine)
	}
	if len(newChanges) == 0 {
		newChanges = plain(newLine)
	}
	return oldChanges, newChanges
}

// appendFragment adds text to the fragment list, merging it into the last
// fragment when the emphasis matches. Empty text is dropped.
func appendFragment(changes []InlineChange, text string, emphasized bool) []InlineChange {
	if text == "" {
		return changes
	}
	if n := len(changes); n > 0 && changes[n-1].Emphasized == emphasized {
		changes[n-1].Text += text
		return changes
	}
	return append(changes, InlineChange{Text: text, Emphasized: emphasized})
}

func deleteLine(i int, changes []InlineChange) Line {
	return Line{Kind: LineDelete, OldLineNum: i + 1, Changes: changes}
}

func insertLine(j int, changes []InlineChange) Line {
	return Line{Kind: LineInsert, NewLineNum: j + 1, Changes: changes}
}

func plain(text string) []InlineChange {
	return []InlineChange{{Text: text}}
}

func emphasizeAll(text string) []InlineChange {
	if text == "" {
		return plain(text)
	}
	return []InlineChange{{Text: text, Emphasized: true}}
}

// splitLines splits text after every "\n", keeping the terminator, so a
// missing newline at end of file is a visible difference. The empty string
// has no lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitRunes cuts s into one token per rune. Invalid bytes become one-byte
// tokens so the original bytes survive reassembly.
func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		out = append(out, s[i:i+size])
		i += size
	}
	return out
}
