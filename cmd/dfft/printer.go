package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/dfft/dfft/diff"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/watcher"

	"github.com/charmbracelet/lipgloss"
)

// Printer renders watch updates as compact colored unified diffs.
type Printer struct {
	w io.Writer

	path     lipgloss.Style
	created  lipgloss.Style
	removed  lipgloss.Style
	modified lipgloss.Style
	failed   lipgloss.Style
	header   lipgloss.Style
	info     lipgloss.Style
	delEmph  lipgloss.Style
	insEmph  lipgloss.Style
}

// NewPrinter creates a printer whose color profile follows w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:        w,
		path:     r.NewStyle().Bold(true),
		created:  r.NewStyle().Foreground(lipgloss.Color("2")),
		removed:  r.NewStyle().Foreground(lipgloss.Color("1")),
		modified: r.NewStyle().Foreground(lipgloss.Color("3")),
		failed:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		header:   r.NewStyle().Foreground(lipgloss.Color("6")),
		info:     r.NewStyle().Faint(true),
		delEmph:  r.NewStyle().Foreground(lipgloss.Color("1")).Reverse(true),
		insEmph:  r.NewStyle().Foreground(lipgloss.Color("2")).Reverse(true),
	}
}

// Print writes one update.
func (p *Printer) Print(u watcher.WatchUpdate) {
	switch u.Kind {
	case watcher.UpdatePrepopulationFinished:
		fmt.Fprintln(p.w, p.info.Render(fmt.Sprintf("prepopulated %d files", u.Count)))
	case watcher.UpdatePrepopulationFailed:
		fmt.Fprintln(p.w, p.failed.Render(fmt.Sprintf("prepopulation failed: %v", u.Err)))
	case watcher.UpdateChangeReceived:
		p.printChange(u.Change)
	}
}

func (p *Printer) printChange(c watcher.Change) {
	switch c.Kind {
	case watcher.ChangeCreated:
		if c.Err != nil {
			p.printError("created", c)
			return
		}
		fmt.Fprintf(p.w, "%s %s %s\n", p.created.Render("+"), p.path.Render(c.Path),
			p.info.Render(fmt.Sprintf("(%d lines)", countLines(c.Content))))

	case watcher.ChangeModified:
		if c.Err != nil {
			p.printError("modified", c)
			return
		}
		if c.Modification == nil || c.Modification.Snapshot || c.Modification.Diff == nil {
			fmt.Fprintf(p.w, "%s %s %s\n", p.modified.Render("~"), p.path.Render(c.Path), p.info.Render("(first sighting)"))
			return
		}
		inserted, deleted := c.Modification.Diff.Stats()
		fmt.Fprintf(p.w, "%s %s %s %s\n", p.modified.Render("~"), p.path.Render(c.Path),
			p.created.Render(fmt.Sprintf("+%d", inserted)), p.removed.Render(fmt.Sprintf("-%d", deleted)))
		p.printDiff(c.Modification.Diff)

	case watcher.ChangeRemovedFile:
		fmt.Fprintf(p.w, "%s %s\n", p.removed.Render("-"), p.path.Render(c.Path))

	case watcher.ChangeRemovedDir:
		fmt.Fprintf(p.w, "%s %s\n", p.removed.Render("-"), p.path.Render(c.Path+"/"))
	}
}

func (p *Printer) printError(what string, c watcher.Change) {
	fmt.Fprintf(p.w, "%s %s %s\n", p.failed.Render("!"), p.path.Render(c.Path),
		p.failed.Render(fmt.Sprintf("%s, unreadable: %v", what, c.Err)))
}

func (p *Printer) printDiff(d *diff.Diff) {
	for _, h := range d.Hunks {
		fmt.Fprintln(p.w, p.header.Render(h.Header()))
		for _, l := range h.Lines {
			p.printLine(l)
		}
	}
}

func (p *Printer) printLine(l diff.Line) {
	var b strings.Builder

	switch l.Kind {
	case diff.LineEqual:
		b.WriteString(" ")
		b.WriteString(trimEOL(l.Text()))
	case diff.LineDelete:
		b.WriteString(p.removed.Render("-"))
		p.writeFragments(&b, l.Changes, p.removed, p.delEmph)
	case diff.LineInsert:
		b.WriteString(p.created.Render("+"))
		p.writeFragments(&b, l.Changes, p.created, p.insEmph)
	}

	if !strings.HasSuffix(l.Text(), "\n") {
		b.WriteString(p.info.Render(" ⏎ no newline"))
	}
	fmt.Fprintln(p.w, b.String())
}

func (p *Printer) writeFragments(b *strings.Builder, changes []diff.InlineChange, plain, emph lipgloss.Style) {
	for _, ch := range changes {
		text := trimEOL(ch.Text)
		if text == "" {
			continue
		}
		if ch.Emphasized {
			b.WriteString(emph.Render(text))
		} else {
			b.WriteString(plain.Render(text))
		}
	}
}

func trimEOL(s string) string {
	return strings.TrimSuffix(strings.TrimSuffix(s, "\n"), "\r")
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
