// Package docdiff computes line diffs between two revisions of a Document.
package docdiff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type LineType string

const (
	LineContext LineType = "context"
	LineAdded   LineType = "added"
	LineRemoved LineType = "removed"
)

// MaxLines bounds the combined size of the revisions that are diffed line by
// line. Larger documents only report that they changed.
const MaxLines = 5000

type Line struct {
	Type    LineType `json:"type"`
	Text    string   `json:"text"`
	OldLine int      `json:"old_line,omitempty"`
	NewLine int      `json:"new_line,omitempty"`
}

// Diff is the line diff between two revisions.
type Diff struct {
	Lines     []Line `json:"lines,omitempty"`
	Added     int    `json:"added"`
	Removed   int    `json:"removed"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Stats is the size of a change without its lines.
type Stats struct {
	Added     int  `json:"added"`
	Removed   int  `json:"removed"`
	Truncated bool `json:"truncated,omitempty"`
}

func (d Diff) Stats() Stats {
	return Stats{Added: d.Added, Removed: d.Removed, Truncated: d.Truncated}
}

// Changed reports whether the revisions differ.
func (d Diff) Changed() bool {
	return d.Added > 0 || d.Removed > 0 || d.Truncated
}

// Compute diffs before against after.
func Compute(before, after string) Diff {
	if before == after {
		return Diff{}
	}

	if lineCount(before)+lineCount(after) > MaxLines {
		return Diff{Truncated: true}
	}

	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var result Diff

	oldLine, newLine := 1, 1

	for _, chunk := range diffs {
		for _, text := range splitLines(chunk.Text) {
			switch chunk.Type {
			case diffmatchpatch.DiffEqual:
				result.Lines = append(result.Lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				result.Lines = append(result.Lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				result.Removed++
				oldLine++
			case diffmatchpatch.DiffInsert:
				result.Lines = append(result.Lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				result.Added++
				newLine++
			}
		}
	}

	return result
}

// Render prints changed lines with up to context unchanged lines around each
// change, in unified-diff style prefixes.
func (d Diff) Render(context int) string {
	if d.Truncated {
		return "(document too large to diff)\n"
	}

	keep := make([]bool, len(d.Lines))

	for i, line := range d.Lines {
		if line.Type == LineContext {
			continue
		}

		for j := max(0, i-context); j <= min(len(d.Lines)-1, i+context); j++ {
			keep[j] = true
		}
	}

	var b strings.Builder

	skipped := false

	for i, line := range d.Lines {
		if !keep[i] {
			skipped = true

			continue
		}

		if skipped && b.Len() > 0 {
			b.WriteString("...\n")
		}

		skipped = false

		switch line.Type {
		case LineAdded:
			b.WriteString("+ ")
		case LineRemoved:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}

		b.WriteString(line.Text)
		b.WriteByte('\n')
	}

	return b.String()
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}

	return strings.Count(value, "\n") + 1
}
