package edit

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/fakeyudi/sandbox/internal/vfs"
)

// DiffStatus classifies a proposed edit against the current project.
type DiffStatus string

const (
	StatusCreated   DiffStatus = "created"
	StatusUpdated   DiffStatus = "updated"
	StatusUnchanged DiffStatus = "unchanged"
	StatusInvalid   DiffStatus = "invalid"
)

// FileDiff is the review of one proposed edit.
type FileDiff struct {
	Path   string     `json:"path"`
	Status DiffStatus `json:"status"`
	Diff   string     `json:"diff,omitempty"`
}

// Review compares edits with the current project without changing it.
// Duplicate paths are collapsed the same way Apply collapses them. Current
// contents are read under the lock; diffing happens after it is released.
func (e *Engine) Review(edits []Edit) []FileDiff {
	var (
		order   []string
		next    = make(map[string]string)
		invalid []FileDiff
	)
	for _, ed := range edits {
		p, err := vfs.CleanPath(ed.Path)
		if err != nil {
			invalid = append(invalid, FileDiff{Path: ed.Path, Status: StatusInvalid, Diff: err.Error()})
			continue
		}
		if _, seen := next[p]; !seen {
			order = append(order, p)
		}
		next[p] = ed.Content
	}

	current := make(map[string]value, len(order))
	e.mu.RLock()
	for _, p := range order {
		content, err := e.fs.Read(p)
		current[p] = value{content: content, exists: err == nil}
	}
	e.mu.RUnlock()

	out := invalid
	for _, p := range order {
		old := current[p]
		switch {
		case !old.exists:
			out = append(out, FileDiff{Path: p, Status: StatusCreated, Diff: Unified(p, "", next[p])})
		case old.content == next[p]:
			out = append(out, FileDiff{Path: p, Status: StatusUnchanged})
		default:
			out = append(out, FileDiff{Path: p, Status: StatusUpdated, Diff: Unified(p, old.content, next[p])})
		}
	}
	return out
}

// splitLines keeps line terminators so a missing final newline is a change.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

const noNewline = "\\ No newline at end of file\n"

func writeLine(out *strings.Builder, tag byte, l string) {
	out.WriteByte(tag)
	out.WriteString(l)
	if !strings.HasSuffix(l, "\n") {
		out.WriteByte('\n')
		out.WriteString(noNewline)
	}
}

// Unified returns a git-style unified diff between two versions of name,
// with three lines of context. Identical inputs yield "".
func Unified(name, oldText, newText string) string {
	if oldText == newText {
		return ""
	}
	a, b := splitLines(oldText), splitLines(newText)

	var out strings.Builder
	fmt.Fprintf(&out, "--- a%s\n+++ b%s\n", name, name)

	m := difflib.NewMatcher(a, b)
	for _, group := range m.GetGroupedOpCodes(3) {
		first, last := group[0], group[len(group)-1]
		oldCount, newCount := last.I2-first.I1, last.J2-first.J1
		fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@\n", hunkStart(first.I1, oldCount), oldCount, hunkStart(first.J1, newCount), newCount)
		for _, op := range group {
			if op.Tag == 'e' {
				for _, l := range a[op.I1:op.I2] {
					writeLine(&out, ' ', l)
				}
				continue
			}
			if op.Tag == 'r' || op.Tag == 'd' {
				for _, l := range a[op.I1:op.I2] {
					writeLine(&out, '-', l)
				}
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				for _, l := range b[op.J1:op.J2] {
					writeLine(&out, '+', l)
				}
			}
		}
	}
	return out.String()
}

func hunkStart(pos, count int) int {
	if count == 0 {
		return pos
	}
	return pos + 1
}
