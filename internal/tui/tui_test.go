package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/sandbox/internal/bookmark"
	"github.com/fakeyudi/sandbox/internal/bundle"
	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/edit"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

func sampleBundle() *bundle.ProjectBundle {
	return &bundle.ProjectBundle{
		Version:     bundle.Version,
		ExportedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		PreviewRoot: "/",
		Files: vfs.State{
			"/index.html":   "<h1>hello</h1>",
			"/css/site.css": "body { margin: 0 }",
		},
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Content: "make a heading"},
			{Role: conversation.RoleModel, Content: "Done.", Explanation: "Added an h1.", Code: []edit.Edit{{Path: "/index.html", Content: "<h1>hello</h1>"}}},
		},
		SavedURLs: []bookmark.SavedURL{{ID: "1", Title: "Docs", URL: "https://go.dev"}},
	}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func press(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestViewerLoadingUntilSized(t *testing.T) {
	m := New(sampleBundle(), "/tmp/out/project.md")
	if got := m.View(); got != "Loading…" {
		t.Fatalf("View before size = %q", got)
	}
	m = sized(t, m)
	if !strings.Contains(m.View(), "project.md") {
		t.Fatal("title should carry the bundle file name")
	}
}

func TestViewerTabNavigation(t *testing.T) {
	m := sized(t, New(sampleBundle(), "p.json"))

	m = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.activeTab != tabFiles {
		t.Fatalf("tab: activeTab = %d, want %d", m.activeTab, tabFiles)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyShiftTab}, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.activeTab != tabURLs {
		t.Fatalf("shift+tab wraps: activeTab = %d, want %d", m.activeTab, tabURLs)
	}
	m = press(m, runes("3"))
	if m.activeTab != tabConversation {
		t.Fatalf("3: activeTab = %d, want %d", m.activeTab, tabConversation)
	}
}

func TestViewerFilesExpand(t *testing.T) {
	m := sized(t, New(sampleBundle(), "p.json"))
	m = press(m, runes("2"))

	if strings.Contains(m.renderFiles(), "margin: 0") {
		t.Fatal("content should be collapsed initially")
	}
	// Paths are sorted, so the cursor starts on /css/site.css.
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.renderFiles(), "margin: 0") {
		t.Fatal("enter should expand the selected file")
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown})
	if m.fileCursor != 1 {
		t.Fatalf("cursor = %d, want clamp at 1", m.fileCursor)
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.renderFiles(), "<h1>hello</h1>") {
		t.Fatal("second file should expand")
	}
	m = press(m, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyEnter})
	if strings.Contains(m.renderFiles(), "margin: 0") {
		t.Fatal("enter again should collapse")
	}
}

func TestViewerConversationOrder(t *testing.T) {
	m := sized(t, New(sampleBundle(), "p.json"))
	m = press(m, runes("3"))

	out := m.renderConversation()
	if strings.Index(out, "make a heading") > strings.Index(out, "Done.") {
		t.Fatal("oldest message should come first by default")
	}
	if !strings.Contains(out, "/index.html") {
		t.Fatal("proposed paths should be listed")
	}
	m = press(m, runes("s"))
	out = m.renderConversation()
	if strings.Index(out, "make a heading") < strings.Index(out, "Done.") {
		t.Fatal("s should flip to newest first")
	}
}

func TestViewerSummaryAndURLs(t *testing.T) {
	m := sized(t, New(sampleBundle(), "p.json"))
	summary := m.renderSummary()
	for _, want := range []string{"2025-03-01 12:00:00", "Files:", "Messages:"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q", want)
		}
	}
	if urls := m.renderURLs(); !strings.Contains(urls, "https://go.dev") {
		t.Errorf("urls tab = %q", urls)
	}

	empty := New(&bundle.ProjectBundle{Version: bundle.Version, Files: vfs.State{}}, "e.json")
	if !strings.Contains(empty.renderURLs(), "(none)") || !strings.Contains(empty.renderFiles(), "(none)") {
		t.Error("empty sections should say (none)")
	}
}

func TestViewerQuit(t *testing.T) {
	m := sized(t, New(sampleBundle(), "p.json"))
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should quit")
	}
}
