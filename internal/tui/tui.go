// Package tui provides Bubble Tea front ends for the sandbox: a read-only
// viewer for exported project bundles and an interactive chat over a live
// workspace.
package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/sandbox/internal/bundle"
	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	// Section heading inside a tab
	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	bulletStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	roleUserStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	roleModelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	roleSystemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pathStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	diffAddStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	diffDelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	diffMetaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabFiles
	tabConversation
	tabURLs
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Files", "Conversation", "Saved URLs"}

// ── Model ────────────────────

// Model is the bundle viewer.
type Model struct {
	bundle    *bundle.ProjectBundle
	filename  string
	paths     []string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	// newestFirst flips the conversation order.
	newestFirst bool
	// Files tab: cursor position and expanded set
	fileCursor    int
	expandedFiles map[int]bool
}

// New creates a viewer for b, read from filename.
func New(b *bundle.ProjectBundle, filename string) Model {
	return Model{
		bundle:        b,
		filename:      filepath.Base(filename),
		paths:         b.Files.Paths(),
		expandedFiles: make(map[int]bool),
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabConversation {
				m.newestFirst = !m.newestFirst
				m.refresh(tabConversation)
				m.viewports[tabConversation].GotoTop()
			}
		case "up", "k":
			if m.activeTab == tabFiles && m.fileCursor > 0 {
				m.fileCursor--
				m.refresh(tabFiles)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabFiles && m.fileCursor < len(m.paths)-1 {
				m.fileCursor++
				m.refresh(tabFiles)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabFiles && len(m.paths) > 0 {
				if m.expandedFiles[m.fileCursor] {
					delete(m.expandedFiles, m.fileCursor)
				} else {
					m.expandedFiles[m.fileCursor] = true
				}
				m.refresh(tabFiles)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  sandbox  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  q quit"
	switch m.activeTab {
	case tabConversation:
		order := "oldest first"
		if m.newestFirst {
			order = "newest first"
		}
		hint += "  s order (" + order + ")"
	case tabFiles:
		hint += "  ↑/↓ select  enter expand/collapse"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := max(m.width-lipgloss.Width(hint)-len(pct)-2, 1)
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := max(m.height-3, 1)
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) refresh(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabFiles:
		return m.renderFiles()
	case tabConversation:
		return m.renderConversation()
	case tabURLs:
		return m.renderURLs()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func bullet(text string) string {
	return bulletStyle.Render("  •") + "  " + text + "\n"
}

func (m *Model) renderSummary() string {
	b := m.bundle
	var sb strings.Builder
	sb.WriteString(heading("Project Summary"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Exported:", b.ExportedAt.Format("2006-01-02 15:04:05 MST"))
	row("Preview Root:", b.PreviewRoot)
	row("Version:", fmt.Sprintf("%d", b.Version))

	sb.WriteString("\n")
	sb.WriteString(heading("Counts"))
	row("Files:", fmt.Sprintf("%d", len(b.Files)))
	row("Directories:", fmt.Sprintf("%d", len(vfs.Dirs(b.Files, "/"))))
	row("Messages:", fmt.Sprintf("%d", len(b.Messages)))
	row("Saved URLs:", fmt.Sprintf("%d", len(b.SavedURLs)))
	return sb.String()
}

func (m *Model) renderFiles() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Files (%d)", len(m.paths))))
	if len(m.paths) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, p := range m.paths {
		content := m.bundle.Files[p]
		expanded := m.expandedFiles[i]

		toggle := dimStyle.Render("  ▶ ")
		if expanded {
			toggle = dimStyle.Render("  ▼ ")
		}
		meta := dimStyle.Render(fmt.Sprintf("%s, %d chars", langOrText(p), len(content)))
		row := fmt.Sprintf("%s%s  %s", toggle, p, meta)
		if i == m.fileCursor {
			// Pad to width so the highlight fills the line
			row = selectedRowStyle.Width(max(m.width-2, 1)).Render(row)
		}
		sb.WriteString(row + "\n")

		if expanded {
			sb.WriteString(renderBlock(content, m.width))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderConversation() string {
	msgs := m.bundle.Messages
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Conversation (%d)", len(msgs))))
	if len(msgs) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for n := range msgs {
		i := n
		if m.newestFirst {
			i = len(msgs) - 1 - n
		}
		sb.WriteString(renderMessage(i, msgs[i]))
	}
	return sb.String()
}

func renderMessage(i int, msg conversation.Message) string {
	var sb strings.Builder
	num := dimStyle.Render(fmt.Sprintf("  %3d.", i))
	sb.WriteString(num + "  " + roleBadge(msg.Role) + "  " + msg.Content + "\n")
	if msg.Explanation != "" {
		sb.WriteString(indent(msg.Explanation, "        ") + "\n")
	}
	for _, e := range msg.Code {
		sb.WriteString("        " + pathStyle.Render(e.Path) + dimStyle.Render(fmt.Sprintf("  %d chars", len(e.Content))) + "\n")
	}
	for _, s := range msg.Suggestions {
		sb.WriteString("    " + bullet(s))
	}
	sb.WriteString("\n")
	return sb.String()
}

func roleBadge(r conversation.Role) string {
	label := "[" + strings.ToUpper(string(r)) + "]"
	switch r {
	case conversation.RoleUser:
		return roleUserStyle.Render(label)
	case conversation.RoleModel:
		return roleModelStyle.Render(label)
	default:
		return roleSystemStyle.Render(label)
	}
}

func (m *Model) renderURLs() string {
	urls := m.bundle.SavedURLs
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Saved URLs (%d)", len(urls))))
	if len(urls) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, u := range urls {
		sb.WriteString(bullet(labelStyle.Render(u.Title) + "  " + dimStyle.Render(u.URL)))
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// renderBlock frames file content between two rules.
func renderBlock(content string, width int) string {
	var sb strings.Builder
	border := dimStyle.Render("  " + strings.Repeat("─", max(width-4, 1)))
	sb.WriteString(border + "\n")
	for _, line := range strings.Split(content, "\n") {
		sb.WriteString(dimStyle.Render("  "+line) + "\n")
	}
	sb.WriteString(border + "\n")
	return sb.String()
}

// renderDiff colorises a unified diff string.
func renderDiff(diff string) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		var rendered string
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			rendered = diffMetaStyle.Render("  " + line)
		case strings.HasPrefix(line, "+"):
			rendered = diffAddStyle.Render("  " + line)
		case strings.HasPrefix(line, "-"):
			rendered = diffDelStyle.Render("  " + line)
		case strings.HasPrefix(line, "@@"):
			rendered = diffMetaStyle.Render("  " + line)
		default:
			rendered = dimStyle.Render("  " + line)
		}
		sb.WriteString(rendered + "\n")
	}
	return sb.String()
}

func langOrText(p string) string {
	if l := vfs.Language(p); l != "" {
		return l
	}
	return "text"
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the viewer for the given bundle.
func Run(b *bundle.ProjectBundle, filename string) error {
	p := tea.NewProgram(New(b, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
