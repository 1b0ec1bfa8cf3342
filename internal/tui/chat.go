package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

const inputHeight = 3

type replyMsg struct {
	msg conversation.Message
	err error
}

type hintMsg string

// Chat is the interactive conversation view over a workspace. Replies are
// never applied until the user asks for it.
type Chat struct {
	ctx context.Context
	ws  *workspace.Workspace

	input   textarea.Model
	vp      viewport.Model
	spin    spinner.Model
	render  func(string) string
	width   int
	height  int
	ready   bool
	waiting bool
	status  string
	// review holds the rendered diff of the latest proposal, if requested.
	review string
}

// NewChat returns a chat model bound to ws.
func NewChat(ctx context.Context, ws *workspace.Workspace) Chat {
	ta := textarea.New()
	ta.Placeholder = "Describe a change…"
	ta.ShowLineNumbers = false
	ta.SetHeight(inputHeight)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Chat{
		ctx:    ctx,
		ws:     ws,
		input:  ta,
		spin:   sp,
		render: markdownRenderer(80),
		status: "enter send  ctrl+a apply  ctrl+r review  ctrl+z/ctrl+y undo/redo  ctrl+t hint  esc quit",
	}
}

// markdownRenderer renders model explanations with glamour, falling back to
// the raw text when rendering fails.
func markdownRenderer(width int) func(string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width, 20)),
	)
	if err != nil {
		return func(s string) string { return s }
	}
	return func(s string) string {
		out, err := r.Render(s)
		if err != nil {
			return s
		}
		return strings.Trim(out, "\n")
	}
}

func (c Chat) Init() tea.Cmd { return textarea.Blink }

func (c Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width, c.height = msg.Width, msg.Height
		c.input.SetWidth(msg.Width)
		vpHeight := max(msg.Height-inputHeight-2, 1)
		if !c.ready {
			c.vp = viewport.New(msg.Width, vpHeight)
			c.ready = true
		} else {
			c.vp.Width, c.vp.Height = msg.Width, vpHeight
		}
		c.render = markdownRenderer(msg.Width - 8)
		c.refresh()
		return c, nil

	case replyMsg:
		if errors.Is(msg.err, conversation.ErrDiscarded) {
			return c, nil
		}
		c.waiting = false
		switch {
		case msg.err != nil:
			c.status = conversation.FailureText(msg.err)
		case len(msg.msg.Code) > 0:
			c.status = fmt.Sprintf("%d file(s) proposed, ctrl+r to review, ctrl+a to apply", len(msg.msg.Code))
		default:
			c.status = "reply received"
		}
		c.review = ""
		c.refresh()
		return c, nil

	case hintMsg:
		if msg == "" {
			c.status = "no suggestion available"
			return c, nil
		}
		c.input.SetValue(string(msg))
		c.status = "suggestion loaded, enter to send"
		return c, nil

	case spinner.TickMsg:
		if !c.waiting {
			return c, nil
		}
		var cmd tea.Cmd
		c.spin, cmd = c.spin.Update(msg)
		return c, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			return c, tea.Quit
		case "enter":
			return c.send()
		case "ctrl+a":
			c.applyLatest()
			return c, nil
		case "ctrl+r":
			c.reviewLatest()
			return c, nil
		case "ctrl+z":
			if _, ok := c.ws.Engine.Undo(); ok {
				c.status = "undone"
			} else {
				c.status = "nothing to undo"
			}
			return c, nil
		case "ctrl+y":
			if _, ok := c.ws.Engine.Redo(); ok {
				c.status = "redone"
			} else {
				c.status = "nothing to redo"
			}
			return c, nil
		case "ctrl+t":
			c.status = "asking for a suggestion…"
			return c, c.hint()
		case "ctrl+d":
			if c.ws.Chat.Discard() {
				c.waiting = false
				c.status = "request discarded"
			}
			return c, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			c.vp, cmd = c.vp.Update(msg)
			return c, cmd
		}
	}

	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return c, cmd
}

func (c Chat) send() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(c.input.Value())
	if text == "" || c.waiting {
		return c, nil
	}
	c.input.Reset()
	c.waiting = true
	c.status = "thinking…"
	c.review = ""
	c.refresh()
	return c, tea.Batch(c.submit(text), c.spin.Tick)
}

func (c Chat) submit(text string) tea.Cmd {
	ctx, ws := c.ctx, c.ws
	return func() tea.Msg {
		msg, err := ws.Chat.Submit(ctx, text)
		return replyMsg{msg: msg, err: err}
	}
}

func (c Chat) hint() tea.Cmd {
	ctx, ws := c.ctx, c.ws
	return func() tea.Msg { return hintMsg(ws.Chat.Hint(ctx)) }
}

func (c *Chat) applyLatest() {
	idx, ok := c.ws.Chat.LatestAppliable()
	if !ok {
		c.status = "nothing to apply"
		return
	}
	res, err := c.ws.Chat.Apply(idx)
	switch {
	case err != nil:
		c.status = "apply failed: " + err.Error()
	case res.NoOp:
		c.status = "already applied"
	default:
		c.status = fmt.Sprintf("applied %d file(s), ctrl+z to undo", len(res.Touched))
	}
	c.review = ""
	c.refresh()
}

func (c *Chat) reviewLatest() {
	idx, ok := c.ws.Chat.LatestAppliable()
	if !ok {
		c.status = "nothing to review"
		return
	}
	diffs, err := c.ws.ReviewMessage(idx)
	if err != nil {
		c.status = "review failed: " + err.Error()
		return
	}
	var sb strings.Builder
	for _, d := range diffs {
		sb.WriteString("  " + pathStyle.Render(d.Path) + "  " + dimStyle.Render(string(d.Status)) + "\n")
		if d.Diff != "" {
			sb.WriteString(renderDiff(d.Diff))
		}
	}
	c.review = sb.String()
	c.status = fmt.Sprintf("reviewing message %d", idx)
	c.refresh()
}

func (c *Chat) refresh() {
	if !c.ready {
		return
	}
	c.vp.SetContent(c.transcript())
	c.vp.GotoBottom()
}

func (c *Chat) transcript() string {
	history := c.ws.Chat.History()
	var sb strings.Builder
	if len(history) == 0 {
		sb.WriteString(dimStyle.Render("  Ask for a change to the project.") + "\n")
	}
	for i, m := range history {
		sb.WriteString(roleBadge(m.Role) + "  " + m.Content + "\n")
		if m.Role == conversation.RoleModel {
			if m.Explanation != "" {
				sb.WriteString(c.render(m.Explanation) + "\n")
			}
			for _, e := range m.Code {
				sb.WriteString("    " + pathStyle.Render(e.Path) + "\n")
			}
			for _, s := range m.Suggestions {
				sb.WriteString(bullet(s))
			}
		}
		if i < len(history)-1 {
			sb.WriteString("\n")
		}
	}
	if c.review != "" {
		sb.WriteString(heading("Review"))
		sb.WriteString(c.review)
	}
	return sb.String()
}

func (c Chat) View() string {
	if !c.ready {
		return "Loading…"
	}
	title := titleStyle.Width(c.width).Render("  sandbox  preview " + c.ws.Preview.Root())
	status := c.status
	if c.waiting {
		status = c.spin.View() + " " + status
	}
	bar := statusBarStyle.Width(c.width).Render(status)
	return lipgloss.JoinVertical(lipgloss.Left, title, c.vp.View(), bar, c.input.View())
}

// RunChat starts the interactive chat over ws.
func RunChat(ctx context.Context, ws *workspace.Workspace) error {
	p := tea.NewProgram(NewChat(ctx, ws), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
