// Package conversation mediates between the user, the AI boundary and the
// project. It owns the message history and allows one chat exchange in flight
// at a time.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/fakeyudi/sandbox/internal/edit"
	"github.com/fakeyudi/sandbox/internal/logging"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

var (
	// ErrBusy is returned by Submit while another exchange is in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrDiscarded is returned to a Submit whose exchange was abandoned.
	ErrDiscarded = errors.New("request discarded")
	// ErrNotAppliable is returned by Apply for messages without code.
	ErrNotAppliable = errors.New("message has no appliable code")
	// ErrEmptyInput is returned for blank user input.
	ErrEmptyInput = errors.New("message is empty")
)

// AuthMessage is the system message shown when the credential is rejected.
const AuthMessage = "Invalid API key. Please ensure it is correctly configured in the environment."

// HintWindow is how many trailing messages a hint request looks at.
const HintWindow = 4

// State is the controller's exchange state.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Project is the view of the edit engine the controller needs.
type Project interface {
	Snapshot() vfs.State
	Read(path string) (string, error)
	Apply(src edit.Source, edits []edit.Edit) (edit.Result, error)
}

// Options configures a Controller. Boundary and Project are required.
type Options struct {
	Boundary Boundary
	Project  Project
	// PreviewRoot reports the directory being previewed; nil means "/".
	PreviewRoot func() string
	// Supervisor overrides DefaultSupervisor.
	Supervisor string
	Logger     *slog.Logger
}

// Controller holds the conversation history and drives exchanges with the
// boundary. It never mutates the project on its own; code reaches the
// project only through Apply and SetOrchestrator.
type Controller struct {
	boundary    Boundary
	project     Project
	previewRoot func() string
	supervisor  string
	logger      *slog.Logger

	mu      sync.Mutex
	history []Message
	state   State
	// gen identifies the current exchange; bumping it orphans the one in flight.
	gen uint64
}

// New returns a Controller.
func New(opts Options) *Controller {
	c := &Controller{
		boundary:    opts.Boundary,
		project:     opts.Project,
		previewRoot: opts.PreviewRoot,
		supervisor:  opts.Supervisor,
		logger:      opts.Logger,
	}
	if c.previewRoot == nil {
		c.previewRoot = func() string { return "/" }
	}
	if c.supervisor == "" {
		c.supervisor = DefaultSupervisor
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// Submit sends text to the boundary together with the full project context.
// On success the model's reply is appended and returned; its code is not
// applied. Failures append a system message and return the classified error
// (ErrAuth, ErrBoundary or *StructuralError).
func (c *Controller) Submit(ctx context.Context, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.state == StateAwaitingResponse {
		c.mu.Unlock()
		return Message{}, ErrBusy
	}
	c.history = append(c.history, Message{Role: RoleUser, Content: text})
	c.state = StateAwaitingResponse
	c.gen++
	gen := c.gen
	turns := upstream(c.history)
	c.mu.Unlock()

	req := ChatRequest{History: turns, SystemInstruction: c.systemInstruction()}
	raw, err := c.boundary.Chat(ctx, req)
	var reply Reply
	if err == nil {
		reply, err = DecodeReply(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug("dropping reply to discarded request")
		return Message{}, ErrDiscarded
	}
	if err != nil {
		c.logger.Warn("chat exchange failed", "error", err)
		c.history = append(c.history, Message{Role: RoleSystem, Content: FailureText(err)})
		c.state = StateError
		return Message{}, err
	}

	msg := Message{
		Role:        RoleModel,
		Content:     reply.Text,
		Explanation: reply.Explanation,
		Code:        reply.Code,
		Suggestions: reply.Suggestions,
	}
	c.history = append(c.history, msg)
	c.state = StateIdle
	return msg.clone(), nil
}

func (c *Controller) systemInstruction() string {
	root := c.previewRoot()
	return SystemInstruction(c.supervisor, c.Orchestrator(), vfs.FormatContext(c.project.Snapshot(), root))
}

// FailureText is the system message recorded for a failed exchange.
func FailureText(err error) string {
	var se *StructuralError
	switch {
	case errors.Is(err, ErrAuth):
		return AuthMessage
	case errors.As(err, &se):
		return "The AI returned a response that could not be used (" + se.Reason + "). Please try again."
	default:
		return "Sorry, the request failed: " + err.Error()
	}
}

// upstream converts history into the turns sent to the boundary, leaving out
// system messages.
func upstream(history []Message) []Turn {
	var out []Turn
	for _, m := range history {
		if m.Role == RoleUser || m.Role == RoleModel {
			out = append(out, Turn{Role: m.Role, Text: m.Content})
		}
	}
	return out
}

// Discard abandons the exchange in flight, if any. Its reply is dropped when
// it arrives. It reports whether there was anything to discard.
func (c *Controller) Discard() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingResponse {
		return false
	}
	c.gen++
	c.state = StateIdle
	return true
}

// Apply commits the code of the message at index through the edit engine.
func (c *Controller) Apply(index int) (edit.Result, error) {
	c.mu.Lock()
	if index < 0 || index >= len(c.history) {
		c.mu.Unlock()
		return edit.Result{}, fmt.Errorf("message %d: %w", index, ErrNotAppliable)
	}
	m := c.history[index]
	c.mu.Unlock()

	if m.Role != RoleModel || len(m.Code) == 0 {
		return edit.Result{}, fmt.Errorf("message %d: %w", index, ErrNotAppliable)
	}
	return c.project.Apply(edit.SourceAI, m.Code)
}

// LatestAppliable returns the index of the newest model message carrying code.
func (c *Controller) LatestAppliable() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].Role == RoleModel && len(c.history[i].Code) > 0 {
			return i, true
		}
	}
	return 0, false
}

// Hint asks for one short follow-up prompt based on the trailing messages.
// It returns "" on any failure.
func (c *Controller) Hint(ctx context.Context) string {
	c.mu.Lock()
	start := max(0, len(c.history)-HintWindow)
	turns := upstream(c.history[start:])
	c.mu.Unlock()

	if len(turns) == 0 {
		return ""
	}
	hint, err := c.boundary.Hint(ctx, turns)
	if err != nil {
		c.logger.Debug("hint failed", "error", err)
		return ""
	}
	return strings.TrimSpace(hint)
}

// Refine asks the boundary to rewrite code following instruction. Output
// wrapped in a markdown fence violates the contract and is rejected.
func (c *Controller) Refine(ctx context.Context, code, language, instruction string) (string, error) {
	if strings.TrimSpace(instruction) == "" {
		return "", ErrEmptyInput
	}
	out, err := c.boundary.Refine(ctx, RefineRequest{Instruction: instruction, Language: language, Code: code})
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(strings.TrimSpace(out), "```") {
		return "", &StructuralError{Reason: "refined code is wrapped in a markdown fence"}
	}
	return out, nil
}

// Orchestrator returns the user-editable instructions stored in the project.
func (c *Controller) Orchestrator() string {
	text, err := c.project.Read(InstructionsPath)
	if err != nil {
		return DefaultOrchestrator
	}
	return text
}

// SetOrchestrator stores text as the project's instructions file.
func (c *Controller) SetOrchestrator(text string) (edit.Result, error) {
	return c.project.Apply(edit.SourceUI, []edit.Edit{{Path: InstructionsPath, Content: text}})
}

// Supervisor returns the fixed supervisor directives.
func (c *Controller) Supervisor() string { return c.supervisor }

// History returns a copy of the conversation.
func (c *Controller) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	for i, m := range c.history {
		out[i] = m.clone()
	}
	return out
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Restore replaces the history, e.g. when loading an exported project. Any
// exchange in flight is discarded.
func (c *Controller) Restore(history []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.state = StateIdle
	c.history = make([]Message, len(history))
	for i, m := range history {
		c.history[i] = m.clone()
	}
}

// Clear empties the history and discards any exchange in flight.
func (c *Controller) Clear() {
	c.Restore(nil)
}
