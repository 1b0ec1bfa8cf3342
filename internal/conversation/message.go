package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fakeyudi/sandbox/internal/edit"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// Message is one immutable entry in the conversation history. Code is only
// actionable on model messages and is never applied without an explicit call
// to Controller.Apply.
type Message struct {
	Role        Role        `json:"role"`
	Content     string      `json:"content"`
	Explanation string      `json:"explanation,omitempty"`
	Code        []edit.Edit `json:"code,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// Body is the long-form text of m: the explanation when present, otherwise
// the content.
func (m Message) Body() string {
	if m.Explanation != "" {
		return m.Explanation
	}
	return m.Content
}

func (m Message) clone() Message {
	m.Code = append([]edit.Edit(nil), m.Code...)
	m.Suggestions = append([]string(nil), m.Suggestions...)
	return m
}

// Turn is the role/text pair sent upstream.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Reply is a validated chat response.
type Reply struct {
	Text        string      `json:"text"`
	Explanation string      `json:"explanation"`
	Code        []edit.Edit `json:"code,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// StructuralError reports a boundary response that does not satisfy the
// reply contract.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "malformed AI response: " + e.Reason
}

// DecodeReply parses and validates a raw chat response. Text and explanation
// must be non-blank; every code entry needs a usable path. Blank suggestions
// are dropped. Unknown fields are ignored.
func DecodeReply(raw []byte) (Reply, error) {
	var wire struct {
		Text        *string `json:"text"`
		Explanation *string `json:"explanation"`
		Code        []struct {
			Path    *string `json:"path"`
			Content *string `json:"content"`
		} `json:"code"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Reply{}, &StructuralError{Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	switch {
	case wire.Text == nil:
		return Reply{}, &StructuralError{Reason: "missing text"}
	case strings.TrimSpace(*wire.Text) == "":
		return Reply{}, &StructuralError{Reason: "empty text"}
	case wire.Explanation == nil:
		return Reply{}, &StructuralError{Reason: "missing explanation"}
	case strings.TrimSpace(*wire.Explanation) == "":
		return Reply{}, &StructuralError{Reason: "empty explanation"}
	}

	r := Reply{Text: *wire.Text, Explanation: *wire.Explanation}
	for i, c := range wire.Code {
		if c.Path == nil || c.Content == nil {
			return Reply{}, &StructuralError{Reason: fmt.Sprintf("code entry %d needs both path and content", i)}
		}
		p, err := vfs.CleanPath(*c.Path)
		if err != nil {
			return Reply{}, &StructuralError{Reason: fmt.Sprintf("code entry %d: %v", i, err)}
		}
		r.Code = append(r.Code, edit.Edit{Path: p, Content: *c.Content})
	}
	for _, s := range wire.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			r.Suggestions = append(r.Suggestions, s)
		}
	}
	return r, nil
}
