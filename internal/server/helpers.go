package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fakeyudi/sandbox/internal/bookmark"
	"github.com/fakeyudi/sandbox/internal/component"
	"github.com/fakeyudi/sandbox/internal/container"
	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/vfs"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

const maxBodyBytes = 4_000_000

func readJSON(r *http.Request, dst any) error {
	if r == nil || r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()

	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed reading request body: %v", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		b = []byte("{}")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("invalid json: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if w == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	b, err := json.Marshal(v)
	if err != nil {
		_, _ = w.Write([]byte(`{"ok":false,"error":"failed to marshal json"}`))
		return
	}
	_, _ = w.Write(append(b, '\n'))
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		structural *conversation.StructuralError
		tmpl       *container.TemplateError
	)
	switch {
	case errors.Is(err, conversation.ErrBusy), errors.Is(err, conversation.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrAuth), errors.Is(err, conversation.ErrBoundary), errors.As(err, &structural):
		return http.StatusBadGateway
	case errors.Is(err, vfs.ErrNotFound), errors.Is(err, workspace.ErrNotFound), errors.Is(err, bookmark.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrInvalidPath),
		errors.Is(err, container.ErrMissingBase),
		errors.As(err, &tmpl),
		errors.Is(err, bookmark.ErrInvalid),
		errors.Is(err, component.ErrInvalid),
		errors.Is(err, conversation.ErrEmptyInput),
		errors.Is(err, conversation.ErrNotAppliable):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError reports err with the envelope. Boundary failures carry the
// same text the conversation records as a system message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusBadGateway {
		msg = conversation.FailureText(err)
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
