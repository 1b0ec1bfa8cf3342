package conversation

import (
	"context"
	"errors"
)

var (
	// ErrAuth marks a boundary failure caused by a missing or rejected credential.
	ErrAuth = errors.New("AI credential missing or invalid")
	// ErrBoundary marks any other transport or provider failure.
	ErrBoundary = errors.New("AI request failed")
)

// ChatRequest is one chat exchange. History never contains system messages.
type ChatRequest struct {
	History           []Turn
	SystemInstruction string
}

// RefineRequest asks for a replacement of Code following Instruction.
type RefineRequest struct {
	Instruction string
	Language    string
	Code        string
}

// Boundary is the transport to the generative model. Implementations wrap
// their failures with ErrAuth or ErrBoundary and handle their own timeouts.
type Boundary interface {
	// Chat returns the raw structured JSON reply.
	Chat(ctx context.Context, req ChatRequest) ([]byte, error)
	// Hint returns a single short follow-up prompt.
	Hint(ctx context.Context, history []Turn) (string, error)
	// Refine returns replacement code with no surrounding prose or markup.
	Refine(ctx context.Context, req RefineRequest) (string, error)
}
