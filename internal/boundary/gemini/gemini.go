// Package gemini implements the conversation boundary on top of the Gemini
// API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/fakeyudi/sandbox/internal/conversation"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

const hintInstruction = `You are a helpful AI assistant. The user is in a web development sandbox. Based on the last few messages of the conversation, suggest one single, concise, and practical next step for the user.
- The suggestion should be a prompt the user can give to an AI.
- Return ONLY the suggested prompt text.
- Do NOT include any preamble, explanation, or markdown formatting.
- Be creative and helpful. For example, if the user just added a button, suggest styling it or adding a click handler.
- Keep the suggestion under 15 words.`

const refineInstruction = `You are a world-class software engineer. Your task is to modify the user's code based on their instruction.
You MUST only return the complete, raw code for the specified language.
Do NOT include any markdown formatting like ` + "```%s or ```" + `.
Do NOT include any explanations, comments about your changes, or any other text that is not valid code.
Your output will be directly placed into a code editor, so it must be perfect.
`

// Config configures a Client.
type Config struct {
	APIKey string
	Model  string
	// Timeout bounds each request; zero means no limit beyond ctx.
	Timeout time.Duration
	// BaseURL and HTTPClient override the transport, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// Client satisfies conversation.Boundary.
type Client struct {
	models  *genai.Models
	model   string
	timeout time.Duration
}

var _ conversation.Boundary = (*Client)(nil)

// New returns a Client. A missing API key is not an error here: every call
// then fails with conversation.ErrAuth so the conversation stays usable.
func New(ctx context.Context, cfg Config) (*Client, error) {
	c := &Client{model: cfg.Model, timeout: cfg.Timeout}
	if c.model == "" {
		c.model = DefaultModel
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	c.models = client.Models
	return c, nil
}

func replySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"text": {
				Type:        genai.TypeString,
				Description: "A brief, friendly, conversational reply to the user. Keep it short.",
			},
			"explanation": {
				Type:        genai.TypeString,
				Description: "A detailed explanation of any code changes, including what was done, why it was done, and suggestions for the user's next steps. Use markdown for formatting (e.g., lists, bold text).",
			},
			"code": {
				Type:        genai.TypeArray,
				Description: "An array of objects, where each object has a 'path' and 'content' key. Represents all files modified by the agent.",
				Nullable:    genai.Ptr(true),
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"path":    {Type: genai.TypeString},
						"content": {Type: genai.TypeString},
					},
					Required: []string{"path", "content"},
				},
			},
			"suggestions": {
				Type:        genai.TypeArray,
				Description: "An array of 3-4 short, practical, and creative next-step suggestions for the user to try. Each suggestion should be a prompt the user can send.",
				Nullable:    genai.Ptr(true),
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"text", "explanation"},
	}
}

func contents(turns []conversation.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := genai.Role(genai.RoleUser)
		if t.Role == conversation.RoleModel {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(t.Text, role))
	}
	return out
}

// Chat sends the conversation with a JSON response schema and returns the
// raw JSON text.
func (c *Client) Chat(ctx context.Context, req conversation.ChatRequest) ([]byte, error) {
	text, err := c.generate(ctx, contents(req.History), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    replySchema(),
	})
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimSpace(text)), nil
}

// Hint asks for a single-line follow-up prompt.
func (c *Client) Hint(ctx context.Context, history []conversation.Turn) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	text, err := c.generate(ctx, contents(history), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(hintInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.8),
		StopSequences:     []string{"\n"},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Refine asks for replacement code only.
func (c *Client) Refine(ctx context.Context, req conversation.RefineRequest) (string, error) {
	prompt := fmt.Sprintf("Instruction: \"%s\"\n\nLanguage: %s\n\nCurrent Code:\n---\n%s\n---\n", req.Instruction, req.Language, req.Code)
	text, err := c.generate(ctx, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(fmt.Sprintf(refineInstruction, req.Language), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) generate(ctx context.Context, in []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if c.models == nil {
		return "", fmt.Errorf("%w: no Gemini API key configured", conversation.ErrAuth)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.models.GenerateContent(ctx, c.model, in, cfg)
	if err != nil {
		return "", classify(err)
	}
	return resp.Text(), nil
}

// classify maps provider errors onto the conversation error kinds.
func classify(err error) error {
	msg := err.Error()
	for _, marker := range []string{"API key", "API_KEY", "UNAUTHENTICATED", "PERMISSION_DENIED", "Error 401", "Error 403"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", conversation.ErrAuth, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out: %v", conversation.ErrBoundary, err)
	}
	return fmt.Errorf("%w: Gemini API request failed: %v", conversation.ErrBoundary, err)
}
