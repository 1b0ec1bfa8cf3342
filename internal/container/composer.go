// Package container synthesizes isolated sub-projects under /containers from
// registry templates and records their provenance in a handover log.
package container

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/sandbox/internal/template"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

// Dir is the directory every container root lives under.
const Dir = "/containers"

// ErrMissingBase is returned when a request names no base template.
var ErrMissingBase = errors.New("a base template is required")

// ErrUnknownTemplate is wrapped by TemplateError.
var ErrUnknownTemplate = errors.New("unknown template")

// TemplateError reports a selection key the registry does not know.
type TemplateError struct {
	Kind template.Kind
	Key  string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s template %q is not registered", e.Kind, e.Key)
}

func (e *TemplateError) Unwrap() error { return ErrUnknownTemplate }

// Selection names the templates a container is built from.
type Selection struct {
	Base      string   `json:"base"`
	UI        []string `json:"ui"`
	Datastore *string  `json:"datastore"`
}

// Request is the input to Compose. Operator and Prompt are recorded verbatim.
type Request struct {
	Operator    string            `json:"operator"`
	Prompt      string            `json:"prompt"`
	Selection   Selection         `json:"templates"`
	Environment map[string]string `json:"environment,omitempty"`
}

// Result is a composed container ready to be applied to the project.
type Result struct {
	ID    string      `json:"id"`
	Root  string      `json:"root"`
	Files vfs.State   `json:"files"`
	Log   HandoverLog `json:"log"`
}

// Composer builds containers from a registry. NewID and Now are replaceable
// so tests can pin them.
type Composer struct {
	Registry *template.Registry
	NewID    func() string
	Now      func() time.Time
}

// NewComposer returns a Composer drawing random ids and wall-clock UTC times.
func NewComposer(reg *template.Registry) *Composer {
	return &Composer{
		Registry: reg,
		NewID:    uuid.NewString,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Compose resolves every key in req.Selection, then copies the base template
// under a fresh root and merges the UI fragments in the order given, followed
// by the datastore fragment. Nothing is produced when any key is unknown.
func (c *Composer) Compose(req Request) (Result, error) {
	sel := req.Selection
	if strings.TrimSpace(sel.Base) == "" {
		return Result{}, ErrMissingBase
	}

	base, ok := c.Registry.Lookup(template.KindBase, sel.Base)
	if !ok {
		return Result{}, &TemplateError{Kind: template.KindBase, Key: sel.Base}
	}
	var fragments []template.Template
	for _, key := range sel.UI {
		t, ok := c.Registry.Lookup(template.KindUI, key)
		if !ok {
			return Result{}, &TemplateError{Kind: template.KindUI, Key: key}
		}
		fragments = append(fragments, t)
	}
	if sel.Datastore != nil {
		t, ok := c.Registry.Lookup(template.KindDatastore, *sel.Datastore)
		if !ok {
			return Result{}, &TemplateError{Kind: template.KindDatastore, Key: *sel.Datastore}
		}
		fragments = append(fragments, t)
	}

	id := "container_" + c.NewID()
	root := Dir + "/" + id

	files := make(vfs.State)
	for p, content := range base.Files {
		files[root+p] = content
	}
	for _, frag := range fragments {
		for _, p := range frag.Files.Paths() {
			target := root + p
			existing, exists := files[target]
			if exists && isHTML(p) {
				files[target] = MergeFragment(existing, frag.Files[p])
				continue
			}
			files[target] = frag.Files[p]
		}
	}

	log := newHandoverLog(id, req, c.Now())
	data, err := log.Encode()
	if err != nil {
		return Result{}, err
	}
	files[root+"/"+HandoverFile] = string(data)

	return Result{ID: id, Root: root, Files: files, Log: log}, nil
}

// MergeFragment injects incoming right before the first </head> of existing.
// Without a </head> the fragment is appended on a new line.
func MergeFragment(existing, incoming string) string {
	if strings.Contains(existing, "</head>") {
		return strings.Replace(existing, "</head>", "  "+incoming+"\n</head>", 1)
	}
	return existing + "\n" + incoming
}

func isHTML(p string) bool {
	return strings.HasSuffix(p, ".html")
}
