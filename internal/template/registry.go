// Package template holds the catalog of reusable project fragments that the
// container composer draws from, plus the starter projects a user can load
// into the project root.
package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/fakeyudi/sandbox/internal/vfs"
)

// Kind groups registry entries.
type Kind string

const (
	KindBase      Kind = "base"
	KindUI        Kind = "ui"
	KindDatastore Kind = "datastore"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindBase, KindUI, KindDatastore}

func (k Kind) valid() bool {
	switch k {
	case KindBase, KindUI, KindDatastore:
		return true
	}
	return false
}

// ErrDuplicate is returned when a pack defines a key the registry already has.
var ErrDuplicate = errors.New("duplicate registry key")

// Template is one registry entry. Files are keyed by absolute path relative to
// the container root, e.g. "/index.html".
type Template struct {
	Key         string    `json:"key"`
	Kind        Kind      `json:"kind"`
	Path        string    `json:"path"`
	Tags        []string  `json:"tags"`
	Description string    `json:"description"`
	Files       vfs.State `json:"-"`
}

func (t Template) clone() Template {
	t.Tags = append([]string(nil), t.Tags...)
	t.Files = t.Files.Clone()
	return t
}

// Registry is immutable once built; Extend returns a new Registry.
type Registry struct {
	entries  map[Kind]map[string]Template
	starters []Starter
}

// New builds a Registry from p.
func New(p Pack) (*Registry, error) {
	r := &Registry{entries: make(map[Kind]map[string]Template)}
	for _, k := range Kinds {
		r.entries[k] = make(map[string]Template)
	}
	if err := r.add(p); err != nil {
		return nil, err
	}
	return r, nil
}

// Extend returns a copy of r with p's entries added. A key already present in
// r under the same kind, or a starter id already present, is an error.
func (r *Registry) Extend(p Pack) (*Registry, error) {
	out := &Registry{
		entries:  make(map[Kind]map[string]Template, len(r.entries)),
		starters: append([]Starter(nil), r.starters...),
	}
	for k, m := range r.entries {
		cp := make(map[string]Template, len(m))
		for key, t := range m {
			cp[key] = t
		}
		out.entries[k] = cp
	}
	if err := out.add(p); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Registry) add(p Pack) error {
	for _, t := range p.Templates {
		if !t.Kind.valid() {
			return fmt.Errorf("template %q: unknown kind %q", t.Key, t.Kind)
		}
		if t.Key == "" {
			return fmt.Errorf("template of kind %s: empty key", t.Kind)
		}
		if _, ok := r.entries[t.Kind][t.Key]; ok {
			return fmt.Errorf("%w: %s %s", ErrDuplicate, t.Kind, t.Key)
		}
		r.entries[t.Kind][t.Key] = t.clone()
	}
	for _, s := range p.Starters {
		if s.ID == "" {
			return fmt.Errorf("starter %q: empty id", s.Name)
		}
		if _, ok := r.Starter(s.ID); ok {
			return fmt.Errorf("%w: starter %s", ErrDuplicate, s.ID)
		}
		s.Files = s.Files.Clone()
		r.starters = append(r.starters, s)
	}
	return nil
}

// Lookup returns the entry for key under kind.
func (r *Registry) Lookup(kind Kind, key string) (Template, bool) {
	t, ok := r.entries[kind][key]
	if !ok {
		return Template{}, false
	}
	return t.clone(), true
}

// Keys returns the keys registered under kind, sorted.
func (r *Registry) Keys(kind Kind) []string {
	keys := make([]string, 0, len(r.entries[kind]))
	for k := range r.entries[kind] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns the templates registered under kind, sorted by key.
func (r *Registry) Entries(kind Kind) []Template {
	out := make([]Template, 0, len(r.entries[kind]))
	for _, k := range r.Keys(kind) {
		out = append(out, r.entries[kind][k].clone())
	}
	return out
}

// Starters returns the starter projects in registration order.
func (r *Registry) Starters() []Starter {
	out := make([]Starter, 0, len(r.starters))
	for _, s := range r.starters {
		s.Files = s.Files.Clone()
		out = append(out, s)
	}
	return out
}

// Starter returns the starter with the given id.
func (r *Registry) Starter(id string) (Starter, bool) {
	for _, s := range r.starters {
		if s.ID == id {
			s.Files = s.Files.Clone()
			return s, true
		}
	}
	return Starter{}, false
}

//go:embed builtin
var builtin embed.FS

var defaultRegistry = sync.OnceValue(func() *Registry {
	sub, err := fs.Sub(builtin, "builtin")
	if err != nil {
		panic(err)
	}
	data, err := fs.ReadFile(sub, "pack.yaml")
	if err != nil {
		panic(err)
	}
	p, err := ParsePack(data, sub)
	if err != nil {
		panic(fmt.Sprintf("template: built-in pack: %v", err))
	}
	r, err := New(p)
	if err != nil {
		panic(fmt.Sprintf("template: built-in pack: %v", err))
	}
	return r
})

// Default returns the built-in registry: REACT and VANILLA bases, the TAILWIND
// UI fragment, no datastores, and the AJAX starter projects.
func Default() *Registry {
	return defaultRegistry()
}
