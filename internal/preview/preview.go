// Package preview tracks which directory of the project is rendered in the
// live preview and materializes that subset for serving.
package preview

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fakeyudi/sandbox/internal/atomicfile"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

// Root is the project root.
const Root = "/"

// Selector is a pointer to the previewed directory. It does not check that
// the directory exists.
type Selector struct {
	mu   sync.RWMutex
	root string
}

func NewSelector() *Selector {
	return &Selector{root: Root}
}

func (s *Selector) Root() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// Set points the preview at dir. Blank input resets to the project root.
func (s *Selector) Set(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = normalize(dir)
}

func (s *Selector) Reset() { s.Set(Root) }

// Contains reports whether p is inside the previewed directory.
func (s *Selector) Contains(p string) bool {
	return within(s.Root(), p)
}

func normalize(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || dir == Root {
		return Root
	}
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	return strings.TrimSuffix(dir, "/")
}

func within(root, p string) bool {
	if root == Root {
		return strings.HasPrefix(p, "/")
	}
	return strings.HasPrefix(p, root+"/")
}

// Files returns the files under root keyed relative to it, e.g.
// "/containers/c/index.html" under "/containers/c" becomes "index.html".
func Files(s vfs.State, root string) map[string]string {
	root = normalize(root)
	out := make(map[string]string)
	for p, c := range s {
		if within(root, p) {
			out[strings.TrimPrefix(strings.TrimPrefix(p, root), "/")] = c
		}
	}
	return out
}

// Mirror keeps an on-disk copy of the previewed files in Dir. It remembers
// what it last wrote and for which root, so its own writes can be told apart
// from edits made by other programs.
type Mirror struct {
	Dir string

	mu      sync.Mutex
	root    string
	written map[string]string
}

func NewMirror(dir string) *Mirror {
	return &Mirror{Dir: dir, root: Root, written: make(map[string]string)}
}

// Sync writes the files under root into Dir and removes files a previous Sync
// wrote that are no longer part of the preview. Files Sync never wrote are
// left alone.
func (m *Mirror) Sync(s vfs.State, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := Files(s, root)
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	var errs []error
	next := make(map[string]string, len(files))
	for _, rel := range rels {
		target := filepath.Join(m.Dir, filepath.FromSlash(rel))
		if err := atomicfile.Write(target, []byte(files[rel]), 0o644); err != nil {
			errs = append(errs, err)
			continue
		}
		next[rel] = files[rel]
	}
	for rel := range m.written {
		if _, ok := next[rel]; ok {
			continue
		}
		target := filepath.Join(m.Dir, filepath.FromSlash(rel))
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing stale %s: %w", rel, err))
		}
	}
	m.written = next
	m.root = normalize(root)
	return errors.Join(errs...)
}

// Written reports whether rel (slash separated, relative to Dir) was written
// by the last Sync.
func (m *Mirror) Written(rel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.written[rel]
	return ok
}

// External reads rel from Dir and, when its content differs from what Sync
// last wrote there, returns the project path it belongs to and the content.
// The file is read while Sync is excluded, so a write of Sync's own is never
// reported, whichever root it was made for.
func (m *Mirror) External(rel string) (target, content string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.Dir, filepath.FromSlash(rel)))
	if err != nil || !utf8.Valid(data) {
		return "", "", false
	}
	if last, wrote := m.written[rel]; wrote && last == string(data) {
		return "", "", false
	}
	return path.Join(m.root, rel), string(data), true
}
