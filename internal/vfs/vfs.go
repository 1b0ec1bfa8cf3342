// Package vfs holds the in-memory project: a flat mapping from absolute path to
// file content. Directories are never stored; they are derived from path
// prefixes when a listing needs them.
//
// FileSystem has no internal locking. Mutation is funnelled through the edit
// engine, which serializes writers and readers.
package vfs

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ErrNotFound is returned by Read when no file exists at the path.
var ErrNotFound = errors.New("file not found")

// ErrInvalidPath is returned when a path cannot name a file in the project.
var ErrInvalidPath = errors.New("invalid path")

// State is a snapshot of the project: absolute path -> UTF-8 content.
type State map[string]string

// Clone returns a copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for p, c := range s {
		out[p] = c
	}
	return out
}

// Paths returns the keys of s in lexicographic order.
func (s State) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FileSystem is the single owning store for all project text.
type FileSystem struct {
	files State
}

// New returns a FileSystem seeded with a copy of initial.
func New(initial State) (*FileSystem, error) {
	fs := &FileSystem{files: make(State, len(initial))}
	for p, c := range initial {
		if err := fs.Write(p, c); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Read returns the content stored at p.
func (fs *FileSystem) Read(p string) (string, error) {
	clean, err := CleanPath(p)
	if err != nil {
		return "", err
	}
	content, ok := fs.files[clean]
	if !ok {
		return "", fmt.Errorf("%s: %w", clean, ErrNotFound)
	}
	return content, nil
}

// Write creates or fully replaces the file at p.
func (fs *FileSystem) Write(p, content string) error {
	clean, err := CleanPath(p)
	if err != nil {
		return err
	}
	fs.files[clean] = content
	return nil
}

// Remove deletes the file at p. Removing an absent file is not an error.
func (fs *FileSystem) Remove(p string) {
	clean, err := CleanPath(p)
	if err != nil {
		return
	}
	delete(fs.files, clean)
}

// Has reports whether a file exists at p.
func (fs *FileSystem) Has(p string) bool {
	clean, err := CleanPath(p)
	if err != nil {
		return false
	}
	_, ok := fs.files[clean]
	return ok
}

// List returns every path starting with prefix, sorted. An empty prefix lists
// the whole project.
func (fs *FileSystem) List(prefix string) []string {
	var out []string
	for p := range fs.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the current mapping.
func (fs *FileSystem) Snapshot() State {
	return fs.files.Clone()
}

// Len returns the number of files.
func (fs *FileSystem) Len() int {
	return len(fs.files)
}

// CleanPath normalizes p into the canonical absolute form used as a key.
// A missing leading slash is added; empty paths, directory paths and paths
// escaping the root are rejected.
func CleanPath(p string) (string, error) {
	raw := strings.TrimSpace(p)
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasSuffix(raw, "/") {
		return "", fmt.Errorf("%w: %q names a directory", ErrInvalidPath, p)
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes the project root", ErrInvalidPath, p)
		}
	}
	clean := path.Clean(raw)
	if clean == "/" {
		return "", fmt.Errorf("%w: %q names the root", ErrInvalidPath, p)
	}
	return clean, nil
}

// Dirs returns the directories directly below prefix, derived from file paths.
// prefix must be "/" or an absolute directory path.
func Dirs(s State, prefix string) []string {
	base := strings.TrimSuffix(prefix, "/") + "/"
	seen := make(map[string]bool)
	for p := range s {
		if !strings.HasPrefix(p, base) {
			continue
		}
		rest := p[len(base):]
		if i := strings.Index(rest, "/"); i > 0 {
			seen[base+rest[:i]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Under returns the files below root. Keys stay absolute.
func Under(s State, root string) State {
	if root == "" || root == "/" {
		return s.Clone()
	}
	base := strings.TrimSuffix(root, "/") + "/"
	out := make(State)
	for p, c := range s {
		if strings.HasPrefix(p, base) {
			out[p] = c
		}
	}
	return out
}

// Language returns the extension used as a code fence tag for p.
func Language(p string) string {
	i := strings.LastIndex(p, ".")
	if i < 0 || i < strings.LastIndex(p, "/") {
		return ""
	}
	return p[i+1:]
}
