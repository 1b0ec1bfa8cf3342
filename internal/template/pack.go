package template

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/sandbox/internal/vfs"
)

// Starter is a ready-made project loaded into the project root as one batch.
// Blockquote is the follow-up hint shown to the user after loading it.
type Starter struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Blockquote  string    `json:"blockquote"`
	Files       vfs.State `json:"-"`
}

// Pack is a set of registry entries and starters read from YAML.
type Pack struct {
	Templates []Template
	Starters  []Starter
}

type packFile struct {
	Templates []struct {
		Key         string            `yaml:"key"`
		Kind        Kind              `yaml:"kind"`
		Path        string            `yaml:"path"`
		Tags        []string          `yaml:"tags"`
		Description string            `yaml:"description"`
		Dir         string            `yaml:"dir"`
		Files       map[string]string `yaml:"files"`
	} `yaml:"templates"`
	Starters []struct {
		ID          string            `yaml:"id"`
		Name        string            `yaml:"name"`
		Description string            `yaml:"description"`
		Blockquote  string            `yaml:"blockquote"`
		Dir         string            `yaml:"dir"`
		Files       map[string]string `yaml:"files"`
	} `yaml:"starters"`
}

// PackError reports a template pack that could not be loaded.
type PackError struct {
	Path string
	Err  error
}

func (e *PackError) Error() string {
	return fmt.Sprintf("template pack %s: %v", e.Path, e.Err)
}

func (e *PackError) Unwrap() error { return e.Err }

// LoadPack reads a YAML pack from disk. Directories named by entries are
// resolved relative to the pack file.
func LoadPack(file string) (Pack, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Pack{}, &PackError{Path: file, Err: err}
	}
	p, err := ParsePack(data, os.DirFS(filepath.Dir(file)))
	if err != nil {
		return Pack{}, &PackError{Path: file, Err: err}
	}
	return p, nil
}

// ParsePack decodes a YAML pack. Entry files come from the inline files map
// and from the entry's dir inside fsys; inline files win.
func ParsePack(data []byte, fsys fs.FS) (Pack, error) {
	var pf packFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return Pack{}, err
	}

	var p Pack
	for _, t := range pf.Templates {
		files, err := collectFiles(fsys, t.Dir, t.Files)
		if err != nil {
			return Pack{}, fmt.Errorf("template %s: %w", t.Key, err)
		}
		p.Templates = append(p.Templates, Template{
			Key:         t.Key,
			Kind:        t.Kind,
			Path:        t.Path,
			Tags:        t.Tags,
			Description: t.Description,
			Files:       files,
		})
	}
	for _, s := range pf.Starters {
		files, err := collectFiles(fsys, s.Dir, s.Files)
		if err != nil {
			return Pack{}, fmt.Errorf("starter %s: %w", s.ID, err)
		}
		p.Starters = append(p.Starters, Starter{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Blockquote:  s.Blockquote,
			Files:       files,
		})
	}
	return p, nil
}

func collectFiles(fsys fs.FS, dir string, inline map[string]string) (vfs.State, error) {
	out := make(vfs.State)
	if dir != "" {
		if fsys == nil {
			return nil, fmt.Errorf("dir %q given but no filesystem to read it from", dir)
		}
		dir = path.Clean(dir)
		err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return err
			}
			if !utf8.Valid(data) {
				return fmt.Errorf("%s: not UTF-8 text", p)
			}
			out["/"+strings.TrimPrefix(p, dir+"/")] = string(data)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	for p, c := range inline {
		clean, err := vfs.CleanPath(p)
		if err != nil {
			return nil, err
		}
		out[clean] = c
	}
	return out, nil
}
