package bundle

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakeyudi/sandbox/internal/atomicfile"
	"github.com/fakeyudi/sandbox/internal/bookmark"
	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

// Version is the bundle format written by this package.
const Version = 1

// ProjectBundle is the complete, portable representation of a sandbox
// project: its files, the conversation that shaped them and the saved URLs.
type ProjectBundle struct {
	Version     int                    `json:"version"`
	ExportedAt  time.Time              `json:"exported_at"`
	PreviewRoot string                 `json:"preview_root"`
	Files       vfs.State              `json:"files"`
	Messages    []conversation.Message `json:"messages"`
	SavedURLs   []bookmark.SavedURL    `json:"saved_urls"`
}

func (b *ProjectBundle) validate() error {
	if b.Version < 1 || b.Version > Version {
		return fmt.Errorf("unsupported bundle version %d", b.Version)
	}
	for p := range b.Files {
		if _, err := vfs.CleanPath(p); err != nil {
			return fmt.Errorf("bundle file %q: %w", p, err)
		}
	}
	return nil
}

// ParserFor picks a parser from the file extension: .json is JSON, anything
// else is treated as Markdown.
func ParserFor(path string) BundleParser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}

// RendererFor returns the renderer for format ("json", "markdown" or "md")
// together with the file extension it produces.
func RendererFor(format string) (BundleRenderer, string, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONRenderer{}, ".json", nil
	case "", "markdown", "md":
		return &MarkdownRenderer{}, ".md", nil
	}
	return nil, "", fmt.Errorf("unknown bundle format %q (want markdown or json)", format)
}

// WriteFile renders b with r and stores it at path atomically.
func WriteFile(path string, b *ProjectBundle, r BundleRenderer) error {
	data, err := r.Render(b)
	if err != nil {
		return fmt.Errorf("render bundle: %w", err)
	}
	return atomicfile.Write(path, data, 0o644)
}
