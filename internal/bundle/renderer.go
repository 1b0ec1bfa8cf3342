package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fakeyudi/sandbox/internal/vfs"
)

const (
	versionSentinel = "<!-- sandbox-bundle-version: 1 -->"
	dataPrefix      = "<!-- sandbox-data: "
	dataSuffix      = " -->"
)

// BundleRenderer serializes a ProjectBundle to bytes.
type BundleRenderer interface {
	Render(bundle *ProjectBundle) ([]byte, error)
}

// JSONRenderer renders a ProjectBundle as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(bundle *ProjectBundle) ([]byte, error) {
	return json.MarshalIndent(bundle, "", "  ")
}

// MarkdownRenderer renders a ProjectBundle as human-readable Markdown with
// an embedded base64 JSON payload for lossless round-trip parsing.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(bundle *ProjectBundle) ([]byte, error) {
	jsonBytes, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder

	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Sandbox project (%s)\n\n", bundle.ExportedAt.Format("2006-01-02 15:04:05 MST"))

	// ## Summary
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Files: %d\n", len(bundle.Files))
	fmt.Fprintf(&sb, "- Messages: %d\n", len(bundle.Messages))
	root := bundle.PreviewRoot
	if root == "" {
		root = "/"
	}
	fmt.Fprintf(&sb, "- Preview root: `%s`\n", root)
	sb.WriteString("\n")

	// ## Files
	sb.WriteString("## Files\n\n")
	if len(bundle.Files) == 0 {
		sb.WriteString("_No files._\n")
	} else {
		sb.WriteString("| Path | Language | Size |\n")
		sb.WriteString("|------|----------|------|\n")
		for _, p := range bundle.Files.Paths() {
			lang := vfs.Language(p)
			if lang == "" {
				lang = "-"
			}
			fmt.Fprintf(&sb, "| %s | %s | %d chars |\n", p, lang, utf8.RuneCountInString(bundle.Files[p]))
		}
	}
	sb.WriteString("\n")

	// ## Conversation
	sb.WriteString("## Conversation\n\n")
	if len(bundle.Messages) == 0 {
		sb.WriteString("_No messages._\n")
	} else {
		for _, m := range bundle.Messages {
			fmt.Fprintf(&sb, "- **%s**: %s\n", m.Role, firstLine(m.Content))
			for _, e := range m.Code {
				fmt.Fprintf(&sb, "  - proposes `%s`\n", e.Path)
			}
		}
	}
	sb.WriteString("\n")

	// ## Saved URLs
	sb.WriteString("## Saved URLs\n\n")
	if len(bundle.SavedURLs) == 0 {
		sb.WriteString("_No saved URLs._\n")
	} else {
		for _, u := range bundle.SavedURLs {
			fmt.Fprintf(&sb, "- [%s](%s)\n", u.Title, u.URL)
		}
	}
	sb.WriteString("\n")

	return []byte(sb.String()), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
