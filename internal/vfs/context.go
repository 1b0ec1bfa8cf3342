package vfs

import (
	"fmt"
	"strings"
)

// FormatContext renders the whole project as the context block handed to the
// AI boundary. Files are ordered by path so identical states always produce
// identical bytes.
func FormatContext(s State, previewRoot string) string {
	var sb strings.Builder

	sb.WriteString("Here is the current state of all files in the project. Use this as context for the user's request.\n")
	if previewRoot == "" || previewRoot == "/" {
		sb.WriteString("The user is currently previewing the root directory.\n")
	} else {
		fmt.Fprintf(&sb, "The user is currently previewing the project from the \"%s\" directory.\n", previewRoot)
	}

	for _, p := range s.Paths() {
		fmt.Fprintf(&sb, "\n---\nFile: %s\n```%s\n%s\n```\n", p, Language(p), s[p])
	}
	sb.WriteString("\n---\n")
	return sb.String()
}
