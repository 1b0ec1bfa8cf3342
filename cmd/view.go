package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/bundle"
	"github.com/fakeyudi/sandbox/internal/tui"
	"github.com/fakeyudi/sandbox/internal/vfs"
)

func newViewCmd(a *app) *cobra.Command {
	var plainOutput bool
	cmd := &cobra.Command{
		Use:   "view <file>",
		Short: "View a project bundle file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			b, err := readBundle(path)
			if err != nil {
				return err
			}
			a.logger.Debug("bundle parsed", "file", path, "version", b.Version)

			if plainOutput {
				printBundle(cmd.OutOrStdout(), b)
				return nil
			}
			return tui.Run(b, path)
		},
	}
	cmd.Flags().BoolVar(&plainOutput, "plain", false, "plain text output instead of TUI")
	return cmd
}

// printBundle writes a plain-text summary of b to w.
func printBundle(w io.Writer, b *bundle.ProjectBundle) {
	fmt.Fprintln(w, "## Summary")
	fmt.Fprintf(w, "  Exported:      %s\n", b.ExportedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "  Preview root:  %s\n", b.PreviewRoot)
	fmt.Fprintf(w, "  Files:         %d\n", len(b.Files))
	fmt.Fprintf(w, "  Messages:      %d\n", len(b.Messages))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Files")
	if len(b.Files) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		for _, p := range b.Files.Paths() {
			lang := vfs.Language(p)
			if lang == "" {
				lang = "text"
			}
			fmt.Fprintf(w, "  %s  (%s, %d chars)\n", p, lang, len(b.Files[p]))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Conversation")
	if len(b.Messages) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		for i, m := range b.Messages {
			fmt.Fprintf(w, "  %d. [%s] %s\n", i, m.Role, m.Content)
			if m.Explanation != "" {
				fmt.Fprintln(w, indent(m.Explanation, "       "))
			}
			for _, e := range m.Code {
				fmt.Fprintf(w, "       -> %s\n", e.Path)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Saved URLs")
	if len(b.SavedURLs) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		for _, u := range b.SavedURLs {
			fmt.Fprintf(w, "  %s  %s\n", u.Title, u.URL)
		}
	}
	fmt.Fprintln(w)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}
