package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/bundle"
	"github.com/fakeyudi/sandbox/internal/conversation"
	"github.com/fakeyudi/sandbox/internal/vfs"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

// offline satisfies conversation.Boundary for commands that never talk to
// the model.
type offline struct{}

var errOffline = errors.New("no model available in this command")

func (offline) Chat(context.Context, conversation.ChatRequest) ([]byte, error) {
	return nil, fmt.Errorf("%w: %w", conversation.ErrBoundary, errOffline)
}

func (offline) Hint(context.Context, []conversation.Turn) (string, error) { return "", errOffline }

func (offline) Refine(context.Context, conversation.RefineRequest) (string, error) {
	return "", fmt.Errorf("%w: %w", conversation.ErrBoundary, errOffline)
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export <dir>",
		Short: "Package a directory as a project bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if format == "" {
				format = a.cfg.DefaultFormat
			}
			renderer, ext, err := bundle.RendererFor(format)
			if err != nil {
				return err
			}

			ws, err := a.openWorkspace(cmd.Context(), workspace.Options{Boundary: offline{}, Initial: vfs.State{}})
			if err != nil {
				return err
			}
			defer ws.Close()

			res, warnings, err := ws.ImportDir(dir)
			if err != nil {
				return err
			}
			for _, w := range warnings {
				a.logger.Warn("export skipped a file", "reason", w)
			}

			if out == "" {
				name := filepath.Base(filepath.Clean(dir))
				if name == "." || name == string(filepath.Separator) {
					name = "project"
				}
				out = name + ext
			}
			if err := bundle.WriteFile(out, ws.Export(), renderer); err != nil {
				return err
			}
			cmd.Printf("Bundle written to %s (%d files)\n", out, len(res.Touched))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "bundle format: markdown or json (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default <dir>.md or <dir>.json)")
	return cmd
}
