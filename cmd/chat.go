package cmd

import (
	"errors"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/logging"
	"github.com/fakeyudi/sandbox/internal/tui"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

func newChatCmd(a *app) *cobra.Command {
	var load string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the model about a project in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(os.Stdin.Fd()) {
				return errors.New("chat needs an interactive terminal")
			}
			// The TUI owns the terminal, so nothing may log to it.
			ws, err := a.openWorkspace(cmd.Context(), workspace.Options{Logger: logging.Discard()})
			if err != nil {
				return err
			}
			defer ws.Close()

			if load != "" {
				b, err := readBundle(load)
				if err != nil {
					return err
				}
				if _, err := ws.Import(b); err != nil {
					return err
				}
			}
			return tui.RunChat(cmd.Context(), ws)
		},
	}
	cmd.Flags().StringVar(&load, "load", "", "project bundle to continue from")
	return cmd
}
