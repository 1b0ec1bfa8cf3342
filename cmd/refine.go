package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/atomicfile"
	"github.com/fakeyudi/sandbox/internal/vfs"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

func newRefineCmd(a *app) *cobra.Command {
	var (
		instruction string
		language    string
		write       bool
	)
	cmd := &cobra.Command{
		Use:   "refine <file>",
		Short: "Rewrite a file following an instruction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if strings.TrimSpace(instruction) == "" {
				return errors.New("--instruction is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("file not found: %s", path)
				}
				return err
			}
			if language == "" {
				language = vfs.Language(path)
			}

			ws, err := a.openWorkspace(cmd.Context(), workspace.Options{Initial: vfs.State{}})
			if err != nil {
				return err
			}
			defer ws.Close()

			out, err := ws.Chat.Refine(cmd.Context(), string(data), language, instruction)
			if err != nil {
				return err
			}
			if !write {
				cmd.Print(out)
				if !strings.HasSuffix(out, "\n") {
					cmd.Println()
				}
				return nil
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if err := atomicfile.Write(path, []byte(out), info.Mode().Perm()); err != nil {
				return err
			}
			cmd.Printf("Refined %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&instruction, "instruction", "i", "", "what to change")
	cmd.Flags().StringVar(&language, "language", "", "language of the file (default from its extension)")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "overwrite the file instead of printing the result")
	return cmd
}
