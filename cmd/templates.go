package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/template"
)

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the available templates and starters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			for _, k := range template.Kinds {
				cmd.Printf("## %s\n", k)
				entries := reg.Entries(k)
				if len(entries) == 0 {
					cmd.Println("  (none)")
				}
				for _, t := range entries {
					cmd.Printf("  %-12s %s (%d files)\n", t.Key, t.Description, len(t.Files))
				}
				cmd.Println()
			}

			cmd.Println("## starters")
			starters := reg.Starters()
			if len(starters) == 0 {
				cmd.Println("  (none)")
			}
			for _, s := range starters {
				cmd.Printf("  %-12s %s\n", s.ID, s.Name)
			}
			return nil
		},
	}
}
