package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/atomicfile"
	"github.com/fakeyudi/sandbox/internal/container"
)

func newComposeCmd(a *app) *cobra.Command {
	var (
		base      string
		ui        []string
		datastore string
		env       map[string]string
		prompt    string
		operator  string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose a container from templates",
		Long: "Compose merges a base template with UI templates, in the order given, and\n" +
			"writes the container files (including handover.json) to --out. Without\n" +
			"--out the composed container is printed as JSON.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			if operator == "" {
				operator = a.cfg.Operator
			}
			req := container.Request{
				Operator:    operator,
				Prompt:      prompt,
				Selection:   container.Selection{Base: base, UI: ui},
				Environment: env,
			}
			if datastore != "" {
				req.Selection.Datastore = &datastore
			}

			res, err := container.NewComposer(reg).Compose(req)
			if err != nil {
				return err
			}
			a.logger.Debug("container composed", "root", res.Root, "files", len(res.Files))

			if out == "" {
				data, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			for _, p := range res.Files.Paths() {
				rel := strings.TrimPrefix(p, res.Root+"/")
				dst := filepath.Join(out, filepath.FromSlash(rel))
				if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
					return err
				}
				if err := atomicfile.Write(dst, []byte(res.Files[p]), 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", dst, err)
				}
			}
			cmd.Printf("Container %s written to %s (%d files)\n", res.ID, out, len(res.Files))
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "base template key (required)")
	cmd.Flags().StringSliceVar(&ui, "ui", nil, "UI template keys, merged in order")
	cmd.Flags().StringVar(&datastore, "datastore", "", "datastore template key")
	cmd.Flags().StringToStringVar(&env, "env", nil, "environment entries recorded in the handover log (K=V)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt recorded in the handover log")
	cmd.Flags().StringVar(&operator, "operator", "", "operator recorded in the handover log (default from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "directory to write the container files into")
	return cmd
}
