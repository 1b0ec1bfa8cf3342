package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/bundle"
	"github.com/fakeyudi/sandbox/internal/server"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		load      string
		importDir string
		listen    string
		mirror    string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sandbox HTTP API and preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if listen == "" {
				listen = a.cfg.Listen
			}
			if mirror == "" {
				mirror = a.cfg.MirrorDir
			}

			ws, err := a.openWorkspace(ctx, workspace.Options{MirrorDir: mirror})
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
					return fmt.Errorf("loading %s: %w", load, err)
				}
				a.logger.Info("bundle loaded", "file", load, "files", len(b.Files))
			}
			if importDir != "" {
				res, warnings, err := ws.ImportDir(importDir)
				if err != nil {
					return fmt.Errorf("importing %s: %w", importDir, err)
				}
				for _, w := range warnings {
					a.logger.Warn("import skipped a file", "reason", w)
				}
				a.logger.Info("directory imported", "dir", importDir, "files", len(res.Touched))
			}
			if mirror != "" {
				go func() {
					if err := ws.WatchMirror(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.logger.Warn("mirror watch stopped", "dir", mirror, "error", err)
					}
				}()
			}

			srv := &http.Server{
				Addr:              listen,
				Handler:           server.Server{WS: ws, Logger: a.logger, DefaultFormat: a.cfg.DefaultFormat}.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			cmd.Printf("Serving sandbox on http://%s (preview at /preview/)\n", listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&load, "load", "", "project bundle to load at startup")
	cmd.Flags().StringVar(&importDir, "import", "", "directory whose text files seed the project")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	cmd.Flags().StringVar(&mirror, "mirror", "", "directory to mirror the previewed files into")
	return cmd
}

// readBundle parses a bundle file, picking the format from its extension.
func readBundle(path string) (*bundle.ProjectBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, err
	}
	return bundle.ParserFor(path).Parse(data)
}
