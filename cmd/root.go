package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/sandbox/internal/boundary/gemini"
	"github.com/fakeyudi/sandbox/internal/config"
	"github.com/fakeyudi/sandbox/internal/logging"
	"github.com/fakeyudi/sandbox/internal/template"
	"github.com/fakeyudi/sandbox/internal/workspace"
)

// app carries what PersistentPreRunE resolves for the subcommands.
type app struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.Defaults(), logger: logging.Discard()}
	var (
		logLevel      string
		projectConfig string
	)

	root := &cobra.Command{
		Use:           "sandbox",
		Short:         "AI-assisted web development sandbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(projectConfig)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&projectConfig, "config-project", "", "project config file (default "+config.ProjectFile+")")

	root.AddCommand(
		newServeCmd(a),
		newChatCmd(a),
		newComposeCmd(a),
		newTemplatesCmd(a),
		newRefineCmd(a),
		newExportCmd(a),
		newViewCmd(a),
	)
	return root
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// registry returns the built-in templates extended with the configured pack.
func (a *app) registry() (*template.Registry, error) {
	reg := template.Default()
	if a.cfg.TemplatePack == "" {
		return reg, nil
	}
	pack, err := template.LoadPack(a.cfg.TemplatePack)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("template pack loaded", "file", a.cfg.TemplatePack)
	return reg.Extend(pack)
}

// openWorkspace builds a workspace talking to Gemini. Options set by the
// caller win over configuration.
func (a *app) openWorkspace(ctx context.Context, opts workspace.Options) (*workspace.Workspace, error) {
	if opts.Registry == nil {
		reg, err := a.registry()
		if err != nil {
			return nil, err
		}
		opts.Registry = reg
	}
	if opts.Boundary == nil {
		client, err := gemini.New(ctx, gemini.Config{APIKey: a.cfg.APIKey(), Model: a.cfg.Model})
		if err != nil {
			return nil, err
		}
		opts.Boundary = client
	}
	if opts.Operator == "" {
		opts.Operator = a.cfg.Operator
	}
	if opts.IgnorePatterns == nil {
		opts.IgnorePatterns = a.cfg.IgnorePatterns
	}
	if opts.Logger == nil {
		opts.Logger = a.logger
	}
	return workspace.New(opts)
}
