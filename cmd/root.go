// Package cmd defines and implements the CLI commands for the simulator
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/download-simulator/internal/config"
	"github.com/JakeFAU/download-simulator/internal/logging"
)

// runtimeKeyType is the key for storing the Runtime in the context.
type runtimeKeyType struct{}

// Runtime bundles the configuration and logger shared by subcommands.
type Runtime struct {
	Config config.Config
	Logger *zap.Logger
}

// newRuntime is the runtime factory. It's a variable so tests can replace it.
var newRuntime = func(cfgFile string) (*Runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Runtime{Config: cfg, Logger: logger}, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Simulates concurrent downloads and reports their progress.",
		Long: `simulator runs a background worker that accepts download requests,
advances each one through a randomized progress simulation and streams every
download's progress to a single consumer.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Load config and logging before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cfgFile)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKeyType{}, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*Runtime, error) {
	if ctx == nil {
		return nil, errors.New("missing command context")
	}
	rt, ok := ctx.Value(runtimeKeyType{}).(*Runtime)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	return nil
}
