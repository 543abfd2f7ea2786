// Package cmd defines the CLI commands for the reportwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reportwatch/internal/app"
	"reportwatch/internal/config"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory, a variable so tests can swap in a
// prebuilt container.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. The app container is
// built after config loads and before any subcommand runs.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reportwatch",
		Short: "Turns raw alert messages into a deduplicated report catalog.",
		Long: `reportwatch ingests alert messages about newly published reports,
classifies each referenced article, resolves reposts back to their original
source, and appends every genuinely new report to a reviewable catalog.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
