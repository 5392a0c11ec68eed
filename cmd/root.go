// Package cmd defines and implements the CLI commands for the chiripo executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/chiripo-news/internal/aggregator"
	"github.com/JakeFAU/chiripo-news/internal/config"
	"github.com/JakeFAU/chiripo-news/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what the subcommands drive. Tests swap in a fake through newApp.
type App interface {
	Run(ctx context.Context) error
	Close(ctx context.Context) error
	Refresh(ctx context.Context) (int, error)
	Seed(ctx context.Context, target int) (int, error)
	Status(ctx context.Context) (aggregator.Status, error)
	Logger() *zap.Logger
}

var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "chiripo",
		Short: "Japanese news site with AI explanations",
		Long: `chiripo harvests Japanese and international news feeds, has an AI
model explain each article in plain language with five persona opinions,
and serves the result as a web site.`,
		SilenceUsage: true,

		// Builds the application once the config flag is parsed and before the
		// subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			// serve closes the app itself on shutdown.
			if cmd.Name() == "serve" {
				return nil
			}
			if appInstance, err := resolveApp(cmd.Context()); err == nil {
				return appInstance.Close(cmd.Context())
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env and .env still apply")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "chiripo:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}
