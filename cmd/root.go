package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/app"
	"github.com/JakeFAU/movie-ingest/internal/config"
	"github.com/JakeFAU/movie-ingest/internal/ingest"
)

type configKeyType string

const configKey configKeyType = "config"

// Application is the surface commands use. Tests swap in a fake through newApp.
type Application interface {
	Ingest(ctx context.Context, start ingest.Checkpoint) ingest.Report
	ResumePoint(ctx context.Context) (ingest.Checkpoint, error)
	Serve(ctx context.Context) error
	Close(ctx context.Context) error
	Logger() *zap.Logger
}

var newApp = func(ctx context.Context, cfg config.Config) (Application, error) {
	a, err := app.Build(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "movie-ingest",
		Short: "Harvests movie detail pages listed in sitemaps into a store.",
		Long: `movie-ingest walks a series of sitemap documents, fetches every movie
detail page they list, and inserts the normalized records into a store.
Runs checkpoint their position so an interrupted run can be resumed.`,
		SilenceUsage: true,

		// Config is loaded once here so every subcommand sees the same values.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the MOVIE_INGEST_ prefix")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

func configFrom(ctx context.Context) config.Config {
	cfg, _ := ctx.Value(configKey).(config.Config)
	return cfg
}

// buildApp constructs the application and returns a close func that logs
// shutdown errors on the app's own logger.
func buildApp(ctx context.Context) (Application, func(), error) {
	a, err := newApp(ctx, configFrom(ctx))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	closeFn := func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			a.Logger().Warn("close failed", zap.Error(err))
		}
	}
	return a, closeFn, nil
}

// Execute is the main entry point.
func Execute() {
	ctx := context.Background()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
