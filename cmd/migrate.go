package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-ingest/internal/config"
	"github.com/JakeFAU/movie-ingest/internal/logging"
	"github.com/JakeFAU/movie-ingest/internal/storage/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down|status|version",
		Short:     "Manage the store schema.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd.Context())
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			db, dialect, err := openStoreDB(cfg.Store)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Warn("close database failed", zap.Error(err))
				}
			}()

			m, err := migrations.New(db, dialect, logger.Named("migrate"))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "up":
				if err := m.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Migrations completed successfully")
			case "down":
				if err := m.Down(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "Migration rolled back successfully")
			case "status":
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tAPPLIED\tFILE")
				for _, s := range statuses {
					fmt.Fprintf(tw, "%d\t%t\t%s\n", s.Version, s.Applied, s.Path)
				}
				if err := tw.Flush(); err != nil {
					return fmt.Errorf("write status: %w", err)
				}
			case "version":
				v, err := m.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Database version: %d\n", v)
			default:
				return fmt.Errorf("unknown migrate command %q (want up, down, status or version)", args[0])
			}
			return nil
		},
	}
}

func openStoreDB(store config.StoreConfig) (*sql.DB, string, error) {
	switch store.Driver {
	case config.DriverPostgres:
		db, err := migrations.Open(migrations.Postgres, store.DSN)
		return db, migrations.Postgres, err
	case config.DriverSQLite:
		if dir := filepath.Dir(store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", fmt.Errorf("create data directory: %w", err)
			}
		}
		db, err := migrations.Open(migrations.SQLite, store.Path)
		return db, migrations.SQLite, err
	default:
		return nil, "", fmt.Errorf("store.driver %q has no schema to migrate", store.Driver)
	}
}
