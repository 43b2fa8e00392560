// Package migrations applies the embedded schema with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	// Register the database/sql drivers the migrator opens.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed postgres/*.sql sqlite/*.sql
var embedMigrations embed.FS

// Supported dialects. They double as the store.driver config values.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Status describes one migration file and whether it has been applied.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

// Migrator runs goose migrations for one dialect.
type Migrator struct {
	provider *goose.Provider
	logger   *zap.Logger
}

// Open opens a database/sql handle for the dialect.
func Open(dialect, dsn string) (*sql.DB, error) {
	driver, err := driverName(dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	return db, nil
}

// New builds a Migrator over db using the embedded files for dialect.
func New(db *sql.DB, dialect string, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var gd goose.Dialect
	switch dialect {
	case Postgres:
		gd = goose.DialectPostgres
	case SQLite:
		gd = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	fsys, err := fs.Sub(embedMigrations, dialect)
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", dialect, err)
	}
	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return &Migrator{provider: provider, logger: logger}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, r := range results {
		m.logger.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("path", r.Source.Path),
			zap.Duration("duration", r.Duration),
		)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	if r != nil {
		m.logger.Info("migration rolled back", zap.Int64("version", r.Source.Version))
	}
	return nil
}

// Status lists every known migration in version order.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get database version: %w", err)
	}
	return v, nil
}

func driverName(dialect string) (string, error) {
	switch dialect {
	case Postgres:
		return "pgx", nil
	case SQLite:
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}
