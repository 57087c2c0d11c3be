package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/example/roombooking/internal/persistence"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Storage implements persistence.Store on top of a SQLite database file.
type Storage struct {
	pool   *ConnectionPool
	logger *slog.Logger
}

var _ persistence.Store = (*Storage)(nil)

// Open returns a Storage backed by the database file at path.
func Open(path string) (*Storage, error) {
	return OpenWithLogger(path, nil)
}

// OpenWithLogger returns a Storage that reports migration progress to logger.
func OpenWithLogger(path string, logger *slog.Logger) (*Storage, error) {
	pool, err := NewConnectionPool(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{pool: pool, logger: logger.With("component", "sqlite")}, nil
}

// Close releases the underlying connections.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies every pending schema migration.
func (s *Storage) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.pool.DB(), fsys)
	if err != nil {
		return fmt.Errorf("sqlite: create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	for _, result := range results {
		s.logger.InfoContext(ctx, "migration applied",
			"version", result.Source.Version,
			"duration", result.Duration,
		)
	}
	return nil
}
