package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending goose migration found under dir in fsys.
// goose needs a *sql.DB, so one is opened on top of the pool and closed
// afterwards; the pool itself stays open.
func Migrate(ctx context.Context, pool *Pool, fsys fs.FS, dir string, logger *slog.Logger) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool.Pool), subFS(fsys, dir))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() { _ = provider.Close() }()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied", "version", r.Source.Version, "path", r.Source.Path, "duration_ms", r.Duration.Milliseconds())
	}
	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("database schema ready", "version", version)
	return nil
}

func subFS(fsys fs.FS, dir string) fs.FS {
	if dir == "" || dir == "." {
		return fsys
	}
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fsys
	}
	return sub
}
