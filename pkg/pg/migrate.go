package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies goose migrations found under cfg.MigrationsPath inside fsys.
// Stores ship their schema embedded, so the binary needs no migration files on disk.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, fsys fs.FS, log migrationLogger) error {
	if cfg.MigrationsPath == "" {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationPathNotProvided)
	}
	if fsys == nil {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationsDirNotFound)
	}

	if _, err := fs.Stat(fsys, cfg.MigrationsPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errors.Join(ErrMigrationsDirNotFound, err)
		}
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{ctx: ctx, log: log})
	goose.SetTableName(cfg.MigrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := goose.UpContext(ctx, db, cfg.MigrationsPath); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	log.InfoContext(ctx, "database schema is up to date", "version", version)

	return nil
}

// migrationLogger is satisfied by *slog.Logger.
type migrationLogger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// gooseLogger routes goose output into the service log.
type gooseLogger struct {
	ctx context.Context
	log migrationLogger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.ErrorContext(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrations")
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.InfoContext(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrations")
}
