package userflow

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-userflow/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLite opens a bun handle over SQLite. Use ":memory:" or
// "file::memory:?cache=shared" for throwaway databases.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to open sqlite database")
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenPostgres opens a bun handle over Postgres using the pgx driver.
func OpenPostgres(dsn string) (*bun.DB, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to parse postgres DSN")
	}
	sqldb := stdlib.OpenDB(*config)
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// RunMigrations applies the embedded schema migrations. The dialect is
// "postgres" or "sqlite3" depending on how the handle was opened.
func RunMigrations(ctx context.Context, db *bun.DB, dialect string) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to select migration dialect")
	}

	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to run migrations")
	}
	return nil
}
