package database

import (
	"database/sql"
	"embed"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// MigrateDB applies every pending embedded migration for dialect.
func MigrateDB(db *sql.DB, dialect string, lg *zap.Logger) error {
	var dir string
	switch dialect {
	case DialectPostgres:
		dir = "migrations/postgres"
	case DialectSQLite:
		dir = "migrations/sqlite"
	default:
		return errors.Errorf("unsupported dialect %q", dialect)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(NewLogger(lg))
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if err := goose.Up(db, dir); err != nil {
		return errors.Wrap(err, "migrate")
	}
	return nil
}

// MigratePool runs the postgres migrations over a pgx pool.
func MigratePool(pool *pgxpool.Pool, lg *zap.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return MigrateDB(db, DialectPostgres, lg)
}
