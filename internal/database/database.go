package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/tgdrive/botmanager/internal/config"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// NewPool connects to postgres, retrying with exponential backoff while the
// server is unreachable.
func NewPool(ctx context.Context, cfg *config.DBConfig, lg *zap.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DataSource)
	if err != nil {
		return nil, errors.Wrap(err, "parse data source")
	}
	poolCfg.MaxConns = int32(cfg.Pool.MaxOpenConnections)
	poolCfg.MinConns = int32(min(cfg.Pool.MaxIdleConnections, cfg.Pool.MaxOpenConnections))
	poolCfg.MaxConnLifetime = cfg.Pool.MaxLifetime
	if level, ok := traceLevel(cfg.LogLevel); ok {
		poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   NewLogger(lg),
			LogLevel: level,
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second

	var pool *pgxpool.Pool
	err = backoff.RetryNotify(func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		lg.Warn("db.connect.retry", zap.Error(err), zap.Duration("next", next))
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	return pool, nil
}

// OpenSQLite opens (creating if needed) the sqlite file at cfg.DataSource.
func OpenSQLite(ctx context.Context, cfg *config.DBConfig) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.DataSource); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite dir")
		}
	}
	dsn := cfg.DataSource
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(cfg.Pool.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	return db, nil
}
