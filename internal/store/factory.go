package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/tgdrive/botmanager/internal/cache"
	"github.com/tgdrive/botmanager/internal/config"
	"github.com/tgdrive/botmanager/internal/database"
	"go.uber.org/zap"
)

// New opens the backend selected by cfg.DB.Driver, migrating it when
// cfg.DB.Migrate is set, and wraps it in a read-through cache when cacher
// is non-nil and ttl is positive.
func New(ctx context.Context, cfg *config.DBConfig, cacher cache.Cacher, ttl time.Duration, lg *zap.Logger) (Store, error) {
	var s Store
	switch cfg.Driver {
	case "memory":
		s = NewMemoryStore()
	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := database.MigrateDB(db, database.DialectSQLite, lg); err != nil {
				db.Close()
				return nil, err
			}
		}
		s = NewSQLiteStore(db)
	case "postgres":
		pool, err := database.NewPool(ctx, cfg, lg)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := database.MigratePool(pool, lg); err != nil {
				pool.Close()
				return nil, err
			}
		}
		s = NewPostgresStore(pool)
	default:
		return nil, errors.Errorf("unknown db driver %q", cfg.Driver)
	}

	if cacher != nil && ttl > 0 {
		return NewCached(s, cacher, ttl), nil
	}
	return s, nil
}
