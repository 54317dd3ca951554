// Package cache holds the optional read-through cache used by the record
// store. Values are msgpack encoded so both backends share one wire form.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/coocood/freecache"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/tgdrive/botmanager/internal/config"
	"github.com/vmihailenco/msgpack/v5"
)

const namespace = "botmanager"

type Cacher interface {
	Get(key string, value any) error
	Set(key string, value any, expiration time.Duration) error
	Delete(keys ...string) error
}

// IsMiss reports whether err means the key was absent in either backend.
func IsMiss(err error) bool {
	return errors.Is(err, freecache.ErrNotFound) || errors.Is(err, redis.Nil)
}

// NewCache picks Redis when cache.redis-addr is set and an in-process
// freecache of cache.max-size bytes otherwise.
func NewCache(ctx context.Context, conf *config.CacheConfig) (Cacher, error) {
	client, err := NewRedisClient(ctx, conf)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return NewMemoryCache(conf.MaxSize), nil
	}
	return NewRedisCache(ctx, client), nil
}

// Fetch returns the cached value for key, calling fn and storing its
// result on a miss. Errors from fn are never cached.
func Fetch[T any](c Cacher, key string, expiration time.Duration, fn func() (T, error)) (T, error) {
	var value T
	err := c.Get(key, &value)
	if err == nil {
		return value, nil
	}
	if !IsMiss(err) {
		var zero T
		return zero, err
	}
	value, err = fn()
	if err != nil {
		var zero T
		return zero, err
	}
	_ = c.Set(key, &value, expiration)
	return value, nil
}

// Key joins parts under the process namespace.
func Key(parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

func KeyBot(botID string) string {
	return Key("bots", botID)
}

func encode(value any) ([]byte, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "cache encode")
	}
	return data, nil
}

func decode(data []byte, value any) error {
	if err := msgpack.Unmarshal(data, value); err != nil {
		return errors.Wrap(err, "cache decode")
	}
	return nil
}
