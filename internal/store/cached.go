package store

import (
	"context"
	"time"

	"github.com/tgdrive/botmanager/internal/cache"
	"github.com/tgdrive/botmanager/pkg/models"
)

// CachedStore serves GetBot through a cache and drops the entry on every
// write to that bot.
type CachedStore struct {
	Store
	cache cache.Cacher
	ttl   time.Duration
}

func NewCached(s Store, c cache.Cacher, ttl time.Duration) *CachedStore {
	return &CachedStore{Store: s, cache: c, ttl: ttl}
}

func (s *CachedStore) GetBot(ctx context.Context, botID string) (*models.Bot, error) {
	return cache.Fetch(s.cache, cache.KeyBot(botID), s.ttl, func() (*models.Bot, error) {
		return s.Store.GetBot(ctx, botID)
	})
}

func (s *CachedStore) CreateBot(ctx context.Context, bot *models.Bot) (*models.Bot, error) {
	out, err := s.Store.CreateBot(ctx, bot)
	if err == nil {
		_ = s.cache.Delete(cache.KeyBot(out.BotID))
	}
	return out, err
}

func (s *CachedStore) UpdateStatus(ctx context.Context, botID string, status models.BotStatus) error {
	defer s.cache.Delete(cache.KeyBot(botID))
	return s.Store.UpdateStatus(ctx, botID, status)
}

func (s *CachedStore) DeleteBot(ctx context.Context, botID string) error {
	defer s.cache.Delete(cache.KeyBot(botID))
	return s.Store.DeleteBot(ctx, botID)
}
