package store

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/tgdrive/botmanager/pkg/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps records in process memory. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      int64
	bots     map[string]*models.Bot
	botOrder []string
	users    map[string]*models.User
	userSeq  []string
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bots:  make(map[string]*models.Bot),
		users: make(map[string]*models.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateBot(_ context.Context, in *models.Bot) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bots[in.BotID]; ok {
		return nil, errors.Wrapf(ErrDuplicateKey, "bot %q", in.BotID)
	}
	b := newBot(in)
	s.seq++
	b.ID = s.seq
	b.CreatedAt = s.now()
	b.UpdatedAt = b.CreatedAt
	s.bots[b.BotID] = b
	s.botOrder = append(s.botOrder, b.BotID)

	out := *b
	return &out, nil
}

func (s *MemoryStore) GetBot(_ context.Context, botID string) (*models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bots[botID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "bot %q", botID)
	}
	out := *b
	return &out, nil
}

func (s *MemoryStore) ListBots(_ context.Context) ([]models.Bot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]models.Bot, 0, len(s.botOrder))
	for _, id := range s.botOrder {
		res = append(res, *s.bots[id])
	}
	return res, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, botID string, status models.BotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bots[botID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "bot %q", botID)
	}
	b.Status = status
	b.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) DeleteBot(_ context.Context, botID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bots[botID]; !ok {
		return errors.Wrapf(ErrNotFound, "bot %q", botID)
	}
	delete(s.bots, botID)
	for i, id := range s.botOrder {
		if id == botID {
			s.botOrder = append(s.botOrder[:i], s.botOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, in *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.Username]; ok {
		return nil, errors.Wrapf(ErrDuplicateKey, "user %q", in.Username)
	}
	u := newUser(in)
	s.seq++
	u.ID = s.seq
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	s.users[u.Username] = u
	s.userSeq = append(s.userSeq, u.Username)

	out := *u
	return &out, nil
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]models.User, 0, len(s.userSeq))
	for _, name := range s.userSeq {
		res = append(res, *s.users[name])
	}
	return res, nil
}

func (s *MemoryStore) Type() string {
	return "memory"
}

func (s *MemoryStore) Close() error {
	return nil
}
