// Package store persists bot and user records.
//
// Every backend enforces unique bot ids and usernames, returns records in
// creation order and stamps CreatedAt/UpdatedAt itself. Operations are
// atomic per record.
package store

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/tgdrive/botmanager/pkg/models"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

type Store interface {
	CreateBot(ctx context.Context, bot *models.Bot) (*models.Bot, error)
	GetBot(ctx context.Context, botID string) (*models.Bot, error)
	ListBots(ctx context.Context) ([]models.Bot, error)
	UpdateStatus(ctx context.Context, botID string, status models.BotStatus) error
	DeleteBot(ctx context.Context, botID string) error

	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)

	// Type returns the backend name.
	Type() string
	Close() error
}

func newBot(in *models.Bot) *models.Bot {
	b := *in
	b.Status = models.BotStatusCreated
	return &b
}

func newUser(in *models.User) *models.User {
	u := *in
	if u.UserType == "" {
		u.UserType = models.UserTypeHuman
	}
	return &u
}
