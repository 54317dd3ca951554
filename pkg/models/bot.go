package models

import (
	"time"
)

type BotStatus string

const (
	BotStatusCreated BotStatus = "created"
	BotStatusRunning BotStatus = "running"
	BotStatusStopped BotStatus = "stopped"
)

func (s BotStatus) Valid() bool {
	switch s {
	case BotStatusCreated, BotStatusRunning, BotStatusStopped:
		return true
	}
	return false
}

type Bot struct {
	ID            int64     `json:"id"`
	BotID         string    `json:"botId"`
	HomeserverURL string    `json:"homeserverUrl"`
	AccountID     string    `json:"accountId"`
	AccountSecret string    `json:"-"`
	UpstreamURL   string    `json:"upstreamUrl"`
	Status        BotStatus `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
