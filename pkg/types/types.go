package types

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTClaims struct {
	jwt.RegisteredClaims
	UserName string `json:"userName"`
	IsAdmin  bool   `json:"isAdmin"`
}

// LoginRequest is the body of an admin login.
type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CreateBotRequest struct {
	BotID         string `json:"botId" validate:"required,botid"`
	HomeserverURL string `json:"homeserverUrl" validate:"required,url"`
	AccountID     string `json:"accountId" validate:"required"`
	AccountSecret string `json:"accountSecret" validate:"required"`
	UpstreamURL   string `json:"upstreamUrl" validate:"required,url"`
}

type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Password string `json:"password" validate:"required"`
	UserType string `json:"userType" validate:"omitempty,oneof=human bot"`
	IsAdmin  bool   `json:"isAdmin"`
}

// ProcessInfo describes a live worker.
type ProcessInfo struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"runId"`
	StartedAt time.Time `json:"startedAt"`
}

type BotResponse struct {
	BotID         string       `json:"botId"`
	HomeserverURL string       `json:"homeserverUrl"`
	AccountID     string       `json:"accountId"`
	UpstreamURL   string       `json:"upstreamUrl"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Process       *ProcessInfo `json:"process,omitempty"`
}

type UserResponse struct {
	Username  string    `json:"username"`
	UserType  string    `json:"userType"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type StatusResponse struct {
	BotID  string `json:"botId"`
	Status string `json:"status"`
}

type LogsResponse struct {
	BotID string   `json:"botId"`
	Lines []string `json:"lines"`
}

type Message struct {
	Message string `json:"message"`
}
