package models

import (
	"time"
)

type UserType string

const (
	UserTypeHuman UserType = "human"
	UserTypeBot   UserType = "bot"
)

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	UserType  UserType  `json:"userType"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
