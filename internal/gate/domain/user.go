package domain

import (
	"errors"
	"time"
)

// UserStatus gates authentication. Only active users may log in, renew or
// present a token.
type UserStatus string

const (
	StatusActive    UserStatus = "active"
	StatusInactive  UserStatus = "inactive"
	StatusSuspended UserStatus = "suspended"
)

var ErrInvalidStatus = errors.New("domain: invalid user status")

// ParseUserStatus validates s.
func ParseUserStatus(s string) (UserStatus, error) {
	switch st := UserStatus(s); st {
	case StatusActive, StatusInactive, StatusSuspended:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}

func (s UserStatus) IsActive() bool { return s == StatusActive }

type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2id PHC string
	Role         string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
