package identity

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("identity: not found")
	ErrAlreadyExists = errors.New("identity: already exists")
	ErrInvalidInput  = errors.New("identity: invalid input")
	ErrUnauthorized  = errors.New("identity: unauthorized")
)

// User statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User represents a dispatcher, operator or administrator account. Level is
// the coarse access level (1-3) that maps onto token scopes.
type User struct {
	ID           string
	Email        string
	Name         string
	TelegramID   int64
	Level        int
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u.Status == StatusActive
}
