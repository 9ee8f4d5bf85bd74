package identity

import "context"

// Store describes persistence operations for personnel accounts.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	List(ctx context.Context) ([]*User, error)
	SetLevel(ctx context.Context, id string, level int) error
	SetStatus(ctx context.Context, id, status string) error
}
