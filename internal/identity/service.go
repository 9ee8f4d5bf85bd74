package identity

import (
	"context"
	"strings"

	"gad.kz/internal/audit"
	"gad.kz/internal/ids"
)

// Service wraps the store with validation and audit recording for account
// lifecycle changes.
type Service struct {
	store Store
	trail *audit.Trail
}

// NewService constructs a Service. The trail may be nil in tooling contexts.
func NewService(store Store, trail *audit.Trail) *Service {
	return &Service{store: store, trail: trail}
}

// Store exposes the raw read surface for callers that only look up accounts.
func (s *Service) Store() Store { return s.store }

// CreateUser registers a new personnel account with a hashed password.
func (s *Service) CreateUser(ctx context.Context, actor audit.Actor, email, name, password string, telegramID int64, level int) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || strings.TrimSpace(name) == "" {
		return nil, ErrInvalidInput
	}
	if level < 1 || level > 3 {
		level = 1
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, ErrInvalidInput
	}

	user := &User{
		ID:           ids.New(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		TelegramID:   telegramID,
		Level:        level,
		PasswordHash: hash,
		Status:       StatusActive,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	s.record(ctx, audit.Entry{
		Type:         audit.EventUserCreated,
		Actor:        actor,
		ResourceType: "user",
		ResourceID:   user.ID,
		Action:       "created account " + email,
		NewValues:    map[string]any{"email": email, "level": level},
	})
	return user, nil
}

// Authenticate checks credentials and returns the active account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if !user.Active() {
		return nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// SetLevel changes the coarse access level of an account.
func (s *Service) SetLevel(ctx context.Context, actor audit.Actor, id string, level int) error {
	if level < 1 || level > 3 {
		return ErrInvalidInput
	}
	user, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if user.Level == level {
		return nil
	}
	if err := s.store.SetLevel(ctx, id, level); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Type:         audit.EventRoleChanged,
		Actor:        actor,
		ResourceType: "user",
		ResourceID:   id,
		Action:       "changed access level",
		OldValues:    map[string]any{"level": user.Level},
		NewValues:    map[string]any{"level": level},
	})
	return nil
}

// Disable blocks an account from authenticating.
func (s *Service) Disable(ctx context.Context, actor audit.Actor, id string) error {
	user, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if user.Status == StatusDisabled {
		return nil
	}
	if err := s.store.SetStatus(ctx, id, StatusDisabled); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Type:         audit.EventUserDisabled,
		Actor:        actor,
		ResourceType: "user",
		ResourceID:   id,
		Action:       "disabled account " + user.Email,
		OldValues:    map[string]any{"status": user.Status},
		NewValues:    map[string]any{"status": StatusDisabled},
	})
	return nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.trail != nil {
		s.trail.Record(ctx, entry)
	}
}
