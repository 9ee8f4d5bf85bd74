package audit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned by stores when no active session row
	// matched. The Trail downgrades it to a logged no-op.
	ErrSessionNotFound = errors.New("audit: session not found")
)

// Filter narrows an event query. All set fields combine with AND; zero values
// leave the dimension unconstrained.
type Filter struct {
	UserID     string
	TelegramID int64
	SessionID  string

	Types      []EventType
	Severities []Severity

	ResourceType string
	ResourceID   string

	// From is inclusive, To exclusive.
	From time.Time
	To   time.Time

	// FailuresOnly selects events with success=false.
	FailuresOnly bool

	Limit  int
	Offset int
}

// Store persists audit events and sessions. Events are insert-only; sessions
// are updated through the two narrow mutations below.
type Store interface {
	InsertEvent(ctx context.Context, ev *Event) error

	CreateSession(ctx context.Context, s *Session) error
	// TouchSession bumps last_activity and the request counters of an active
	// session in a single atomic update.
	TouchSession(ctx context.Context, sessionID string, at time.Time, success bool) error
	// EndSession closes an active session. Returns ErrSessionNotFound when no
	// active row matched, which makes the operation idempotent for callers.
	EndSession(ctx context.Context, sessionID string, at time.Time, reason string) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// QueryEvents returns non-deleted events matching the filter, newest first.
	QueryEvents(ctx context.Context, f Filter) ([]Event, error)
}
