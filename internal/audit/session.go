package audit

import (
	"context"
	"errors"
	"time"

	"gad.kz/internal/ids"
	"gad.kz/internal/obs"
)

// StartSession opens a session row for a fresh login. The session id is
// generated up front, so callers get a usable id even when the store write
// fails (fail-open, consistent with Record).
func (t *Trail) StartSession(ctx context.Context, actor Actor) Session {
	now := t.now().UTC()
	session := Session{
		SessionID:    ids.New(),
		Actor:        actor,
		StartedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}
	session.Actor.SessionID = session.SessionID

	if err := t.store.CreateSession(ctx, &session); err != nil {
		obs.IncAuditWriteFailure()
		t.fallback("audit_session_create_failed", Entry{Actor: session.Actor}, err.Error())
	}
	return session
}

// TouchSession bumps activity counters for one tracked request. A missing or
// already-closed session is a logged no-op, never a caller failure.
func (t *Trail) TouchSession(ctx context.Context, sessionID string, success bool) {
	if sessionID == "" {
		return
	}
	err := t.store.TouchSession(ctx, sessionID, t.now().UTC(), success)
	if err == nil {
		return
	}
	if errors.Is(err, ErrSessionNotFound) {
		obs.LogEntry(map[string]any{
			"ts":         t.now().UTC().Format(time.RFC3339Nano),
			"level":      "warn",
			"type":       "audit",
			"msg":        "touch_on_unknown_session",
			"session_id": sessionID,
		})
		return
	}
	obs.IncAuditWriteFailure()
	t.fallback("audit_session_touch_failed", Entry{Actor: Actor{SessionID: sessionID}}, err.Error())
}

// EndSession closes a session. Idempotent: ending an ended or unknown session
// is a no-op and leaves the first termination record untouched.
func (t *Trail) EndSession(ctx context.Context, sessionID, reason string) {
	if sessionID == "" {
		return
	}
	err := t.store.EndSession(ctx, sessionID, t.now().UTC(), reason)
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		return
	}
	obs.IncAuditWriteFailure()
	t.fallback("audit_session_end_failed", Entry{Actor: Actor{SessionID: sessionID}}, err.Error())
}

// GetSession loads a session summary row.
func (t *Trail) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return t.store.GetSession(ctx, sessionID)
}
