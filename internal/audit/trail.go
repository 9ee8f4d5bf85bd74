package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"gad.kz/internal/ids"
	"gad.kz/internal/obs"
)

// Entry is the caller-supplied portion of an event. EventID and Timestamp are
// deliberately absent: the Trail generates both.
type Entry struct {
	Type     EventType
	Severity Severity // zero value -> default for the event type

	Actor   Actor
	Request RequestContext

	ResourceType string
	ResourceID   string
	// Action is the required human-readable summary.
	Action string

	OldValues map[string]any
	NewValues map[string]any
	Metadata  map[string]any

	// Failed marks the audited action as unsuccessful; success is the default.
	Failed         bool
	ErrorMessage   string
	ResponseStatus int

	ComplianceTags []string
	RetentionUntil time.Time
}

// Trail records audit events and session activity. Every write is fail-open:
// a store failure is logged to the fallback channel and counted, never
// surfaced, because the audited action has already happened.
type Trail struct {
	store     Store
	now       func() time.Time
	broadcast func(Event)
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TrailOption {
	return func(t *Trail) {
		if fn != nil {
			t.now = fn
		}
	}
}

// WithBroadcaster registers a hook invoked after each durable event write,
// e.g. to feed live dashboards. The hook must not block.
func WithBroadcaster(fn func(Event)) TrailOption {
	return func(t *Trail) {
		t.broadcast = fn
	}
}

// NewTrail constructs a Trail over the given store.
func NewTrail(store Store, opts ...TrailOption) *Trail {
	t := &Trail{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record persists one audit event. It never returns an error: invalid entries
// and write failures are logged to the fallback channel and swallowed.
func (t *Trail) Record(ctx context.Context, entry Entry) {
	if reason := validateEntry(entry); reason != "" {
		t.fallback("audit_entry_invalid", entry, reason)
		return
	}

	sev := entry.Severity
	if sev == "" {
		sev = entry.Type.DefaultSeverity()
	}

	ev := Event{
		ID:             ids.New(),
		EventID:        uuid.NewString(),
		Type:           entry.Type,
		Severity:       sev,
		Timestamp:      t.now().UTC(),
		Actor:          entry.Actor,
		Request:        entry.Request,
		ResourceType:   entry.ResourceType,
		ResourceID:     entry.ResourceID,
		Action:         entry.Action,
		OldValues:      entry.OldValues,
		NewValues:      entry.NewValues,
		Metadata:       entry.Metadata,
		Success:        !entry.Failed,
		ErrorMessage:   entry.ErrorMessage,
		ResponseStatus: entry.ResponseStatus,
		ComplianceTags: entry.ComplianceTags,
	}
	if !entry.RetentionUntil.IsZero() {
		until := entry.RetentionUntil.UTC()
		ev.RetentionUntil = &until
	}

	if err := t.store.InsertEvent(ctx, &ev); err != nil {
		obs.IncAuditWriteFailure()
		t.fallback("audit_write_failed", entry, err.Error())
		return
	}
	if t.broadcast != nil {
		t.broadcast(ev)
	}
}

func validateEntry(entry Entry) string {
	if !entry.Type.Valid() {
		return "unknown event type"
	}
	if strings.TrimSpace(entry.Action) == "" {
		return "action description is required"
	}
	if entry.Severity != "" && !entry.Severity.Valid() {
		return "unknown severity"
	}
	if (entry.ResourceType == "") != (entry.ResourceID == "") {
		return "resource type and id must be set together"
	}
	return ""
}

// fallback writes the only trace an event leaves when the store is down.
func (t *Trail) fallback(msg string, entry Entry, reason string) {
	obs.LogEntry(map[string]any{
		"ts":         t.now().UTC().Format(time.RFC3339Nano),
		"level":      "warn",
		"type":       "audit",
		"msg":        msg,
		"reason":     reason,
		"event_type": string(entry.Type),
		"action":     entry.Action,
		"user_id":    entry.Actor.UserID,
		"session_id": entry.Actor.SessionID,
	})
}

// LogCreate records a resource creation with its new-value snapshot.
func (t *Trail) LogCreate(ctx context.Context, actor Actor, resourceType, resourceID, action string, newValues map[string]any) {
	t.Record(ctx, Entry{
		Type:         EventCreate,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		NewValues:    newValues,
	})
}

// LogRead records a read. Sensitive reads are escalated to high severity and
// tagged so they can be told apart from ordinary reads.
func (t *Trail) LogRead(ctx context.Context, actor Actor, resourceType, resourceID, action string, sensitive bool) {
	entry := Entry{
		Type:         EventRead,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
	}
	if sensitive {
		entry.Severity = SeverityHigh
		entry.Metadata = map[string]any{"sensitive": true}
	}
	t.Record(ctx, entry)
}

// LogUpdate records a mutation. Both snapshots are required so before/after
// states can be correlated; an entry missing either is rejected to the
// fallback channel.
func (t *Trail) LogUpdate(ctx context.Context, actor Actor, resourceType, resourceID, action string, oldValues, newValues map[string]any) {
	if len(oldValues) == 0 || len(newValues) == 0 {
		t.fallback("audit_entry_invalid", Entry{Type: EventUpdate, Actor: actor, Action: action},
			"update events require both old and new snapshots")
		return
	}
	t.Record(ctx, Entry{
		Type:         EventUpdate,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		OldValues:    oldValues,
		NewValues:    newValues,
	})
}

// LogDelete records a removal with the last known snapshot.
func (t *Trail) LogDelete(ctx context.Context, actor Actor, resourceType, resourceID, action string, oldValues map[string]any) {
	t.Record(ctx, Entry{
		Type:         EventDelete,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Action:       action,
		OldValues:    oldValues,
	})
}

// Query returns events matching the filter, newest first. Read path only; it
// propagates store errors since nothing user-facing depends on it.
func (t *Trail) Query(ctx context.Context, f Filter) ([]Event, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	return t.store.QueryEvents(ctx, f)
}
