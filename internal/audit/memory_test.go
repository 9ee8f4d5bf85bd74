package audit

import (
	"context"
	"testing"
	"time"
)

func seedEvents(t *testing.T, store *InMemory) {
	t.Helper()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	trailFor := func(offset time.Duration) *Trail {
		return NewTrail(store, WithClock(func() time.Time { return base.Add(offset) }))
	}
	ctx := context.Background()

	trailFor(0).Record(ctx, Entry{
		Type: EventLogin, Actor: Actor{UserID: "alice"}, Action: "login",
	})
	trailFor(time.Hour).Record(ctx, Entry{
		Type: EventTaskAssigned, Actor: Actor{UserID: "alice"},
		ResourceType: "task", ResourceID: "t-1", Action: "assign",
	})
	trailFor(2 * time.Hour).Record(ctx, Entry{
		Type: EventLoginFailed, Actor: Actor{UserID: "bob"}, Action: "login failed", Failed: true,
	})
	trailFor(3 * time.Hour).Record(ctx, Entry{
		Type: EventDelete, Actor: Actor{UserID: "bob", TelegramID: 555},
		ResourceType: "task", ResourceID: "t-1", Action: "delete",
	})
}

func TestQueryFiltersCombineWithAND(t *testing.T) {
	store := NewInMemory()
	seedEvents(t, store)
	ctx := context.Background()

	all, err := store.QueryEvents(ctx, Filter{})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatalf("results not ordered newest first: %v after %v", all[i].Timestamp, all[i-1].Timestamp)
		}
	}

	byActor, _ := store.QueryEvents(ctx, Filter{UserID: "alice"})
	if len(byActor) != 2 {
		t.Fatalf("actor filter: expected 2, got %d", len(byActor))
	}

	combined, _ := store.QueryEvents(ctx, Filter{
		UserID:       "bob",
		ResourceType: "task",
		ResourceID:   "t-1",
	})
	if len(combined) != 1 || combined[0].Type != EventDelete {
		t.Fatalf("combined filter: got %+v", combined)
	}

	byType, _ := store.QueryEvents(ctx, Filter{Types: []EventType{EventLogin, EventLoginFailed}})
	if len(byType) != 2 {
		t.Fatalf("type filter: expected 2, got %d", len(byType))
	}

	failures, _ := store.QueryEvents(ctx, Filter{FailuresOnly: true})
	if len(failures) != 1 || failures[0].Type != EventLoginFailed {
		t.Fatalf("failures filter: got %+v", failures)
	}

	bySeverity, _ := store.QueryEvents(ctx, Filter{Severities: []Severity{SeverityHigh}})
	if len(bySeverity) != 2 {
		t.Fatalf("severity filter: expected login_failed and delete, got %d", len(bySeverity))
	}

	byTelegram, _ := store.QueryEvents(ctx, Filter{TelegramID: 555})
	if len(byTelegram) != 1 || byTelegram[0].Type != EventDelete {
		t.Fatalf("telegram filter: got %+v", byTelegram)
	}
}

func TestQueryTimeRange(t *testing.T) {
	store := NewInMemory()
	seedEvents(t, store)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	window, err := store.QueryEvents(context.Background(), Filter{
		From: base.Add(30 * time.Minute),
		To:   base.Add(150 * time.Minute),
	})
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(window))
	}
}

func TestQueryLimitOffset(t *testing.T) {
	store := NewInMemory()
	seedEvents(t, store)
	ctx := context.Background()

	page, _ := store.QueryEvents(ctx, Filter{Limit: 2})
	if len(page) != 2 || page[0].Type != EventDelete {
		t.Fatalf("first page: got %+v", page)
	}

	next, _ := store.QueryEvents(ctx, Filter{Limit: 2, Offset: 2})
	if len(next) != 2 || next[0].Type != EventTaskAssigned {
		t.Fatalf("second page: got %+v", next)
	}

	empty, _ := store.QueryEvents(ctx, Filter{Offset: 10})
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d", len(empty))
	}
}
