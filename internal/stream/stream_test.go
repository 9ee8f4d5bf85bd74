package stream

import (
	"context"
	"testing"
	"time"

	"gad.kz/internal/audit"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := s.Subscribe(ctx)
	b := s.Subscribe(ctx)

	evt := audit.Event{ID: "evt-1", Type: audit.EventCreate}
	s.Publish(evt)

	for name, ch := range map[string]<-chan audit.Event{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.ID != "evt-1" {
				t.Fatalf("subscriber %s: got event %q, want evt-1", name, got.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s: no event received", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Subscribe(ctx) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(audit.Event{ID: "evt", Type: audit.EventRead})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	if got := s.Subscribers(); got != 1 {
		t.Fatalf("Subscribers = %d, want 1", got)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after context cancel")
	}
	if got := s.Subscribers(); got != 0 {
		t.Fatalf("Subscribers after cancel = %d, want 0", got)
	}
}
