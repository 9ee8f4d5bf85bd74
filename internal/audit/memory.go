package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. Used in dev
// mode and in tests; production deployments run on the Postgres store.
type InMemory struct {
	mu       sync.RWMutex
	events   []Event
	sessions map[string]*Session
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]*Session)}
}

func (s *InMemory) InsertEvent(ctx context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *InMemory) CreateSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.SessionID] = &cp
	return nil
}

func (s *InMemory) TouchSession(ctx context.Context, sessionID string, at time.Time, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive {
		return ErrSessionNotFound
	}
	session.LastActivity = at
	session.TotalRequests++
	if !success {
		session.FailedRequests++
	}
	return nil
}

func (s *InMemory) EndSession(ctx context.Context, sessionID string, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok || !session.IsActive {
		return ErrSessionNotFound
	}
	ended := at
	session.EndedAt = &ended
	session.IsActive = false
	session.TerminationReason = reason
	return nil
}

func (s *InMemory) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *InMemory) QueryEvents(ctx context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, ev := range s.events {
		if matches(ev, f) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(ev Event, f Filter) bool {
	if ev.DeletedAt != nil {
		return false
	}
	if f.UserID != "" && ev.Actor.UserID != f.UserID {
		return false
	}
	if f.TelegramID != 0 && ev.Actor.TelegramID != f.TelegramID {
		return false
	}
	if f.SessionID != "" && ev.Actor.SessionID != f.SessionID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, ev.Type) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, ev.Severity) {
		return false
	}
	if f.ResourceType != "" && ev.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && ev.ResourceID != f.ResourceID {
		return false
	}
	if !f.From.IsZero() && ev.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !ev.Timestamp.Before(f.To) {
		return false
	}
	if f.FailuresOnly && ev.Success {
		return false
	}
	return true
}

func containsType(list []EventType, t EventType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, s Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
