package dispatch

import (
	"context"
	"strings"
	"time"

	"gad.kz/internal/audit"
	"gad.kz/internal/ids"
)

const resourceTask = "task"

// Service implements dispatch operations and records the audit trail for
// every state change. Audit recording is fire-and-forget; a trail failure
// never blocks the dispatch action.
type Service struct {
	store Store
	trail *audit.Trail
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service over the given store and trail.
func NewService(store Store, trail *audit.Trail, opts ...Option) *Service {
	s := &Service{store: store, trail: trail, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new task. Emergency-priority tasks additionally record
// an emergency_created event.
func (s *Service) Create(ctx context.Context, actor audit.Actor, title, details string, priority Priority) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return nil, ErrInvalidInput
	}

	now := s.now().UTC()
	task := &Task{
		ID:        ids.New(),
		Title:     title,
		Details:   strings.TrimSpace(details),
		Status:    StatusOpen,
		Priority:  priority,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}

	s.trail.LogCreate(ctx, actor, resourceTask, task.ID, "created task "+title, task.snapshot())
	if priority == PriorityEmergency {
		s.trail.Record(ctx, audit.Entry{
			Type:         audit.EventEmergencyCreated,
			Actor:        actor,
			ResourceType: resourceTask,
			ResourceID:   task.ID,
			Action:       "emergency dispatch created: " + title,
			NewValues:    task.snapshot(),
		})
	}
	return task, nil
}

// Get loads a task by id.
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.store.Find(ctx, id)
}

// List returns tasks matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Task, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.List(ctx, f)
}

// Assign puts the task on an operator's plate.
func (s *Service) Assign(ctx context.Context, actor audit.Actor, taskID, assigneeID string) (*Task, error) {
	assigneeID = strings.TrimSpace(assigneeID)
	if assigneeID == "" {
		return nil, ErrInvalidInput
	}
	task, err := s.store.Find(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	before := task.snapshot()
	task.AssigneeID = assigneeID
	if task.Status == StatusOpen {
		task.Status = StatusAssigned
	}
	task.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, task); err != nil {
		return nil, err
	}

	s.trail.Record(ctx, audit.Entry{
		Type:         audit.EventTaskAssigned,
		Actor:        actor,
		ResourceType: resourceTask,
		ResourceID:   task.ID,
		Action:       "assigned task to " + assigneeID,
		OldValues:    before,
		NewValues:    task.snapshot(),
	})
	return task, nil
}

// SetStatus moves a task along its lifecycle.
func (s *Service) SetStatus(ctx context.Context, actor audit.Actor, taskID string, to Status) (*Task, error) {
	if !to.Valid() {
		return nil, ErrInvalidInput
	}
	task, err := s.store.Find(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == to {
		return task, nil
	}
	if !CanTransition(task.Status, to) {
		return nil, ErrInvalidTransition
	}

	before := task.snapshot()
	task.Status = to
	task.UpdatedAt = s.now().UTC()
	if to == StatusDone {
		done := task.UpdatedAt
		task.CompletedAt = &done
	}
	if err := s.store.Update(ctx, task); err != nil {
		return nil, err
	}

	eventType := audit.EventTaskStatusChanged
	action := "changed task status to " + string(to)
	if to == StatusDone {
		eventType = audit.EventTaskCompleted
		action = "completed task"
	}
	s.trail.Record(ctx, audit.Entry{
		Type:         eventType,
		Actor:        actor,
		ResourceType: resourceTask,
		ResourceID:   task.ID,
		Action:       action,
		OldValues:    before,
		NewValues:    task.snapshot(),
	})
	return task, nil
}

// Complete marks an in-progress task done.
func (s *Service) Complete(ctx context.Context, actor audit.Actor, taskID string) (*Task, error) {
	return s.SetStatus(ctx, actor, taskID, StatusDone)
}

// UpdateDetails edits title/details, keeping before/after snapshots.
func (s *Service) UpdateDetails(ctx context.Context, actor audit.Actor, taskID, title, details string) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	task, err := s.store.Find(ctx, taskID)
	if err != nil {
		return nil, err
	}

	before := map[string]any{"title": task.Title, "details": task.Details}
	task.Title = title
	task.Details = strings.TrimSpace(details)
	task.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, task); err != nil {
		return nil, err
	}

	s.trail.LogUpdate(ctx, actor, resourceTask, task.ID, "edited task",
		before, map[string]any{"title": task.Title, "details": task.Details})
	return task, nil
}

// Delete removes a task, keeping its last snapshot in the trail.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, taskID string) error {
	task, err := s.store.Find(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, taskID); err != nil {
		return err
	}
	s.trail.LogDelete(ctx, actor, resourceTask, taskID, "deleted task "+task.Title, task.snapshot())
	return nil
}
