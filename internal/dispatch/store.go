package dispatch

import "context"

// ListFilter narrows task listings; zero values are unconstrained.
type ListFilter struct {
	Status     Status
	Priority   Priority
	AssigneeID string
	Limit      int
	Offset     int
}

// Store describes task persistence.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Find(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ListFilter) ([]*Task, error)
}
