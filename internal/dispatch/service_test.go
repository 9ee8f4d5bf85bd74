package dispatch

import (
	"context"
	"errors"
	"testing"

	"gad.kz/internal/audit"
)

func newTestService() (*Service, *audit.InMemory) {
	auditStore := audit.NewInMemory()
	svc := NewService(NewInMemory(), audit.NewTrail(auditStore))
	return svc, auditStore
}

func TestCreateRecordsAuditEvent(t *testing.T) {
	svc, auditStore := newTestService()
	ctx := context.Background()
	actor := audit.Actor{UserID: "disp-1"}

	task, err := svc.Create(ctx, actor, "Fix water main", "Abai street 12", PriorityNormal)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.Status != StatusOpen {
		t.Fatalf("fresh task must be open, got %s", task.Status)
	}

	events, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventCreate}})
	if len(events) != 1 || events[0].ResourceID != task.ID {
		t.Fatalf("expected create event for task, got %+v", events)
	}
}

func TestEmergencyCreateRecordsCriticalEvent(t *testing.T) {
	svc, auditStore := newTestService()
	ctx := context.Background()

	task, err := svc.Create(ctx, audit.Actor{UserID: "disp-1"}, "Gas leak", "", PriorityEmergency)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	events, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventEmergencyCreated}})
	if len(events) != 1 {
		t.Fatalf("expected emergency_created event, got %d", len(events))
	}
	if events[0].Severity != audit.SeverityCritical {
		t.Fatalf("expected critical severity, got %s", events[0].Severity)
	}
	if events[0].ResourceID != task.ID {
		t.Fatalf("wrong resource: %+v", events[0])
	}
}

func TestAssignAndComplete(t *testing.T) {
	svc, auditStore := newTestService()
	ctx := context.Background()
	actor := audit.Actor{UserID: "disp-1"}

	task, err := svc.Create(ctx, actor, "Inspect substation", "", PriorityHigh)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	task, err = svc.Assign(ctx, actor, task.ID, "op-9")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if task.Status != StatusAssigned || task.AssigneeID != "op-9" {
		t.Fatalf("unexpected task after assign: %+v", task)
	}

	if _, err := svc.SetStatus(ctx, actor, task.ID, StatusInProgress); err != nil {
		t.Fatalf("SetStatus in_progress: %v", err)
	}
	task, err = svc.Complete(ctx, actor, task.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if task.Status != StatusDone || task.CompletedAt == nil {
		t.Fatalf("task not completed: %+v", task)
	}

	assigned, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventTaskAssigned}})
	completed, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventTaskCompleted}})
	changed, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventTaskStatusChanged}})
	if len(assigned) != 1 || len(completed) != 1 || len(changed) != 1 {
		t.Fatalf("unexpected event counts: assigned=%d completed=%d changed=%d",
			len(assigned), len(completed), len(changed))
	}
	if completed[0].OldValues == nil || completed[0].NewValues == nil {
		t.Fatalf("status events need both snapshots: %+v", completed[0])
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	actor := audit.Actor{UserID: "disp-1"}

	task, err := svc.Create(ctx, actor, "Patrol route", "", PriorityLow)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// open -> done skips assignment and progress.
	if _, err := svc.SetStatus(ctx, actor, task.ID, StatusDone); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := svc.SetStatus(ctx, actor, task.ID, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// Terminal states accept no assignment.
	if _, err := svc.Assign(ctx, actor, task.ID, "op-9"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on cancelled task, got %v", err)
	}
}

func TestDeleteKeepsSnapshotInTrail(t *testing.T) {
	svc, auditStore := newTestService()
	ctx := context.Background()
	actor := audit.Actor{UserID: "disp-1"}

	task, err := svc.Create(ctx, actor, "Old drill", "", PriorityLow)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, actor, task.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	events, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventDelete}})
	if len(events) != 1 || events[0].OldValues["title"] != "Old drill" {
		t.Fatalf("expected delete event with snapshot, got %+v", events)
	}
}
