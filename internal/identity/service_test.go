package identity

import (
	"context"
	"errors"
	"testing"

	"gad.kz/internal/audit"
)

func TestCreateAndAuthenticate(t *testing.T) {
	auditStore := audit.NewInMemory()
	svc := NewService(NewInMemory(), audit.NewTrail(auditStore))
	ctx := context.Background()
	actor := audit.Actor{UserID: "admin-1"}

	user, err := svc.CreateUser(ctx, actor, " Dispatcher@GAD.kz ", "Aigerim", "s3cret", 777, 2)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "dispatcher@gad.kz" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "s3cret" || user.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}

	got, err := svc.Authenticate(ctx, "dispatcher@gad.kz", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID || got.Level != 2 {
		t.Fatalf("unexpected account: %+v", got)
	}

	if _, err := svc.Authenticate(ctx, "dispatcher@gad.kz", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	events, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventUserCreated}})
	if len(events) != 1 || events[0].ResourceID != user.ID {
		t.Fatalf("expected user_created event, got %+v", events)
	}
}

func TestDisableBlocksLoginAndAudits(t *testing.T) {
	auditStore := audit.NewInMemory()
	svc := NewService(NewInMemory(), audit.NewTrail(auditStore))
	ctx := context.Background()
	actor := audit.Actor{UserID: "admin-1"}

	user, err := svc.CreateUser(ctx, actor, "op@gad.kz", "Op", "pw", 0, 1)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := svc.Disable(ctx, actor, user.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	// Second disable is a no-op.
	if err := svc.Disable(ctx, actor, user.ID); err != nil {
		t.Fatalf("second Disable: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "op@gad.kz", "pw"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected disabled account to be rejected, got %v", err)
	}

	events, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventUserDisabled}})
	if len(events) != 1 {
		t.Fatalf("expected exactly one user_disabled event, got %d", len(events))
	}
}

func TestSetLevelAudited(t *testing.T) {
	auditStore := audit.NewInMemory()
	svc := NewService(NewInMemory(), audit.NewTrail(auditStore))
	ctx := context.Background()
	actor := audit.Actor{UserID: "admin-1"}

	user, err := svc.CreateUser(ctx, actor, "op@gad.kz", "Op", "pw", 0, 1)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := svc.SetLevel(ctx, actor, user.ID, 3); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if err := svc.SetLevel(ctx, actor, user.ID, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad level, got %v", err)
	}

	events, _ := auditStore.QueryEvents(ctx, audit.Filter{Types: []audit.EventType{audit.EventRoleChanged}})
	if len(events) != 1 {
		t.Fatalf("expected one role_changed event, got %d", len(events))
	}
	if events[0].OldValues["level"] != 1 || events[0].NewValues["level"] != 3 {
		t.Fatalf("snapshots missing: %+v", events[0])
	}
}
