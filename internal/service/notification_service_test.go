package service_test

import (
	"context"
	"errors"
	"testing"

	"licensing/internal/service"

	"github.com/google/uuid"
)

func TestSingleActiveNotification(t *testing.T) {
	st := setupStore(t)
	svc := service.NewNotificationService(st)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "maintenance tonight"); err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(ctx, "maintenance done")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := svc.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ID != second.ID {
		t.Fatal("expected the newest notification to be the only active one")
	}

	all, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	activeCount := 0
	for _, n := range all {
		if n.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active notification, got %d", activeCount)
	}

	if err := svc.Deactivate(ctx, second.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err = svc.Active(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active != nil {
		t.Fatal("expected no active notification")
	}
}

func TestNotificationValidation(t *testing.T) {
	st := setupStore(t)
	svc := service.NewNotificationService(st)

	if _, err := svc.Create(context.Background(), ""); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty message, got %v", err)
	}
	if err := svc.Deactivate(context.Background(), uuid.New()); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
