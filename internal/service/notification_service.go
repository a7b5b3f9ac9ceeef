package service

import (
	"context"
	"fmt"

	"licensing/internal/domain"
	"licensing/internal/store"

	"github.com/google/uuid"
)

type NotificationService struct {
	store *store.Store
}

func NewNotificationService(st *store.Store) *NotificationService {
	return &NotificationService{store: st}
}

// Create publishes a new banner. Deactivation of the previous banner and
// insertion of the new one happen in one transaction so at most one
// notification is ever active.
func (n *NotificationService) Create(ctx context.Context, message string) (*domain.Notification, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	notif := &domain.Notification{Message: message, IsActive: true}
	err := n.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.Notifications().DeactivateAll(ctx); err != nil {
			return err
		}
		return tx.Notifications().Create(ctx, notif)
	})
	if err != nil {
		return nil, err
	}
	return notif, nil
}

func (n *NotificationService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := n.store.Notifications().Deactivate(ctx, id); err != nil {
		if err == store.ErrRecordNotFound {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (n *NotificationService) List(ctx context.Context) ([]domain.Notification, error) {
	return n.store.Notifications().List(ctx)
}

// Active returns the currently broadcast message, or nil when none is.
func (n *NotificationService) Active(ctx context.Context) (*domain.Notification, error) {
	return n.store.Notifications().Active(ctx)
}
