package store

import (
	"context"

	"licensing/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationStore struct{ db *gorm.DB }

func (s *Store) Notifications() *NotificationStore { return &NotificationStore{db: s.DB} }

func (n *NotificationStore) Create(ctx context.Context, notif *domain.Notification) error {
	if notif.ID == uuid.Nil {
		notif.ID = uuid.New()
	}
	return n.db.WithContext(ctx).Create(notif).Error
}

func (n *NotificationStore) DeactivateAll(ctx context.Context) error {
	return n.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
}

func (n *NotificationStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	tx := n.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("is_active", false)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (n *NotificationStore) List(ctx context.Context) ([]domain.Notification, error) {
	var notifs []domain.Notification
	if err := n.db.WithContext(ctx).Order("created_at DESC").Find(&notifs).Error; err != nil {
		return nil, err
	}
	return notifs, nil
}

// Active returns the single active notification, or nil when none is.
func (n *NotificationStore) Active(ctx context.Context) (*domain.Notification, error) {
	var notif domain.Notification
	err := n.db.WithContext(ctx).First(&notif, "is_active = ?", true).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &notif, nil
}
