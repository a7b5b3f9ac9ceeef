package store

import (
	"context"

	"licensing/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditStore struct{ db *gorm.DB }

func (s *Store) AuditEntries() *AuditStore { return &AuditStore{db: s.DB} }

func (a *AuditStore) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return a.db.WithContext(ctx).Create(entry).Error
}

// ListForKey returns the newest entries first.
func (a *AuditStore) ListForKey(ctx context.Context, keyID uuid.UUID, limit int) ([]domain.AuditLogEntry, error) {
	var entries []domain.AuditLogEntry
	q := a.db.WithContext(ctx).
		Where("key_id = ?", keyID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
