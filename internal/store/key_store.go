package store

import (
	"context"
	"time"

	"licensing/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KeyStore struct{ db *gorm.DB }

func (s *Store) Keys() *KeyStore { return &KeyStore{db: s.DB} }

// ListFilter narrows and orders admin listings. SortBy must be one of
// the allow-listed columns; anything else falls back to created_at.
type ListFilter struct {
	Search string          // substring match on key value or bound fingerprint
	Notes  string          // substring match on notes
	Status domain.KeyState // empty means all
	SortBy string
	Order  string // "asc" or "desc"; default desc
}

// Sortable columns exposed to the admin console. Free-form sort input
// never reaches the SQL layer.
var sortableColumns = map[string]bool{
	"created_at":          true,
	"key_value":           true,
	"expires_at":          true,
	"activation_date":     true,
	"last_heartbeat":      true,
	"activation_count":    true,
	"device_change_count": true,
}

func (k *KeyStore) Create(ctx context.Context, key *domain.ActivationKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.KeyValue == "" {
		key.KeyValue = uuid.NewString()
	}
	return k.db.WithContext(ctx).Create(key).Error
}

// CreateBatch generates n fresh unactivated keys sharing the supplied
// expiry, notes and trial flag.
func (k *KeyStore) CreateBatch(ctx context.Context, n int, expiresAt *time.Time, notes string, trial bool) ([]domain.ActivationKey, error) {
	keys := make([]domain.ActivationKey, 0, n)
	for i := 0; i < n; i++ {
		keys = append(keys, domain.ActivationKey{
			ID:         uuid.New(),
			KeyValue:   uuid.NewString(),
			ExpiresAt:  expiresAt,
			Notes:      notes,
			IsTrialKey: trial,
		})
	}
	if err := k.db.WithContext(ctx).Create(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// FindByValue is the single lookup used by the protocol engine:
// case-sensitive exact match on the key value.
func (k *KeyStore) FindByValue(ctx context.Context, value string) (*domain.ActivationKey, error) {
	var key domain.ActivationKey
	if err := k.db.WithContext(ctx).First(&key, "key_value = ?", value).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}

// FindByValueForUpdate takes a row lock on the key so concurrent
// activations serialize on the same record. Call inside WithTx.
func (k *KeyStore) FindByValueForUpdate(ctx context.Context, value string) (*domain.ActivationKey, error) {
	var key domain.ActivationKey
	err := k.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&key, "key_value = ?", value).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (k *KeyStore) Get(ctx context.Context, id uuid.UUID) (*domain.ActivationKey, error) {
	var key domain.ActivationKey
	if err := k.db.WithContext(ctx).First(&key, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (k *KeyStore) Updates(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	tx := k.db.WithContext(ctx).
		Model(&domain.ActivationKey{}).
		Where("id = ?", id).
		Updates(fields)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (k *KeyStore) Delete(ctx context.Context, id uuid.UUID) error {
	tx := k.db.WithContext(ctx).Delete(&domain.ActivationKey{}, "id = ?", id)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (k *KeyStore) List(ctx context.Context, f ListFilter) ([]domain.ActivationKey, error) {
	q := k.db.WithContext(ctx).Model(&domain.ActivationKey{})

	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where("key_value LIKE ? OR bound_fingerprint LIKE ?", pattern, pattern)
	}
	if f.Notes != "" {
		q = q.Where("notes LIKE ?", "%"+f.Notes+"%")
	}
	q = applyStatusBucket(q, f.Status, time.Now().UTC())

	column := f.SortBy
	if !sortableColumns[column] {
		column = "created_at"
	}
	direction := "DESC"
	if f.Order == "asc" {
		direction = "ASC"
	}
	q = q.Order(column + " " + direction)

	var keys []domain.ActivationKey
	if err := q.Find(&keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// applyStatusBucket translates the derived-state buckets into SQL with
// the same precedence as domain.Classify: locked wins over expired,
// expired over activated.
func applyStatusBucket(q *gorm.DB, status domain.KeyState, now time.Time) *gorm.DB {
	notExpired := q.Session(&gorm.Session{NewDB: true}).
		Where("expires_at IS NULL OR expires_at >= ?", now)

	switch status {
	case domain.StateLocked:
		return q.Where("is_locked = ? AND force_lock_reason IS NULL", true)
	case domain.StateForceLocked:
		return q.Where("is_locked = ? AND force_lock_reason IS NOT NULL", true)
	case domain.StateExpired:
		return q.Where("is_locked = ?", false).
			Where("expires_at IS NOT NULL AND expires_at < ?", now)
	case domain.StateUsed:
		return q.Where("is_locked = ? AND is_activated = ?", false, true).
			Where(notExpired)
	case domain.StateUnused:
		return q.Where("is_locked = ? AND is_activated = ?", false, false).
			Where(notExpired)
	default:
		return q
	}
}

// LockMany sets the admin lock on the given keys. Already locked keys
// keep their force-lock reason.
func (k *KeyStore) LockMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tx := k.db.WithContext(ctx).
		Model(&domain.ActivationKey{}).
		Where("id IN ?", ids).
		Update("is_locked", true)
	return tx.RowsAffected, tx.Error
}

// UnlockMany clears the lock and any force-lock reason, preserving the
// invariant that unlocked keys carry no reason.
func (k *KeyStore) UnlockMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tx := k.db.WithContext(ctx).
		Model(&domain.ActivationKey{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"is_locked": false, "force_lock_reason": nil})
	return tx.RowsAffected, tx.Error
}

func (k *KeyStore) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	tx := k.db.WithContext(ctx).Delete(&domain.ActivationKey{}, "id IN ?", ids)
	return tx.RowsAffected, tx.Error
}
