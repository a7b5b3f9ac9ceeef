package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"licensing/internal/domain"
	"licensing/internal/dto"
	"licensing/internal/store"

	"github.com/google/uuid"
)

// PasswordVerifier re-checks the admin credential for destructive bulk
// actions. Implemented by adminauth.
type PasswordVerifier interface {
	VerifyPassword(password string) bool
}

// AdminService is the thin facade the external console talks to. It
// never touches binding state directly except through explicit admin
// actions; the protocol engine owns everything else.
type AdminService struct {
	store    *store.Store
	verifier PasswordVerifier
	maxBatch int
}

func NewAdminService(st *store.Store, verifier PasswordVerifier, maxBatch int) *AdminService {
	if maxBatch <= 0 {
		maxBatch = 1000
	}
	return &AdminService{store: st, verifier: verifier, maxBatch: maxBatch}
}

func (a *AdminService) ListKeys(ctx context.Context, f store.ListFilter) (dto.ListKeysResponse, error) {
	keys, err := a.store.Keys().List(ctx, f)
	if err != nil {
		return dto.ListKeysResponse{}, err
	}
	now := time.Now().UTC()
	views := make([]dto.KeyView, 0, len(keys))
	for i := range keys {
		views = append(views, dto.KeyView{
			ActivationKey: keys[i],
			State:         domain.Classify(&keys[i], now),
		})
	}
	return dto.ListKeysResponse{Keys: views, Total: len(views)}, nil
}

func (a *AdminService) CreateKeys(ctx context.Context, req dto.CreateKeysRequest, ip string) (dto.CreateKeysResponse, error) {
	if req.Count < 1 || req.Count > a.maxBatch {
		return dto.CreateKeysResponse{}, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, a.maxBatch)
	}
	if req.ExpiresAt != nil && req.ExpiresAt.Before(time.Now().UTC()) {
		return dto.CreateKeysResponse{}, fmt.Errorf("%w: expiresAt is in the past", ErrInvalidRequest)
	}
	keys, err := a.store.Keys().CreateBatch(ctx, req.Count, req.ExpiresAt, req.Notes, req.IsTrialKey)
	if err != nil {
		return dto.CreateKeysResponse{}, err
	}
	a.auditAdmin(ctx, nil, domain.ActionKeysCreated, ip, fmt.Sprintf("created %d keys", len(keys)))
	return dto.CreateKeysResponse{Created: len(keys), Keys: keys}, nil
}

func (a *AdminService) DeleteKey(ctx context.Context, id uuid.UUID, ip string) error {
	if err := a.store.Keys().Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	a.auditAdmin(ctx, &id, domain.ActionKeyDeleted, ip, "")
	return nil
}

// ToggleLock flips the admin lock. An explicit unlock also clears any
// force-lock reason; only an admin may lift a system lock.
func (a *AdminService) ToggleLock(ctx context.Context, id uuid.UUID, ip string) (*domain.ActivationKey, error) {
	var updated *domain.ActivationKey
	err := a.store.WithTx(ctx, func(tx *store.Store) error {
		key, err := tx.Keys().Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		fields := map[string]any{"is_locked": !key.IsLocked}
		if key.IsLocked {
			fields["force_lock_reason"] = nil
		}
		if err := tx.Keys().Updates(ctx, id, fields); err != nil {
			return err
		}
		updated, err = tx.Keys().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.auditAdmin(ctx, &id, domain.ActionLockToggled, ip, fmt.Sprintf("locked=%v", updated.IsLocked))
	return updated, nil
}

func (a *AdminService) ExtendExpiry(ctx context.Context, id uuid.UUID, newExpiry time.Time, ip string) error {
	if newExpiry.Before(time.Now().UTC()) {
		return fmt.Errorf("%w: new expiry is in the past", ErrInvalidRequest)
	}
	if err := a.store.Keys().Updates(ctx, id, map[string]any{"expires_at": newExpiry}); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	a.auditAdmin(ctx, &id, domain.ActionExpiryExtended, ip, "until "+newExpiry.UTC().Format(time.RFC3339))
	return nil
}

func (a *AdminService) ConvertToPermanent(ctx context.Context, id uuid.UUID, ip string) error {
	if err := a.store.Keys().Updates(ctx, id, map[string]any{"expires_at": nil}); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	a.auditAdmin(ctx, &id, domain.ActionConvertedPermanent, ip, "")
	return nil
}

// BulkAction applies lock/unlock/delete over a set of keys. The caller
// must re-enter the admin password as the confirmation step.
func (a *AdminService) BulkAction(ctx context.Context, req dto.BulkActionRequest, ip string) (dto.BulkActionResponse, error) {
	if a.verifier == nil || !a.verifier.VerifyPassword(req.Password) {
		return dto.BulkActionResponse{}, ErrBadCredential
	}
	if len(req.IDs) == 0 {
		return dto.BulkActionResponse{}, fmt.Errorf("%w: no ids given", ErrInvalidRequest)
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return dto.BulkActionResponse{}, fmt.Errorf("%w: invalid id %q", ErrInvalidRequest, raw)
		}
		ids = append(ids, id)
	}

	var affected int64
	err := a.store.WithTx(ctx, func(tx *store.Store) error {
		var err error
		switch req.Action {
		case "lock":
			affected, err = tx.Keys().LockMany(ctx, ids)
		case "unlock":
			affected, err = tx.Keys().UnlockMany(ctx, ids)
		case "delete":
			affected, err = tx.Keys().DeleteMany(ctx, ids)
		default:
			return fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
		}
		return err
	})
	if err != nil {
		return dto.BulkActionResponse{}, err
	}
	a.auditAdmin(ctx, nil, domain.ActionBulkAction, ip, fmt.Sprintf("%s over %d keys, %d affected", req.Action, len(ids), affected))
	return dto.BulkActionResponse{Affected: int(affected)}, nil
}

func (a *AdminService) AuditForKey(ctx context.Context, id uuid.UUID, limit int) (dto.AuditLogResponse, error) {
	entries, err := a.store.AuditEntries().ListForKey(ctx, id, limit)
	if err != nil {
		return dto.AuditLogResponse{}, err
	}
	return dto.AuditLogResponse{Entries: entries}, nil
}

func (a *AdminService) auditAdmin(ctx context.Context, keyID *uuid.UUID, action, ip, details string) {
	entry := &domain.AuditLogEntry{
		KeyID:     keyID,
		Action:    action,
		IPAddress: ip,
		Details:   details,
	}
	if err := a.store.AuditEntries().Append(ctx, entry); err != nil {
		slog.Warn("admin audit append failed", "action", action, "error", err)
	}
}
