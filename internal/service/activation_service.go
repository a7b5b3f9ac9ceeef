package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"licensing/internal/domain"
	"licensing/internal/dto"
	"licensing/internal/observability/metrics"
	"licensing/internal/store"

	"github.com/google/uuid"
)

// DeviceSwitchPolicy picks how a second device activating an already
// bound key is handled.
type DeviceSwitchPolicy string

const (
	// SwitchPolicyEvict rebinds the key to the new device and lets the
	// old device discover its demotion on its next heartbeat.
	SwitchPolicyEvict DeviceSwitchPolicy = "switch"
	// SwitchPolicyDeny rejects cross-device activation outright; the key
	// stays bound to the first device.
	SwitchPolicyDeny DeviceSwitchPolicy = "deny"
)

type ActivationOptions struct {
	SwitchPolicy DeviceSwitchPolicy
	// MaxDeviceChanges force-locks a key once a further switch would
	// push its device change count past this limit. Zero disables the
	// auto lock.
	MaxDeviceChanges int
}

// ActivationService is the protocol engine. All state lives in the
// registry; every operation is one row-locked transaction per key.
type ActivationService struct {
	store *store.Store
	opts  ActivationOptions
}

func NewActivationService(st *store.Store, opts ActivationOptions) *ActivationService {
	if opts.SwitchPolicy == "" {
		opts.SwitchPolicy = SwitchPolicyEvict
	}
	return &ActivationService{store: st, opts: opts}
}

const forceLockReasonTooManyDevices = "too many device changes"

// outcome carries the protocol decision out of the registry transaction
// so denials that still mutate state (force-lock) can commit, and the
// audit append can happen off the critical path.
type outcome struct {
	denial  error // nil on success
	token   string
	keyID   *uuid.UUID
	action  string
	details string
}

// Activate runs the entry operation of the protocol: first activation,
// same-device re-activation, or device switch, per the configured
// policy. On success the returned token supersedes any earlier session.
func (s *ActivationService) Activate(ctx context.Context, req dto.ActivateRequest, ip string) (dto.ActivateResponse, error) {
	if req.Key == "" || req.Fingerprint == "" {
		return dto.ActivateResponse{}, fmt.Errorf("%w: key and fingerprint are required", ErrInvalidRequest)
	}

	var out outcome
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		key, err := tx.Keys().FindByValueForUpdate(ctx, req.Key)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				out = outcome{denial: domain.ErrKeyNotFound, action: domain.ActionDeniedInvalidKey}
				return nil
			}
			return err
		}
		out.keyID = &key.ID

		now := time.Now().UTC()
		switch {
		case key.IsLocked:
			out.denial = domain.ErrKeyLocked
			out.action = domain.ActionDeniedLocked
			return nil

		case key.IsExpired(now):
			out.denial = domain.ErrKeyExpired
			out.action = domain.ActionDeniedExpired
			return nil

		case !key.IsActivated:
			return s.firstActivation(ctx, tx, key, req.Fingerprint, now, &out)

		case key.BoundFingerprint != nil && *key.BoundFingerprint == req.Fingerprint:
			return s.reactivate(ctx, tx, key, now, &out)

		default:
			return s.deviceSwitch(ctx, tx, key, req.Fingerprint, now, &out)
		}
	})
	if err != nil {
		return dto.ActivateResponse{}, err
	}

	s.audit(ctx, out, req.Fingerprint, req.ProgramName, ip)

	if out.denial != nil {
		return dto.ActivateResponse{}, out.denial
	}
	return dto.ActivateResponse{Status: "ok", SessionToken: out.token, Message: "activated"}, nil
}

func (s *ActivationService) firstActivation(ctx context.Context, tx *store.Store, key *domain.ActivationKey, fingerprint string, now time.Time, out *outcome) error {
	token, err := newSessionToken()
	if err != nil {
		return err
	}
	err = tx.Keys().Updates(ctx, key.ID, map[string]any{
		"is_activated":          true,
		"bound_fingerprint":     fingerprint,
		"activation_date":       now,
		"current_session_token": token,
		"last_heartbeat":        now,
		"activation_count":      key.ActivationCount + 1,
	})
	if err != nil {
		return err
	}
	out.token = token
	out.action = domain.ActionFirstActivation
	return nil
}

func (s *ActivationService) reactivate(ctx context.Context, tx *store.Store, key *domain.ActivationKey, now time.Time, out *outcome) error {
	token, err := newSessionToken()
	if err != nil {
		return err
	}
	err = tx.Keys().Updates(ctx, key.ID, map[string]any{
		"current_session_token": token,
		"last_heartbeat":        now,
		"activation_count":      key.ActivationCount + 1,
	})
	if err != nil {
		return err
	}
	out.token = token
	out.action = domain.ActionReactivateSameDevice
	return nil
}

func (s *ActivationService) deviceSwitch(ctx context.Context, tx *store.Store, key *domain.ActivationKey, fingerprint string, now time.Time, out *outcome) error {
	previous := ""
	if key.BoundFingerprint != nil {
		previous = *key.BoundFingerprint
	}

	if s.opts.SwitchPolicy == SwitchPolicyDeny {
		out.denial = domain.ErrDeviceConflict
		out.action = domain.ActionDeniedConflict
		out.details = "bound to " + previous
		return nil
	}

	// A switch past the limit locks the key instead of rebinding it.
	// The lock must survive the denial, so it commits with this tx.
	if s.opts.MaxDeviceChanges > 0 && key.DeviceChangeCount+1 > s.opts.MaxDeviceChanges {
		reason := forceLockReasonTooManyDevices
		err := tx.Keys().Updates(ctx, key.ID, map[string]any{
			"is_locked":         true,
			"force_lock_reason": reason,
		})
		if err != nil {
			return err
		}
		out.denial = domain.ErrKeyLocked
		out.action = domain.ActionForceLockTooMany
		out.details = fmt.Sprintf("device change limit %d reached", s.opts.MaxDeviceChanges)
		metrics.ForceLocksTotal.WithLabelValues().Inc()
		return nil
	}

	token, err := newSessionToken()
	if err != nil {
		return err
	}
	err = tx.Keys().Updates(ctx, key.ID, map[string]any{
		"bound_fingerprint":     fingerprint,
		"device_change_count":   key.DeviceChangeCount + 1,
		"current_session_token": token,
		"last_heartbeat":        now,
		"activation_count":      key.ActivationCount + 1,
	})
	if err != nil {
		return err
	}
	out.token = token
	out.action = domain.ActionNewDeviceKickOld
	out.details = "previous fingerprint " + previous
	return nil
}

// Heartbeat lets a live client prove it still holds the current
// session. A stale token means another device activated since; the
// caller must treat kicked_out as forced session termination.
func (s *ActivationService) Heartbeat(ctx context.Context, req dto.HeartbeatRequest, ip string) (dto.HeartbeatResponse, error) {
	if req.Key == "" || req.Fingerprint == "" || req.SessionToken == "" {
		return dto.HeartbeatResponse{}, fmt.Errorf("%w: key, fingerprint and sessionToken are required", ErrInvalidRequest)
	}

	var out outcome
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		key, err := tx.Keys().FindByValueForUpdate(ctx, req.Key)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				out = outcome{denial: domain.ErrKeyNotFound, action: domain.ActionDeniedInvalidKey}
				return nil
			}
			return err
		}
		out.keyID = &key.ID

		if key.IsLocked {
			out.denial = domain.ErrKickedOut
			out.action = domain.ActionDeniedLockedHB
			return nil
		}

		current := ""
		if key.CurrentSessionToken != nil {
			current = *key.CurrentSessionToken
		}
		if subtle.ConstantTimeCompare([]byte(current), []byte(req.SessionToken)) == 1 && current != "" {
			// Steady-state heartbeats are not audited, to bound log volume.
			return tx.Keys().Updates(ctx, key.ID, map[string]any{
				"last_heartbeat": time.Now().UTC(),
			})
		}

		out.denial = domain.ErrKickedOut
		out.action = domain.ActionDeniedKickedOut
		return nil
	})
	if err != nil {
		return dto.HeartbeatResponse{}, err
	}

	s.audit(ctx, out, req.Fingerprint, req.ProgramName, ip)

	switch {
	case out.denial == nil:
		return dto.HeartbeatResponse{Status: "ok"}, nil
	case errors.Is(out.denial, domain.ErrKickedOut):
		return dto.HeartbeatResponse{Status: "kicked_out", Message: "session invalidated"}, nil
	default:
		return dto.HeartbeatResponse{}, out.denial
	}
}

// audit appends the decision trail after the registry transaction has
// committed. Failures are swallowed: logging never blocks or reverses a
// protocol decision already made.
func (s *ActivationService) audit(ctx context.Context, out outcome, fingerprint, program, ip string) {
	if out.action == "" {
		return
	}
	entry := &domain.AuditLogEntry{
		KeyID:       out.keyID,
		Action:      out.action,
		IPAddress:   ip,
		Fingerprint: fingerprint,
		ProgramName: program,
		Details:     out.details,
	}
	if err := s.store.AuditEntries().Append(ctx, entry); err != nil {
		slog.Warn("audit append failed", "action", out.action, "error", err)
	}
}
