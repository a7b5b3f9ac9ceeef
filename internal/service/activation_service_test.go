package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"licensing/internal/domain"
	"licensing/internal/dto"
	"licensing/internal/observability/metrics"
	"licensing/internal/service"
	"licensing/internal/store"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("licensed-test")
	os.Exit(m.Run())
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.ActivationKey{}, &domain.AuditLogEntry{}, &domain.Notification{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return store.New(db)
}

func setupEngine(t *testing.T, opts service.ActivationOptions) (*service.ActivationService, *store.Store) {
	t.Helper()
	st := setupStore(t)
	return service.NewActivationService(st, opts), st
}

func createKey(t *testing.T, st *store.Store, expiresAt *time.Time) *domain.ActivationKey {
	t.Helper()
	key := &domain.ActivationKey{ExpiresAt: expiresAt}
	if err := st.Keys().Create(context.Background(), key); err != nil {
		t.Fatalf("create key: %v", err)
	}
	return key
}

func activate(t *testing.T, svc *service.ActivationService, keyValue, fingerprint string) dto.ActivateResponse {
	t.Helper()
	res, err := svc.Activate(context.Background(), dto.ActivateRequest{
		Key:         keyValue,
		Fingerprint: fingerprint,
		ProgramName: "app",
	}, "203.0.113.9")
	if err != nil {
		t.Fatalf("activate on %s: %v", fingerprint, err)
	}
	return res
}

func heartbeat(t *testing.T, svc *service.ActivationService, keyValue, fingerprint, token string) dto.HeartbeatResponse {
	t.Helper()
	res, err := svc.Heartbeat(context.Background(), dto.HeartbeatRequest{
		Key:          keyValue,
		Fingerprint:  fingerprint,
		SessionToken: token,
		ProgramName:  "app",
	}, "203.0.113.9")
	if err != nil {
		t.Fatalf("heartbeat on %s: %v", fingerprint, err)
	}
	return res
}

func reload(t *testing.T, st *store.Store, id uuid.UUID) *domain.ActivationKey {
	t.Helper()
	key, err := st.Keys().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("reload key: %v", err)
	}
	return key
}

func TestFirstActivation(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})
	key := createKey(t, st, nil)

	res := activate(t, svc, key.KeyValue, "fp-A")
	if res.Status != "ok" {
		t.Fatalf("expected ok, got %q", res.Status)
	}
	if len(res.SessionToken) != 64 {
		t.Fatalf("expected 64-char session token, got %d chars", len(res.SessionToken))
	}

	got := reload(t, st, key.ID)
	if !got.IsActivated {
		t.Fatal("expected key to be activated")
	}
	if got.BoundFingerprint == nil || *got.BoundFingerprint != "fp-A" {
		t.Fatalf("expected bound fingerprint fp-A, got %v", got.BoundFingerprint)
	}
	if got.ActivationCount != 1 {
		t.Fatalf("expected activation count 1, got %d", got.ActivationCount)
	}
	if got.ActivationDate == nil || got.LastHeartbeat == nil {
		t.Fatal("expected activation date and last heartbeat to be set")
	}
}

func TestDeviceSwitchKicksOldSession(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})
	key := createKey(t, st, nil)

	resA := activate(t, svc, key.KeyValue, "fp-A")
	resB := activate(t, svc, key.KeyValue, "fp-B")

	got := reload(t, st, key.ID)
	if got.ActivationCount != 2 {
		t.Fatalf("expected activation count 2, got %d", got.ActivationCount)
	}
	if got.DeviceChangeCount != 1 {
		t.Fatalf("expected device change count 1, got %d", got.DeviceChangeCount)
	}
	if *got.BoundFingerprint != "fp-B" {
		t.Fatalf("expected binding fp-B, got %s", *got.BoundFingerprint)
	}

	// The deposed device discovers its demotion lazily.
	hbA := heartbeat(t, svc, key.KeyValue, "fp-A", resA.SessionToken)
	if hbA.Status != "kicked_out" {
		t.Fatalf("expected kicked_out for stale token, got %q", hbA.Status)
	}
	hbB := heartbeat(t, svc, key.KeyValue, "fp-B", resB.SessionToken)
	if hbB.Status != "ok" {
		t.Fatalf("expected ok for fresh token, got %q", hbB.Status)
	}

	// Switch is audited with the previous fingerprint in details.
	entries, err := st.AuditEntries().ListForKey(context.Background(), key.ID, 10)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.Action == domain.ActionNewDeviceKickOld {
			found = true
			if !strings.Contains(e.Details, "fp-A") {
				t.Fatalf("expected previous fingerprint in details, got %q", e.Details)
			}
		}
	}
	if !found {
		t.Fatal("expected a new_device_kick_old audit entry")
	}
}

func TestExpiredKeyDenied(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	key := createKey(t, st, &yesterday)

	_, err := svc.Activate(context.Background(), dto.ActivateRequest{
		Key:         key.KeyValue,
		Fingerprint: "fp-X",
		ProgramName: "app",
	}, "203.0.113.9")
	if !errors.Is(err, domain.ErrKeyExpired) {
		t.Fatalf("expected ErrKeyExpired, got %v", err)
	}

	got := reload(t, st, key.ID)
	if got.IsActivated {
		t.Fatal("denied activation must not mutate the key")
	}
}

func TestLockedKeyDenied(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})
	key := createKey(t, st, nil)

	// Activate first so a session token exists, then lock.
	res := activate(t, svc, key.KeyValue, "fp-Y")
	if err := st.Keys().Updates(context.Background(), key.ID, map[string]any{"is_locked": true}); err != nil {
		t.Fatalf("lock key: %v", err)
	}

	_, err := svc.Activate(context.Background(), dto.ActivateRequest{
		Key:         key.KeyValue,
		Fingerprint: "fp-Y",
		ProgramName: "app",
	}, "203.0.113.9")
	if !errors.Is(err, domain.ErrKeyLocked) {
		t.Fatalf("expected ErrKeyLocked, got %v", err)
	}

	// A previously valid token no longer heartbeats ok on a locked key.
	hb := heartbeat(t, svc, key.KeyValue, "fp-Y", res.SessionToken)
	if hb.Status != "kicked_out" {
		t.Fatalf("expected kicked_out on locked key, got %q", hb.Status)
	}
}

func TestLockPrecedesExpiry(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})
	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	key := createKey(t, st, &yesterday)
	if err := st.Keys().Updates(context.Background(), key.ID, map[string]any{"is_locked": true}); err != nil {
		t.Fatalf("lock key: %v", err)
	}

	_, err := svc.Activate(context.Background(), dto.ActivateRequest{
		Key:         key.KeyValue,
		Fingerprint: "fp-Z",
		ProgramName: "app",
	}, "203.0.113.9")
	if !errors.Is(err, domain.ErrKeyLocked) {
		t.Fatalf("locked and expired key must fail locked, got %v", err)
	}
}

func TestSameDeviceReactivation(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})
	key := createKey(t, st, nil)

	seen := map[string]bool{}
	for i := 1; i <= 3; i++ {
		res := activate(t, svc, key.KeyValue, "fp-A")
		if seen[res.SessionToken] {
			t.Fatalf("expected distinct token on reactivation %d", i)
		}
		seen[res.SessionToken] = true

		got := reload(t, st, key.ID)
		if *got.BoundFingerprint != "fp-A" {
			t.Fatalf("reactivation must not change the binding, got %s", *got.BoundFingerprint)
		}
		if got.ActivationCount != i {
			t.Fatalf("expected activation count %d, got %d", i, got.ActivationCount)
		}
		if got.DeviceChangeCount != 0 {
			t.Fatalf("same-device reactivation must not count as a switch")
		}
	}

	// Only the newest token survives.
	tokens := make([]string, 0, len(seen))
	for tok := range seen {
		tokens = append(tokens, tok)
	}
	live := 0
	for _, tok := range tokens {
		if heartbeat(t, svc, key.KeyValue, "fp-A", tok).Status == "ok" {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one live session, got %d", live)
	}
}

func TestInvalidKeyAudited(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})

	_, err := svc.Activate(context.Background(), dto.ActivateRequest{
		Key:         "no-such-key",
		Fingerprint: "fp-A",
		ProgramName: "app",
	}, "203.0.113.9")
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	var entries []domain.AuditLogEntry
	if err := st.DB.Find(&entries).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Action != domain.ActionDeniedInvalidKey {
		t.Fatalf("expected denied_invalid_key, got %s", entries[0].Action)
	}
	if entries[0].KeyID != nil {
		t.Fatal("invalid-key attempts have no key to reference")
	}
}

func TestMissingFieldsRejected(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})

	_, err := svc.Activate(context.Background(), dto.ActivateRequest{Key: "k"}, "203.0.113.9")
	if !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	_, err = svc.Heartbeat(context.Background(), dto.HeartbeatRequest{Key: "k", Fingerprint: "f"}, "203.0.113.9")
	if !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}

	// Fail-fast: nothing reaches the registry or the audit log.
	var count int64
	if err := st.DB.Model(&domain.AuditLogEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if count != 0 {
		t.Fatalf("input errors must not be audited, got %d entries", count)
	}
}

func TestDenyPolicyRejectsSwitch(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{SwitchPolicy: service.SwitchPolicyDeny})
	key := createKey(t, st, nil)

	activate(t, svc, key.KeyValue, "fp-A")

	_, err := svc.Activate(context.Background(), dto.ActivateRequest{
		Key:         key.KeyValue,
		Fingerprint: "fp-B",
		ProgramName: "app",
	}, "203.0.113.9")
	if !errors.Is(err, domain.ErrDeviceConflict) {
		t.Fatalf("expected ErrDeviceConflict, got %v", err)
	}

	got := reload(t, st, key.ID)
	if *got.BoundFingerprint != "fp-A" {
		t.Fatalf("deny policy must keep the original binding, got %s", *got.BoundFingerprint)
	}
	if got.DeviceChangeCount != 0 {
		t.Fatalf("denied switch must not count, got %d", got.DeviceChangeCount)
	}
}

func TestAutoForceLockAfterTooManySwitches(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{MaxDeviceChanges: 2})
	key := createKey(t, st, nil)

	activate(t, svc, key.KeyValue, "fp-0")
	activate(t, svc, key.KeyValue, "fp-1")
	activate(t, svc, key.KeyValue, "fp-2")

	// Third switch would exceed the limit of 2.
	_, err := svc.Activate(context.Background(), dto.ActivateRequest{
		Key:         key.KeyValue,
		Fingerprint: "fp-3",
		ProgramName: "app",
	}, "203.0.113.9")
	if !errors.Is(err, domain.ErrKeyLocked) {
		t.Fatalf("expected ErrKeyLocked on force-lock, got %v", err)
	}

	got := reload(t, st, key.ID)
	if !got.IsLocked {
		t.Fatal("expected key locked")
	}
	if got.ForceLockReason == nil {
		t.Fatal("expected a force-lock reason")
	}
	if *got.BoundFingerprint != "fp-2" {
		t.Fatalf("force-lock must not rebind, got %s", *got.BoundFingerprint)
	}
	if got.DeviceChangeCount != 2 {
		t.Fatalf("expected device change count 2, got %d", got.DeviceChangeCount)
	}
	if domain.Classify(got, time.Now().UTC()) != domain.StateForceLocked {
		t.Fatalf("expected forced-locked state, got %s", domain.Classify(got, time.Now().UTC()))
	}

	entries, err := st.AuditEntries().ListForKey(context.Background(), key.ID, 10)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(entries) == 0 || entries[0].Action != domain.ActionForceLockTooMany {
		t.Fatalf("expected force_lock_too_many_devices as newest entry")
	}
}

func TestMonotoneActivation(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{MaxDeviceChanges: 1})
	key := createKey(t, st, nil)

	activate(t, svc, key.KeyValue, "fp-A")
	activate(t, svc, key.KeyValue, "fp-B")
	_, _ = svc.Activate(context.Background(), dto.ActivateRequest{
		Key: key.KeyValue, Fingerprint: "fp-C", ProgramName: "app",
	}, "203.0.113.9")
	heartbeat(t, svc, key.KeyValue, "fp-B", "stale")

	if !reload(t, st, key.ID).IsActivated {
		t.Fatal("isActivated must never revert to false")
	}
}

func TestSteadyStateHeartbeatNotAudited(t *testing.T) {
	svc, st := setupEngine(t, service.ActivationOptions{})
	key := createKey(t, st, nil)

	res := activate(t, svc, key.KeyValue, "fp-A")

	before, err := st.AuditEntries().ListForKey(context.Background(), key.ID, 100)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}

	for i := 0; i < 3; i++ {
		if hb := heartbeat(t, svc, key.KeyValue, "fp-A", res.SessionToken); hb.Status != "ok" {
			t.Fatalf("expected ok heartbeat, got %q", hb.Status)
		}
	}

	after, err := st.AuditEntries().ListForKey(context.Background(), key.ID, 100)
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("steady-state heartbeats must not be audited: %d -> %d entries", len(before), len(after))
	}

	got := reload(t, st, key.ID)
	if got.LastHeartbeat == nil {
		t.Fatal("expected last heartbeat to be set")
	}
}
