package store_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"licensing/internal/domain"
	"licensing/internal/store"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

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

func TestCreateAssignsIdentity(t *testing.T) {
	st := setupStore(t)

	key := &domain.ActivationKey{}
	if err := st.Keys().Create(context.Background(), key); err != nil {
		t.Fatalf("create: %v", err)
	}
	if key.KeyValue == "" {
		t.Fatal("expected a generated key value")
	}
}

func TestFindByValueExactMatch(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	key := &domain.ActivationKey{}
	if err := st.Keys().Create(ctx, key); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.Keys().FindByValue(ctx, key.KeyValue)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != key.ID {
		t.Fatal("expected the created key")
	}

	if _, err := st.Keys().FindByValue(ctx, "missing"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestCreateBatchSharesAttributes(t *testing.T) {
	st := setupStore(t)

	expiry := time.Now().UTC().Add(time.Hour)
	keys, err := st.Keys().CreateBatch(context.Background(), 10, &expiry, "note", true)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if len(keys) != 10 {
		t.Fatalf("expected 10 keys, got %d", len(keys))
	}
	values := map[string]bool{}
	for _, k := range keys {
		if values[k.KeyValue] {
			t.Fatalf("duplicate key value %s", k.KeyValue)
		}
		values[k.KeyValue] = true
		if !k.IsTrialKey || k.Notes != "note" {
			t.Fatal("expected shared attributes across the batch")
		}
	}
}

func TestListSortAllowList(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := st.Keys().Create(ctx, &domain.ActivationKey{}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// Allow-listed column works both directions.
	for _, order := range []string{"asc", "desc"} {
		keys, err := st.Keys().List(ctx, store.ListFilter{SortBy: "key_value", Order: order})
		if err != nil {
			t.Fatalf("list %s: %v", order, err)
		}
		if len(keys) != 3 {
			t.Fatalf("expected 3 keys, got %d", len(keys))
		}
	}

	// Arbitrary input falls back to created_at rather than reaching SQL.
	if _, err := st.Keys().List(ctx, store.ListFilter{SortBy: "key_value; DROP TABLE activation_keys"}); err != nil {
		t.Fatalf("hostile sort column must fall back, got %v", err)
	}
	if _, err := st.Keys().FindByValue(ctx, "still-there"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("table must still exist, got %v", err)
	}
}

func TestTimeColumnsRoundTrip(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	expiry := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	key := &domain.ActivationKey{ExpiresAt: &expiry}
	if err := st.Keys().Create(ctx, key); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := st.Keys().Updates(ctx, key.ID, map[string]any{
		"activation_date": now,
		"last_heartbeat":  now,
	}); err != nil {
		t.Fatalf("updates: %v", err)
	}

	got, err := st.Keys().Get(ctx, key.ID)
	if err != nil {
		t.Fatalf("get with populated time columns: %v", err)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expiry) {
		t.Fatalf("expected expiry %v, got %v", expiry, got.ExpiresAt)
	}
	if got.ActivationDate == nil || !got.ActivationDate.Equal(now) {
		t.Fatalf("expected activation date %v, got %v", now, got.ActivationDate)
	}
	if got.LastHeartbeat == nil || !got.LastHeartbeat.Equal(now) {
		t.Fatalf("expected last heartbeat %v, got %v", now, got.LastHeartbeat)
	}

	// FindByValue takes the same scan path as the protocol engine.
	if _, err := st.Keys().FindByValue(ctx, key.KeyValue); err != nil {
		t.Fatalf("find by value with populated time columns: %v", err)
	}
}

func TestUpdatesNotFound(t *testing.T) {
	st := setupStore(t)

	err := st.Keys().Updates(context.Background(), uuid.New(), map[string]any{"notes": "x"})
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestAuditListNewestFirst(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	key := &domain.ActivationKey{}
	if err := st.Keys().Create(ctx, key); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, action := range []string{domain.ActionFirstActivation, domain.ActionNewDeviceKickOld, domain.ActionDeniedKickedOut} {
		entry := &domain.AuditLogEntry{KeyID: &key.ID, Action: action}
		if err := st.AuditEntries().Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := st.AuditEntries().ListForKey(ctx, key.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2 entries, got %d", len(entries))
	}
	if entries[0].Action != domain.ActionDeniedKickedOut {
		t.Fatalf("expected newest entry first, got %s", entries[0].Action)
	}
}
