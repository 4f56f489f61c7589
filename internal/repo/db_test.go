package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/erauner/autodoist-events/internal/domain"
)

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "no-such-dir", "events.db")

	db, err := OpenSQLite(bad)
	if db != nil {
		t.Fatalf("got a handle for %q", bad)
	}
	// The up-front stat reports the missing directory itself rather than
	// whatever the driver would invent later.
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestOpenSQLite_AppliesPragmasAndPool(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	pragmas := []struct {
		query string
		want  string
	}{
		{"PRAGMA journal_mode;", "wal"},
		{"PRAGMA synchronous;", "1"}, // NORMAL
		{"PRAGMA foreign_keys;", "1"},
		{"PRAGMA busy_timeout;", "5000"},
	}
	for _, p := range pragmas {
		var got string
		if err := db.Raw(p.query).Row().Scan(&got); err != nil {
			t.Fatalf("%s: %v", p.query, err)
		}
		if strings.ToLower(got) != p.want {
			t.Fatalf("%s = %q, want %q", p.query, got, p.want)
		}
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("MaxOpenConnections = %d, want 10", stats.MaxOpenConnections)
	}
}

func TestAutoMigrate_LedgerSchema(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	m := db.Migrator()
	for _, model := range []any{&domain.EventReceipt{}, &domain.ActionOutcome{}, &domain.ReminderNotifyState{}} {
		if !m.HasTable(model) {
			t.Fatalf("no table migrated for %T", model)
		}
	}

	// One row through each table proves the schema is actually writable,
	// composite keys included.
	now := time.Now().UTC()
	receipt := &domain.EventReceipt{
		DeliveryID:   "dd-boot-1",
		EventName:    "note:added",
		EntityType:   "comment",
		Status:       domain.StatusReceived,
		AttemptCount: 1,
		PayloadHash:  "51ce",
		ReceivedAt:   now,
	}
	if err := db.Create(receipt).Error; err != nil {
		t.Fatalf("insert receipt: %v", err)
	}
	outcome := &domain.ActionOutcome{
		DeliveryID: "dd-boot-1",
		RuleName:   "recurring_clear_comments_on_completion",
		ActionType: "delete_comment",
		TargetType: "comment",
		TargetID:   "c9",
		Result:     domain.ResultSuccess,
	}
	if err := db.Create(outcome).Error; err != nil {
		t.Fatalf("insert outcome: %v", err)
	}
	state := &domain.ReminderNotifyState{TaskID: "t9", Mode: "ACTIVE_FOCUS", LastSentAt: now}
	if err := db.Create(state).Error; err != nil {
		t.Fatalf("insert reminder state: %v", err)
	}

	var back domain.EventReceipt
	if err := db.First(&back, "delivery_id = ?", "dd-boot-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if back.EventName != "note:added" || back.Status != domain.StatusReceived {
		t.Fatalf("readback mismatch: %+v", back)
	}
}
