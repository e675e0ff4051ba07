package notify

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/audit"
	"github.com/costguard-framework/costguard/internal/db"
)

func newTestNotifier(t *testing.T) *Notifier {
	t.Helper()
	dir := t.TempDir()

	mdb, err := db.OpenMetadataDB(dir)
	if err != nil {
		t.Fatalf("OpenMetadataDB: %v", err)
	}
	t.Cleanup(func() { mdb.Close() })

	adb, err := db.OpenAuditDB(dir)
	if err != nil {
		t.Fatalf("OpenAuditDB: %v", err)
	}
	t.Cleanup(func() { adb.Close() })

	wsUUID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := mdb.Exec(
		`INSERT INTO workspaces (uuid, name, created_at, updated_at, owner, path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		wsUUID, "test-ws", now, now, "tester", dir,
	); err != nil {
		t.Fatalf("inserting workspace: %v", err)
	}

	al, err := audit.NewLogger(adb, wsUUID)
	if err != nil {
		t.Fatalf("audit.NewLogger: %v", err)
	}

	return NewNotifier(mdb, al, zerolog.Nop(), wsUUID)
}

func TestEmitAndList(t *testing.T) {
	n := newTestNotifier(t)

	n.Emit(KindEscalation, "req-1", "approval needed", "resize of gpu-trainer-01 needs an owner")
	n.Emit(KindExecutionResult, "req-2", "stop_instance completed", "")

	got, err := n.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	kinds := map[Kind]bool{}
	for _, nt := range got {
		kinds[nt.Kind] = true
		if nt.UUID == "" || nt.CreatedAt.IsZero() {
			t.Errorf("notification missing uuid or timestamp: %+v", nt)
		}
	}
	if !kinds[KindEscalation] || !kinds[KindExecutionResult] {
		t.Errorf("kinds not persisted: %+v", kinds)
	}
}

func TestListLimit(t *testing.T) {
	n := newTestNotifier(t)
	for i := 0; i < 5; i++ {
		n.Emit(KindGuardrail, "", "spend guard tripped", "")
	}

	got, err := n.List(3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("limit not applied: got %d rows", len(got))
	}
}

func TestEmitSurvivesClosedDB(t *testing.T) {
	n := newTestNotifier(t)
	n.db.Close()

	// Must not panic; failures are logged and dropped.
	n.Emit(KindManualFollowUp, "req-3", "reclaim seat", "")
}
