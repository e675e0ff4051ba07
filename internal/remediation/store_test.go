package remediation

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	mdb, err := db.OpenMetadataDB(dir)
	if err != nil {
		t.Fatalf("OpenMetadataDB: %v", err)
	}
	t.Cleanup(func() { mdb.Close() })

	wsUUID := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := mdb.Exec(
		`INSERT INTO workspaces (uuid, name, created_at, updated_at, owner, path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		wsUUID, "test-ws", now, now, "tester", dir,
	); err != nil {
		t.Fatalf("inserting workspace: %v", err)
	}
	return NewStore(mdb, wsUUID)
}

func testRequest(store *Store, status core.RequestStatus, savings float64, executedAt *time.Time) *core.RemediationRequest {
	now := time.Now().UTC()
	return &core.RemediationRequest{
		UUID:             uuid.New().String(),
		WorkspaceUUID:    store.workspaceUUID,
		ResourceID:       "i-test",
		Provider:         core.ProviderAWS,
		Region:           "us-east-1",
		Action:           core.ActionStopInstance,
		Status:           status,
		EstimatedSavings: savings,
		RequestedBy:      "tester",
		ActionParams:     map[string]string{"k": "v"},
		PolicyContext:    core.PolicyContext{Environment: "dev"},
		ExecutedAt:       executedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	req := testRequest(store, core.StatusPending, 42.5, nil)
	req.ConfidenceScore = "0.8"
	req.CreateBackup = true

	if err := store.Insert(req); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := store.Get(req.UUID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EstimatedSavings != 42.5 || got.ConfidenceScore != "0.8" || !got.CreateBackup {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.ActionParams["k"] != "v" {
		t.Error("action params lost")
	}
	if got.PolicyContext.Environment != "dev" {
		t.Error("policy context lost")
	}

	got.Status = core.StatusApproved
	got.ReviewedBy = "bob"
	if err := store.Update(got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ := store.Get(req.UUID)
	if again.Status != core.StatusApproved || again.ReviewedBy != "bob" {
		t.Errorf("update not persisted: %+v", again)
	}
}

func TestMonthlyCompletedSavings(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	lastMonth := now.AddDate(0, -1, 0)

	for _, tc := range []struct {
		status   core.RequestStatus
		savings  float64
		executed *time.Time
	}{
		{core.StatusCompleted, 100, &now},
		{core.StatusCompleted, 50, &now},
		{core.StatusCompleted, 999, &lastMonth}, // outside the window
		{core.StatusFailed, 77, &now},           // wrong status
		{core.StatusPending, 33, nil},
	} {
		if err := store.Insert(testRequest(store, tc.status, tc.savings, tc.executed)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	total, err := store.MonthlyCompletedSavings(now)
	if err != nil {
		t.Fatalf("MonthlyCompletedSavings: %v", err)
	}
	if total != 150 {
		t.Errorf("want 150, got %v", total)
	}
}

func TestSavingsSummary(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	store.Insert(testRequest(store, core.StatusCompleted, 10, &now))
	store.Insert(testRequest(store, core.StatusCompleted, 20, &now))
	store.Insert(testRequest(store, core.StatusPending, 5, nil))

	summary, err := store.SavingsSummary()
	if err != nil {
		t.Fatalf("SavingsSummary: %v", err)
	}
	if summary[core.StatusCompleted] != 30 || summary[core.StatusPending] != 5 {
		t.Errorf("unexpected summary: %+v", summary)
	}
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	store.Insert(testRequest(store, core.StatusPending, 1, nil))
	store.Insert(testRequest(store, core.StatusPending, 2, nil))
	now := time.Now().UTC()
	store.Insert(testRequest(store, core.StatusCompleted, 3, &now))

	pending, err := store.List(core.StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("want 2 pending, got %d", len(pending))
	}
	all, err := store.List("")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("want 3 total, got %d", len(all))
	}
}

func TestStoreUpdateMissingRow(t *testing.T) {
	store := newTestStore(t)
	req := testRequest(store, core.StatusPending, 10, nil)
	if err := store.Insert(req); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ghost := testRequest(store, core.StatusApproved, 10, nil)
	if err := store.Update(ghost); err == nil {
		t.Fatal("updating a request that was never inserted must error")
	}

	foreign := *req
	foreign.WorkspaceUUID = uuid.New().String()
	foreign.Status = core.StatusApproved
	if err := store.Update(&foreign); err == nil {
		t.Fatal("updating across workspaces must error, not silently no-op")
	}

	got, err := store.Get(req.UUID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != core.StatusPending {
		t.Errorf("row mutated by rejected update: %s", got.Status)
	}
}
