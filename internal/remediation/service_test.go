package remediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/audit"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/db"
	"github.com/costguard-framework/costguard/internal/guardrail"
	"github.com/costguard-framework/costguard/internal/jobs"
	"github.com/costguard-framework/costguard/internal/notify"
	"github.com/costguard-framework/costguard/internal/strategy"
	"github.com/costguard-framework/costguard/internal/tier"
)

// --- fakes ---

type recordingStrategy struct {
	strategy.Base
	provider core.Provider
	action   core.Action
	result   strategy.ExecutionResult
	calls    int
}

func (r *recordingStrategy) Meta() strategy.Meta {
	return strategy.Meta{
		Provider:        r.provider,
		Action:          r.action,
		RequiredFeature: tier.FeatureRemediation,
	}
}

func (r *recordingStrategy) PerformAction(ctx context.Context, resourceID string, rc strategy.Context) (strategy.ExecutionResult, error) {
	r.calls++
	return r.result, nil
}

type fakeRegistry struct {
	strategies map[string]strategy.Strategy
}

func (f *fakeRegistry) add(s strategy.Strategy) {
	if f.strategies == nil {
		f.strategies = make(map[string]strategy.Strategy)
	}
	meta := s.Meta()
	f.strategies[string(meta.Provider)+"/"+string(meta.Action)] = s
}

func (f *fakeRegistry) Get(provider core.Provider, action core.Action) (strategy.Strategy, error) {
	s, ok := f.strategies[string(provider)+"/"+string(action)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", strategy.ErrUnregisteredStrategy, provider, action)
	}
	return s, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(conn *core.Connection) strategy.Credentials {
	if conn == nil {
		return strategy.NoCredentials{}
	}
	switch conn.Provider {
	case core.ProviderAWS:
		return strategy.AWSCredentials{AccessKeyID: "AKIA", Region: "eu-central-1"}
	default:
		return strategy.NoCredentials{For: conn.Provider}
	}
}

type fakeConnections struct {
	conns map[string]*core.Connection
}

func (f *fakeConnections) Get(uuidOrLabel string) (*core.Connection, error) {
	if c, ok := f.conns[uuidOrLabel]; ok {
		return c, nil
	}
	return nil, errors.New("connection not found")
}

func (f *fakeConnections) ActiveForProvider(p core.Provider) (*core.Connection, error) {
	for _, c := range f.conns {
		if c.Provider == p {
			return c, nil
		}
	}
	return nil, errors.New("no connection for provider")
}

type fakeSettings struct {
	settings core.WorkspaceSettings
}

func (f *fakeSettings) Settings() (core.WorkspaceSettings, error) {
	return f.settings, nil
}

type capturedNotification struct {
	kind    notify.Kind
	subject string
}

type captureNotifier struct {
	emitted []capturedNotification
}

func (c *captureNotifier) Emit(kind notify.Kind, requestUUID, subject, body string) {
	c.emitted = append(c.emitted, capturedNotification{kind: kind, subject: subject})
}

// --- harness ---

type harness struct {
	svc      *Service
	registry *fakeRegistry
	settings *fakeSettings
	notifier *captureNotifier
	wsUUID   string
	auditDB  func() []string // recorded event types in order
}

func newHarness(t *testing.T) *harness {
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

	registry := &fakeRegistry{}
	settings := &fakeSettings{settings: core.DefaultWorkspaceSettings()}
	notifier := &captureNotifier{}
	conns := &fakeConnections{conns: map[string]*core.Connection{}}

	svc := NewService(Config{
		Store:         NewStore(mdb, wsUUID),
		Registry:      registry,
		Resolver:      fakeResolver{},
		Connections:   conns,
		Guards:        guardrail.NewChecker(),
		Queue:         jobs.NewQueue(mdb, wsUUID),
		Notifier:      notifier,
		Audit:         al,
		Settings:      settings,
		Logger:        zerolog.Nop(),
		WorkspaceUUID: wsUUID,
	})

	auditEvents := func() []string {
		rows, err := adb.Query(
			`SELECT event_type FROM audit_log WHERE workspace_uuid = ? ORDER BY id ASC`, wsUUID)
		if err != nil {
			t.Fatalf("querying audit log: %v", err)
		}
		defer rows.Close()
		var out []string
		for rows.Next() {
			var et string
			rows.Scan(&et)
			out = append(out, et)
		}
		return out
	}

	return &harness{svc: svc, registry: registry, settings: settings, notifier: notifier, wsUUID: wsUUID, auditDB: auditEvents}
}

func baseParams() CreateParams {
	return CreateParams{
		ResourceID:       "i-0abc123",
		ResourceType:     "EC2 Instance",
		Provider:         core.ProviderAWS,
		Action:           core.ActionTerminateInstance,
		EstimatedSavings: 120.50,
		ConfidenceScore:  "0.95",
		RequestedBy:      "alice",
	}
}

// --- creation ---

func TestCreateRequestDefaultsAWSRegion(t *testing.T) {
	h := newHarness(t)
	req, err := h.svc.CreateRequest(baseParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.Status != core.StatusPending {
		t.Errorf("want pending, got %s", req.Status)
	}
	if req.Region != "us-east-1" {
		t.Errorf(`aws request without region should get the workspace default, got %q`, req.Region)
	}

	p := baseParams()
	p.Region = core.RegionGlobal
	req2, err := h.svc.CreateRequest(p)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req2.Region != "us-east-1" {
		t.Errorf(`"global" hint should resolve to the default region, got %q`, req2.Region)
	}
}

func TestCreateRequestNonAWSStoresGlobal(t *testing.T) {
	h := newHarness(t)
	p := baseParams()
	p.Provider = core.ProviderSaaS
	p.Action = core.ActionRevokeSaaSSeat
	p.Region = "us-west-2"

	req, err := h.svc.CreateRequest(p)
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if req.Region != core.RegionGlobal {
		t.Errorf("non-aws providers always store global, got %q", req.Region)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	h := newHarness(t)

	p := baseParams()
	p.ResourceID = ""
	if _, err := h.svc.CreateRequest(p); err == nil {
		t.Error("missing resource id should be rejected")
	}

	p = baseParams()
	p.Provider = "oracle"
	if _, err := h.svc.CreateRequest(p); err == nil {
		t.Error("unknown provider should be rejected")
	}

	p = baseParams()
	p.EstimatedSavings = -5
	if _, err := h.svc.CreateRequest(p); err == nil {
		t.Error("negative savings should be rejected")
	}
}

func TestCreateRequestConnectionOwnership(t *testing.T) {
	h := newHarness(t)

	p := baseParams()
	p.ConnectionUUID = "missing-conn"
	_, err := h.svc.CreateRequest(p)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unknown connection should be Unauthorized, got %v", err)
	}

	// provider mismatch
	conns := h.svc.connections.(*fakeConnections)
	conns.conns["azure-conn"] = &core.Connection{
		UUID: "azure-conn", WorkspaceUUID: h.wsUUID, Provider: core.ProviderAzure,
	}
	p = baseParams()
	p.ConnectionUUID = "azure-conn"
	if _, err := h.svc.CreateRequest(p); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("provider mismatch should be Unauthorized, got %v", err)
	}

	// wrong workspace
	conns.conns["foreign"] = &core.Connection{
		UUID: "foreign", WorkspaceUUID: "other-ws", Provider: core.ProviderAWS,
	}
	p = baseParams()
	p.ConnectionUUID = "foreign"
	if _, err := h.svc.CreateRequest(p); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("foreign connection should be Unauthorized, got %v", err)
	}
}

// --- approval state machine ---

func TestApproveRejectStateSafety(t *testing.T) {
	h := newHarness(t)
	req, _ := h.svc.CreateRequest(baseParams())

	if _, err := h.svc.Reject(req.UUID, "bob", "not worth it"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := h.svc.Approve(req.UUID, "bob", "", "admin"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("approve on rejected request should be InvalidState, got %v", err)
	}
	if _, err := h.svc.Reject(req.UUID, "bob", ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double reject should be InvalidState, got %v", err)
	}

	got, _ := h.svc.Get(req.UUID)
	if got.Status != core.StatusRejected {
		t.Errorf("failed transitions must not mutate status, got %s", got.Status)
	}
}

// --- execute scenarios ---

func TestExecuteHappyPath(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionTerminateInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)

	req, err := h.svc.CreateRequest(baseParams())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := h.svc.Approve(req.UUID, "bob", "looks idle", "admin"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusCompleted {
		t.Fatalf("want completed, got %s (%s)", got.Status, got.ExecutionError)
	}
	if got.ExecutedAt == nil {
		t.Error("ExecutedAt should be set")
	}
	if strat.calls != 1 {
		t.Errorf("strategy should run exactly once, ran %d times", strat.calls)
	}

	events := h.auditDB()
	joined := strings.Join(events, ",")
	for _, want := range []string{"execution_started", "execution_completed"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing audit event %q in %v", want, events)
		}
	}
}

func TestExecutePolicyBlock(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionTerminateInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)

	p := baseParams()
	p.ResourceID = "prod-db-main"
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusFailed {
		t.Fatalf("want failed, got %s", got.Status)
	}
	if !strings.HasPrefix(got.ExecutionError, "POLICY_BLOCK") {
		t.Errorf("error should carry the POLICY_BLOCK prefix: %q", got.ExecutionError)
	}
	if strat.calls != 0 {
		t.Error("strategy must never run on a blocked request")
	}
}

func TestExecuteEscalationFlow(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionResizeInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)

	p := baseParams()
	p.ResourceID = "gpu-trainer-01"
	p.ResourceType = "GPU Instance"
	p.Action = core.ActionResizeInstance
	p.ActionParams = map[string]string{"target_instance_type": "g4dn.xlarge"}
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusPendingApproval || !got.EscalationRequired {
		t.Fatalf("want pending_approval with escalation, got %+v", got)
	}
	if strat.calls != 0 {
		t.Error("strategy must not run on escalation")
	}

	// non-owner cannot approve the escalated request
	if _, err := h.svc.Approve(req.UUID, "carol", "", "admin"); !errors.Is(err, ErrInsufficientRole) {
		t.Errorf("admin approving an escalation should be InsufficientRole, got %v", err)
	}

	// owner approval succeeds and appends the override marker
	approved, err := h.svc.Approve(req.UUID, "dave", "checked with ML team", "owner")
	if err != nil {
		t.Fatalf("owner Approve: %v", err)
	}
	if !strings.Contains(approved.ReviewNotes, "gpu-approved") {
		t.Errorf("override marker should be appended to notes: %q", approved.ReviewNotes)
	}
	if approved.EscalationRequired || approved.EscalatedAt != nil {
		t.Error("escalation fields should be cleared on approval")
	}

	// with the marker present, execution now proceeds
	final, err := h.svc.Execute(context.Background(), req.UUID, "dave", true)
	if err != nil {
		t.Fatalf("Execute after override: %v", err)
	}
	if final.Status != core.StatusCompleted {
		t.Fatalf("want completed after override, got %s (%s)", final.Status, final.ExecutionError)
	}
	if strat.calls != 1 {
		t.Errorf("strategy should have run once, ran %d", strat.calls)
	}
}

func TestExecuteLowConfidenceWarns(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionStopInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)

	p := baseParams()
	p.Action = core.ActionStopInstance
	p.ConfidenceScore = "0.5"
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusCompleted {
		t.Fatalf("warn must not stop execution, got %s (%s)", got.Status, got.ExecutionError)
	}

	events := h.auditDB()
	warnIdx, completedIdx := -1, -1
	for i, e := range events {
		if e == "policy_warn" && warnIdx == -1 {
			warnIdx = i
		}
		if e == "execution_completed" {
			completedIdx = i
		}
	}
	if warnIdx == -1 {
		t.Fatal("expected a policy_warn audit event")
	}
	if completedIdx != -1 && warnIdx > completedIdx {
		t.Error("warn event should precede completion")
	}
}

func TestExecuteGracePeriodScheduling(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionStopInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)

	p := baseParams()
	p.Action = core.ActionStopInstance
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	// first execute schedules
	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusScheduled {
		t.Fatalf("want scheduled, got %s", got.Status)
	}
	if got.ScheduledExecutionAt == nil {
		t.Fatal("scheduled deadline should be set")
	}
	wantDeadline := time.Now().Add(24 * time.Hour)
	if diff := got.ScheduledExecutionAt.Sub(wantDeadline); diff > time.Minute || diff < -time.Minute {
		t.Errorf("deadline should be ~24h out, got %v", got.ScheduledExecutionAt)
	}

	// re-entry before the deadline is a no-op
	again, err := h.svc.Execute(context.Background(), req.UUID, "bob", false)
	if err != nil {
		t.Fatalf("re-Execute: %v", err)
	}
	if again.Status != core.StatusScheduled {
		t.Errorf("pre-deadline re-entry should stay scheduled, got %s", again.Status)
	}
	if strat.calls != 0 {
		t.Error("strategy must not run during the grace period")
	}

	// bypass executes immediately
	final, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("bypass Execute: %v", err)
	}
	if final.Status != core.StatusCompleted {
		t.Fatalf("want completed, got %s (%s)", final.Status, final.ExecutionError)
	}
	if strat.calls != 1 {
		t.Errorf("strategy should run once after bypass, ran %d", strat.calls)
	}
}

func TestExecuteLicenseGracePeriod(t *testing.T) {
	h := newHarness(t)
	p := baseParams()
	p.Provider = core.ProviderLicense
	p.Action = core.ActionReclaimLicenseSeat
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusScheduled {
		t.Fatalf("want scheduled, got %s", got.Status)
	}
	wantDeadline := time.Now().Add(7 * 24 * time.Hour)
	if diff := got.ScheduledExecutionAt.Sub(wantDeadline); diff > time.Minute || diff < -time.Minute {
		t.Errorf("license reclaim deadline should be ~7 days out, got %v", got.ScheduledExecutionAt)
	}
}

func TestExecuteKillSwitch(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionStopInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)
	h.settings.settings.RemediationPaused = true

	p := baseParams()
	p.Action = core.ActionStopInstance
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusFailed {
		t.Fatalf("kill switch should fail the attempt, got %s", got.Status)
	}
	if !strings.HasPrefix(got.ExecutionError, "GUARDRAIL") {
		t.Errorf("error should carry the GUARDRAIL prefix: %q", got.ExecutionError)
	}
	if strat.calls != 0 {
		t.Error("strategy must never run when the kill switch is on")
	}
}

func TestExecuteUnapprovedRequest(t *testing.T) {
	h := newHarness(t)
	p := baseParams()
	p.ResourceID = "idle-worker" // no production or gpu markers
	p.Action = core.ActionStopInstance
	req, _ := h.svc.CreateRequest(p)

	_, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("executing a pending allow-path request should be InvalidState, got %v", err)
	}
	got, _ := h.svc.Get(req.UUID)
	if got.Status != core.StatusPending {
		t.Errorf("status must not change, got %s", got.Status)
	}
}

func TestExecuteTerminalStateRejected(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionStopInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)

	p := baseParams()
	p.Action = core.ActionStopInstance
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")
	h.svc.Execute(context.Background(), req.UUID, "bob", true)

	if _, err := h.svc.Execute(context.Background(), req.UUID, "bob", true); !errors.Is(err, ErrInvalidState) {
		t.Errorf("executing a completed request should be InvalidState, got %v", err)
	}
}

func TestExecuteSkippedResultMapsToFailed(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderLicense,
		action:   core.ActionReclaimLicenseSeat,
		result: strategy.ExecutionResult{
			Status: strategy.ExecSkipped,
			Error:  "manual follow-up: reclaim seat in vendor console",
		},
	}
	h.registry.add(strat)

	p := baseParams()
	p.Provider = core.ProviderLicense
	p.Action = core.ActionReclaimLicenseSeat
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusFailed {
		t.Fatalf("skipped results map to failed, got %s", got.Status)
	}
	if !strings.Contains(got.ExecutionError, "manual follow-up") {
		t.Errorf("skip reason should be stored: %q", got.ExecutionError)
	}

	var last capturedNotification
	if n := len(h.notifier.emitted); n > 0 {
		last = h.notifier.emitted[n-1]
	}
	if last.kind != notify.KindManualFollowUp {
		t.Errorf("skipped work should notify as follow-up, got %q (%q)", last.kind, last.subject)
	}
}

func TestExecuteFailureNotifiesExecutionResult(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionStopInstance,
		result: strategy.ExecutionResult{
			Status: strategy.ExecFailed,
			Error:  "StopInstances i-0abc123: throttled",
		},
	}
	h.registry.add(strat)

	req, _ := h.svc.CreateRequest(baseParams())
	h.svc.Approve(req.UUID, "bob", "", "admin")
	if _, err := h.svc.Execute(context.Background(), req.UUID, "bob", true); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var last capturedNotification
	if n := len(h.notifier.emitted); n > 0 {
		last = h.notifier.emitted[n-1]
	}
	if last.kind != notify.KindExecutionResult {
		t.Errorf("plain failures stay on the result feed, got %q", last.kind)
	}
}

func TestExecuteUnregisteredStrategyFails(t *testing.T) {
	h := newHarness(t)
	p := baseParams()
	p.Action = core.ActionStopInstance
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusFailed {
		t.Fatalf("missing strategy should fail the attempt, got %s", got.Status)
	}
	if !strings.Contains(got.ExecutionError, "unregistered strategy") {
		t.Errorf("error should name the missing strategy: %q", got.ExecutionError)
	}
}

func TestRunDueExecutesExpiredJobs(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionStopInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)
	h.settings.settings.GracePeriodHours = 24

	p := baseParams()
	p.Action = core.ActionStopInstance
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")
	h.svc.Execute(context.Background(), req.UUID, "bob", false) // schedules

	// nothing is due yet
	ran, err := h.svc.RunDue(context.Background(), "runner")
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if ran != 0 || strat.calls != 0 {
		t.Fatalf("nothing should be due, ran=%d calls=%d", ran, strat.calls)
	}

	// move the clock past the deadline
	h.svc.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }
	ran, err = h.svc.RunDue(context.Background(), "runner")
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if ran != 1 || strat.calls != 1 {
		t.Fatalf("due job should execute the request, ran=%d calls=%d", ran, strat.calls)
	}
	got, _ := h.svc.Get(req.UUID)
	if got.Status != core.StatusCompleted {
		t.Errorf("want completed after due run, got %s (%s)", got.Status, got.ExecutionError)
	}
}

func TestSpendGuardBlocksOverBudget(t *testing.T) {
	h := newHarness(t)
	strat := &recordingStrategy{
		provider: core.ProviderAWS,
		action:   core.ActionStopInstance,
		result:   strategy.ExecutionResult{Status: strategy.ExecSuccess},
	}
	h.registry.add(strat)
	h.settings.settings.MaxMonthlySavings = 100

	p := baseParams()
	p.Action = core.ActionStopInstance
	p.EstimatedSavings = 250
	req, _ := h.svc.CreateRequest(p)
	h.svc.Approve(req.UUID, "bob", "", "admin")

	got, err := h.svc.Execute(context.Background(), req.UUID, "bob", true)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != core.StatusFailed || !strings.HasPrefix(got.ExecutionError, "GUARDRAIL") {
		t.Fatalf("over-budget run should trip the spend guard, got %s (%s)", got.Status, got.ExecutionError)
	}
}
