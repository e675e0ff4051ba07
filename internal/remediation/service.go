// Package remediation implements the request lifecycle state machine: the
// approval workflow, the grace-period scheduler, and the execution path that
// re-evaluates policy, resolves credentials, and dispatches strategies.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/audit"
	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/notify"
	"github.com/costguard-framework/costguard/internal/policy"
	"github.com/costguard-framework/costguard/internal/strategy"
)

var (
	// ErrUnauthorized is returned when a connection does not belong to the
	// request's workspace or does not match its provider.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState is returned for a transition the state machine forbids.
	ErrInvalidState = errors.New("invalid request state")

	// ErrInsufficientRole is returned when an escalated request is approved
	// by a reviewer without the workspace's escalation role.
	ErrInsufficientRole = errors.New("insufficient reviewer role")
)

// StrategyRegistry is the strategy lookup consumed by the service.
type StrategyRegistry interface {
	Get(provider core.Provider, action core.Action) (strategy.Strategy, error)
}

// CredentialResolver produces strategy credentials for a connection.
type CredentialResolver interface {
	Resolve(conn *core.Connection) strategy.Credentials
}

// ConnectionSource looks up workspace connections.
type ConnectionSource interface {
	Get(uuidOrLabel string) (*core.Connection, error)
	ActiveForProvider(p core.Provider) (*core.Connection, error)
}

// GuardChecker is the kill-switch / spend guard gate.
type GuardChecker interface {
	CheckAll(settings core.WorkspaceSettings, proposedSavings float64) error
}

// Notifier is the fire-and-forget notification sink.
type Notifier interface {
	Emit(kind notify.Kind, requestUUID, subject, body string)
}

// JobQueue is the deferred-execution queue.
type JobQueue interface {
	Enqueue(requestUUID string, dueAt time.Time) (*core.Job, error)
	Due(now time.Time) ([]core.Job, error)
	Complete(jobUUID string, jobErr error) error
}

// SettingsSource supplies workspace settings, read fresh per transition.
type SettingsSource interface {
	Settings() (core.WorkspaceSettings, error)
}

// Service drives the remediation request lifecycle for one workspace.
type Service struct {
	store         *Store
	locks         *lockTable
	registry      StrategyRegistry
	resolver      CredentialResolver
	connections   ConnectionSource
	guards        GuardChecker
	queue         JobQueue
	notifier      Notifier
	audit         *audit.Logger
	settings      SettingsSource
	logger        zerolog.Logger
	validate      *validator.Validate
	retry         strategy.RetryPolicy
	workspaceUUID string
	now           func() time.Time
}

// Config wires a Service's collaborators.
type Config struct {
	Store         *Store
	Registry      StrategyRegistry
	Resolver      CredentialResolver
	Connections   ConnectionSource
	Guards        GuardChecker
	Queue         JobQueue
	Notifier      Notifier
	Audit         *audit.Logger
	Settings      SettingsSource
	Logger        zerolog.Logger
	WorkspaceUUID string
}

// NewService creates a remediation service.
func NewService(cfg Config) *Service {
	return &Service{
		store:         cfg.Store,
		locks:         newLockTable(),
		registry:      cfg.Registry,
		resolver:      cfg.Resolver,
		connections:   cfg.Connections,
		guards:        cfg.Guards,
		queue:         cfg.Queue,
		notifier:      cfg.Notifier,
		audit:         cfg.Audit,
		settings:      cfg.Settings,
		logger:        cfg.Logger,
		validate:      validator.New(),
		retry:         strategy.DefaultRetryPolicy(),
		workspaceUUID: cfg.WorkspaceUUID,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateParams describes a new remediation request. PolicyContext comes from
// the trusted discovery boundary, never from end-user input.
type CreateParams struct {
	ResourceID          string `validate:"required"`
	ResourceType        string
	Provider            core.Provider `validate:"required"`
	ConnectionUUID      string
	Region              string
	Action              core.Action `validate:"required"`
	EstimatedSavings    float64     `validate:"gte=0"`
	ConfidenceScore     string
	Explainability      string
	CreateBackup        bool
	BackupRetentionDays int     `validate:"gte=0"`
	BackupCostEstimate  float64 `validate:"gte=0"`
	RequestedBy         string  `validate:"required"`
	ActionParams        map[string]string
	PolicyContext       core.PolicyContext
}

// CreateRequest validates and persists a new request at PENDING.
func (s *Service) CreateRequest(p CreateParams) (*core.RemediationRequest, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if !isKnownProvider(p.Provider) {
		return nil, fmt.Errorf("invalid request: unknown provider %q", p.Provider)
	}

	// connection ownership: the referenced connection must live in this
	// workspace and target the same provider
	if p.ConnectionUUID != "" {
		conn, err := s.connections.Get(p.ConnectionUUID)
		if err != nil {
			return nil, fmt.Errorf("%w: connection %s not found in workspace", ErrUnauthorized, p.ConnectionUUID)
		}
		if conn.WorkspaceUUID != s.workspaceUUID || conn.Provider != p.Provider {
			return nil, fmt.Errorf("%w: connection %s does not match request", ErrUnauthorized, p.ConnectionUUID)
		}
	}

	settings, err := s.settings.Settings()
	if err != nil {
		return nil, err
	}

	now := s.now()
	req := &core.RemediationRequest{
		UUID:                uuid.New().String(),
		WorkspaceUUID:       s.workspaceUUID,
		ResourceID:          p.ResourceID,
		ResourceType:        p.ResourceType,
		Provider:            p.Provider,
		ConnectionUUID:      p.ConnectionUUID,
		Region:              resolveCreateRegion(p.Provider, p.Region, settings),
		Action:              p.Action,
		Status:              core.StatusPending,
		EstimatedSavings:    p.EstimatedSavings,
		ConfidenceScore:     p.ConfidenceScore,
		Explainability:      p.Explainability,
		CreateBackup:        p.CreateBackup,
		BackupRetentionDays: p.BackupRetentionDays,
		BackupCostEstimate:  p.BackupCostEstimate,
		RequestedBy:         p.RequestedBy,
		ActionParams:        p.ActionParams,
		PolicyContext:       p.PolicyContext,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.Insert(req); err != nil {
		return nil, err
	}

	s.audit.Log(audit.EventRequestCreated, audit.Entry{
		Actor:        p.RequestedBy,
		RequestUUID:  req.UUID,
		ResourceID:   req.ResourceID,
		ResourceType: req.ResourceType,
		Success:      true,
		Detail: map[string]string{
			"provider": string(req.Provider),
			"action":   string(req.Action),
			"region":   req.Region,
		},
	})
	return req, nil
}

// resolveCreateRegion applies the creation-time region rule: AWS requests
// replace an empty or "global" hint with the workspace default; every other
// provider always stores "global".
func resolveCreateRegion(p core.Provider, hint string, settings core.WorkspaceSettings) string {
	if p != core.ProviderAWS {
		return core.RegionGlobal
	}
	if hint == "" || hint == core.RegionGlobal {
		if settings.DefaultAWSRegion != "" {
			return settings.DefaultAWSRegion
		}
		return core.DefaultWorkspaceSettings().DefaultAWSRegion
	}
	return hint
}

// Approve moves a request awaiting review to APPROVED. Escalated requests
// require the workspace's escalation role ("owner" always qualifies); the
// approval appends the override marker so a later re-evaluation does not
// re-escalate the same request.
func (s *Service) Approve(requestUUID, reviewer, notes, reviewerRole string) (*core.RemediationRequest, error) {
	l := s.locks.acquire(requestUUID)
	defer l.Unlock()

	req, err := s.store.Get(requestUUID)
	if err != nil {
		return nil, err
	}
	if req.Status != core.StatusPending && req.Status != core.StatusPendingApproval {
		return nil, fmt.Errorf("%w: cannot approve request in status %s", ErrInvalidState, req.Status)
	}

	wasEscalated := req.EscalationRequired || req.Status == core.StatusPendingApproval
	if req.EscalationRequired {
		settings, err := s.settings.Settings()
		if err != nil {
			return nil, err
		}
		required := strings.ToLower(settings.EscalationRole)
		if required == "" {
			required = "owner"
		}
		role := strings.ToLower(reviewerRole)
		if role != required && role != "owner" {
			return nil, fmt.Errorf("%w: approving an escalated request requires role %q", ErrInsufficientRole, required)
		}
	}

	req.ReviewedBy = reviewer
	req.ReviewNotes = notes
	if wasEscalated && !strings.Contains(strings.ToLower(notes), policy.OverrideMarker) {
		if req.ReviewNotes != "" {
			req.ReviewNotes += " "
		}
		req.ReviewNotes += policy.OverrideMarker
	}
	req.EscalationRequired = false
	req.EscalationReason = ""
	req.EscalatedAt = nil
	req.Status = core.StatusApproved

	if err := s.store.Update(req); err != nil {
		return nil, err
	}
	s.audit.Log(audit.EventRequestApproved, audit.Entry{
		Actor:       reviewer,
		RequestUUID: req.UUID,
		ResourceID:  req.ResourceID,
		Success:     true,
		Detail:      map[string]string{"escalated": fmt.Sprintf("%t", wasEscalated)},
	})
	return req, nil
}

// Reject moves a request awaiting review to REJECTED.
func (s *Service) Reject(requestUUID, reviewer, notes string) (*core.RemediationRequest, error) {
	l := s.locks.acquire(requestUUID)
	defer l.Unlock()

	req, err := s.store.Get(requestUUID)
	if err != nil {
		return nil, err
	}
	if req.Status != core.StatusPending && req.Status != core.StatusPendingApproval {
		return nil, fmt.Errorf("%w: cannot reject request in status %s", ErrInvalidState, req.Status)
	}

	req.ReviewedBy = reviewer
	req.ReviewNotes = notes
	req.Status = core.StatusRejected
	if err := s.store.Update(req); err != nil {
		return nil, err
	}
	s.audit.Log(audit.EventRequestRejected, audit.Entry{
		Actor:       reviewer,
		RequestUUID: req.UUID,
		ResourceID:  req.ResourceID,
		Success:     true,
	})
	return req, nil
}

// Execute runs one execution attempt for a request. Guardrails gate first,
// then policy re-evaluates fresh; APPROVED requests enter the grace period
// unless bypassed, SCHEDULED requests are a no-op before their deadline, and
// everything else dispatches to a strategy. Every attempt commits a
// well-defined final status; failures are encoded in the request, not
// returned as errors.
func (s *Service) Execute(ctx context.Context, requestUUID, actor string, bypassGracePeriod bool) (req *core.RemediationRequest, err error) {
	l := s.locks.acquire(requestUUID)
	defer l.Unlock()

	req, err = s.store.Get(requestUUID)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			req.Status = core.StatusFailed
			req.ExecutionError = core.TruncateError(fmt.Sprintf("internal error: %v", r))
			s.store.Update(req)
			s.auditExecution(audit.EventExecutionFailed, req, actor, req.ExecutionError)
			err = nil
		}
	}()

	switch req.Status {
	case core.StatusPending, core.StatusApproved, core.StatusScheduled:
	default:
		return nil, fmt.Errorf("%w: cannot execute request in status %s", ErrInvalidState, req.Status)
	}

	settings, err := s.settings.Settings()
	if err != nil {
		return nil, err
	}

	// guardrails fire before any policy or strategy work
	monthToDate, err := s.store.MonthlyCompletedSavings(s.now())
	if err != nil {
		return nil, err
	}
	if guardErr := s.guards.CheckAll(settings, monthToDate+req.EstimatedSavings); guardErr != nil {
		req.Status = core.StatusFailed
		req.ExecutionError = core.TruncateError("GUARDRAIL: " + guardErr.Error())
		if err := s.store.Update(req); err != nil {
			return nil, err
		}
		s.audit.Log(audit.EventGuardrailTrip, audit.Entry{
			Actor:       actor,
			RequestUUID: req.UUID,
			ResourceID:  req.ResourceID,
			Error:       guardErr.Error(),
		})
		s.auditExecution(audit.EventExecutionFailed, req, actor, req.ExecutionError)
		s.notifier.Emit(notify.KindGuardrail, req.UUID,
			"remediation blocked by guardrail", guardErr.Error())
		return req, nil
	}

	// policy always re-evaluates; a cached decision must not survive a
	// config change between approval and execution
	eval := policy.Evaluate(req, settings.Policy, false)
	s.audit.Log(audit.EventPolicyEvaluated, audit.Entry{
		Actor:       actor,
		RequestUUID: req.UUID,
		ResourceID:  req.ResourceID,
		Success:     true,
		Detail: map[string]string{
			"decision": string(eval.Decision),
			"summary":  eval.Summary(),
		},
	})

	switch eval.Decision {
	case policy.DecisionBlock:
		req.Status = core.StatusFailed
		req.ExecutionError = core.TruncateError("POLICY_BLOCK: " + eval.Summary())
		if err := s.store.Update(req); err != nil {
			return nil, err
		}
		s.auditPolicy(audit.EventPolicyBlock, req, actor, eval)
		s.auditExecution(audit.EventExecutionFailed, req, actor, req.ExecutionError)
		s.notifier.Emit(notify.KindEscalation, req.UUID,
			"remediation blocked by policy", eval.Summary())
		return req, nil

	case policy.DecisionEscalate:
		now := s.now()
		req.Status = core.StatusPendingApproval
		req.EscalationRequired = true
		req.EscalationReason = eval.Summary()
		req.EscalatedAt = &now
		if err := s.store.Update(req); err != nil {
			return nil, err
		}
		s.auditPolicy(audit.EventPolicyEscalate, req, actor, eval)
		s.notifier.Emit(notify.KindEscalation, req.UUID,
			"remediation requires elevated approval", eval.Summary())
		return req, nil

	case policy.DecisionWarn:
		s.auditPolicy(audit.EventPolicyWarn, req, actor, eval)
		s.logger.Warn().
			Str("request", req.UUID).
			Str("summary", eval.Summary()).
			Msg("policy warning, proceeding")
	}

	if req.Status == core.StatusPending {
		return nil, fmt.Errorf("%w: request must be approved before execution", ErrInvalidState)
	}

	if req.Status == core.StatusApproved && !bypassGracePeriod {
		deadline := s.now().Add(gracePeriod(req, settings))
		req.Status = core.StatusScheduled
		req.ScheduledExecutionAt = &deadline
		if err := s.store.Update(req); err != nil {
			return nil, err
		}
		if _, err := s.queue.Enqueue(req.UUID, deadline); err != nil {
			s.logger.Warn().Err(err).Str("request", req.UUID).Msg("failed to enqueue deferred execution")
		}
		s.audit.Log(audit.EventExecutionScheduled, audit.Entry{
			Actor:       actor,
			RequestUUID: req.UUID,
			ResourceID:  req.ResourceID,
			Success:     true,
			Detail:      map[string]string{"scheduled_for": deadline.Format(time.RFC3339)},
		})
		return req, nil
	}

	if req.Status == core.StatusScheduled && !bypassGracePeriod &&
		req.ScheduledExecutionAt != nil && s.now().Before(*req.ScheduledExecutionAt) {
		// still inside the grace window; deferred re-entry is a no-op
		return req, nil
	}

	req.Status = core.StatusExecuting
	if err := s.store.Update(req); err != nil {
		return nil, err
	}
	s.auditExecution(audit.EventExecutionStarted, req, actor, "")

	result := s.dispatch(ctx, req, settings)

	now := s.now()
	req.ExecutedAt = &now
	if result.BackupID != "" {
		req.BackupResourceID = result.BackupID
	}
	if result.Status == strategy.ExecSuccess {
		req.Status = core.StatusCompleted
		req.ExecutionError = ""
	} else {
		req.Status = core.StatusFailed
		req.ExecutionError = core.TruncateError(result.Error)
	}
	if err := s.store.Update(req); err != nil {
		return nil, err
	}

	if req.Status == core.StatusCompleted {
		s.auditExecution(audit.EventExecutionCompleted, req, actor, "")
		s.notifier.Emit(notify.KindExecutionResult, req.UUID,
			fmt.Sprintf("remediation completed: %s", req.ResourceID),
			fmt.Sprintf("action %s on %s succeeded", req.Action, req.ResourceID))
	} else {
		s.auditExecution(audit.EventExecutionFailed, req, actor, req.ExecutionError)
		// Skips represent work an operator must finish by hand (manual
		// license reclaims, failed preflight); route them to the follow-up
		// queue rather than the failure feed.
		kind := notify.KindExecutionResult
		subject := fmt.Sprintf("remediation failed: %s", req.ResourceID)
		if result.Status == strategy.ExecSkipped {
			kind = notify.KindManualFollowUp
			subject = fmt.Sprintf("manual follow-up needed: %s", req.ResourceID)
		}
		s.notifier.Emit(kind, req.UUID, subject, req.ExecutionError)
	}
	return req, nil
}

// dispatch resolves credentials and runs the strategy. It never returns an
// error; every failure mode is an ExecutionResult.
func (s *Service) dispatch(ctx context.Context, req *core.RemediationRequest, settings core.WorkspaceSettings) strategy.ExecutionResult {
	strat, err := s.registry.Get(req.Provider, req.Action)
	if err != nil {
		return strategy.ExecutionResult{
			Status:      strategy.ExecFailed,
			ResourceID:  req.ResourceID,
			ActionTaken: string(req.Action),
			Error:       err.Error(),
		}
	}

	var conn *core.Connection
	if req.ConnectionUUID != "" {
		conn, err = s.connections.Get(req.ConnectionUUID)
	} else {
		conn, err = s.connections.ActiveForProvider(req.Provider)
	}
	if err != nil {
		// fail soft: the strategy's API call surfaces the auth failure
		s.logger.Warn().Err(err).Str("request", req.UUID).Msg("no connection resolved for execution")
		conn = nil
	}
	creds := s.resolver.Resolve(conn)

	region := req.Region
	if region == core.RegionGlobal {
		region = ""
	}
	if awsCreds, ok := creds.(strategy.AWSCredentials); ok {
		region = awsadapter.ResolveRegion(region, awsCreds.Region, settings.DefaultAWSRegion)
	}

	rc := strategy.Context{
		WorkspaceUUID:       req.WorkspaceUUID,
		Region:              region,
		Tier:                settings.Tier,
		Credentials:         creds,
		CreateBackup:        req.CreateBackup,
		BackupRetentionDays: req.BackupRetentionDays,
		Params:              req.ActionParams,
		Logger:              s.logger,
	}
	return strategy.Execute(ctx, strat, req.ResourceID, rc, s.retry)
}

// RunDue drains every due deferred job by re-entering Execute. Invoked by an
// external trigger; the engine keeps no internal timer.
func (s *Service) RunDue(ctx context.Context, actor string) (int, error) {
	due, err := s.queue.Due(s.now())
	if err != nil {
		return 0, err
	}
	ran := 0
	for _, job := range due {
		req, execErr := s.Execute(ctx, job.RequestUUID, actor, false)
		switch {
		case execErr != nil:
			s.queue.Complete(job.UUID, execErr)
		case req.Status == core.StatusFailed:
			s.queue.Complete(job.UUID, errors.New(req.ExecutionError))
		case req.Status == core.StatusScheduled:
			// deadline not reached yet (clock skew); leave the job queued
			continue
		default:
			s.queue.Complete(job.UUID, nil)
		}
		ran++
	}
	return ran, nil
}

// Get returns a request by UUID.
func (s *Service) Get(requestUUID string) (*core.RemediationRequest, error) {
	return s.store.Get(requestUUID)
}

// List returns workspace requests, optionally filtered by status.
func (s *Service) List(status core.RequestStatus) ([]core.RemediationRequest, error) {
	return s.store.List(status)
}

// SavingsSummary aggregates estimated savings per status.
func (s *Service) SavingsSummary() (map[core.RequestStatus]float64, error) {
	return s.store.SavingsSummary()
}

func gracePeriod(req *core.RemediationRequest, settings core.WorkspaceSettings) time.Duration {
	if req.Action == core.ActionReclaimLicenseSeat {
		days := settings.LicenseReclaimDays
		if days <= 0 {
			days = core.DefaultWorkspaceSettings().LicenseReclaimDays
		}
		return time.Duration(days) * 24 * time.Hour
	}
	hours := settings.GracePeriodHours
	if hours <= 0 {
		hours = core.DefaultWorkspaceSettings().GracePeriodHours
	}
	return time.Duration(hours) * time.Hour
}

func isKnownProvider(p core.Provider) bool {
	for _, kp := range core.KnownProviders {
		if p == kp {
			return true
		}
	}
	return false
}

func (s *Service) auditPolicy(event audit.EventType, req *core.RemediationRequest, actor string, eval policy.Evaluation) {
	detail := map[string]string{"summary": eval.Summary()}
	if len(eval.Hits) > 0 {
		detail["rule"] = eval.Hits[0].RuleID
	}
	s.audit.Log(event, audit.Entry{
		Actor:        actor,
		RequestUUID:  req.UUID,
		ResourceID:   req.ResourceID,
		ResourceType: req.ResourceType,
		Success:      true,
		Detail:       detail,
	})
}

func (s *Service) auditExecution(event audit.EventType, req *core.RemediationRequest, actor, errMsg string) {
	s.audit.Log(event, audit.Entry{
		Actor:        actor,
		RequestUUID:  req.UUID,
		ResourceID:   req.ResourceID,
		ResourceType: req.ResourceType,
		Success:      errMsg == "",
		Error:        errMsg,
		Detail:       map[string]string{"action": string(req.Action), "status": string(req.Status)},
	})
}
