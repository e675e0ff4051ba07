package remediation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/costguard-framework/costguard/internal/core"
)

const requestColumns = `uuid, workspace_uuid, resource_id, resource_type, provider, connection_uuid,
	        region, action, status, estimated_savings, confidence_score, explainability,
	        create_backup, backup_retention_days, backup_cost_estimate, requested_by,
	        reviewed_by, review_notes, action_params, policy_context,
	        escalation_required, escalation_reason, escalated_at, scheduled_execution_at,
	        executed_at, backup_resource_id, execution_error, created_at, updated_at`

// Store persists remediation requests for one workspace.
type Store struct {
	db            *sql.DB
	workspaceUUID string
}

// NewStore creates a request store scoped to the given workspace.
func NewStore(db *sql.DB, workspaceUUID string) *Store {
	return &Store{db: db, workspaceUUID: workspaceUUID}
}

// Insert writes a new request row.
func (s *Store) Insert(req *core.RemediationRequest) error {
	params, err := json.Marshal(req.ActionParams)
	if err != nil {
		return fmt.Errorf("marshaling action params: %w", err)
	}
	pctx, err := json.Marshal(req.PolicyContext)
	if err != nil {
		return fmt.Errorf("marshaling policy context: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO remediation_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.UUID, req.WorkspaceUUID, req.ResourceID, req.ResourceType, string(req.Provider),
		req.ConnectionUUID, req.Region, string(req.Action), string(req.Status),
		req.EstimatedSavings, req.ConfidenceScore, req.Explainability,
		boolToInt(req.CreateBackup), req.BackupRetentionDays, req.BackupCostEstimate,
		req.RequestedBy, req.ReviewedBy, req.ReviewNotes, string(params), string(pctx),
		boolToInt(req.EscalationRequired), req.EscalationReason,
		timePtrToString(req.EscalatedAt), timePtrToString(req.ScheduledExecutionAt),
		timePtrToString(req.ExecutedAt), req.BackupResourceID, req.ExecutionError,
		req.CreatedAt.Format(time.RFC3339), req.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting request: %w", err)
	}
	return nil
}

// Update rewrites every mutable column of a request row.
func (s *Store) Update(req *core.RemediationRequest) error {
	params, err := json.Marshal(req.ActionParams)
	if err != nil {
		return fmt.Errorf("marshaling action params: %w", err)
	}
	pctx, err := json.Marshal(req.PolicyContext)
	if err != nil {
		return fmt.Errorf("marshaling policy context: %w", err)
	}
	req.UpdatedAt = time.Now().UTC()

	res, err := s.db.Exec(
		`UPDATE remediation_requests SET
		        resource_type = ?, region = ?, status = ?, confidence_score = ?,
		        explainability = ?, create_backup = ?, backup_retention_days = ?,
		        backup_cost_estimate = ?, reviewed_by = ?, review_notes = ?,
		        action_params = ?, policy_context = ?, escalation_required = ?,
		        escalation_reason = ?, escalated_at = ?, scheduled_execution_at = ?,
		        executed_at = ?, backup_resource_id = ?, execution_error = ?, updated_at = ?
		 WHERE uuid = ? AND workspace_uuid = ?`,
		req.ResourceType, req.Region, string(req.Status), req.ConfidenceScore,
		req.Explainability, boolToInt(req.CreateBackup), req.BackupRetentionDays,
		req.BackupCostEstimate, req.ReviewedBy, req.ReviewNotes,
		string(params), string(pctx), boolToInt(req.EscalationRequired),
		req.EscalationReason, timePtrToString(req.EscalatedAt),
		timePtrToString(req.ScheduledExecutionAt), timePtrToString(req.ExecutedAt),
		req.BackupResourceID, req.ExecutionError, req.UpdatedAt.Format(time.RFC3339),
		req.UUID, req.WorkspaceUUID,
	)
	if err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating request %s: no matching row in workspace %s", req.UUID, req.WorkspaceUUID)
	}
	return nil
}

// Get retrieves a request by UUID.
func (s *Store) Get(requestUUID string) (*core.RemediationRequest, error) {
	rows, err := s.db.Query(
		`SELECT `+requestColumns+`
		 FROM remediation_requests WHERE workspace_uuid = ? AND uuid = ? LIMIT 1`,
		s.workspaceUUID, requestUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying request: %w", err)
	}
	defer rows.Close()

	reqs, err := scanRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("request not found: %s", requestUUID)
	}
	return &reqs[0], nil
}

// List returns workspace requests, optionally filtered by status, newest first.
func (s *Store) List(status core.RequestStatus) ([]core.RemediationRequest, error) {
	query := `SELECT ` + requestColumns + `
		 FROM remediation_requests WHERE workspace_uuid = ?`
	args := []any{s.workspaceUUID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	defer rows.Close()

	return scanRequests(rows)
}

// MonthlyCompletedSavings sums the estimated savings of requests completed in
// the month containing ref. Used by the spend guardrail.
func (s *Store) MonthlyCompletedSavings(ref time.Time) (float64, error) {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	var total sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT SUM(estimated_savings) FROM remediation_requests
		 WHERE workspace_uuid = ? AND status = ? AND executed_at >= ? AND executed_at < ?`,
		s.workspaceUUID, string(core.StatusCompleted),
		start.Format(time.RFC3339), end.Format(time.RFC3339),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing monthly savings: %w", err)
	}
	return total.Float64, nil
}

// SavingsSummary aggregates estimated savings per request status.
func (s *Store) SavingsSummary() (map[core.RequestStatus]float64, error) {
	rows, err := s.db.Query(
		`SELECT status, SUM(estimated_savings) FROM remediation_requests
		 WHERE workspace_uuid = ? GROUP BY status`,
		s.workspaceUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing savings: %w", err)
	}
	defer rows.Close()

	out := make(map[core.RequestStatus]float64)
	for rows.Next() {
		var status string
		var total sql.NullFloat64
		if err := rows.Scan(&status, &total); err != nil {
			return nil, err
		}
		out[core.RequestStatus(status)] = total.Float64
	}
	return out, rows.Err()
}

func scanRequests(rows *sql.Rows) ([]core.RemediationRequest, error) {
	var out []core.RemediationRequest
	for rows.Next() {
		var r core.RemediationRequest
		var provider, action, status, params, pctx string
		var createBackup, escalationRequired int
		var escalatedAt, scheduledAt, executedAt sql.NullString
		var createdAt, updatedAt string

		err := rows.Scan(&r.UUID, &r.WorkspaceUUID, &r.ResourceID, &r.ResourceType,
			&provider, &r.ConnectionUUID, &r.Region, &action, &status,
			&r.EstimatedSavings, &r.ConfidenceScore, &r.Explainability,
			&createBackup, &r.BackupRetentionDays, &r.BackupCostEstimate,
			&r.RequestedBy, &r.ReviewedBy, &r.ReviewNotes, &params, &pctx,
			&escalationRequired, &r.EscalationReason, &escalatedAt, &scheduledAt,
			&executedAt, &r.BackupResourceID, &r.ExecutionError, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}

		r.Provider = core.Provider(provider)
		r.Action = core.Action(action)
		r.Status = core.RequestStatus(status)
		r.CreateBackup = createBackup != 0
		r.EscalationRequired = escalationRequired != 0
		if params != "" {
			json.Unmarshal([]byte(params), &r.ActionParams)
		}
		if pctx != "" {
			json.Unmarshal([]byte(pctx), &r.PolicyContext)
		}
		r.EscalatedAt = parseTimePtr(escalatedAt)
		r.ScheduledExecutionAt = parseTimePtr(scheduledAt)
		r.ExecutedAt = parseTimePtr(executedAt)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			r.UpdatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timePtrToString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}
