// Package audit provides the append-only audit logging system for CostGuard.
// Audit records form a hash chain for tamper detection. Logging failures are
// reported to the caller but must never abort a remediation transition.
package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType categorizes audit log entries.
type EventType string

const (
	EventRequestCreated      EventType = "request_created"
	EventRequestApproved     EventType = "request_approved"
	EventRequestRejected     EventType = "request_rejected"
	EventPolicyEvaluated     EventType = "policy_evaluated"
	EventPolicyBlock         EventType = "policy_block"
	EventPolicyEscalate      EventType = "policy_escalate"
	EventPolicyWarn          EventType = "policy_warn"
	EventExecutionScheduled  EventType = "execution_scheduled"
	EventExecutionStarted    EventType = "execution_started"
	EventExecutionCompleted  EventType = "execution_completed"
	EventExecutionFailed     EventType = "execution_failed"
	EventGuardrailTrip       EventType = "guardrail_trip"
	EventConnectionImported  EventType = "connection_imported"
	EventConnectionVerified  EventType = "connection_verified"
	EventWorkspaceCreated    EventType = "workspace_created"
	EventNotificationEmitted EventType = "notification_emitted"
)

// Entry is the non-key material recorded with an audit event.
type Entry struct {
	Actor        string
	RequestUUID  string
	ResourceID   string
	ResourceType string
	Success      bool
	Error        string
	Detail       any
}

// Logger writes tamper-evident audit records to the audit database.
type Logger struct {
	db            *sql.DB
	mu            sync.Mutex
	lastHash      string
	workspaceUUID string
}

// NewLogger creates an audit logger for the given workspace.
func NewLogger(db *sql.DB, workspaceUUID string) (*Logger, error) {
	al := &Logger{
		db:            db,
		workspaceUUID: workspaceUUID,
	}

	// Recover last hash for chain continuity
	var lastHash sql.NullString
	err := db.QueryRow(
		"SELECT record_hash FROM audit_log WHERE workspace_uuid = ? ORDER BY id DESC LIMIT 1",
		workspaceUUID,
	).Scan(&lastHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("recovering audit chain: %w", err)
	}
	if lastHash.Valid {
		al.lastHash = lastHash.String
	}

	return al, nil
}

// Log writes an audit event. The record is appended immutably with a hash chain.
func (al *Logger) Log(eventType EventType, e Entry) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	detailJSON, err := json.Marshal(e.Detail)
	if err != nil {
		detailJSON = []byte(fmt.Sprintf(`{"error":"failed to marshal detail: %s"}`, err))
	}

	now := time.Now().UTC()
	recordHash := al.computeHash(now, eventType, e.Actor, string(detailJSON))

	success := 0
	if e.Success {
		success = 1
	}

	_, err = al.db.Exec(
		`INSERT INTO audit_log (timestamp, workspace_uuid, request_uuid, actor, event_type,
		 resource_id, resource_type, success, error, detail, record_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		now.Format(time.RFC3339Nano),
		al.workspaceUUID,
		e.RequestUUID,
		e.Actor,
		string(eventType),
		e.ResourceID,
		e.ResourceType,
		success,
		e.Error,
		string(detailJSON),
		recordHash,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	al.lastHash = recordHash
	return nil
}

// computeHash creates the hash chain link: SHA-256(previousHash + timestamp + eventType + actor + detail)
func (al *Logger) computeHash(ts time.Time, eventType EventType, actor, detail string) string {
	data := al.lastHash + ts.Format(time.RFC3339Nano) + string(eventType) + actor + detail
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// Verify checks the integrity of the audit chain for a workspace.
func Verify(db *sql.DB, workspaceUUID string) (bool, int, error) {
	rows, err := db.Query(
		"SELECT timestamp, event_type, actor, detail, record_hash FROM audit_log WHERE workspace_uuid = ? ORDER BY id ASC",
		workspaceUUID,
	)
	if err != nil {
		return false, 0, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var previousHash string
	count := 0

	for rows.Next() {
		var ts, eventType, actor, detail, recordHash string
		if err := rows.Scan(&ts, &eventType, &actor, &detail, &recordHash); err != nil {
			return false, count, fmt.Errorf("scanning audit row: %w", err)
		}

		data := previousHash + ts + eventType + actor + detail
		h := sha256.Sum256([]byte(data))
		expected := hex.EncodeToString(h[:])

		if expected != recordHash {
			return false, count, fmt.Errorf("audit chain broken at record %d", count+1)
		}

		previousHash = recordHash
		count++
	}

	return true, count, nil
}
