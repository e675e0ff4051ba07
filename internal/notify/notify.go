// Package notify records operator-facing notifications. Delivery is
// fire-and-forget into the workspace database; external channels poll the
// table. A notify failure never fails the operation that produced it.
package notify

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/costguard-framework/costguard/internal/audit"
)

// Kind classifies a notification.
type Kind string

const (
	KindEscalation      Kind = "escalation"
	KindExecutionResult Kind = "execution_result"
	KindManualFollowUp  Kind = "manual_follow_up"
	KindGuardrail       Kind = "guardrail"
)

// Notification is one row of the notifications table.
type Notification struct {
	UUID          string    `json:"uuid"`
	WorkspaceUUID string    `json:"workspace_uuid"`
	RequestUUID   string    `json:"request_uuid,omitempty"`
	Kind          Kind      `json:"kind"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notifier writes notifications for one workspace.
type Notifier struct {
	db            *sql.DB
	audit         *audit.Logger
	logger        zerolog.Logger
	workspaceUUID string
}

// NewNotifier creates a notifier for the given workspace.
func NewNotifier(db *sql.DB, al *audit.Logger, logger zerolog.Logger, workspaceUUID string) *Notifier {
	return &Notifier{
		db:            db,
		audit:         al,
		logger:        logger,
		workspaceUUID: workspaceUUID,
	}
}

// Emit records a notification. Errors are logged and swallowed.
func (n *Notifier) Emit(kind Kind, requestUUID, subject, body string) {
	id := uuid.New().String()
	_, err := n.db.Exec(
		`INSERT INTO notifications (uuid, workspace_uuid, request_uuid, kind, subject, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, n.workspaceUUID, requestUUID, string(kind), subject, body,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		n.logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to record notification")
		return
	}
	n.audit.Log(audit.EventNotificationEmitted, audit.Entry{
		RequestUUID: requestUUID,
		Actor:       "system",
		Success:     true,
		Detail: map[string]string{
			"notification": id,
			"kind":         string(kind),
			"subject":      subject,
		},
	})
}

// List returns the most recent notifications, newest first.
func (n *Notifier) List(limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := n.db.Query(
		`SELECT uuid, workspace_uuid, request_uuid, kind, subject, body, created_at
		 FROM notifications WHERE workspace_uuid = ?
		 ORDER BY created_at DESC LIMIT ?`,
		n.workspaceUUID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var nt Notification
		var kind, createdAt string
		if err := rows.Scan(&nt.UUID, &nt.WorkspaceUUID, &nt.RequestUUID, &kind,
			&nt.Subject, &nt.Body, &createdAt); err != nil {
			return nil, err
		}
		nt.Kind = Kind(kind)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			nt.CreatedAt = t
		}
		out = append(out, nt)
	}
	return out, rows.Err()
}
