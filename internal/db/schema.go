// Package db provides SQLite database management for CostGuard workspaces.
// Two databases per workspace: costguard.db (metadata) and costguard-audit.db
// (append-only audit log).
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const (
	MetadataDBFile = "costguard.db"
	AuditDBFile    = "costguard-audit.db"
)

// MetadataSchema defines all tables for the main workspace database.
const MetadataSchema = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

-- Workspace (tenant) metadata
CREATE TABLE IF NOT EXISTS workspaces (
    uuid            TEXT PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    description     TEXT DEFAULT '',
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    owner           TEXT NOT NULL DEFAULT 'local',
    settings        TEXT DEFAULT '{}',  -- JSON WorkspaceSettings
    path            TEXT NOT NULL
);

-- Provider connections (non-secret metadata; secrets live in the vault)
CREATE TABLE IF NOT EXISTS connections (
    uuid             TEXT PRIMARY KEY,
    workspace_uuid   TEXT NOT NULL REFERENCES workspaces(uuid),
    provider         TEXT NOT NULL,
    label            TEXT NOT NULL,
    account_id       TEXT DEFAULT '',
    region           TEXT DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'unverified',
    last_verified_at TEXT,
    created_at       TEXT NOT NULL,
    created_by       TEXT NOT NULL DEFAULT 'local'
);

CREATE INDEX IF NOT EXISTS idx_connections_workspace ON connections(workspace_uuid);
CREATE INDEX IF NOT EXISTS idx_connections_provider ON connections(workspace_uuid, provider, status);

-- Remediation requests
CREATE TABLE IF NOT EXISTS remediation_requests (
    uuid                    TEXT PRIMARY KEY,
    workspace_uuid          TEXT NOT NULL REFERENCES workspaces(uuid),
    resource_id             TEXT NOT NULL,
    resource_type           TEXT DEFAULT '',
    provider                TEXT NOT NULL,
    connection_uuid         TEXT DEFAULT '',
    region                  TEXT NOT NULL DEFAULT 'global',
    action                  TEXT NOT NULL,
    status                  TEXT NOT NULL DEFAULT 'pending',
    estimated_savings       REAL NOT NULL DEFAULT 0,
    confidence_score        TEXT DEFAULT '',
    explainability          TEXT DEFAULT '',
    create_backup           INTEGER DEFAULT 0,
    backup_retention_days   INTEGER DEFAULT 0,
    backup_cost_estimate    REAL DEFAULT 0,
    requested_by            TEXT NOT NULL,
    reviewed_by             TEXT DEFAULT '',
    review_notes            TEXT DEFAULT '',
    action_params           TEXT DEFAULT '{}',  -- JSON map, user-supplied
    policy_context          TEXT DEFAULT '{}',  -- JSON PolicyContext, system-stamped
    escalation_required     INTEGER DEFAULT 0,
    escalation_reason       TEXT DEFAULT '',
    escalated_at            TEXT,
    scheduled_execution_at  TEXT,
    executed_at             TEXT,
    backup_resource_id      TEXT DEFAULT '',
    execution_error         TEXT DEFAULT '',
    created_at              TEXT NOT NULL,
    updated_at              TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_workspace ON remediation_requests(workspace_uuid);
CREATE INDEX IF NOT EXISTS idx_requests_status ON remediation_requests(workspace_uuid, status);
CREATE INDEX IF NOT EXISTS idx_requests_resource ON remediation_requests(resource_id);

-- Deferred jobs (grace-period re-executions)
CREATE TABLE IF NOT EXISTS jobs (
    uuid            TEXT PRIMARY KEY,
    workspace_uuid  TEXT NOT NULL REFERENCES workspaces(uuid),
    job_type        TEXT NOT NULL DEFAULT 'remediation',
    request_uuid    TEXT NOT NULL REFERENCES remediation_requests(uuid),
    scheduled_for   TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'queued',
    created_at      TEXT NOT NULL,
    completed_at    TEXT,
    last_error      TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(workspace_uuid, status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_jobs_request ON jobs(request_uuid);

-- Notifications (fire-and-forget sink)
CREATE TABLE IF NOT EXISTS notifications (
    uuid            TEXT PRIMARY KEY,
    workspace_uuid  TEXT NOT NULL REFERENCES workspaces(uuid),
    request_uuid    TEXT DEFAULT '',
    kind            TEXT NOT NULL,
    subject         TEXT NOT NULL,
    body            TEXT DEFAULT '',
    created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_workspace ON notifications(workspace_uuid);
`

// AuditSchema defines the append-only audit log table.
const AuditSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    workspace_uuid  TEXT NOT NULL,
    request_uuid    TEXT DEFAULT '',
    actor           TEXT NOT NULL DEFAULT 'system',
    event_type      TEXT NOT NULL,
    resource_id     TEXT DEFAULT '',
    resource_type   TEXT DEFAULT '',
    success         INTEGER DEFAULT 1,
    error           TEXT DEFAULT '',
    detail          TEXT DEFAULT '{}',
    record_hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_workspace ON audit_log(workspace_uuid);
CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_request ON audit_log(request_uuid);
`

// OpenMetadataDB opens or creates the metadata database for a workspace.
func OpenMetadataDB(workspacePath string) (*sql.DB, error) {
	dbPath := filepath.Join(workspacePath, MetadataDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}

	if _, err := db.Exec(MetadataSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing metadata schema: %w", err)
	}

	return db, nil
}

// OpenAuditDB opens or creates the append-only audit database for a workspace.
func OpenAuditDB(workspacePath string) (*sql.DB, error) {
	dbPath := filepath.Join(workspacePath, AuditDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if _, err := db.Exec(AuditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return db, nil
}

// EnsureWorkspaceDir creates the workspace directory structure.
func EnsureWorkspaceDir(path string) error {
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}
