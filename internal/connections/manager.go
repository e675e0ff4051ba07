// Package connections manages provider connections: importing credentials
// into the vault, verifying them against the provider, and tracking their
// lifecycle in the workspace metadata database.
package connections

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/costguard-framework/costguard/internal/audit"
	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/credentials"
	"github.com/costguard-framework/costguard/internal/strategy"
)

const connectionColumns = `uuid, workspace_uuid, provider, label, account_id, region,
	        status, last_verified_at, created_at, created_by`

// Manager handles connection operations for one workspace.
type Manager struct {
	db            *sql.DB
	audit         *audit.Logger
	resolver      *credentials.Resolver
	awsFactory    *awsadapter.ClientFactory
	workspaceUUID string
}

// NewManager creates a connection manager for the given workspace.
func NewManager(db *sql.DB, al *audit.Logger, resolver *credentials.Resolver, awsFactory *awsadapter.ClientFactory, workspaceUUID string) *Manager {
	return &Manager{
		db:            db,
		audit:         al,
		resolver:      resolver,
		awsFactory:    awsFactory,
		workspaceUUID: workspaceUUID,
	}
}

// ImportParams describes a connection import. Secret holds the raw
// credential fields; it goes straight to the vault and is never persisted in
// the metadata database.
type ImportParams struct {
	Provider  core.Provider
	Label     string
	AccountID string
	Region    string
	Secret    map[string]string
	CreatedBy string
}

// Import stores a new connection: metadata row plus vault secret.
func (m *Manager) Import(p ImportParams) (*core.Connection, error) {
	if p.Label == "" {
		return nil, fmt.Errorf("connection label is required")
	}
	known := false
	for _, kp := range core.KnownProviders {
		if p.Provider == kp {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown provider: %s", p.Provider)
	}

	conn := &core.Connection{
		UUID:          uuid.New().String(),
		WorkspaceUUID: m.workspaceUUID,
		Provider:      p.Provider,
		Label:         p.Label,
		AccountID:     p.AccountID,
		Region:        p.Region,
		Status:        core.ConnectionUnverified,
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     p.CreatedBy,
	}

	if len(p.Secret) > 0 {
		if err := m.resolver.StoreSecret(conn.UUID, p.Secret); err != nil {
			return nil, fmt.Errorf("storing connection secret: %w", err)
		}
	}

	_, err := m.db.Exec(
		`INSERT INTO connections (uuid, workspace_uuid, provider, label, account_id, region,
		        status, created_at, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.UUID, conn.WorkspaceUUID, string(conn.Provider), conn.Label, conn.AccountID,
		conn.Region, string(conn.Status), conn.CreatedAt.Format(time.RFC3339), conn.CreatedBy,
	)
	if err != nil {
		// keep vault and db consistent
		_ = m.resolver.DeleteSecret(conn.UUID)
		return nil, fmt.Errorf("inserting connection: %w", err)
	}

	m.audit.Log(audit.EventConnectionImported, audit.Entry{
		Actor:   p.CreatedBy,
		Success: true,
		Detail: map[string]string{
			"connection": conn.UUID,
			"provider":   string(conn.Provider),
			"label":      conn.Label,
		},
	})
	return conn, nil
}

// List returns all connections in the workspace.
func (m *Manager) List() ([]core.Connection, error) {
	rows, err := m.db.Query(
		`SELECT `+connectionColumns+`
		 FROM connections WHERE workspace_uuid = ? ORDER BY created_at DESC`,
		m.workspaceUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	return scanConnections(rows)
}

// Get retrieves a connection by UUID or label.
func (m *Manager) Get(uuidOrLabel string) (*core.Connection, error) {
	rows, err := m.db.Query(
		`SELECT `+connectionColumns+`
		 FROM connections WHERE workspace_uuid = ? AND (uuid = ? OR label = ?) LIMIT 1`,
		m.workspaceUUID, uuidOrLabel, uuidOrLabel,
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	defer rows.Close()

	conns, err := scanConnections(rows)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("connection not found: %s", uuidOrLabel)
	}
	return &conns[0], nil
}

// ActiveForProvider returns the workspace's single active connection for a
// provider, falling back to the most recent unverified one. Used when a
// request carries no explicit connection reference.
func (m *Manager) ActiveForProvider(p core.Provider) (*core.Connection, error) {
	rows, err := m.db.Query(
		`SELECT `+connectionColumns+`
		 FROM connections
		 WHERE workspace_uuid = ? AND provider = ? AND status IN (?, ?)
		 ORDER BY CASE status WHEN ? THEN 0 ELSE 1 END, created_at DESC LIMIT 1`,
		m.workspaceUUID, string(p),
		string(core.ConnectionActive), string(core.ConnectionUnverified),
		string(core.ConnectionActive),
	)
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}
	defer rows.Close()

	conns, err := scanConnections(rows)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("no usable %s connection in workspace", p)
	}
	return &conns[0], nil
}

// Verify checks a connection's credentials against the provider and updates
// its status. Only AWS has a cheap identity call; other providers are marked
// active on the assumption the first execution will surface bad credentials.
func (m *Manager) Verify(ctx context.Context, uuidOrLabel string, actor string) (*core.Connection, error) {
	conn, err := m.Get(uuidOrLabel)
	if err != nil {
		return nil, err
	}

	status := core.ConnectionActive
	var verifyErr error

	if conn.Provider == core.ProviderAWS {
		if awsCreds, ok := m.resolver.Resolve(conn).(strategy.AWSCredentials); ok {
			_, account, _, err := m.awsFactory.GetCallerIdentity(ctx, awsadapter.StaticCredentials{
				AccessKeyID:     awsCreds.AccessKeyID,
				SecretAccessKey: awsCreds.SecretAccessKey,
				SessionToken:    awsCreds.SessionToken,
				Region:          awsadapter.ResolveRegion("", awsCreds.Region, conn.Region),
			})
			if err != nil {
				status = core.ConnectionError
				verifyErr = err
			} else if conn.AccountID == "" {
				conn.AccountID = account
			}
		} else {
			status = core.ConnectionError
			verifyErr = fmt.Errorf("no stored credentials for connection %s", conn.UUID)
		}
	}

	now := time.Now().UTC()
	_, err = m.db.Exec(
		`UPDATE connections SET status = ?, last_verified_at = ?, account_id = ?
		 WHERE uuid = ? AND workspace_uuid = ?`,
		string(status), now.Format(time.RFC3339), conn.AccountID, conn.UUID, m.workspaceUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating connection: %w", err)
	}
	conn.Status = status
	conn.LastVerifiedAt = &now

	errMsg := ""
	if verifyErr != nil {
		errMsg = verifyErr.Error()
	}
	m.audit.Log(audit.EventConnectionVerified, audit.Entry{
		Actor:   actor,
		Success: verifyErr == nil,
		Error:   errMsg,
		Detail: map[string]string{
			"connection": conn.UUID,
			"status":     string(status),
		},
	})

	if verifyErr != nil {
		return conn, fmt.Errorf("verifying connection %s: %w", conn.UUID, verifyErr)
	}
	return conn, nil
}

// Revoke marks a connection revoked and removes its vault secret.
func (m *Manager) Revoke(uuidOrLabel string, actor string) error {
	conn, err := m.Get(uuidOrLabel)
	if err != nil {
		return err
	}
	if _, err := m.db.Exec(
		`UPDATE connections SET status = ? WHERE uuid = ? AND workspace_uuid = ?`,
		string(core.ConnectionRevoked), conn.UUID, m.workspaceUUID,
	); err != nil {
		return fmt.Errorf("revoking connection: %w", err)
	}
	_ = m.resolver.DeleteSecret(conn.UUID)

	m.audit.Log(audit.EventConnectionImported, audit.Entry{
		Actor:   actor,
		Success: true,
		Detail: map[string]string{
			"connection": conn.UUID,
			"status":     "revoked",
		},
	})
	return nil
}

func scanConnections(rows *sql.Rows) ([]core.Connection, error) {
	var conns []core.Connection
	for rows.Next() {
		var c core.Connection
		var provider, status string
		var lastVerified sql.NullString
		var createdAt string

		err := rows.Scan(&c.UUID, &c.WorkspaceUUID, &provider, &c.Label, &c.AccountID,
			&c.Region, &status, &lastVerified, &createdAt, &c.CreatedBy)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		c.Provider = core.Provider(provider)
		c.Status = core.ConnectionStatus(status)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			c.CreatedAt = t
		}
		if lastVerified.Valid {
			if t, err := time.Parse(time.RFC3339, lastVerified.String); err == nil {
				c.LastVerifiedAt = &t
			}
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}
