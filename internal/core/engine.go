// engine.go provides the central Engine that wires together the per-workspace
// resources: databases, vault, audit logger.
package core

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/costguard-framework/costguard/internal/audit"
	"github.com/costguard-framework/costguard/internal/db"
	"github.com/costguard-framework/costguard/internal/logging"
	"github.com/costguard-framework/costguard/internal/vault"
	"github.com/rs/zerolog"
)

// Engine is the per-workspace resource bundle. Higher-level services
// (connections, remediation, jobs) are composed on top of it by the CLI.
type Engine struct {
	Workspace   *Workspace
	MetadataDB  *sql.DB
	AuditDB     *sql.DB
	Vault       *vault.Vault
	AuditLogger *audit.Logger
	Logger      zerolog.Logger
}

// OpenWorkspace opens an existing workspace, unlocking the vault with the given passphrase.
func OpenWorkspace(wsPath string, passphrase string) (*Engine, error) {
	metaDB, err := db.OpenMetadataDB(wsPath)
	if err != nil {
		return nil, fmt.Errorf("opening metadata database: %w", err)
	}

	auditDB, err := db.OpenAuditDB(wsPath)
	if err != nil {
		metaDB.Close()
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	ws, err := LoadWorkspaceRecord(metaDB, filepath.Base(wsPath))
	if err != nil {
		// the directory name may not be the uuid; fall back to the single record
		rows, qerr := metaDB.Query("SELECT uuid FROM workspaces LIMIT 1")
		if qerr != nil {
			metaDB.Close()
			auditDB.Close()
			return nil, fmt.Errorf("loading workspace: %w", err)
		}
		defer rows.Close()
		if rows.Next() {
			var id string
			rows.Scan(&id)
			ws, err = LoadWorkspaceRecord(metaDB, id)
			if err != nil {
				metaDB.Close()
				auditDB.Close()
				return nil, fmt.Errorf("loading workspace by uuid: %w", err)
			}
		} else {
			metaDB.Close()
			auditDB.Close()
			return nil, fmt.Errorf("no workspace found in database at %s", wsPath)
		}
	}

	vaultPath := filepath.Join(wsPath, vault.VaultFileName)
	v, err := vault.Open(vaultPath, passphrase)
	if err != nil {
		metaDB.Close()
		auditDB.Close()
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	al, err := audit.NewLogger(auditDB, ws.UUID)
	if err != nil {
		v.Close()
		metaDB.Close()
		auditDB.Close()
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	logger := logging.NewLogger("info", ws.UUID)

	return &Engine{
		Workspace:   ws,
		MetadataDB:  metaDB,
		AuditDB:     auditDB,
		Vault:       v,
		AuditLogger: al,
		Logger:      logger,
	}, nil
}

// InitWorkspace creates a new workspace with its databases and vault.
func InitWorkspace(basePath, name, description, passphrase string, settings WorkspaceSettings) (*Engine, error) {
	wm := NewWorkspaceManager(basePath)
	ws, err := wm.CreateWorkspace(name, description, "local", settings)
	if err != nil {
		return nil, err
	}

	metaDB, err := db.OpenMetadataDB(ws.Path)
	if err != nil {
		return nil, fmt.Errorf("creating metadata database: %w", err)
	}

	if err := SaveWorkspaceRecord(metaDB, ws); err != nil {
		metaDB.Close()
		return nil, fmt.Errorf("saving workspace record: %w", err)
	}

	auditDB, err := db.OpenAuditDB(ws.Path)
	if err != nil {
		metaDB.Close()
		return nil, fmt.Errorf("creating audit database: %w", err)
	}

	vaultPath := filepath.Join(ws.Path, vault.VaultFileName)
	v, err := vault.Create(vaultPath, passphrase)
	if err != nil {
		metaDB.Close()
		auditDB.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	al, err := audit.NewLogger(auditDB, ws.UUID)
	if err != nil {
		v.Close()
		metaDB.Close()
		auditDB.Close()
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	al.Log(audit.EventWorkspaceCreated, audit.Entry{
		Actor:   "local",
		Success: true,
		Detail: map[string]string{
			"workspace_uuid": ws.UUID,
			"name":           name,
		},
	})

	logger := logging.NewLogger("info", ws.UUID)

	return &Engine{
		Workspace:   ws,
		MetadataDB:  metaDB,
		AuditDB:     auditDB,
		Vault:       v,
		AuditLogger: al,
		Logger:      logger,
	}, nil
}

// Settings returns the workspace settings read fresh from the database.
// Policy and guardrail configuration must never be cached across transitions.
func (e *Engine) Settings() (WorkspaceSettings, error) {
	ws, err := LoadWorkspaceRecord(e.MetadataDB, e.Workspace.UUID)
	if err != nil {
		return WorkspaceSettings{}, err
	}
	return ws.Settings, nil
}

// UpdateSettings persists new workspace settings.
func (e *Engine) UpdateSettings(settings WorkspaceSettings) error {
	e.Workspace.Settings = settings
	return SaveWorkspaceRecord(e.MetadataDB, e.Workspace)
}

// Close cleanly shuts down all engine resources.
func (e *Engine) Close() error {
	var firstErr error
	if e.Vault != nil {
		if err := e.Vault.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.MetadataDB != nil {
		if err := e.MetadataDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.AuditDB != nil {
		if err := e.AuditDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
