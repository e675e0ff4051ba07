// workspace.go implements workspace lifecycle operations.
package core

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// WorkspaceManager handles workspace CRUD operations.
type WorkspaceManager struct {
	basePath string // base directory where workspaces are stored
}

// NewWorkspaceManager creates a workspace manager using the given base directory.
func NewWorkspaceManager(basePath string) *WorkspaceManager {
	return &WorkspaceManager{basePath: basePath}
}

// CreateWorkspace creates a new workspace directory and metadata record.
func (wm *WorkspaceManager) CreateWorkspace(name, description, owner string, settings WorkspaceSettings) (*Workspace, error) {
	wsUUID := uuid.New().String()
	wsPath := filepath.Join(wm.basePath, wsUUID)

	now := time.Now().UTC()
	ws := &Workspace{
		UUID:        wsUUID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Owner:       owner,
		Settings:    settings,
		Path:        wsPath,
	}

	if err := os.MkdirAll(wsPath, 0700); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	return ws, nil
}

// SaveWorkspaceRecord persists workspace metadata to the database.
func SaveWorkspaceRecord(db *sql.DB, ws *Workspace) error {
	settingsJSON, err := json.Marshal(ws.Settings)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	ws.UpdatedAt = time.Now().UTC()
	_, err = db.Exec(
		`INSERT OR REPLACE INTO workspaces (uuid, name, description, created_at, updated_at, owner, settings, path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.UUID, ws.Name, ws.Description,
		ws.CreatedAt.Format(time.RFC3339),
		ws.UpdatedAt.Format(time.RFC3339),
		ws.Owner, string(settingsJSON), ws.Path,
	)
	return err
}

// LoadWorkspaceRecord reads workspace metadata from the database.
func LoadWorkspaceRecord(db *sql.DB, uuidOrName string) (*Workspace, error) {
	var ws Workspace
	var settingsJSON, createdAt, updatedAt string

	err := db.QueryRow(
		`SELECT uuid, name, description, created_at, updated_at, owner, settings, path
		 FROM workspaces WHERE uuid = ? OR name = ? LIMIT 1`,
		uuidOrName, uuidOrName,
	).Scan(
		&ws.UUID, &ws.Name, &ws.Description,
		&createdAt, &updatedAt,
		&ws.Owner, &settingsJSON, &ws.Path,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("workspace not found: %s", uuidOrName)
		}
		return nil, err
	}

	ws.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	ws.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	ws.Settings = DefaultWorkspaceSettings()
	json.Unmarshal([]byte(settingsJSON), &ws.Settings)

	return &ws, nil
}

// ListWorkspaces returns all workspaces from the index database.
func ListWorkspaces(db *sql.DB) ([]Workspace, error) {
	rows, err := db.Query(
		`SELECT uuid, name, description, created_at, updated_at, owner, settings, path
		 FROM workspaces ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workspace
	for rows.Next() {
		var ws Workspace
		var settingsJSON, createdAt, updatedAt string
		if err := rows.Scan(&ws.UUID, &ws.Name, &ws.Description, &createdAt, &updatedAt,
			&ws.Owner, &settingsJSON, &ws.Path); err != nil {
			return nil, err
		}
		ws.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		ws.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		ws.Settings = DefaultWorkspaceSettings()
		json.Unmarshal([]byte(settingsJSON), &ws.Settings)
		out = append(out, ws)
	}
	return out, rows.Err()
}
