// Package jobs manages the deferred-execution queue. A job is a pointer to a
// scheduled remediation request plus its due time; an external trigger (cron,
// the CLI run-due command) drains whatever is due. The engine has no internal
// timer.
package jobs

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/costguard-framework/costguard/internal/core"
)

// Queue persists deferred jobs for one workspace.
type Queue struct {
	db            *sql.DB
	workspaceUUID string
}

// NewQueue creates a job queue for the given workspace.
func NewQueue(db *sql.DB, workspaceUUID string) *Queue {
	return &Queue{db: db, workspaceUUID: workspaceUUID}
}

// Enqueue records a deferred remediation for the request, due at the given
// time. An existing queued job for the same request is reused: re-scheduling
// is idempotent.
func (q *Queue) Enqueue(requestUUID string, dueAt time.Time) (*core.Job, error) {
	existing, err := q.queuedFor(requestUUID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	job := &core.Job{
		UUID:          uuid.New().String(),
		WorkspaceUUID: q.workspaceUUID,
		Type:          core.JobRemediation,
		RequestUUID:   requestUUID,
		ScheduledFor:  dueAt.UTC(),
		Status:        core.JobQueued,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = q.db.Exec(
		`INSERT INTO jobs (uuid, workspace_uuid, job_type, request_uuid, scheduled_for, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.UUID, job.WorkspaceUUID, string(job.Type), job.RequestUUID,
		job.ScheduledFor.Format(time.RFC3339), string(job.Status),
		job.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting job: %w", err)
	}
	return job, nil
}

func (q *Queue) queuedFor(requestUUID string) (*core.Job, error) {
	rows, err := q.db.Query(
		`SELECT uuid, workspace_uuid, job_type, request_uuid, scheduled_for, status, created_at, completed_at, last_error
		 FROM jobs WHERE workspace_uuid = ? AND request_uuid = ? AND status = ? LIMIT 1`,
		q.workspaceUUID, requestUUID, string(core.JobQueued),
	)
	if err != nil {
		return nil, fmt.Errorf("querying job: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// Due returns queued jobs whose scheduled time is at or before now.
func (q *Queue) Due(now time.Time) ([]core.Job, error) {
	rows, err := q.db.Query(
		`SELECT uuid, workspace_uuid, job_type, request_uuid, scheduled_for, status, created_at, completed_at, last_error
		 FROM jobs WHERE workspace_uuid = ? AND status = ? AND scheduled_for <= ?
		 ORDER BY scheduled_for ASC`,
		q.workspaceUUID, string(core.JobQueued), now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("querying due jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// List returns every job in the workspace, newest first.
func (q *Queue) List() ([]core.Job, error) {
	rows, err := q.db.Query(
		`SELECT uuid, workspace_uuid, job_type, request_uuid, scheduled_for, status, created_at, completed_at, last_error
		 FROM jobs WHERE workspace_uuid = ? ORDER BY created_at DESC`,
		q.workspaceUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// Complete marks a job done or failed.
func (q *Queue) Complete(jobUUID string, jobErr error) error {
	status := core.JobDone
	lastError := ""
	if jobErr != nil {
		status = core.JobFailed
		lastError = core.TruncateError(jobErr.Error())
	}
	_, err := q.db.Exec(
		`UPDATE jobs SET status = ?, completed_at = ?, last_error = ?
		 WHERE uuid = ? AND workspace_uuid = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), lastError,
		jobUUID, q.workspaceUUID,
	)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

func scanJobs(rows *sql.Rows) ([]core.Job, error) {
	var out []core.Job
	for rows.Next() {
		var j core.Job
		var jobType, status, scheduledFor, createdAt string
		var completedAt sql.NullString

		err := rows.Scan(&j.UUID, &j.WorkspaceUUID, &jobType, &j.RequestUUID,
			&scheduledFor, &status, &createdAt, &completedAt, &j.LastError)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.Type = core.JobType(jobType)
		j.Status = core.JobStatus(status)
		if t, err := time.Parse(time.RFC3339, scheduledFor); err == nil {
			j.ScheduledFor = t
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			j.CreatedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
				j.CompletedAt = &t
			}
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
