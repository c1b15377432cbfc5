// Package history maintains a SQLite secondary index over the
// deployment-record and rollback events. It is derived and rebuildable
// from the per-deployment JSON files; it is never the source of truth
// for a deployment's status.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages the deployment/rollback index in SQLite.
type History struct {
	db *sql.DB
}

// NewHistory opens (creating if absent) the index database at dbPath.
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			deployment_id TEXT,
			project_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			commit_hash TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_project_started
		ON events(project_id, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordDeploy indexes a completed pipeline deployment.
func (h *History) RecordDeploy(ctx context.Context, deploymentID, projectID, status string, startedAt time.Time, completedAt *time.Time, commit, errMsg string) error {
	return h.insert(ctx, &deploymentID, projectID, KindDeploy, status, startedAt, completedAt, commit, errMsg)
}

// RecordRollback indexes a rollback action. Rollback never creates a
// deployment record, so deploymentID is always nil for these rows.
func (h *History) RecordRollback(ctx context.Context, projectID, status string, at time.Time, commit, errMsg string) error {
	return h.insert(ctx, nil, projectID, KindRollback, status, at, &at, commit, errMsg)
}

func (h *History) insert(ctx context.Context, deploymentID *string, projectID, kind, status string, startedAt time.Time, completedAt *time.Time, commit, errMsg string) error {
	var completedAtStr *string
	if completedAt != nil {
		s := completedAt.UTC().Format(time.RFC3339)
		completedAtStr = &s
	}
	var commitPtr, errPtr *string
	if commit != "" {
		commitPtr = &commit
	}
	if errMsg != "" {
		errPtr = &errMsg
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO events
		(deployment_id, project_id, kind, status, started_at, completed_at, commit_hash, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		deploymentID, projectID, kind, status,
		startedAt.UTC().Format(time.RFC3339), completedAtStr, commitPtr, errPtr,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history event: %w", err)
	}
	return nil
}

// ProjectHistory returns the most recent limit events for a project,
// newest first.
func (h *History) ProjectHistory(ctx context.Context, projectID string, limit int) ([]Row, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, deployment_id, project_id, kind, status, started_at, completed_at, commit_hash, error_message
		FROM events
		WHERE project_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query project history: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Status returns the latest event plus recent history for a project.
func (h *History) Status(ctx context.Context, projectID string, recentLimit int) (*ProjectStatus, error) {
	recent, err := h.ProjectHistory(ctx, projectID, recentLimit)
	if err != nil {
		return nil, err
	}
	status := &ProjectStatus{ProjectID: projectID, RecentHistory: recent}
	if len(recent) > 0 {
		status.Latest = &recent[0]
	}
	return status, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(s scanner) (*Row, error) {
	var r Row
	var deploymentID, completedAtStr, commitHash, errorMessage sql.NullString
	var startedAtStr string

	err := s.Scan(
		&r.ID, &deploymentID, &r.ProjectID, &r.Kind, &r.Status,
		&startedAtStr, &completedAtStr, &commitHash, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	r.StartedAt = startedAt

	if deploymentID.Valid {
		r.DeploymentID = &deploymentID.String
	}
	if commitHash.Valid {
		r.CommitHash = &commitHash.String
	}
	if errorMessage.Valid {
		r.ErrorMessage = &errorMessage.String
	}
	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		r.CompletedAt = &completedAt
	}

	return &r, nil
}
