package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/streamgank/videogen/pkg/models"
)

// Store is the SQL layer over the video_jobs table. All claim operations
// use FOR UPDATE SKIP LOCKED so multiple pods can poll the same queue
// without stepping on each other.
type Store struct {
	db *sql.DB
}

// NewStore wraps a pooled database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// JobState is the externally visible state of a job, returned to API
// callers. Record is the raw JSONB job record, present once the job has
// reached a terminal status.
type JobState struct {
	ID           string          `json:"job_id"`
	WorkflowID   string          `json:"workflow_id"`
	Status       models.JobStatus `json:"status"`
	Filter       models.Filter   `json:"filter"`
	Record       json.RawMessage `json:"record,omitempty"`
	RenderID     string          `json:"render_id,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Enqueue inserts a new pending job.
func (s *Store) Enqueue(ctx context.Context, jobID, workflowID string, filter models.Filter) error {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return fmt.Errorf("marshaling filter: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO video_jobs (id, workflow_id, status, filter)
		VALUES ($1, $2, 'pending', $3)`,
		jobID, workflowID, filterJSON)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest pending job for podID using
// FOR UPDATE SKIP LOCKED. Returns ErrNoJobsAvailable when the queue is
// empty.
func (s *Store) ClaimNext(ctx context.Context, podID string) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		job        Job
		filterJSON []byte
	)
	// Order by created_at for FIFO processing
	err = tx.QueryRowContext(ctx,
		`SELECT id, workflow_id, filter, created_at
		FROM video_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
	).Scan(&job.ID, &job.WorkflowID, &filterJSON, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("failed to query pending job: %w", err)
	}

	if err := json.Unmarshal(filterJSON, &job.Filter); err != nil {
		return nil, fmt.Errorf("unmarshaling job filter: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE video_jobs
		SET status = 'in_progress', claimed_by = $2,
		    started_at = now(), heartbeat_at = now(), updated_at = now()
		WHERE id = $1`,
		job.ID, podID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return &job, nil
}

// Heartbeat refreshes the claim timestamp for orphan detection.
func (s *Store) Heartbeat(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE video_jobs SET heartbeat_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`,
		jobID)
	return err
}

// Finish writes the terminal status, the full job record, and the render
// ID for one job.
func (s *Store) Finish(ctx context.Context, jobID string, result *ExecutionResult) error {
	var recordJSON []byte
	if result.Record != nil {
		var err error
		recordJSON, err = json.Marshal(result.Record)
		if err != nil {
			return fmt.Errorf("marshaling job record: %w", err)
		}
	}

	var errorKind, errorMessage string
	if result.Err != nil {
		errorKind = models.ErrorKind(result.Err)
		errorMessage = result.Err.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE video_jobs
		SET status = $2, record = $3, render_id = NULLIF($4, ''),
		    error_kind = NULLIF($5, ''), error_message = NULLIF($6, ''),
		    finished_at = now(), updated_at = now()
		WHERE id = $1`,
		jobID, string(result.Status), recordJSON, result.RenderID, errorKind, errorMessage)
	if err != nil {
		return fmt.Errorf("updating terminal status: %w", err)
	}
	return nil
}

// Get returns the externally visible state of one job.
func (s *Store) Get(ctx context.Context, jobID string) (*JobState, error) {
	var (
		state        JobState
		filterJSON   []byte
		record       []byte
		renderID     sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, filter, record, render_id,
		       error_kind, error_message, created_at, started_at, finished_at
		FROM video_jobs WHERE id = $1`,
		jobID,
	).Scan(&state.ID, &state.WorkflowID, &state.Status, &filterJSON, &record,
		&renderID, &errorKind, &errorMessage, &state.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("querying job: %w", err)
	}

	if err := json.Unmarshal(filterJSON, &state.Filter); err != nil {
		return nil, fmt.Errorf("unmarshaling job filter: %w", err)
	}
	if len(record) > 0 {
		state.Record = json.RawMessage(record)
	}
	state.RenderID = renderID.String
	state.ErrorKind = errorKind.String
	state.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		state.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		state.FinishedAt = &finishedAt.Time
	}
	return &state, nil
}

// CancelPending cancels a job that has not been claimed yet. Returns
// false when the job is already running or terminal (the caller should
// then try the in-memory cancel registry).
func (s *Store) CancelPending(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE video_jobs
		SET status = 'cancelled', finished_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		jobID)
	if err != nil {
		return false, fmt.Errorf("cancelling pending job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountByStatus returns how many jobs currently carry the given status.
func (s *Store) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM video_jobs WHERE status = $1`, string(status)).Scan(&n)
	return n, err
}

// OrphanedJob describes an in-progress job whose heartbeat went stale.
type OrphanedJob struct {
	ID          string
	ClaimedBy   string
	HeartbeatAt time.Time
}

// RecoverOrphans marks in-progress jobs with stale heartbeats as failed
// and returns the recovered jobs for logging. Idempotent across pods.
func (s *Store) RecoverOrphans(ctx context.Context, threshold time.Duration) ([]OrphanedJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE video_jobs
		SET status = 'failed', error_kind = 'orphaned',
		    error_message = 'orphaned: no heartbeat from pod ' || coalesce(claimed_by, 'unknown') ||
		                    ' since ' || coalesce(heartbeat_at::text, 'unknown'),
		    finished_at = now(), updated_at = now()
		WHERE status = 'in_progress' AND heartbeat_at < now() - $1::interval
		RETURNING id, coalesce(claimed_by, ''), heartbeat_at`,
		fmt.Sprintf("%f seconds", threshold.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}
	defer rows.Close()

	var orphans []OrphanedJob
	for rows.Next() {
		var o OrphanedJob
		if err := rows.Scan(&o.ID, &o.ClaimedBy, &o.HeartbeatAt); err != nil {
			return nil, fmt.Errorf("scanning orphaned job: %w", err)
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

// ReleaseStartupOrphans fails jobs this pod claimed before a previous
// crash. Called once during startup, before workers begin processing.
func (s *Store) ReleaseStartupOrphans(ctx context.Context, podID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE video_jobs
		SET status = 'failed', error_kind = 'orphaned',
		    error_message = 'orphaned: pod ' || $1 || ' restarted while job was in progress',
		    finished_at = now(), updated_at = now()
		WHERE status = 'in_progress' AND claimed_by = $1
		RETURNING id`,
		podID)
	if err != nil {
		return nil, fmt.Errorf("failed to release startup orphans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning startup orphan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
