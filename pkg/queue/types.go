// Package queue claims pending video jobs from PostgreSQL and drives the
// generation pipeline for each claim.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/streamgank/videogen/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no pending jobs are in the queue.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrAtCapacity indicates the global concurrent job limit has been reached.
	ErrAtCapacity = errors.New("at capacity")

	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.New("job not found")
)

// Job is one claimed video_jobs row, the unit of work handed to the
// executor.
type Job struct {
	ID         string
	WorkflowID string
	Filter     models.Filter
	CreatedAt  time.Time
}

// JobExecutor runs the pipeline for one claimed job.
//
// The executor owns the entire pipeline run: all seven steps execute
// sequentially and a step failure stops the job immediately. The worker
// only handles claiming, heartbeat, and the terminal status update.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) *ExecutionResult
}

// ExecutionResult is the terminal state of one pipeline run. The full
// JobRecord is persisted alongside the status so operators can inspect
// per-step timings and recorded errors after the fact.
type ExecutionResult struct {
	Status   models.JobStatus
	Record   *models.JobRecord
	RenderID string
	Err      error
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveJobs       int            `json:"active_jobs"`
	MaxConcurrent    int            `json:"max_concurrent"`
	QueueDepth       int            `json:"queue_depth"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
