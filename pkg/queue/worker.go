package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/models"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// JobRegistry is the subset of WorkerPool used by Worker for job
// registration.
type JobRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// Worker is a single queue worker that polls for and processes jobs.
type Worker struct {
	id       string
	podID    string
	store    *Store
	config   *config.QueueConfig
	executor JobExecutor
	pool     JobRegistry
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Health tracking
	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a new queue worker.
func NewWorker(id, podID string, store *Store, cfg *config.QueueConfig, executor JobExecutor, pool JobRegistry) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        store,
		config:       cfg,
		executor:     executor,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the current worker health status.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

// run is the main worker loop.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("Worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("Worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("Error processing job", "error", err)
				w.sleep(time.Second) // Brief backoff on error
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess checks capacity, claims a job, and processes it.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	// 1. Check global capacity (best-effort; racy with concurrent workers but
	//    bounded by WorkerCount and mitigated by poll jitter).
	activeCount, err := w.store.CountByStatus(ctx, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("checking active jobs: %w", err)
	}
	if activeCount >= w.config.MaxConcurrentJobs {
		return ErrAtCapacity
	}

	// 2. Claim next job
	job, err := w.store.ClaimNext(ctx, w.podID)
	if err != nil {
		return err
	}

	log := slog.With("job_id", job.ID, "workflow_id", job.WorkflowID, "worker_id", w.id)
	log.Info("Job claimed")

	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	// 3. Create job context with timeout
	jobCtx, cancelJob := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancelJob()

	// 4. Register cancel function for API-triggered cancellation
	w.pool.RegisterJob(job.ID, cancelJob)
	defer w.pool.UnregisterJob(job.ID)

	// 5. Start heartbeat
	heartbeatCtx, cancelHeartbeat := context.WithCancel(jobCtx)
	defer cancelHeartbeat()
	go w.runHeartbeat(heartbeatCtx, job.ID)

	// 6. Execute the pipeline
	result := w.executor.Execute(jobCtx, job)

	// 6a. Nil-guard: synthesize a safe result if the executor returned nil
	if result == nil {
		result = &ExecutionResult{}
	}

	// 7. Resolve timeout and cancellation when the executor reported neither
	if result.Status == "" || result.Status == models.JobStatusRunning {
		switch {
		case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
			result.Status = models.JobStatusFailed
			result.Err = fmt.Errorf("job timed out after %v", w.config.JobTimeout)
		case errors.Is(jobCtx.Err(), context.Canceled):
			result.Status = models.JobStatusCancelled
			result.Err = context.Canceled
		default:
			result.Status = models.JobStatusFailed
			if result.Err == nil {
				result.Err = fmt.Errorf("executor returned no terminal status")
			}
		}
	}

	// 8. Stop heartbeat before the terminal write
	cancelHeartbeat()

	// 9. Update terminal status (use background context, job ctx may be cancelled)
	if err := w.store.Finish(context.Background(), job.ID, result); err != nil {
		log.Error("Failed to update job terminal status", "error", err)
		return err
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()

	log.Info("Job processing complete", "status", result.Status)
	return nil
}

// runHeartbeat periodically refreshes the claim for orphan detection.
func (w *Worker) runHeartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, jobID); err != nil {
				slog.Warn("Heartbeat update failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.config.PollInterval
	jitter := w.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	// Range: [base - jitter, base + jitter]
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

// setStatus updates the worker's health tracking state.
func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
