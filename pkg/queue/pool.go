package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/models"
)

// WorkerPool manages a pool of queue workers.
type WorkerPool struct {
	podID    string
	store    *Store
	config   *config.QueueConfig
	executor JobExecutor
	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Job cancel registry: job_id → cancel function
	activeJobs map[string]context.CancelFunc
	mu         sync.RWMutex
	started    bool

	// Orphan detection state
	orphans orphanState
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, store *Store, cfg *config.QueueConfig, executor JobExecutor) *WorkerPool {
	return &WorkerPool{
		podID:      podID,
		store:      store,
		config:     cfg,
		executor:   executor,
		workers:    make([]*Worker, 0, cfg.WorkerCount),
		stopCh:     make(chan struct{}),
		activeJobs: make(map[string]context.CancelFunc),
	}
}

// Start spawns worker goroutines and the orphan detection background task.
// It is safe to call multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.store, p.config, p.executor, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	// Start orphan detection
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// Workers finish their current jobs before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")

	// Log active jobs
	active := p.getActiveJobIDs()
	if len(active) > 0 {
		slog.Info("Waiting for active jobs to complete",
			"count", len(active),
			"job_ids", active)
	}

	// Signal all workers to stop (they finish current jobs)
	for _, worker := range p.workers {
		worker.Stop()
	}

	// Signal orphan detection to stop
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Worker pool stopped gracefully")
}

// RegisterJob stores a cancel function for manual cancellation.
func (p *WorkerPool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeJobs[jobID] = cancel
}

// UnregisterJob removes the cancel function when processing ends.
func (p *WorkerPool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeJobs, jobID)
}

// CancelJob triggers context cancellation for a job on this pod.
// Returns true if the job was found and cancelled on this pod.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeJobs[jobID]; ok {
		cancel()
		return true
	}
	return false
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	ctx := context.Background()

	queueDepth, errQ := p.store.CountByStatus(ctx, models.JobStatusPending)
	if errQ != nil {
		slog.Error("Failed to query queue depth for health check",
			"pod_id", p.podID,
			"error", errQ)
	}

	activeJobs, errA := p.store.CountByStatus(ctx, models.JobStatusRunning)
	if errA != nil {
		slog.Error("Failed to query active jobs for health check",
			"pod_id", p.podID,
			"error", errA)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	// DB errors affect health status - if we can't reach the DB, we're not healthy
	dbHealthy := errQ == nil && errA == nil
	isHealthy := len(p.workers) > 0 && activeJobs <= p.config.MaxConcurrentJobs && dbHealthy

	p.orphans.mu.Lock()
	lastOrphanScan := p.orphans.lastOrphanScan
	orphansRecovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	var dbError string
	if !dbHealthy {
		if errQ != nil {
			dbError = fmt.Sprintf("queue depth query failed: %v", errQ)
		} else if errA != nil {
			dbError = fmt.Sprintf("active jobs query failed: %v", errA)
		}
	}

	return &PoolHealth{
		IsHealthy:        isHealthy,
		DBReachable:      dbHealthy,
		DBError:          dbError,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveJobs:       activeJobs,
		MaxConcurrent:    p.config.MaxConcurrentJobs,
		QueueDepth:       queueDepth,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastOrphanScan,
		OrphansRecovered: orphansRecovered,
	}
}

// getActiveJobIDs returns IDs of currently processing jobs (for logging).
func (p *WorkerPool) getActiveJobIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	jobs := make([]string, 0, len(p.activeJobs))
	for id := range p.activeJobs {
		jobs = append(jobs, id)
	}
	return jobs
}
