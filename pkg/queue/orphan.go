package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks orphan detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for orphaned jobs.
// All pods run this independently; operations are idempotent.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("Orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans marks in-progress jobs with stale heartbeats as
// failed (terminal state).
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	orphans, err := p.store.RecoverOrphans(ctx, p.config.OrphanThreshold)
	if err != nil {
		return fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}

	for _, orphan := range orphans {
		slog.Warn("Orphaned job marked as failed",
			"job_id", orphan.ID,
			"old_pod_id", orphan.ClaimedBy,
			"last_heartbeat", orphan.HeartbeatAt.Format(time.RFC3339))
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += len(orphans)
	p.orphans.mu.Unlock()

	return nil
}

// CleanupStartupOrphans performs a one-time cleanup of jobs owned by this
// pod that were in progress when the pod previously crashed.
// Called once during startup, before the worker pool begins processing.
func CleanupStartupOrphans(ctx context.Context, store *Store, podID string) error {
	ids, err := store.ReleaseStartupOrphans(ctx, podID)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	slog.Warn("Found startup orphans from previous run",
		"pod_id", podID,
		"count", len(ids))
	for _, id := range ids {
		slog.Info("Startup orphan recovered", "job_id", id)
	}
	return nil
}
