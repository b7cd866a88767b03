package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// QueueConfig controls how pending video jobs are polled, claimed, and
// processed by the worker pool.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes jobs.
	WorkerCount int `envconfig:"QUEUE_WORKER_COUNT" default:"2"`

	// MaxConcurrentJobs is the global limit of jobs being processed across
	// ALL replicas/pods. Enforced by a database COUNT(*) check.
	MaxConcurrentJobs int `envconfig:"QUEUE_MAX_CONCURRENT_JOBS" default:"2"`

	// PollInterval is the base interval for checking pending jobs.
	PollInterval time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"2s"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `envconfig:"QUEUE_POLL_INTERVAL_JITTER" default:"500ms"`

	// HeartbeatInterval is how often a worker refreshes its claim on a
	// running job. Must be well under OrphanThreshold.
	HeartbeatInterval time.Duration `envconfig:"QUEUE_HEARTBEAT_INTERVAL" default:"30s"`

	// JobTimeout bounds a single pipeline run. Avatar rendering and clip
	// extraction can each take tens of minutes, so this is generous.
	JobTimeout time.Duration `envconfig:"QUEUE_JOB_TIMEOUT" default:"45m"`

	// GracefulShutdownTimeout is the max time to wait for active jobs to
	// complete during shutdown. Should match JobTimeout.
	GracefulShutdownTimeout time.Duration `envconfig:"QUEUE_GRACEFUL_SHUTDOWN_TIMEOUT" default:"45m"`

	// OrphanScanInterval is how often to scan for orphaned jobs.
	OrphanScanInterval time.Duration `envconfig:"QUEUE_ORPHAN_SCAN_INTERVAL" default:"5m"`

	// OrphanThreshold is how long a job can go without a heartbeat before
	// it is considered orphaned.
	OrphanThreshold time.Duration `envconfig:"QUEUE_ORPHAN_THRESHOLD" default:"5m"`
}

// LoadQueueConfig reads the queue configuration from the environment.
func LoadQueueConfig() (*QueueConfig, error) {
	var q QueueConfig
	if err := envconfig.Process("", &q); err != nil {
		return nil, fmt.Errorf("loading queue config from environment: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             2,
		MaxConcurrentJobs:       2,
		PollInterval:            2 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		HeartbeatInterval:       30 * time.Second,
		JobTimeout:              45 * time.Minute,
		GracefulShutdownTimeout: 45 * time.Minute,
		OrphanScanInterval:      5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}

// Validate checks cross-field queue constraints.
func (q *QueueConfig) Validate() error {
	if q.WorkerCount < 1 {
		return fmt.Errorf("QUEUE_WORKER_COUNT must be >= 1, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentJobs < 1 {
		return fmt.Errorf("QUEUE_MAX_CONCURRENT_JOBS must be >= 1, got %d", q.MaxConcurrentJobs)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("QUEUE_POLL_INTERVAL must be positive, got %v", q.PollInterval)
	}
	if q.HeartbeatInterval <= 0 {
		return fmt.Errorf("QUEUE_HEARTBEAT_INTERVAL must be positive, got %v", q.HeartbeatInterval)
	}
	if q.OrphanThreshold <= q.HeartbeatInterval {
		return fmt.Errorf("QUEUE_ORPHAN_THRESHOLD (%v) must exceed QUEUE_HEARTBEAT_INTERVAL (%v)",
			q.OrphanThreshold, q.HeartbeatInterval)
	}
	return nil
}
