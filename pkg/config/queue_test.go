package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var queueEnvKeys = []string{
	"QUEUE_WORKER_COUNT", "QUEUE_MAX_CONCURRENT_JOBS",
	"QUEUE_POLL_INTERVAL", "QUEUE_POLL_INTERVAL_JITTER",
	"QUEUE_HEARTBEAT_INTERVAL", "QUEUE_JOB_TIMEOUT",
	"QUEUE_GRACEFUL_SHUTDOWN_TIMEOUT",
	"QUEUE_ORPHAN_SCAN_INTERVAL", "QUEUE_ORPHAN_THRESHOLD",
}

func clearQueueEnv(t *testing.T) {
	t.Helper()
	for _, key := range queueEnvKeys {
		os.Unsetenv(key)
	}
	t.Cleanup(func() {
		for _, key := range queueEnvKeys {
			os.Unsetenv(key)
		}
	})
}

func TestLoadQueueConfig_Defaults(t *testing.T) {
	clearQueueEnv(t)

	q, err := LoadQueueConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, q.WorkerCount)
	assert.Equal(t, 2, q.MaxConcurrentJobs)
	assert.Equal(t, 2*time.Second, q.PollInterval)
	assert.Equal(t, 30*time.Second, q.HeartbeatInterval)
	assert.Equal(t, 45*time.Minute, q.JobTimeout)
	assert.Equal(t, *DefaultQueueConfig(), *q)
}

func TestLoadQueueConfig_Overrides(t *testing.T) {
	clearQueueEnv(t)
	os.Setenv("QUEUE_WORKER_COUNT", "4")
	os.Setenv("QUEUE_POLL_INTERVAL", "500ms")
	os.Setenv("QUEUE_JOB_TIMEOUT", "1h")

	q, err := LoadQueueConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, q.WorkerCount)
	assert.Equal(t, 500*time.Millisecond, q.PollInterval)
	assert.Equal(t, time.Hour, q.JobTimeout)
}

func TestQueueConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*QueueConfig)
		wantErr string
	}{
		{name: "defaults valid", mutate: func(*QueueConfig) {}},
		{
			name:    "zero workers",
			mutate:  func(q *QueueConfig) { q.WorkerCount = 0 },
			wantErr: "QUEUE_WORKER_COUNT",
		},
		{
			name:    "zero concurrency",
			mutate:  func(q *QueueConfig) { q.MaxConcurrentJobs = 0 },
			wantErr: "QUEUE_MAX_CONCURRENT_JOBS",
		},
		{
			name:    "negative poll interval",
			mutate:  func(q *QueueConfig) { q.PollInterval = -time.Second },
			wantErr: "QUEUE_POLL_INTERVAL",
		},
		{
			name:    "orphan threshold below heartbeat",
			mutate:  func(q *QueueConfig) { q.OrphanThreshold = 10 * time.Second },
			wantErr: "QUEUE_ORPHAN_THRESHOLD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := DefaultQueueConfig()
			tt.mutate(q)
			err := q.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
