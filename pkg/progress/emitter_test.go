package progress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamgank/videogen/pkg/models"
)

// collectEvents spins up a webhook endpoint that forwards decoded events.
func collectEvents(t *testing.T) (*httptest.Server, chan models.ProgressEvent) {
	t.Helper()
	events := make(chan models.ProgressEvent, 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/webhooks/step-update", r.URL.Path)
		var ev models.ProgressEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		events <- ev
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, events
}

func receive(t *testing.T, ch chan models.ProgressEvent) models.ProgressEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for progress event")
		return models.ProgressEvent{}
	}
}

func TestEmitter_StepLifecycle(t *testing.T) {
	srv, events := collectEvents(t)
	e := NewEmitter("job-1", srv.URL, nil)
	ctx := context.Background()

	e.StepStarted(ctx, 1, "catalog_extraction", map[string]any{"num_movies": 3})
	started := receive(t, events)
	assert.Equal(t, "job-1", started.JobID)
	assert.Equal(t, 1, started.StepNumber)
	assert.Equal(t, models.ProgressStarted, started.Status)
	assert.Nil(t, started.Duration)

	e.StepCompleted(ctx, 1, "catalog_extraction", 1500*time.Millisecond, nil)
	completed := receive(t, events)
	assert.Equal(t, models.ProgressCompleted, completed.Status)
	require.NotNil(t, completed.Duration)
	assert.InDelta(t, 1.5, *completed.Duration, 0.001)
}

func TestEmitter_SequenceStrictlyIncreasing(t *testing.T) {
	srv, events := collectEvents(t)
	e := NewEmitter("job-1", srv.URL, nil)
	ctx := context.Background()

	const n = 20
	for i := range n {
		e.StepStarted(ctx, i%8, "step", nil)
	}

	seen := make([]int64, 0, n)
	for range n {
		seen = append(seen, receive(t, events).Sequence)
	}
	// Events may arrive out of order (async posts); the assigned sequence
	// values themselves must be unique and sortable into a strict order.
	uniq := make(map[int64]struct{}, n)
	for _, s := range seen {
		uniq[s] = struct{}{}
	}
	assert.Len(t, uniq, n)
}

func TestEmitter_FailureNeverPanicsOrBlocks(t *testing.T) {
	// Unreachable endpoint: emit must return immediately.
	e := NewEmitter("job-1", "http://127.0.0.1:1", nil)
	done := make(chan struct{})
	go func() {
		e.StepFailed(context.Background(), 4, "avatar_rendering", errors.New("boom"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on unreachable webhook")
	}
}

func TestEmitter_CreatomateReady(t *testing.T) {
	srv, events := collectEvents(t)
	e := NewEmitter("job-1", srv.URL, nil)

	e.CreatomateReady(context.Background(), "render-42")
	ev := receive(t, events)
	assert.Equal(t, models.ProgressCreatomateReady, ev.Status)
	assert.Equal(t, 8, ev.StepNumber)
	assert.Equal(t, "render-42", ev.Details["render_id"])
}

func TestEmitter_DisabledWebhook(t *testing.T) {
	e := NewEmitter("job-1", "", nil)
	// Must not panic or attempt network IO.
	e.WorkflowStarted(context.Background(), models.Filter{Country: "US", NumMovies: 3})
}
