// Package progress emits step lifecycle events to the job-tracking webhook.
//
// Emission is fire-and-forget: a failure to reach the endpoint is logged
// and never fails the job. Events carry a per-job monotonic microsecond
// sequence so the receiving end can reorder late arrivals.
package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/streamgank/videogen/pkg/models"
)

const webhookPath = "/api/webhooks/step-update"

// emitTimeout bounds a single webhook POST.
const emitTimeout = 5 * time.Second

// Emitter publishes ProgressEvents for one job.
type Emitter struct {
	jobID      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	lastSeq int64
}

// NewEmitter creates an emitter for one job. baseURL may be empty, in which
// case events are logged but not delivered (webhook disabled).
func NewEmitter(jobID, baseURL string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		jobID:      jobID,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: emitTimeout},
		logger:     logger,
	}
}

// StepStarted emits a started event for a step.
func (e *Emitter) StepStarted(ctx context.Context, stepNumber int, stepName string, details map[string]any) {
	e.emit(ctx, stepNumber, stepName, models.ProgressStarted, nil, details)
}

// StepCompleted emits a completed event carrying the step duration.
func (e *Emitter) StepCompleted(ctx context.Context, stepNumber int, stepName string, duration time.Duration, details map[string]any) {
	secs := duration.Seconds()
	e.emit(ctx, stepNumber, stepName, models.ProgressCompleted, &secs, details)
}

// StepFailed emits a failed event with the error message in details.
func (e *Emitter) StepFailed(ctx context.Context, stepNumber int, stepName string, err error) {
	e.emit(ctx, stepNumber, stepName, models.ProgressFailed, nil, map[string]any{
		"error": err.Error(),
		"kind":  models.ErrorKind(err),
	})
}

// CreatomateReady emits the render-handoff event carrying the render ID.
func (e *Emitter) CreatomateReady(ctx context.Context, renderID string) {
	e.emit(ctx, 8, "render_handoff", models.ProgressCreatomateReady, nil, map[string]any{
		"render_id": renderID,
	})
}

// emit builds the event, assigns the sequence, and posts it asynchronously.
func (e *Emitter) emit(ctx context.Context, stepNumber int, stepName string, status models.ProgressStatus, duration *float64, details map[string]any) {
	now := time.Now()
	event := models.ProgressEvent{
		JobID:      e.jobID,
		StepNumber: stepNumber,
		StepName:   stepName,
		Status:     status,
		Duration:   duration,
		Details:    details,
		Sequence:   e.nextSequence(now),
		Timestamp:  float64(now.UnixNano()) / float64(time.Second),
	}

	if e.baseURL == "" {
		e.logger.Info("Progress event (webhook disabled)",
			"step", stepName, "status", status, "sequence", event.Sequence)
		return
	}

	// Fire-and-forget: detach from the step's context so cancellation of the
	// job does not drop the terminal event mid-flight.
	go e.post(context.WithoutCancel(ctx), event)
}

// nextSequence returns a strictly increasing microsecond counter.
func (e *Emitter) nextSequence(now time.Time) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	seq := now.UnixMicro()
	if seq <= e.lastSeq {
		seq = e.lastSeq + 1
	}
	e.lastSeq = seq
	return seq
}

func (e *Emitter) post(ctx context.Context, event models.ProgressEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		e.logger.Warn("Failed to marshal progress event", "step", event.StepName, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+webhookPath, bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("Failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("Progress webhook unreachable",
			"step", event.StepName, "status", event.Status, "error", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		e.logger.Warn("Progress webhook rejected event",
			"step", event.StepName, "http_status", resp.StatusCode)
	}
}

// WorkflowStarted and WorkflowFailed are the job-level bracket events
// (step number 0).
func (e *Emitter) WorkflowStarted(ctx context.Context, filter models.Filter) {
	e.emit(ctx, 0, "workflow_started", models.ProgressStarted, nil, map[string]any{
		"country":      filter.Country,
		"platform":     filter.Platform,
		"genre":        filter.Genre,
		"content_type": filter.ContentType,
		"num_movies":   filter.NumMovies,
	})
}

func (e *Emitter) WorkflowFailed(ctx context.Context, step string, err error) {
	e.emit(ctx, 0, "workflow_failed", models.ProgressFailed, nil, map[string]any{
		"failed_step": step,
		"error":       err.Error(),
		"kind":        models.ErrorKind(err),
	})
}

// RenderCompleted and RenderFailed are emitted by the render monitor
// after the pipeline has already handed off.
func (e *Emitter) RenderCompleted(ctx context.Context, renderID, videoURL string) {
	e.emit(ctx, 8, "render_completed", models.ProgressCompleted, nil, map[string]any{
		"render_id": renderID,
		"video_url": videoURL,
	})
}

func (e *Emitter) RenderFailed(ctx context.Context, renderID string, err error) {
	e.emit(ctx, 8, "render_failed", models.ProgressFailed, nil, map[string]any{
		"render_id": renderID,
		"error":     err.Error(),
	})
}
