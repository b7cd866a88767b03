package creatomate

import (
	"context"
	"log/slog"
	"time"
)

// ProgressSink receives terminal render notifications. Implemented by the
// progress emitter.
type ProgressSink interface {
	RenderCompleted(ctx context.Context, renderID, videoURL string)
	RenderFailed(ctx context.Context, renderID string, err error)
}

// Monitor tracks a submitted render to completion outside the pipeline.
// The pipeline hands off after submission; the monitor emits
// render_completed / render_failed when the compositor reaches a terminal
// status.
type Monitor struct {
	client   *Client
	sink     ProgressSink
	logger   *slog.Logger
	interval time.Duration
	cap      time.Duration
}

// NewMonitor creates a render monitor polling every 15 s with a 30-minute
// cap.
func NewMonitor(client *Client, sink ProgressSink, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		client:   client,
		sink:     sink,
		logger:   logger,
		interval: 15 * time.Second,
		cap:      30 * time.Minute,
	}
}

// Watch polls one render until terminal, timeout, or cancellation.
// Intended to run in its own goroutine after the pipeline returns.
func (m *Monitor) Watch(ctx context.Context, renderID string) {
	log := m.logger.With("render_id", renderID)
	deadline := time.Now().Add(m.cap)

	for {
		select {
		case <-ctx.Done():
			log.Warn("Render monitor cancelled")
			return
		case <-time.After(m.interval):
		}
		if time.Now().After(deadline) {
			log.Error("Render monitoring cap exceeded", "cap", m.cap)
			m.sink.RenderFailed(ctx, renderID, context.DeadlineExceeded)
			return
		}

		state, err := m.client.Status(ctx, renderID)
		if err != nil {
			log.Warn("Render status poll failed", "error", err)
			continue
		}
		if !state.Terminal {
			continue
		}

		if state.Status == StatusSucceeded {
			log.Info("Render completed", "url", state.URL)
			m.sink.RenderCompleted(ctx, renderID, state.URL)
		} else {
			log.Error("Render failed remotely", "status", state.Status)
			m.sink.RenderFailed(ctx, renderID, errRenderFailed)
		}
		return
	}
}

type renderFailedError struct{}

func (renderFailedError) Error() string { return "render failed" }

var errRenderFailed = renderFailedError{}
