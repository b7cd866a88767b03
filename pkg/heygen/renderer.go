package heygen

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/streamgank/videogen/pkg/models"
)

// maxRenderWorkers bounds the per-slot fan-out.
const maxRenderWorkers = 8

// Renderer runs the per-slot submit + poll loop for a whole script bundle.
// Slots render concurrently; one slot's failure does not cancel its peers;
// outcomes are collected and the batch fails only after every slot
// terminates.
type Renderer struct {
	client *Client
	logger *slog.Logger

	// Injectable pacing for tests.
	pollInterval func(elapsed time.Duration) time.Duration
	pollTimeout  func(scriptChars int) time.Duration
}

// NewRenderer creates a batch renderer with production pacing.
func NewRenderer(client *Client, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		client:       client,
		logger:       logger,
		pollInterval: PollInterval,
		pollTimeout:  PollTimeout,
	}
}

// RenderAll submits one avatar render per slot and polls all of them to a
// terminal state. Returns every slot's AvatarJob (sorted by slot) and
// ErrAvatarRenderFailed if any slot did not complete.
func (r *Renderer) RenderAll(ctx context.Context, templateID string, scripts map[string]string) ([]models.AvatarJob, error) {
	slots := make([]string, 0, len(scripts))
	for slot := range scripts {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	jobs := make([]models.AvatarJob, len(slots))
	sem := make(chan struct{}, maxRenderWorkers)
	var wg sync.WaitGroup

	for i, slot := range slots {
		wg.Add(1)
		go func(i int, slot string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			jobs[i] = r.renderOne(ctx, templateID, slot, scripts[slot])
		}(i, slot)
	}
	wg.Wait()

	var failed []string
	for _, job := range jobs {
		if job.Status != models.AvatarCompleted {
			failed = append(failed, job.Slot)
		}
	}
	if len(failed) > 0 {
		return jobs, fmt.Errorf("%w: slots %v did not complete", models.ErrAvatarRenderFailed, failed)
	}
	return jobs, nil
}

// renderOne submits and polls a single slot to a terminal AvatarJob.
func (r *Renderer) renderOne(ctx context.Context, templateID, slot, script string) models.AvatarJob {
	job := models.AvatarJob{
		Slot:              slot,
		Status:            models.AvatarSubmitted,
		ScriptLengthChars: len(script),
	}
	log := r.logger.With("slot", slot, "template_id", templateID)

	externalID, err := r.client.Submit(ctx, templateID, "streamgank_"+slot, script)
	if err != nil {
		log.Error("Avatar render submission failed", "error", err)
		job.Status = models.AvatarFailed
		return job
	}
	job.ExternalID = externalID

	timeout := r.pollTimeout(len(script))
	log.Info("Avatar render submitted",
		"video_id", externalID,
		"estimated", EstimateDuration(len(script)),
		"timeout", timeout)

	deadline := time.Now().Add(timeout)
	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Warn("Avatar poll cancelled", "video_id", externalID)
			job.Status = models.AvatarFailed
			return job
		case <-time.After(r.pollInterval(time.Since(started))):
		}

		if time.Now().After(deadline) {
			log.Error("Avatar render timed out", "video_id", externalID, "timeout", timeout)
			job.Status = models.AvatarFailed
			return job
		}

		status, err := r.client.Status(ctx, externalID)
		if err != nil {
			// Poll transport errors are tolerated; the deadline bounds them.
			log.Warn("Avatar status poll failed", "video_id", externalID, "error", err)
			job.RetryCount++
			continue
		}

		if job.Status == models.AvatarSubmitted && !status.Terminal {
			job.Status = models.AvatarProcessing
		}

		if !status.Terminal {
			continue
		}
		if status.Succeeded {
			job.Status = models.AvatarCompleted
			job.ResultURL = status.VideoURL
			log.Info("Avatar render completed", "video_id", externalID, "elapsed", time.Since(started))
		} else {
			job.Status = models.AvatarFailed
			log.Error("Avatar render failed remotely", "video_id", externalID, "status", status.Status)
		}
		return job
	}
}
