// Package workflow runs the seven-step video generation pipeline for
// one job: catalog extraction, script generation, asset preparation,
// avatar rendering, URL resolution, composition, and render handoff.
package workflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/streamgank/videogen/pkg/cache"
	"github.com/streamgank/videogen/pkg/composition"
	"github.com/streamgank/videogen/pkg/config"
	"github.com/streamgank/videogen/pkg/metrics"
	"github.com/streamgank/videogen/pkg/models"
	"github.com/streamgank/videogen/pkg/progress"
	"github.com/streamgank/videogen/pkg/script"
)

// Pipeline step numbers and names, in execution order.
const (
	StepCatalog     = 1
	StepScripts     = 2
	StepAssets      = 3
	StepAvatars     = 4
	StepResolveURLs = 5
	StepComposition = 6
	StepHandoff     = 7
)

var stepNames = map[int]string{
	StepCatalog:     "catalog_extraction",
	StepScripts:     "script_generation",
	StepAssets:      "asset_preparation",
	StepAvatars:     "avatar_rendering",
	StepResolveURLs: "url_resolution",
	StepComposition: "composition",
	StepHandoff:     "render_handoff",
}

// CatalogExtractor is step 1. Satisfied by *catalog.Extractor.
type CatalogExtractor interface {
	Extract(ctx context.Context, filter models.Filter) ([]models.Movie, error)
}

// ScriptGenerator is step 2. Satisfied by *script.Generator.
type ScriptGenerator interface {
	Generate(ctx context.Context, movies []models.Movie, filter models.Filter, outDir string) (*script.Result, error)
}

// AssetPreparer is step 3. Satisfied by *assets.Preparer. The second
// return value is the non-fatal scroll screencast error.
type AssetPreparer interface {
	Prepare(ctx context.Context, movies []models.Movie, filter models.Filter, jobID, tempDir string) (*models.AssetBundle, error, error)
}

// AvatarRenderer is step 4. Satisfied by *heygen.Renderer.
type AvatarRenderer interface {
	RenderAll(ctx context.Context, templateID string, scripts map[string]string) ([]models.AvatarJob, error)
}

// URLVerifier checks avatar URLs in step 5. Satisfied by *media.Fetcher.
type URLVerifier interface {
	VerifyVideoURL(ctx context.Context, url string) error
}

// DurationProber feeds the heygen_last3s poster strategy. Satisfied by
// *media.Prober.
type DurationProber interface {
	Durations(ctx context.Context, urls map[string]string, scriptChars map[string]int) map[string]float64
}

// CompositionSubmitter is step 7's compositor. Satisfied by
// *creatomate.Client.
type CompositionSubmitter interface {
	Submit(ctx context.Context, source map[string]any) (string, error)
}

// Orchestrator owns the JobRecord for a job's duration and drives the
// steps sequentially.
type Orchestrator struct {
	catalog    CatalogExtractor
	scripts    ScriptGenerator
	assets     AssetPreparer
	avatars    AvatarRenderer
	verifier   URLVerifier
	prober     DurationProber
	builder    *composition.Builder
	compositor CompositionSubmitter
	emitter    *progress.Emitter
	store      *cache.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger

	posterStrategy   config.PosterStrategy
	templateOverride string
	workDir          string
}

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Catalog    CatalogExtractor
	Scripts    ScriptGenerator
	Assets     AssetPreparer
	Avatars    AvatarRenderer
	Verifier   URLVerifier
	Prober     DurationProber
	Builder    *composition.Builder
	Compositor CompositionSubmitter
	Emitter    *progress.Emitter
	Store      *cache.Store
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	PosterStrategy   config.PosterStrategy
	TemplateOverride string
	// WorkDir roots the per-job temp directories; empty uses the system
	// temp dir.
	WorkDir string
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		catalog:          deps.Catalog,
		scripts:          deps.Scripts,
		assets:           deps.Assets,
		avatars:          deps.Avatars,
		verifier:         deps.Verifier,
		prober:           deps.Prober,
		builder:          deps.Builder,
		compositor:       deps.Compositor,
		emitter:          deps.Emitter,
		store:            deps.Store,
		metrics:          deps.Metrics,
		logger:           logger,
		posterStrategy:   deps.PosterStrategy,
		templateOverride: deps.TemplateOverride,
		workDir:          deps.WorkDir,
	}
}

// NewWorkflowID mints a per-job workflow identifier, also used as the
// job log file name.
func NewWorkflowID(now time.Time) string {
	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("wf_%d_%s", now.Unix(), hex.EncodeToString(suffix))
}

// Run executes the pipeline. The returned record is populated up to the
// point of failure; a nil error means the job reached render handoff.
func (o *Orchestrator) Run(ctx context.Context, jobID, workflowID string, filter models.Filter) (*models.JobRecord, error) {
	record := &models.JobRecord{
		JobID:       jobID,
		WorkflowID:  workflowID,
		Filter:      filter,
		StepTimings: make(map[string]time.Duration),
		StartedAt:   time.Now().UTC(),
		Status:      models.JobStatusRunning,
	}

	if err := config.ValidateFilter(&record.Filter); err != nil {
		record.Status = models.JobStatusFailed
		record.RecordError("validation", models.ErrorKind(err), err.Error())
		return record, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}

	// Per-job temp directory; removed on every exit path.
	tempDir, err := os.MkdirTemp(o.workDir, "videogen_"+workflowID+"_")
	if err != nil {
		record.Status = models.JobStatusFailed
		return record, fmt.Errorf("creating job temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	o.emitter.WorkflowStarted(ctx, record.Filter)

	err = o.runSteps(ctx, record, tempDir)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			record.Status = models.JobStatusCancelled
		} else {
			record.Status = models.JobStatusFailed
		}
		if o.metrics != nil {
			o.metrics.CountJob(string(record.Status))
		}
		o.store.Save(record)
		return record, err
	}

	record.Status = models.JobStatusCompleted
	if o.metrics != nil {
		o.metrics.CountJob(string(record.Status))
	}
	o.store.Save(record)
	return record, nil
}

func (o *Orchestrator) runSteps(ctx context.Context, record *models.JobRecord, tempDir string) error {
	if err := o.runStep(ctx, record, StepCatalog, func(ctx context.Context) error {
		movies, err := o.catalog.Extract(ctx, record.Filter)
		if err != nil {
			return err
		}
		record.Movies = movies
		return nil
	}); err != nil {
		return err
	}

	if err := o.runStep(ctx, record, StepScripts, func(ctx context.Context) error {
		result, err := o.scripts.Generate(ctx, record.Movies, record.Filter, tempDir)
		if err != nil {
			return err
		}
		record.Scripts = result.Bundle
		// hook timing misses are recorded, never fatal
		for _, miss := range result.TimingUnmet {
			record.RecordError(stepNames[StepScripts], models.ErrorKind(models.ErrHookTimingUnmet),
				fmt.Sprintf("hook for %s accepted at %d words outside band", miss.Slot, miss.Words))
		}
		return nil
	}); err != nil {
		return err
	}

	if err := o.runStep(ctx, record, StepAssets, func(ctx context.Context) error {
		bundle, scrollErr, err := o.assets.Prepare(ctx, record.Movies, record.Filter, record.JobID, tempDir)
		if err != nil {
			return err
		}
		if scrollErr != nil {
			record.RecordError(stepNames[StepAssets], models.ErrorKind(scrollErr), scrollErr.Error())
			o.logger.Warn("Scroll screencast unavailable, composition degrades to static intro",
				"error", scrollErr)
		}
		record.Assets = bundle
		return nil
	}); err != nil {
		return err
	}

	if err := o.runStep(ctx, record, StepAvatars, func(ctx context.Context) error {
		templateID := config.HeyGenTemplate(record.Filter.Genre, o.templateOverride)
		jobs, err := o.avatars.RenderAll(ctx, templateID, record.Scripts.Individual)
		record.AvatarJobs = jobs
		return err
	}); err != nil {
		return err
	}

	var avatarURLs map[string]string
	if err := o.runStep(ctx, record, StepResolveURLs, func(ctx context.Context) error {
		urls, err := o.resolveAvatarURLs(ctx, record)
		if err != nil {
			return err
		}
		avatarURLs = urls
		return nil
	}); err != nil {
		return err
	}

	var renderID string
	if err := o.runStep(ctx, record, StepComposition, func(ctx context.Context) error {
		source, err := o.buildComposition(ctx, record, avatarURLs)
		if err != nil {
			return err
		}
		renderID, err = o.compositor.Submit(ctx, source)
		if err != nil {
			return err
		}
		record.CompositionID = renderID
		return nil
	}); err != nil {
		return err
	}

	return o.runStep(ctx, record, StepHandoff, func(ctx context.Context) error {
		o.emitter.CreatomateReady(ctx, renderID)
		o.logger.Info("Render handed off to monitor", "render_id", renderID)
		return nil
	})
}

// runStep wraps one step with cancellation checks, timing, progress
// emission, and metrics.
func (o *Orchestrator) runStep(ctx context.Context, record *models.JobRecord, number int, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := stepNames[number]
	o.emitter.StepStarted(ctx, number, name, nil)
	o.logger.Info("Step started", "step", name, "step_number", number)

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	record.StepTimings[name] = elapsed
	if o.metrics != nil {
		o.metrics.ObserveStep(name, elapsed.Seconds())
	}

	if err != nil {
		record.RecordError(name, models.ErrorKind(err), err.Error())
		o.emitter.StepFailed(ctx, number, name, err)
		o.emitter.WorkflowFailed(ctx, name, err)
		o.logger.Error("Step failed", "step", name, "duration", elapsed, "error", err)
		return models.NewStepError(name, models.KindOf(err), err)
	}

	o.emitter.StepCompleted(ctx, number, name, elapsed, nil)
	o.logger.Info("Step completed", "step", name, "duration", elapsed)
	return nil
}

// resolveAvatarURLs reads each completed avatar job's URL and verifies
// it serves video content. Missing, non-video, or duplicate URLs fail
// the job.
func (o *Orchestrator) resolveAvatarURLs(ctx context.Context, record *models.JobRecord) (map[string]string, error) {
	urls := make(map[string]string, len(record.AvatarJobs))
	seen := make(map[string]string, len(record.AvatarJobs))

	for _, job := range record.AvatarJobs {
		if job.Status != models.AvatarCompleted || job.ResultURL == "" {
			return nil, fmt.Errorf("%w: no result URL for %s", models.ErrAvatarURLInvalid, job.Slot)
		}
		if prev, dup := seen[job.ResultURL]; dup {
			return nil, fmt.Errorf("%w: %s and %s share result URL", models.ErrAvatarURLInvalid, prev, job.Slot)
		}
		seen[job.ResultURL] = job.Slot

		if err := o.verifier.VerifyVideoURL(ctx, job.ResultURL); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrAvatarURLInvalid, job.Slot, err)
		}
		urls[job.Slot] = job.ResultURL
	}
	return urls, nil
}

func (o *Orchestrator) buildComposition(ctx context.Context, record *models.JobRecord, avatarURLs map[string]string) (map[string]any, error) {
	in := composition.Input{
		NumMovies:  record.Filter.NumMovies,
		AvatarURLs: avatarURLs,
		Assets:     record.Assets,
	}
	if o.posterStrategy != config.PosterBetweenClips {
		scriptChars := make(map[string]int, len(record.AvatarJobs))
		for _, job := range record.AvatarJobs {
			scriptChars[job.Slot] = job.ScriptLengthChars
		}
		in.AvatarDurations = o.prober.Durations(ctx, avatarURLs, scriptChars)

		// The screencast replaces the fixed-length intro on the timeline,
		// so poster overlay times shift by its real length. An unprobeable
		// screencast degrades to the static intro rather than mistiming
		// every overlay.
		if record.Assets != nil && record.Assets.ScrollVideo != "" {
			probed := o.prober.Durations(ctx, map[string]string{"scroll": record.Assets.ScrollVideo}, nil)
			if secs := probed["scroll"]; secs > 0 {
				in.ScrollVideoSeconds = secs
			} else {
				scrollErr := fmt.Errorf("%w: screencast duration probe failed", models.ErrScrollVideoUnavailable)
				record.RecordError(stepNames[StepComposition], models.ErrorKind(scrollErr), scrollErr.Error())
				o.logger.Warn("Dropping scroll screencast from composition, duration unknown",
					"url", record.Assets.ScrollVideo)
				assets := *record.Assets
				assets.ScrollVideo = ""
				in.Assets = &assets
			}
		}
	}
	return o.builder.Build(in)
}
