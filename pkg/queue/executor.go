package queue

import (
	"context"
	"log/slog"

	"github.com/streamgank/videogen/pkg/joblog"
	"github.com/streamgank/videogen/pkg/metrics"
	"github.com/streamgank/videogen/pkg/models"
)

// WorkflowRunner runs the seven-step pipeline for one job.
// Satisfied by *workflow.Orchestrator.
type WorkflowRunner interface {
	Run(ctx context.Context, jobID, workflowID string, filter models.Filter) (*models.JobRecord, error)
}

// RenderWatcher follows a submitted render to its terminal status.
// Satisfied by *creatomate.Monitor.
type RenderWatcher interface {
	Watch(ctx context.Context, renderID string)
}

// PipelineFactory builds the per-job runner and render watcher. A fresh
// pair is built for every job so that the progress emitter and job logger
// are keyed to that job. The watcher may be nil (render monitoring
// disabled).
type PipelineFactory func(jobID, workflowID string, logger *slog.Logger) (WorkflowRunner, RenderWatcher)

// WorkflowExecutor adapts the pipeline orchestrator to the queue's
// JobExecutor contract. It opens the per-job log file, runs the pipeline,
// and hands completed renders to the watcher goroutine.
type WorkflowExecutor struct {
	factory PipelineFactory
	logDir  string
	base    slog.Handler
	metrics *metrics.Metrics
}

// NewWorkflowExecutor creates an executor. base is the process-wide log
// handler that per-job log files tee into; logDir may be empty to disable
// per-job log files; m may be nil to disable instrumentation.
func NewWorkflowExecutor(factory PipelineFactory, logDir string, base slog.Handler, m *metrics.Metrics) *WorkflowExecutor {
	if base == nil {
		base = slog.Default().Handler()
	}
	return &WorkflowExecutor{
		factory: factory,
		logDir:  logDir,
		base:    base,
		metrics: m,
	}
}

// Execute runs the pipeline for one claimed job.
func (e *WorkflowExecutor) Execute(ctx context.Context, job *Job) *ExecutionResult {
	if e.metrics != nil {
		e.metrics.JobsInFlight.Inc()
		defer e.metrics.JobsInFlight.Dec()
	}

	logger, closeLog := e.jobLogger(job)

	runner, watcher := e.factory(job.ID, job.WorkflowID, logger)

	record, err := runner.Run(ctx, job.ID, job.WorkflowID, job.Filter)

	// Hand a successful submission to the render monitor. The watcher
	// outlives the job context; the log file stays open until it returns.
	if err == nil && watcher != nil && record != nil && record.CompositionID != "" {
		go func() {
			defer closeLog()
			watcher.Watch(context.WithoutCancel(ctx), record.CompositionID)
		}()
	} else {
		closeLog()
	}

	result := &ExecutionResult{Record: record, Err: err}
	if record != nil {
		result.Status = record.Status
		result.RenderID = record.CompositionID
	} else if result.Status == "" {
		result.Status = models.JobStatusFailed
	}
	return result
}

// jobLogger opens the per-job log file and returns a logger teeing into
// it plus the process handler. Falls back to the process handler alone if
// the file cannot be opened.
func (e *WorkflowExecutor) jobLogger(job *Job) (*slog.Logger, func()) {
	base := slog.New(e.base).With("job_id", job.ID, "workflow_id", job.WorkflowID)
	if e.logDir == "" {
		return base, func() {}
	}

	fileHandler, closer, err := joblog.Open(e.logDir, job.WorkflowID)
	if err != nil {
		base.Warn("Per-job log file unavailable, logging to process handler only", "error", err)
		return base, func() {}
	}

	logger := slog.New(joblog.NewTee(e.base, fileHandler)).
		With("job_id", job.ID, "workflow_id", job.WorkflowID)
	return logger, func() {
		if err := closer.Close(); err != nil {
			base.Warn("Failed to close job log file", "error", err)
		}
	}
}
