// Package models defines the value records passed between pipeline steps
// and the mutable job record owned by the workflow orchestrator.
package models

import (
	"fmt"
	"time"
)

// JobStatus is the terminal/non-terminal state of a video generation job.
type JobStatus string

// Job status constants.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Filter is the immutable 5-tuple defining a job's catalog selection.
// All four string fields must resolve through the mapping tables in
// pkg/config before a job is accepted.
type Filter struct {
	Country     string `json:"country"`
	Platform    string `json:"platform"`
	Genre       string `json:"genre"`
	ContentType string `json:"content_type"`
	NumMovies   int    `json:"num_movies"`
}

// Validate checks structural constraints that don't require the mapping
// tables (those are checked by config.ValidateFilter).
func (f Filter) Validate() error {
	if len(f.Country) != 2 {
		return fmt.Errorf("country must be ISO alpha-2, got %q", f.Country)
	}
	if f.Platform == "" || f.Genre == "" || f.ContentType == "" {
		return fmt.Errorf("platform, genre and content_type are required")
	}
	if f.NumMovies < 1 {
		return fmt.Errorf("num_movies must be >= 1, got %d", f.NumMovies)
	}
	return nil
}

// Movie is a catalog title produced by step 1. Read-only thereafter.
type Movie struct {
	ID             int      `json:"id"`
	Title          string   `json:"title"`
	Year           int      `json:"year"`
	Genres         []string `json:"genres"`
	Platform       string   `json:"platform"`
	IMDBScore      float64  `json:"imdb_score"`
	IMDBVotes      int      `json:"imdb_votes"`
	PosterURL      string   `json:"poster_url"`
	TrailerURL     string   `json:"trailer_url,omitempty"`
	RuntimeMinutes int      `json:"runtime_minutes,omitempty"`
}

// Slot returns the pipeline slot name for a 1-indexed position: "movie1"...
func Slot(k int) string {
	return fmt.Sprintf("movie%d", k)
}

// ScriptBundle holds the generated intro and hook scripts.
//
// Invariant: Individual["movie1"] = intro + " " + hooks[0]; for K > 1,
// Individual["movieK"] = hooks[K-1]. Exactly N avatar videos are produced,
// not N+1: the intro is folded into the first movie's script.
type ScriptBundle struct {
	Intro      string            `json:"intro"`
	Hooks      []string          `json:"hooks"`
	Combined   string            `json:"combined"`
	Individual map[string]string `json:"individual"`
	// Paths maps slot name to the on-disk script file written for the job.
	Paths map[string]string `json:"paths,omitempty"`
}

// AssetBundle is produced by step 3 (asset preparation).
// ScrollVideo is best-effort and may be empty (ScrollVideoUnavailable).
type AssetBundle struct {
	Posters     map[string]string `json:"posters"`
	Clips       map[string]string `json:"clips"`
	ScrollVideo string            `json:"scroll_video,omitempty"`
}

// AvatarJobStatus is the per-slot avatar render state machine.
type AvatarJobStatus string

// Avatar job states. Completed and Failed are terminal.
const (
	AvatarSubmitted  AvatarJobStatus = "submitted"
	AvatarProcessing AvatarJobStatus = "processing"
	AvatarCompleted  AvatarJobStatus = "completed"
	AvatarFailed     AvatarJobStatus = "failed"
)

// AvatarJob tracks one HeyGen render submission for a slot.
type AvatarJob struct {
	Slot              string          `json:"slot"`
	ExternalID        string          `json:"external_id"`
	Status            AvatarJobStatus `json:"status"`
	ResultURL         string          `json:"result_url,omitempty"`
	RetryCount        int             `json:"retry_count"`
	ScriptLengthChars int             `json:"script_length_chars"`
}

// ErrorEntry records a non-fatal or fatal error attributed to a step.
type ErrorEntry struct {
	Step    string    `json:"step"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// JobRecord is the single mutable record for one job. It is exclusively
// owned by the orchestrator for the job's duration; observers (progress
// emitter, logger) only read snapshots.
type JobRecord struct {
	JobID         string                   `json:"job_id"`
	WorkflowID    string                   `json:"workflow_id"`
	Filter        Filter                   `json:"filter"`
	Movies        []Movie                  `json:"movies,omitempty"`
	Scripts       *ScriptBundle            `json:"scripts,omitempty"`
	Assets        *AssetBundle             `json:"assets,omitempty"`
	AvatarJobs    []AvatarJob              `json:"avatar_jobs,omitempty"`
	CompositionID string                   `json:"composition_id,omitempty"`
	StepTimings   map[string]time.Duration `json:"step_timings,omitempty"`
	Errors        []ErrorEntry             `json:"errors,omitempty"`
	StartedAt     time.Time                `json:"started_at"`
	Status        JobStatus                `json:"status"`
}

// AvatarJobBySlot returns the avatar job for a slot, or nil.
func (r *JobRecord) AvatarJobBySlot(slot string) *AvatarJob {
	for i := range r.AvatarJobs {
		if r.AvatarJobs[i].Slot == slot {
			return &r.AvatarJobs[i]
		}
	}
	return nil
}

// RecordError appends an error entry attributed to a step.
func (r *JobRecord) RecordError(step, kind, message string) {
	r.Errors = append(r.Errors, ErrorEntry{
		Step:    step,
		Kind:    kind,
		Message: message,
		At:      time.Now(),
	})
}

// ProgressStatus is the status field of an emitted progress event.
type ProgressStatus string

// Progress event statuses.
const (
	ProgressStarted         ProgressStatus = "started"
	ProgressCompleted       ProgressStatus = "completed"
	ProgressFailed          ProgressStatus = "failed"
	ProgressCreatomateReady ProgressStatus = "creatomate_ready"
)

// ProgressEvent is emitted per step-start / step-complete to the job-tracking
// webhook. Sequence is a per-job monotonic microsecond counter so out-of-order
// arrival can be reordered downstream.
type ProgressEvent struct {
	JobID      string         `json:"job_id"`
	StepNumber int            `json:"step_number"`
	StepName   string         `json:"step_name"`
	Status     ProgressStatus `json:"status"`
	Duration   *float64       `json:"duration,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Sequence   int64          `json:"sequence"`
	Timestamp  float64        `json:"timestamp"`
}
