package models

import (
	"errors"
	"fmt"
)

// Workflow error kinds. Each terminal job failure surfaces exactly one of
// these; non-fatal kinds (HookTimingUnmet, ScrollVideoUnavailable) are
// recorded in JobRecord.Errors while the job continues.
var (
	ErrConfigInvalid               = errors.New("config_invalid")
	ErrCatalogEmpty                = errors.New("catalog_empty")
	ErrCatalogUnavailable          = errors.New("catalog_unavailable")
	ErrScriptGenerationFailed      = errors.New("script_generation_failed")
	ErrHookTimingUnmet             = errors.New("hook_timing_unmet")
	ErrHookContentRejected         = errors.New("hook_content_rejected")
	ErrAssetGenerationFailed       = errors.New("asset_generation_failed")
	ErrScrollVideoUnavailable      = errors.New("scroll_video_unavailable")
	ErrAvatarRenderFailed          = errors.New("avatar_render_failed")
	ErrAvatarURLInvalid            = errors.New("avatar_url_invalid")
	ErrCompositionSubmissionFailed = errors.New("composition_submission_failed")
)

// StepError attributes a workflow error to the step where it occurred.
// The Kind is one of the sentinel errors above and is matchable with
// errors.Is through the wrapped chain.
type StepError struct {
	Step string
	Kind error
	Err  error
}

func (e *StepError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("step %s: %v", e.Step, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("step %s: %v", e.Step, e.Err)
	default:
		return fmt.Sprintf("step %s: %v: %v", e.Step, e.Kind, e.Err)
	}
}

func (e *StepError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewStepError wraps err with the step name and error kind.
func NewStepError(step string, kind, err error) *StepError {
	return &StepError{Step: step, Kind: kind, Err: err}
}

// KindOf returns the sentinel kind matched by err's chain, or nil.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrConfigInvalid,
		ErrCatalogEmpty,
		ErrCatalogUnavailable,
		ErrScriptGenerationFailed,
		ErrHookTimingUnmet,
		ErrHookContentRejected,
		ErrAssetGenerationFailed,
		ErrScrollVideoUnavailable,
		ErrAvatarRenderFailed,
		ErrAvatarURLInvalid,
		ErrCompositionSubmissionFailed,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// ErrorKind extracts the sentinel kind name from an error chain, or
// "internal" when none of the known kinds match.
func ErrorKind(err error) string {
	if kind := KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal"
}
