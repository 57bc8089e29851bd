// internal/workflow/errors.go
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/bootstrap"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/locator"
	"github.com/xkilldash9x/reelpost/internal/modal"
)

var (
	// ErrStageTimeout means a stage's post-condition was not verified within
	// its budget.
	ErrStageTimeout = errors.New("workflow: stage post-condition not verified within budget")
	// ErrControllerBusy is returned when a second job is started on a
	// controller that is still running one.
	ErrControllerBusy = errors.New("workflow: controller is already running a job")

	// Post-condition failures. They are retried and, once the attempt
	// budget is spent, reported as stage timeouts.
	errFileRejected = fmt.Errorf("%w: file input reports no selected file", ErrStageTimeout)
	errClearFailed  = fmt.Errorf("%w: caption field could not be cleared", ErrStageTimeout)
	errCaptionShort = fmt.Errorf("%w: caption read-back below threshold", ErrStageTimeout)

	errMediaNotFound = errors.New("media file is not readable")
)

// KindOf maps an error from any workflow component onto the outcome error
// kind. Cancellation maps to ErrorKindNone; the caller reports it as a
// Cancelled outcome instead.
func KindOf(err error) schemas.ErrorKind {
	var platform *modal.PlatformError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return schemas.ErrorKindNone
	case errors.As(err, &platform):
		return schemas.ErrorKindPlatformError
	case errors.Is(err, modal.ErrModalUnclassified):
		return schemas.ErrorKindModalUnclassified
	case errors.Is(err, bootstrap.ErrRequiresManualAuth):
		return schemas.ErrorKindRequiresManualAuth
	case errors.Is(err, locator.ErrLocatorMiss):
		// Checked before timeouts: a miss may carry a per-query deadline.
		return schemas.ErrorKindLocatorMiss
	case errors.Is(err, ErrStageTimeout), errors.Is(err, context.DeadlineExceeded):
		return schemas.ErrorKindStageTimeout
	case errors.Is(err, browser.ErrStaleElement):
		return schemas.ErrorKindStaleElement
	case errors.Is(err, schemas.ErrInvalidJob), errors.Is(err, errMediaNotFound):
		return schemas.ErrorKindInvalidJob
	}
	return schemas.ErrorKindDriverError
}

// retryable reports whether a stage action may be attempted again.
func retryable(err error) bool {
	var platform *modal.PlatformError
	switch {
	case errors.Is(err, locator.ErrLocatorMiss):
		return true
	case errors.As(err, &platform),
		errors.Is(err, modal.ErrModalUnclassified),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// FailedOutcome builds the outcome for a job that failed before any stage
// ran, such as when its session could not be bootstrapped.
func FailedOutcome(job schemas.UploadJob, err error, at time.Time) schemas.UploadOutcome {
	return schemas.UploadOutcome{
		JobID:        job.ID,
		Session:      job.Session,
		FinalStatus:  schemas.FinalFailed,
		StageTrace:   []schemas.StageResult{},
		ErrorKind:    KindOf(err),
		FailedStage:  schemas.StageSessionReady,
		ErrorMessage: err.Error(),
		StartedAt:    at,
		FinishedAt:   at,
	}
}

// CancelledOutcome builds the outcome for a job that never started.
func CancelledOutcome(job schemas.UploadJob, at time.Time) schemas.UploadOutcome {
	return schemas.UploadOutcome{
		JobID:       job.ID,
		Session:     job.Session,
		FinalStatus: schemas.FinalCancelled,
		StageTrace:  []schemas.StageResult{},
		StartedAt:   at,
		FinishedAt:  at,
	}
}
