// Filename: internal/humanoid/policy.go
package humanoid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// ErrPollExhausted is returned by PollUntil when the predicate never held
// within the attempt budget.
var ErrPollExhausted = errors.New("humanoid: poll budget exhausted")

// Pointer is the low-level input surface the policy drives. Browser pages
// implement it.
type Pointer interface {
	MouseMove(ctx context.Context, to schemas.Point) error
	Wheel(ctx context.Context, at schemas.Point, deltaX, deltaY float64) error
}

// Predicate is evaluated once per poll attempt. attempt is 1-based.
type Predicate func(ctx context.Context, attempt int) (bool, error)

// PollOptions bounds a polling loop.
type PollOptions struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
	MaxAttempts int
}

// Policy decides how long to wait and how to move between actions. It never
// decides whether an action happens.
type Policy interface {
	// Delay pauses for a duration drawn from [min, max].
	Delay(ctx context.Context, min, max time.Duration) error
	// Think is the default pause between two UI actions.
	Think(ctx context.Context) error
	// Keystroke is the pause between two typed characters.
	Keystroke(ctx context.Context) error
	// MovePointer moves the cursor to target along a multi-step path.
	MovePointer(ctx context.Context, p Pointer, target schemas.Point) error
	// Scroll dispatches a multi-step wheel sequence totalling dy pixels.
	Scroll(ctx context.Context, p Pointer, dy float64) error
	// PollUntil evaluates pred until it reports true, returning the attempt
	// that succeeded or ErrPollExhausted.
	PollUntil(ctx context.Context, pred Predicate, opts PollOptions) (int, error)
}

// pollLoop is the shared polling implementation. wait is called between
// attempts, never after the last one.
func pollLoop(ctx context.Context, pred Predicate, opts PollOptions, wait func(ctx context.Context) error) (int, error) {
	if opts.MaxAttempts <= 0 {
		return 0, fmt.Errorf("humanoid: invalid poll budget %d", opts.MaxAttempts)
	}
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		ok, err := pred(ctx, attempt)
		if err != nil {
			return attempt, err
		}
		if ok {
			return attempt, nil
		}
		if attempt == opts.MaxAttempts {
			break
		}
		if err := wait(ctx); err != nil {
			return attempt, err
		}
	}
	return opts.MaxAttempts, ErrPollExhausted
}

// sleepCtx blocks for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
