package humanoid

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// Instant is a deterministic Policy that never sleeps. It records every
// requested pause so tests can assert on pacing without waiting for it.
type Instant struct {
	mu     sync.Mutex
	delays []time.Duration
	moves  []schemas.Point
	polls  int

	// OnAttempt, if set, runs before every poll attempt. Tests use it to
	// mutate the fixture page between attempts.
	OnAttempt func(attempt int)
}

// NewInstant returns an Instant policy.
func NewInstant() *Instant {
	return &Instant{}
}

func (i *Instant) record(d time.Duration) {
	i.mu.Lock()
	i.delays = append(i.delays, d)
	i.mu.Unlock()
}

// Delay records max and returns immediately.
func (i *Instant) Delay(ctx context.Context, min, max time.Duration) error {
	i.record(max)
	return ctx.Err()
}

// Think records a zero pause.
func (i *Instant) Think(ctx context.Context) error {
	i.record(0)
	return ctx.Err()
}

// Keystroke returns immediately without recording.
func (i *Instant) Keystroke(ctx context.Context) error {
	return ctx.Err()
}

// MovePointer jumps straight to target in a single event.
func (i *Instant) MovePointer(ctx context.Context, p Pointer, target schemas.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	i.moves = append(i.moves, target)
	i.mu.Unlock()
	return p.MouseMove(ctx, target)
}

// Scroll dispatches a single wheel event.
func (i *Instant) Scroll(ctx context.Context, p Pointer, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Wheel(ctx, schemas.Point{}, 0, dy)
}

// PollUntil polls without waiting between attempts.
func (i *Instant) PollUntil(ctx context.Context, pred Predicate, opts PollOptions) (int, error) {
	wrapped := func(ctx context.Context, attempt int) (bool, error) {
		i.mu.Lock()
		i.polls++
		hook := i.OnAttempt
		i.mu.Unlock()
		if hook != nil {
			hook(attempt)
		}
		return pred(ctx, attempt)
	}
	return pollLoop(ctx, wrapped, opts, func(ctx context.Context) error { return ctx.Err() })
}

// Delays returns a copy of the recorded pauses.
func (i *Instant) Delays() []time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]time.Duration(nil), i.delays...)
}

// Moves returns a copy of the pointer targets.
func (i *Instant) Moves() []schemas.Point {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]schemas.Point(nil), i.moves...)
}

// Polls is the total number of predicate evaluations.
func (i *Instant) Polls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.polls
}

var _ Policy = (*Instant)(nil)
