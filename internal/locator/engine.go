// internal/locator/engine.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/browser"
	"github.com/xkilldash9x/reelpost/internal/humanoid"
)

// ErrLocatorMiss is wrapped by every MissError.
var ErrLocatorMiss = errors.New("locator: no entry in the chain matched")

// MissError reports an exhausted chain. Err holds the last query error seen
// along the way, if any.
type MissError struct {
	Target schemas.SemanticTarget
	Tried  int
	Err    error
}

func (e *MissError) Error() string {
	msg := fmt.Sprintf("locator: %s not found after %d strategies", e.Target, e.Tried)
	if e.Err != nil {
		msg += ": last error: " + e.Err.Error()
	}
	return msg
}

func (e *MissError) Is(target error) bool { return target == ErrLocatorMiss }

func (e *MissError) Unwrap() error { return e.Err }

// Resolution is a resolved target.
type Resolution struct {
	Target  schemas.SemanticTarget
	Element browser.Element
	State   browser.ElementState
	Spec    schemas.LocatorSpec
	// Index is the 0-based chain position that matched.
	Index int
}

// Strategy is the 1-based chain position, as reported in stage results.
func (r *Resolution) Strategy() int { return r.Index + 1 }

// Engine resolves semantic targets on one page.
type Engine struct {
	page   browser.Page
	table  Table
	logger *zap.Logger

	mu   sync.Mutex
	hits map[schemas.SemanticTarget][]int
}

// NewEngine creates an engine over page using table.
func NewEngine(page browser.Page, table Table, logger *zap.Logger) *Engine {
	return &Engine{
		page:   page,
		table:  table,
		logger: logger.Named("locator"),
		hits:   make(map[schemas.SemanticTarget][]int),
	}
}

// Table returns the engine's table.
func (e *Engine) Table() Table { return e.table }

// Resolve walks the target's chain in order and returns the first element
// that is connected and satisfies the spec's visibility and enabled
// requirements.
func (e *Engine) Resolve(ctx context.Context, target schemas.SemanticTarget) (*Resolution, error) {
	chain := e.table[target]
	var lastErr error

	for i, spec := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := e.trySpec(ctx, target, i, spec)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Debug("Locator strategy errored", zap.String("target", string(target)),
				zap.Int("strategy", i+1), zap.String("spec", spec.Key()), zap.Error(err))
			lastErr = err
			continue
		}
		if res != nil {
			e.record(target, i, len(chain))
			e.logger.Debug("Target resolved", zap.String("target", string(target)),
				zap.Int("strategy", res.Strategy()), zap.String("spec", spec.Key()),
				zap.String("element", res.Element.Handle()))
			return res, nil
		}
	}
	return nil, &MissError{Target: target, Tried: len(chain), Err: lastErr}
}

func (e *Engine) trySpec(ctx context.Context, target schemas.SemanticTarget, index int, spec schemas.LocatorSpec) (*Resolution, error) {
	els, err := e.page.Query(ctx, spec)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		st, err := e.page.Inspect(ctx, el)
		if err != nil {
			if errors.Is(err, browser.ErrStaleElement) {
				continue
			}
			return nil, err
		}
		if !st.Connected {
			continue
		}
		if spec.RequiresVisible && !st.Visible {
			continue
		}
		if spec.RequiresEnabled && !st.Enabled {
			continue
		}
		return &Resolution{Target: target, Element: el, State: st, Spec: spec, Index: index}, nil
	}
	return nil, nil
}

// Present reports whether the target currently resolves. A miss is not an
// error.
func (e *Engine) Present(ctx context.Context, target schemas.SemanticTarget) (bool, error) {
	_, err := e.Resolve(ctx, target)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrLocatorMiss) {
		return false, nil
	}
	return false, err
}

// Do resolves the target and runs fn on it. If fn fails with a stale
// element the target is re-resolved and fn retried exactly once.
func (e *Engine) Do(ctx context.Context, target schemas.SemanticTarget, fn func(ctx context.Context, r *Resolution) error) (*Resolution, error) {
	res, err := e.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	err = fn(ctx, res)
	if err == nil || !errors.Is(err, browser.ErrStaleElement) {
		return res, err
	}

	e.logger.Debug("Element went stale, re-resolving", zap.String("target", string(target)),
		zap.String("element", res.Element.Handle()))
	res, err = e.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	return res, fn(ctx, res)
}

func (e *Engine) record(target schemas.SemanticTarget, index, chainLen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := e.hits[target]
	if len(counts) < chainLen {
		grown := make([]int, chainLen)
		copy(grown, counts)
		counts = grown
	}
	counts[index]++
	e.hits[target] = counts
}

// Stats returns a snapshot of per-target hit counts by chain position.
func (e *Engine) Stats() map[schemas.SemanticTarget][]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[schemas.SemanticTarget][]int, len(e.hits))
	for target, counts := range e.hits {
		out[target] = append([]int(nil), counts...)
	}
	return out
}

// Click resolves the target, glides the pointer to it and clicks it, with
// the same single stale retry as Do.
func (e *Engine) Click(ctx context.Context, target schemas.SemanticTarget, policy humanoid.Policy) (*Resolution, error) {
	return e.Do(ctx, target, func(ctx context.Context, r *Resolution) error {
		if !r.State.Box.Empty() {
			if err := policy.MovePointer(ctx, e.page, r.State.Box.Center()); err != nil {
				return err
			}
		}
		return e.page.Click(ctx, r.Element)
	})
}
