// -- internal/humanoid/humanoid.go --
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/config"
	"go.uber.org/zap"
)

// Humanoid is the production Policy. It draws every pause and trajectory from
// a seeded RNG so a session can be replayed with the same seed.
type Humanoid struct {
	cfg    config.HumanoidConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	rng        *rand.Rand
	noiseX     *perlin.Perlin
	noiseY     *perlin.Perlin
	noiseTime  float64
	currentPos vec
}

// Option customizes a Humanoid.
type Option func(*Humanoid)

// WithSleeper replaces the context-aware sleep. Tests use it to record pauses
// without waiting.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(h *Humanoid) { h.sleep = fn }
}

// WithStartPosition sets where the cursor is assumed to be.
func WithStartPosition(p schemas.Point) Option {
	return func(h *Humanoid) { h.currentPos = fromPoint(p) }
}

// New creates a Humanoid from its configuration.
func New(cfg config.HumanoidConfig, logger *zap.Logger, opts ...Option) *Humanoid {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Standard Perlin parameters
	alpha, beta, n := 2.0, 2.0, int32(3)

	h := &Humanoid{
		cfg:    cfg,
		logger: logger.Named("humanoid"),
		sleep:  sleepCtx,
		rng:    rand.New(rand.NewSource(seed)),
		noiseX: perlin.NewPerlin(alpha, beta, n, seed),
		noiseY: perlin.NewPerlin(alpha, beta, n, seed+1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Delay pauses for a uniformly drawn duration in [min, max]. With the policy
// disabled it always waits exactly min.
func (h *Humanoid) Delay(ctx context.Context, min, max time.Duration) error {
	return h.sleep(ctx, h.uniform(min, max))
}

// Think pauses for a normally distributed duration centred between ThinkMin
// and ThinkMax, clamped to that range.
func (h *Humanoid) Think(ctx context.Context) error {
	return h.sleep(ctx, h.normal(h.cfg.ThinkMin, h.cfg.ThinkMax))
}

// Keystroke pauses between two typed characters.
func (h *Humanoid) Keystroke(ctx context.Context) error {
	return h.sleep(ctx, h.uniform(h.cfg.KeyDelayMin, h.cfg.KeyDelayMax))
}

// PollUntil polls pred with a jittered interval between attempts.
func (h *Humanoid) PollUntil(ctx context.Context, pred Predicate, opts PollOptions) (int, error) {
	return pollLoop(ctx, pred, opts, func(ctx context.Context) error {
		return h.sleep(ctx, h.uniform(opts.IntervalMin, opts.IntervalMax))
	})
}

func (h *Humanoid) uniform(min, max time.Duration) time.Duration {
	if !h.cfg.Enabled || max <= min {
		return min
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return min + time.Duration(h.rng.Int63n(int64(max-min)+1))
}

func (h *Humanoid) normal(min, max time.Duration) time.Duration {
	if !h.cfg.Enabled || max <= min {
		return min
	}
	mean := float64(min+max) / 2
	stdDev := float64(max-min) / 4

	h.mu.Lock()
	d := mean + h.rng.NormFloat64()*stdDev
	h.mu.Unlock()

	return time.Duration(math.Max(float64(min), math.Min(float64(max), d)))
}

// intn returns a value in [min, max].
func (h *Humanoid) intn(min, max int) int {
	if max <= min {
		return min
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return min + h.rng.Intn(max-min+1)
}

// jitter returns a value in [-amplitude, amplitude].
func (h *Humanoid) jitter(amplitude float64) float64 {
	if amplitude <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return (h.rng.Float64()*2 - 1) * amplitude
}

// Position returns the last known cursor position.
func (h *Humanoid) Position() schemas.Point {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos.point()
}

var _ Policy = (*Humanoid)(nil)
