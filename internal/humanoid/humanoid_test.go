// Filename: internal/humanoid/humanoid_test.go
package humanoid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/reelpost/api/schemas"
	"github.com/xkilldash9x/reelpost/internal/config"
	"go.uber.org/zap"
)

// =============================================================================
// Test Infrastructure
// =============================================================================

type recordedWheel struct {
	at     schemas.Point
	dx, dy float64
}

// mockPointer records pointer events.
type mockPointer struct {
	mu     sync.Mutex
	moves  []schemas.Point
	wheels []recordedWheel
	err    error
}

func (m *mockPointer) MouseMove(ctx context.Context, to schemas.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.moves = append(m.moves, to)
	return nil
}

func (m *mockPointer) Wheel(ctx context.Context, at schemas.Point, dx, dy float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.wheels = append(m.wheels, recordedWheel{at: at, dx: dx, dy: dy})
	return nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testConfig() config.HumanoidConfig {
	cfg := config.NewDefaultConfig().Humanoid
	cfg.Seed = 42
	return cfg
}

func newTestHumanoid(t *testing.T, cfg config.HumanoidConfig) (*Humanoid, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	return New(cfg, zap.NewNop(), WithSleeper(rec.sleep)), rec
}

// =============================================================================
// Pauses
// =============================================================================

func TestHumanoid_DelayWithinRange(t *testing.T) {
	h, rec := newTestHumanoid(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		require.NoError(t, h.Delay(ctx, 100*time.Millisecond, 300*time.Millisecond))
	}
	for _, d := range rec.sleeps {
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestHumanoid_ThinkClamped(t *testing.T) {
	cfg := testConfig()
	h, rec := newTestHumanoid(t, cfg)

	for i := 0; i < 200; i++ {
		require.NoError(t, h.Think(context.Background()))
	}
	for _, d := range rec.sleeps {
		assert.GreaterOrEqual(t, d, cfg.ThinkMin)
		assert.LessOrEqual(t, d, cfg.ThinkMax)
	}
}

func TestHumanoid_DisabledUsesMinimum(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	h, rec := newTestHumanoid(t, cfg)

	require.NoError(t, h.Delay(context.Background(), time.Second, 5*time.Second))
	require.NoError(t, h.Think(context.Background()))
	assert.Equal(t, []time.Duration{time.Second, cfg.ThinkMin}, rec.sleeps)
}

func TestHumanoid_SameSeedSameSchedule(t *testing.T) {
	a, recA := newTestHumanoid(t, testConfig())
	b, recB := newTestHumanoid(t, testConfig())
	for i := 0; i < 20; i++ {
		require.NoError(t, a.Delay(context.Background(), 0, time.Second))
		require.NoError(t, b.Delay(context.Background(), 0, time.Second))
	}
	assert.Equal(t, recA.sleeps, recB.sleeps)
}

func TestHumanoid_RealSleepRespectsCancellation(t *testing.T) {
	h := New(testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := h.Delay(ctx, time.Minute, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

// =============================================================================
// Pointer and Wheel
// =============================================================================

func TestHumanoid_MovePointerEndsOnTarget(t *testing.T) {
	cfg := testConfig()
	h, _ := newTestHumanoid(t, cfg)
	p := &mockPointer{}
	target := schemas.Point{X: 640, Y: 400}

	require.NoError(t, h.MovePointer(context.Background(), p, target))

	require.GreaterOrEqual(t, len(p.moves), cfg.PointerStepsMin)
	require.LessOrEqual(t, len(p.moves), cfg.PointerStepsMax)
	assert.Equal(t, target, p.moves[len(p.moves)-1], "the last event lands exactly on target")
	assert.Equal(t, target, h.Position())
}

func TestHumanoid_MovePointerDisabledIsSingleEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	h, _ := newTestHumanoid(t, cfg)
	p := &mockPointer{}

	require.NoError(t, h.MovePointer(context.Background(), p, schemas.Point{X: 10, Y: 20}))
	assert.Equal(t, []schemas.Point{{X: 10, Y: 20}}, p.moves)
}

func TestHumanoid_MovePointerShortHopIsSingleEvent(t *testing.T) {
	start := schemas.Point{X: 100, Y: 100}
	h := New(testConfig(), zap.NewNop(), WithSleeper(func(context.Context, time.Duration) error { return nil }), WithStartPosition(start))
	p := &mockPointer{}

	require.NoError(t, h.MovePointer(context.Background(), p, schemas.Point{X: 101, Y: 100}))
	assert.Equal(t, []schemas.Point{{X: 101, Y: 100}}, p.moves)
}

func TestBezierEndpointsAndNormal(t *testing.T) {
	p0, p1, p2, p3 := vec{0, 0}, vec{10, 40}, vec{60, -20}, vec{100, 0}
	assert.Equal(t, p0, bezier(p0, p1, p2, p3, 0))
	assert.Equal(t, p3, bezier(p0, p1, p2, p3, 1))

	n := vec{3, 4}.normal()
	assert.InDelta(t, 1.0, n.length(), 1e-9)
	assert.InDelta(t, 0.0, n.X*3+n.Y*4, 1e-9, "perpendicular")
	assert.Equal(t, vec{}, vec{}.normal())
	assert.InDelta(t, 5.0, vec{1, 1}.dist(vec{4, 5}), 1e-9)
}

func TestHumanoid_MovePointerPropagatesErrors(t *testing.T) {
	h, _ := newTestHumanoid(t, testConfig())
	boom := errors.New("target closed")
	err := h.MovePointer(context.Background(), &mockPointer{err: boom}, schemas.Point{X: 300, Y: 300})
	assert.ErrorIs(t, err, boom)
}

func TestHumanoid_ScrollTotalsRequestedDistance(t *testing.T) {
	h, _ := newTestHumanoid(t, testConfig())
	p := &mockPointer{}

	require.NoError(t, h.Scroll(context.Background(), p, 600))

	require.Greater(t, len(p.wheels), 1, "scroll is split into several ticks")
	total := 0.0
	for _, w := range p.wheels {
		assert.Positive(t, w.dy)
		total += w.dy
	}
	assert.InDelta(t, 600, total, 1e-6)
}

func TestHumanoid_ScrollUpward(t *testing.T) {
	h, _ := newTestHumanoid(t, testConfig())
	p := &mockPointer{}
	require.NoError(t, h.Scroll(context.Background(), p, -250))
	total := 0.0
	for _, w := range p.wheels {
		assert.Negative(t, w.dy)
		total += w.dy
	}
	assert.InDelta(t, -250, total, 1e-6)
}

// =============================================================================
// Polling
// =============================================================================

func TestPollUntil(t *testing.T) {
	opts := PollOptions{IntervalMin: 10 * time.Millisecond, IntervalMax: 20 * time.Millisecond, MaxAttempts: 5}

	t.Run("succeeds on third attempt", func(t *testing.T) {
		h, rec := newTestHumanoid(t, testConfig())
		attempts, err := h.PollUntil(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
			return attempt == 3, nil
		}, opts)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Len(t, rec.sleeps, 2, "no wait after the successful attempt")
	})

	t.Run("exhausts budget", func(t *testing.T) {
		h, rec := newTestHumanoid(t, testConfig())
		attempts, err := h.PollUntil(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
			return false, nil
		}, opts)
		assert.ErrorIs(t, err, ErrPollExhausted)
		assert.Equal(t, 5, attempts)
		assert.Len(t, rec.sleeps, 4)
	})

	t.Run("predicate error stops polling", func(t *testing.T) {
		h, _ := newTestHumanoid(t, testConfig())
		boom := errors.New("boom")
		attempts, err := h.PollUntil(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
			return false, boom
		}, opts)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context", func(t *testing.T) {
		h, _ := newTestHumanoid(t, testConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.PollUntil(ctx, func(ctx context.Context, attempt int) (bool, error) {
			t.Fatal("predicate must not run after cancellation")
			return false, nil
		}, opts)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid budget", func(t *testing.T) {
		h, _ := newTestHumanoid(t, testConfig())
		_, err := h.PollUntil(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
			return true, nil
		}, PollOptions{})
		assert.Error(t, err)
	})
}

func TestInstant(t *testing.T) {
	in := NewInstant()
	var seen []int
	in.OnAttempt = func(attempt int) { seen = append(seen, attempt) }

	attempts, err := in.PollUntil(context.Background(), func(ctx context.Context, attempt int) (bool, error) {
		return attempt == 4, nil
	}, PollOptions{MaxAttempts: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
	assert.Equal(t, 4, in.Polls())

	require.NoError(t, in.Delay(context.Background(), time.Second, 3*time.Second))
	assert.Equal(t, []time.Duration{3 * time.Second}, in.Delays())

	p := &mockPointer{}
	require.NoError(t, in.MovePointer(context.Background(), p, schemas.Point{X: 1, Y: 2}))
	require.NoError(t, in.Scroll(context.Background(), p, 400))
	assert.Len(t, p.moves, 1)
	require.Len(t, p.wheels, 1)
	assert.Equal(t, 400.0, p.wheels[0].dy)
}
