package humanoid

import (
	"context"
	"math"

	"github.com/xkilldash9x/reelpost/api/schemas"
	"go.uber.org/zap"
)

// computeEaseInOutCubic provides a smooth acceleration and deceleration profile for movement.
func computeEaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// bezierPath samples a cubic Bezier curve from start to end. The control
// points are pushed off the straight line by up to curvature*distance, on a
// random side.
func (h *Humanoid) bezierPath(start, end vec, steps int) []vec {
	span := end.sub(start)
	dist := span.length()
	if dist < 1.0 || steps <= 1 {
		return []vec{end}
	}

	normal := span.normal()
	p1 := start.add(span.scale(1.0 / 3.0)).add(normal.scale(h.jitter(h.cfg.PointerCurvature * dist)))
	p2 := start.add(span.scale(2.0 / 3.0)).add(normal.scale(h.jitter(h.cfg.PointerCurvature * dist)))

	path := make([]vec, steps)
	for i := range path {
		path[i] = bezier(start, p1, p2, end, computeEaseInOutCubic(float64(i)/float64(steps-1)))
	}
	return path
}

// perturb adds Perlin drift and Gaussian tremor to an intermediate point.
func (h *Humanoid) perturb(p vec) vec {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.noiseTime += 0.08
	amp := h.cfg.PointerNoise
	drift := vec{
		X: h.noiseX.Noise1D(h.noiseTime) * amp * 2,
		Y: h.noiseY.Noise1D(h.noiseTime) * amp * 2,
	}
	tremor := vec{X: h.rng.NormFloat64() * amp, Y: h.rng.NormFloat64() * amp}
	return p.add(drift).add(tremor)
}

// MovePointer moves the cursor to target through a curved, noisy path. The
// final event always lands exactly on target.
func (h *Humanoid) MovePointer(ctx context.Context, p Pointer, target schemas.Point) error {
	h.mu.Lock()
	start := h.currentPos
	h.mu.Unlock()

	end := fromPoint(target)
	var path []vec
	// Within a couple of pixels a curve is just jitter around the target.
	if h.cfg.Enabled && start.dist(end) > 2 {
		path = h.bezierPath(start, end, h.intn(h.cfg.PointerStepsMin, h.cfg.PointerStepsMax))
	} else {
		path = []vec{end}
	}

	for i, point := range path {
		if err := ctx.Err(); err != nil {
			return err
		}
		last := i == len(path)-1
		if !last {
			point = h.perturb(point)
		} else {
			point = end
		}

		if err := p.MouseMove(ctx, point.point()); err != nil {
			if ctx.Err() == nil {
				h.logger.Debug("Failed to dispatch pointer move", zap.Error(err))
			}
			return err
		}
		h.mu.Lock()
		h.currentPos = point
		h.mu.Unlock()

		if !last {
			if err := h.sleep(ctx, h.uniform(h.cfg.PointerStepGap/2, h.cfg.PointerStepGap*3/2)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Scroll splits dy into wheel ticks of roughly ScrollStepPx each, dispatched
// at the current cursor position.
func (h *Humanoid) Scroll(ctx context.Context, p Pointer, dy float64) error {
	if dy == 0 {
		return nil
	}
	h.mu.Lock()
	at := h.currentPos.point()
	h.mu.Unlock()

	sign := 1.0
	if dy < 0 {
		sign = -1.0
	}
	remaining := math.Abs(dy)
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := h.cfg.ScrollStepPx
		if h.cfg.Enabled {
			step += h.jitter(h.cfg.ScrollJitterPx)
		}
		if step <= 0 || step > remaining {
			step = remaining
		}
		if err := p.Wheel(ctx, at, 0, sign*step); err != nil {
			return err
		}
		remaining -= step
		if remaining > 0 {
			if err := h.sleep(ctx, h.uniform(h.cfg.ScrollStepGap/2, h.cfg.ScrollStepGap*3/2)); err != nil {
				return err
			}
		}
	}
	return nil
}
