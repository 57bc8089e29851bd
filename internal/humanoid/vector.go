// internal/humanoid/vector.go
package humanoid

import (
	"math"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// vec is a viewport position or offset in CSS pixels.
type vec struct {
	X, Y float64
}

func fromPoint(p schemas.Point) vec { return vec{X: p.X, Y: p.Y} }

func (v vec) point() schemas.Point { return schemas.Point{X: v.X, Y: v.Y} }

func (v vec) add(o vec) vec { return vec{X: v.X + o.X, Y: v.Y + o.Y} }

func (v vec) sub(o vec) vec { return vec{X: v.X - o.X, Y: v.Y - o.Y} }

func (v vec) scale(k float64) vec { return vec{X: v.X * k, Y: v.Y * k} }

func (v vec) length() float64 { return math.Hypot(v.X, v.Y) }

func (v vec) dist(o vec) float64 { return v.sub(o).length() }

// normal is the unit vector perpendicular to v, or zero for a zero v.
func (v vec) normal() vec {
	l := v.length()
	if l < 1e-9 {
		return vec{}
	}
	return vec{X: -v.Y / l, Y: v.X / l}
}

// bezier evaluates the cubic curve p0..p3 at t in [0, 1].
func bezier(p0, p1, p2, p3 vec, t float64) vec {
	u := 1 - t
	return p0.scale(u * u * u).
		add(p1.scale(3 * u * u * t)).
		add(p2.scale(3 * u * t * t)).
		add(p3.scale(t * t * t))
}
