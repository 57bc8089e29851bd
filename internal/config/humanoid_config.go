// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct, which holds the tunable
// parameters of the timing/humanization policy: the jittered delays between
// actions, typing cadence and the shape of simulated pointer and wheel motion.
//
// None of these values affect correctness. They only shape how the workflow
// paces itself in front of the platform.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// HumanoidConfig holds the parameters of the timing policy.
type HumanoidConfig struct {
	// Enabled selects the humanized policy. When false the workflow still runs
	// with the same stage logic but with minimal, unjittered pauses.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Seed fixes the RNG for reproducible sessions; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	ThinkMin time.Duration `mapstructure:"think_min" yaml:"think_min"`
	ThinkMax time.Duration `mapstructure:"think_max" yaml:"think_max"`

	KeyDelayMin time.Duration `mapstructure:"key_delay_min" yaml:"key_delay_min"`
	KeyDelayMax time.Duration `mapstructure:"key_delay_max" yaml:"key_delay_max"`

	// Pointer trajectory shape.
	PointerStepsMin int           `mapstructure:"pointer_steps_min" yaml:"pointer_steps_min"`
	PointerStepsMax int           `mapstructure:"pointer_steps_max" yaml:"pointer_steps_max"`
	PointerStepGap  time.Duration `mapstructure:"pointer_step_gap" yaml:"pointer_step_gap"`
	// PointerNoise is the standard deviation, in pixels, of the tremor added to
	// every intermediate point.
	PointerNoise float64 `mapstructure:"pointer_noise" yaml:"pointer_noise"`
	// PointerCurvature scales how far Bezier control points stray from the
	// straight line, as a fraction of the distance.
	PointerCurvature float64 `mapstructure:"pointer_curvature" yaml:"pointer_curvature"`

	// Wheel scrolling.
	ScrollStepPx   float64       `mapstructure:"scroll_step_px" yaml:"scroll_step_px"`
	ScrollStepGap  time.Duration `mapstructure:"scroll_step_gap" yaml:"scroll_step_gap"`
	ScrollJitterPx float64       `mapstructure:"scroll_jitter_px" yaml:"scroll_jitter_px"`
}

func setHumanoidDefaults(v *viper.Viper) {
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.seed", 0)
	v.SetDefault("humanoid.think_min", "400ms")
	v.SetDefault("humanoid.think_max", "1200ms")
	v.SetDefault("humanoid.key_delay_min", "40ms")
	v.SetDefault("humanoid.key_delay_max", "140ms")
	v.SetDefault("humanoid.pointer_steps_min", 12)
	v.SetDefault("humanoid.pointer_steps_max", 28)
	v.SetDefault("humanoid.pointer_step_gap", "12ms")
	v.SetDefault("humanoid.pointer_noise", 0.8)
	v.SetDefault("humanoid.pointer_curvature", 0.25)
	v.SetDefault("humanoid.scroll_step_px", 120.0)
	v.SetDefault("humanoid.scroll_step_gap", "60ms")
	v.SetDefault("humanoid.scroll_jitter_px", 20.0)
}

// Validate checks that every range is well formed.
func (h HumanoidConfig) Validate() error {
	if h.ThinkMax < h.ThinkMin || h.ThinkMin < 0 {
		return errors.New("think_max must be >= think_min >= 0")
	}
	if h.KeyDelayMax < h.KeyDelayMin || h.KeyDelayMin < 0 {
		return errors.New("key_delay_max must be >= key_delay_min >= 0")
	}
	if h.PointerStepsMin <= 0 || h.PointerStepsMax < h.PointerStepsMin {
		return errors.New("pointer_steps_max must be >= pointer_steps_min > 0")
	}
	if h.ScrollStepPx <= 0 {
		return errors.New("scroll_step_px must be positive")
	}
	return nil
}
