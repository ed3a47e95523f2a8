package vu

import (
	"fmt"
	"math/rand"
	"time"
)

// PacingType identifies the type of pacing.
type PacingType string

const (
	PacingNone     PacingType = "none"
	PacingConstant PacingType = "constant"
	PacingRandom   PacingType = "random"
)

// Pacing controls the pause a VU takes after each iteration.
type Pacing struct {
	// Type of pacing: "none", "constant", "random"
	Type PacingType `json:"type" yaml:"type"`

	// Duration for constant pacing
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min duration for random pacing
	Min time.Duration `json:"min,omitempty" yaml:"min,omitempty"`

	// Max duration for random pacing (exclusive)
	Max time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// Constant returns a pacing that always pauses for d.
func Constant(d time.Duration) Pacing {
	return Pacing{Type: PacingConstant, Duration: d}
}

// Random returns a pacing that pauses uniformly in [min, max).
func Random(min, max time.Duration) Pacing {
	return Pacing{Type: PacingRandom, Min: min, Max: max}
}

// Validate checks the pacing for negative or inverted bounds.
func (p Pacing) Validate() error {
	switch p.Type {
	case "", PacingNone:
		return nil
	case PacingConstant:
		if p.Duration < 0 {
			return fmt.Errorf("pacing duration must be non-negative, got %s", p.Duration)
		}
	case PacingRandom:
		if p.Min < 0 || p.Max < 0 {
			return fmt.Errorf("pacing bounds must be non-negative, got [%s, %s)", p.Min, p.Max)
		}
		if p.Max < p.Min {
			return fmt.Errorf("pacing max %s is below min %s", p.Max, p.Min)
		}
	default:
		return fmt.Errorf("unknown pacing type: %q", p.Type)
	}
	return nil
}

// Next returns the pause to apply after the next iteration.
func (p Pacing) Next() time.Duration {
	switch p.Type {
	case PacingConstant:
		return p.Duration
	case PacingRandom:
		diff := p.Max - p.Min
		if diff > 0 {
			return p.Min + time.Duration(rand.Int63n(int64(diff)))
		}
		return p.Min
	}
	return 0
}
