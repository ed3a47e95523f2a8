// Package schedule computes the target virtual-user count over time.
//
// A Schedule is an ordered list of stages. Each stage linearly ramps the
// target from the previous stage's target (0 for the first stage) to its
// own target over its duration:
//
//	stages:
//	  - duration: 30s
//	    target: 50     # ramp from 0 to 50 VUs over 30s
//	  - duration: 30s
//	    target: 50     # hold 50 VUs
//	  - duration: 10s
//	    target: 0      # ramp down to 0
package schedule

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Stage is one ramp segment of a Schedule.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Schedule is an immutable, ordered sequence of stages.
type Schedule struct {
	stages []Stage
	starts []time.Duration
	total  time.Duration
}

// New validates stages and builds a Schedule from a copy of them.
func New(stages []Stage) (*Schedule, error) {
	if err := Validate(stages); err != nil {
		return nil, err
	}

	s := &Schedule{
		stages: make([]Stage, len(stages)),
		starts: make([]time.Duration, len(stages)),
	}
	copy(s.stages, stages)

	var offset time.Duration
	for i, stage := range s.stages {
		s.starts[i] = offset
		offset += stage.Duration
	}
	s.total = offset

	return s, nil
}

// Stages returns a copy of the schedule's stages.
func (s *Schedule) Stages() []Stage {
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// TotalDuration returns the sum of all stage durations.
func (s *Schedule) TotalDuration() time.Duration {
	return s.total
}

// MaxTarget returns the highest target of any stage.
func (s *Schedule) MaxTarget() int {
	maxTarget := 0
	for _, stage := range s.stages {
		if stage.Target > maxTarget {
			maxTarget = stage.Target
		}
	}
	return maxTarget
}

// TargetAt returns the target VU count at the given elapsed time.
//
// Within a stage the target is linearly interpolated between the previous
// target and the stage target, rounded to the nearest integer. Zero-duration
// stages are immediate jumps. At exactly TotalDuration the final target still
// holds; past it the target is 0.
func (s *Schedule) TargetAt(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.total {
		return 0
	}

	prevTarget := 0
	for i, stage := range s.stages {
		stageStart := s.starts[i]
		stageEnd := stageStart + stage.Duration

		if stage.Duration > 0 && elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return clamp(int(math.Round(target)), 0, max(prevTarget, stage.Target))
		}

		prevTarget = stage.Target
	}

	return prevTarget
}

// StageAt returns the index of the stage active at elapsed. ok is false once
// the schedule is exhausted.
func (s *Schedule) StageAt(elapsed time.Duration) (index int, ok bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	for i, stage := range s.stages {
		if stage.Duration > 0 && elapsed < s.starts[i]+stage.Duration {
			return i, true
		}
	}
	if elapsed <= s.total && len(s.stages) > 0 {
		return len(s.stages) - 1, true
	}
	return len(s.stages), false
}

// PreviousTarget returns the target a stage ramps from.
func (s *Schedule) PreviousTarget(index int) int {
	if index <= 0 || index > len(s.stages) {
		return 0
	}
	return s.stages[index-1].Target
}

// Done reports whether elapsed is past the end of the schedule.
func (s *Schedule) Done(elapsed time.Duration) bool {
	return elapsed > s.total
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidationError represents an invalid stage definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in a stage list.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks that stages are well formed: at least one stage, and no
// negative durations or targets.
func Validate(stages []Stage) error {
	if len(stages) == 0 {
		return ValidationErrors{{Field: "stages", Message: "at least one stage is required"}}
	}

	var errs ValidationErrors
	for i, stage := range stages {
		if stage.Duration < 0 {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("stages[%d].duration", i),
				Message: fmt.Sprintf("duration cannot be negative, got %s", stage.Duration),
			})
		}
		if stage.Target < 0 {
			errs = append(errs, &ValidationError{
				Field:   fmt.Sprintf("stages[%d].target", i),
				Message: fmt.Sprintf("target cannot be negative, got %d", stage.Target),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
