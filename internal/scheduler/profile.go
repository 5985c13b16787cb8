package scheduler

import (
	"fmt"
	"time"
)

// Kind is the shape of a load profile.
type Kind string

const (
	// Constant runs TargetVUs for the whole duration.
	Constant Kind = "constant"
	// RampUp grows linearly from 0 to TargetVUs, then holds.
	RampUp Kind = "ramp-up"
	// Spike holds a baseline and jumps to TargetVUs for a window.
	Spike Kind = "spike"
	// Soak is Constant intended for long durations.
	Soak Kind = "soak"
	// Endurance is Constant intended for long durations.
	Endurance Kind = "endurance"
)

// Kinds lists every supported profile kind.
var Kinds = []Kind{Constant, RampUp, Spike, Soak, Endurance}

// Stage is one segment of a ramp. The VU count moves linearly from the
// previous stage's target to Target over Duration.
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 10     # Ramp from 0 to 10 VUs over 30s
//	  - duration: 2m
//	    target: 10     # Stay at 10 VUs for 2 minutes
//	  - duration: 30s
//	    target: 0      # Ramp down to 0 VUs over 30s
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`
	Name     string        `json:"name,omitempty" yaml:"name,omitempty"`
}

// Profile declares how many virtual users run over time.
//
// Profile is a value type; the scheduler copies it at start so later
// changes by the caller have no effect on a running schedule.
type Profile struct {
	Kind      Kind          `json:"kind" yaml:"kind"`
	TargetVUs int           `json:"targetVUs" yaml:"targetVUs"`
	Duration  time.Duration `json:"duration" yaml:"duration"`

	// RampDuration is how long a ramp-up takes to reach TargetVUs.
	// Defaults to Duration.
	RampDuration time.Duration `json:"rampDuration,omitempty" yaml:"rampDuration,omitempty"`

	// Stages replace the single ramp with a piecewise-linear schedule
	Stages []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	// BaselineVUs is the spike profile's resting level (default 1)
	BaselineVUs int `json:"baselineVUs,omitempty" yaml:"baselineVUs,omitempty"`

	// SpikeStart and SpikeDuration place the spike window. With neither
	// set the window is the middle third of Duration. A zero SpikeStart
	// with a SpikeDuration starts the spike at once, and a missing
	// SpikeDuration defaults to a third of Duration.
	SpikeStart    time.Duration `json:"spikeStart,omitempty" yaml:"spikeStart,omitempty"`
	SpikeDuration time.Duration `json:"spikeDuration,omitempty" yaml:"spikeDuration,omitempty"`

	// Iterations caps the calls each VU makes. Zero means unlimited. With
	// a cap, Duration may be zero and the run ends when every VU is done.
	Iterations int `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// GracefulStop bounds how long draining waits for in-flight calls.
	// Zero waits for all of them.
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// ValidationError represents a profile validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Validate checks the profile for consistency.
func (p Profile) Validate() error {
	switch p.Kind {
	case Constant, RampUp, Spike, Soak, Endurance:
	case "":
		return &ValidationError{Field: "kind", Message: "kind is required"}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown profile kind %q", p.Kind)}
	}

	if p.TargetVUs < 0 {
		return &ValidationError{Field: "targetVUs", Message: "must be non-negative"}
	}
	if p.Iterations < 0 {
		return &ValidationError{Field: "iterations", Message: "must be non-negative"}
	}
	if p.Duration < 0 || p.RampDuration < 0 || p.GracefulStop < 0 {
		return &ValidationError{Field: "duration", Message: "durations must be non-negative"}
	}
	if p.TotalDuration() == 0 {
		if p.Iterations == 0 {
			return &ValidationError{Field: "duration", Message: "must be greater than 0 unless iterations is set"}
		}
		if p.Peak() == 0 {
			return &ValidationError{Field: "targetVUs", Message: "an iteration-bounded run needs at least one VU"}
		}
	}

	switch p.Kind {
	case RampUp:
		for i, s := range p.Stages {
			if s.Duration <= 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "must be greater than 0"}
			}
			if s.Target < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "must be non-negative"}
			}
		}
		if len(p.Stages) == 0 && p.Duration > 0 && p.RampDuration > p.Duration {
			return &ValidationError{Field: "rampDuration", Message: "must not exceed duration"}
		}
	case Spike:
		if p.BaselineVUs < 0 {
			return &ValidationError{Field: "baselineVUs", Message: "must be non-negative"}
		}
		if p.Duration == 0 {
			return &ValidationError{Field: "duration", Message: "spike profiles need a duration"}
		}
		start, length := p.spikeWindow()
		if start < 0 || length <= 0 || start+length > p.Duration {
			return &ValidationError{Field: "spikeStart", Message: "spike window must lie within duration"}
		}
	default:
		if len(p.Stages) > 0 {
			return &ValidationError{Field: "stages", Message: fmt.Sprintf("stages are only valid for %s profiles", RampUp)}
		}
	}

	return nil
}

// TotalDuration returns how long the schedule runs. Zero means the run is
// bounded only by the iteration cap.
func (p Profile) TotalDuration() time.Duration {
	if p.Kind == RampUp && len(p.Stages) > 0 {
		var total time.Duration
		for _, s := range p.Stages {
			total += s.Duration
		}
		if p.Duration > total {
			return p.Duration
		}
		return total
	}
	return p.Duration
}

// TargetAt returns the desired VU count at elapsed time since start.
func (p Profile) TargetAt(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}

	switch p.Kind {
	case RampUp:
		if len(p.Stages) > 0 {
			return p.stageTarget(elapsed)
		}
		ramp := p.rampDuration()
		if ramp <= 0 || elapsed >= ramp {
			return p.TargetVUs
		}
		progress := float64(elapsed) / float64(ramp)
		return int(float64(p.TargetVUs)*progress + 0.5) // Round to nearest
	case Spike:
		start, length := p.spikeWindow()
		if elapsed >= start && elapsed < start+length {
			return p.TargetVUs
		}
		return p.baseline()
	default:
		return p.TargetVUs
	}
}

// Ramping reports whether the VU count is changing at elapsed, as opposed
// to holding steady.
func (p Profile) Ramping(elapsed time.Duration) bool {
	if p.Kind != RampUp {
		return false
	}
	if len(p.Stages) == 0 {
		return elapsed < p.rampDuration() && p.TargetVUs > 0
	}

	var stageStart time.Duration
	prev := 0
	for _, s := range p.Stages {
		if elapsed < stageStart+s.Duration {
			return s.Target != prev
		}
		prev = s.Target
		stageStart += s.Duration
	}
	return false
}

// Peak returns the highest VU count the schedule ever asks for.
func (p Profile) Peak() int {
	peak := p.TargetVUs
	switch p.Kind {
	case RampUp:
		if len(p.Stages) > 0 {
			peak = 0
			for _, s := range p.Stages {
				peak = max(peak, s.Target)
			}
		}
	case Spike:
		peak = max(peak, p.baseline())
	}
	return peak
}

func (p Profile) stageTarget(elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := 0

	for _, stage := range p.Stages {
		stageEnd := stageStart + stage.Duration
		if elapsed < stageEnd {
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5)
		}
		prevTarget = stage.Target
		stageStart = stageEnd
	}

	return p.Stages[len(p.Stages)-1].Target
}

func (p Profile) rampDuration() time.Duration {
	if p.RampDuration > 0 {
		return p.RampDuration
	}
	return p.Duration
}

func (p Profile) baseline() int {
	if p.BaselineVUs > 0 {
		return p.BaselineVUs
	}
	return min(1, p.TargetVUs)
}

func (p Profile) spikeWindow() (start, length time.Duration) {
	start, length = p.SpikeStart, p.SpikeDuration
	if start == 0 && length == 0 {
		start = p.Duration / 3
	}
	if length == 0 {
		length = p.Duration / 3
	}
	return start, length
}
