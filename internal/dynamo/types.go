package dynamo

import (
	"math"
	"time"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Energy is the perturbation energy, the sum of squared components.
func (s State) Energy() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return sum
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

// Clamp bounds every component into [min[i], max[i]].
func (s State) Clamp(min, max State) State {
	result := make(State, len(s))
	for i := range s {
		v := s[i]
		if i < len(min) && v < min[i] {
			v = min[i]
		}
		if i < len(max) && v > max[i] {
			v = max[i]
		}
		result[i] = v
	}
	return result
}

type Control []float64

// Disturbance returns a perturbation vector at time t. Stochastic
// disturbances must be built from a seeded source so runs reproduce.
type Disturbance func(t float64) State

// System is a controlled ODE, dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64)
}

// StopReason records why a closed-loop run ended.
type StopReason string

const (
	StopCompleted   StopReason = "completed"
	StopSafetyLimit StopReason = "safety_limit"
	StopCanceled    StopReason = "canceled"
)

// Result holds the aligned history of one closed-loop run. Index 0 is the
// initial condition; all slices share the same length.
type Result struct {
	Times        []float64
	States       []State
	Nonlinear    []State // validation trajectory, nil unless enabled
	Controls     []Control
	Disturbances []State
	Reference    State

	SolveTimes    []time.Duration
	Metrics       map[string]float64
	StepsTaken    int
	FallbackSteps int

	TerminatedEarly bool
	StopReason      StopReason
}
