package mpc

import (
	"time"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// Status reports how a horizon solve ended. Callers branch on status
// rather than on errors: a failed solve is a recoverable condition, not a
// fault.
type Status int

const (
	// StatusOptimal means the QP converged within tolerance.
	StatusOptimal Status = iota
	// StatusFallback means the proportional law produced the control.
	StatusFallback
	// StatusInfeasible means the solve did not converge within budget.
	StatusInfeasible
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusFallback:
		return "fallback"
	case StatusInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// Solution is the outcome of one receding-horizon solve. U is the first
// control of the optimal sequence; Cost is the achieved objective value
// (+Inf for a failed solve under the zero-control policy).
type Solution struct {
	U       dynamo.Control
	Cost    float64
	Status  Status
	Elapsed time.Duration
}

// Optimizer produces a control for the current state and reference.
// Implementations must be deterministic for identical inputs and must not
// mutate any state outside the returned Solution.
type Optimizer interface {
	Solve(x, xref dynamo.State) Solution
	Horizon() int
}

// CorrectionFunc supplies a model-correction term added to the linear
// prediction, scaled by dt. The optimizer treats it purely as a function
// of (state, control); any recurrent memory lives with the caller.
type CorrectionFunc func(x dynamo.State, u dynamo.Control) dynamo.State
