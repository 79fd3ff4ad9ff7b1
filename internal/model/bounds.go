package model

import (
	"errors"
	"fmt"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// ErrBadBounds indicates per-channel bounds with min > max or mismatched
// dimensions.
var ErrBadBounds = errors.New("model: invalid bounds")

// Bounds holds per-channel box constraints for control and state.
// Control bounds are hard constraints inside the optimizer; state bounds
// are enforced by clamping after each plant step.
type Bounds struct {
	UMin, UMax dynamo.State
	XMin, XMax dynamo.State
}

func NewBounds(uMin, uMax, xMin, xMax []float64) (*Bounds, error) {
	if len(uMin) != len(uMax) {
		return nil, fmt.Errorf("%w: control bounds dimension mismatch (%d vs %d)", ErrBadBounds, len(uMin), len(uMax))
	}
	if len(xMin) != len(xMax) {
		return nil, fmt.Errorf("%w: state bounds dimension mismatch (%d vs %d)", ErrBadBounds, len(xMin), len(xMax))
	}
	for i := range uMin {
		if uMin[i] > uMax[i] {
			return nil, fmt.Errorf("%w: u_min[%d]=%g > u_max[%d]=%g", ErrBadBounds, i, uMin[i], i, uMax[i])
		}
	}
	for i := range xMin {
		if xMin[i] > xMax[i] {
			return nil, fmt.Errorf("%w: x_min[%d]=%g > x_max[%d]=%g", ErrBadBounds, i, xMin[i], i, xMax[i])
		}
	}
	return &Bounds{
		UMin: dynamo.State(uMin).Clone(),
		UMax: dynamo.State(uMax).Clone(),
		XMin: dynamo.State(xMin).Clone(),
		XMax: dynamo.State(xMax).Clone(),
	}, nil
}

// DefaultBounds returns the injection and mode-amplitude limits of the
// three-channel plasma study.
func DefaultBounds() *Bounds {
	b, _ := NewBounds(
		[]float64{-20.0, -20.0, -10.0},
		[]float64{20.0, 20.0, 10.0},
		[]float64{-40.0, -40.0, 0.0},
		[]float64{40.0, 40.0, 50.0},
	)
	return b
}

func (b *Bounds) ClampControl(u dynamo.Control) dynamo.Control {
	return dynamo.Control(dynamo.State(u).Clamp(b.UMin, b.UMax))
}

func (b *Bounds) ClampState(x dynamo.State) dynamo.State {
	return x.Clamp(b.XMin, b.XMax)
}

func (b *Bounds) ControlDim() int { return len(b.UMin) }
func (b *Bounds) StateDim() int   { return len(b.XMin) }
