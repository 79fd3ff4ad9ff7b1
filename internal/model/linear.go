package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// ErrBadModel indicates malformed state-space matrices.
var ErrBadModel = errors.New("model: invalid state-space matrices")

// Linear is a discrete-time linear plant, x[k+1] = A·x[k] + B·u[k] + d[k].
// The matrices are fixed for the duration of a run.
type Linear struct {
	A, B, C *mat.Dense
	n, m    int
}

// NewLinear validates and wraps the state-space matrices. C may be nil,
// in which case full state observation (identity) is assumed.
func NewLinear(a, b, c *mat.Dense) (*Linear, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: A and B must be set", ErrBadModel)
	}
	ar, ac := a.Dims()
	if ar != ac {
		return nil, fmt.Errorf("%w: A must be square, got %dx%d", ErrBadModel, ar, ac)
	}
	br, bc := b.Dims()
	if br != ar {
		return nil, fmt.Errorf("%w: B rows (%d) must match A (%d)", ErrBadModel, br, ar)
	}
	if c == nil {
		d := mat.NewDense(ar, ar, nil)
		for i := 0; i < ar; i++ {
			d.Set(i, i, 1)
		}
		c = d
	}
	return &Linear{A: a, B: b, C: c, n: ar, m: bc}, nil
}

func (l *Linear) StateDim() int   { return l.n }
func (l *Linear) ControlDim() int { return l.m }

// Step advances the plant one timestep. d may be nil.
func (l *Linear) Step(x dynamo.State, u dynamo.Control, d dynamo.State) dynamo.State {
	next := make(dynamo.State, l.n)
	for i := 0; i < l.n; i++ {
		v := 0.0
		for j := 0; j < l.n; j++ {
			v += l.A.At(i, j) * x[j]
		}
		for j := 0; j < l.m && j < len(u); j++ {
			v += l.B.At(i, j) * u[j]
		}
		if d != nil && i < len(d) {
			v += d[i]
		}
		next[i] = v
	}
	return next
}

// LinearizeLorenz builds the discrete surrogate model used by the
// controller: the Lorenz Jacobian about the unstable equilibrium
// (sqrt(beta(rho-1)), sqrt(beta(rho-1)), rho-1), with three independent
// actuation channels (the third at half authority).
func LinearizeLorenz(sigma, rho, beta float64) *Linear {
	xEq := math.Sqrt(beta * (rho - 1))
	yEq := xEq
	zEq := rho - 1

	a := mat.NewDense(3, 3, []float64{
		-sigma, sigma, 0,
		rho - zEq, -1, -xEq,
		yEq, xEq, -beta,
	})
	b := mat.NewDense(3, 3, []float64{
		1.0, 0.0, 0.0,
		0.0, 1.0, 0.0,
		0.0, 0.0, 0.5,
	})

	l, _ := NewLinear(a, b, nil)
	return l
}

// LorenzWeights returns the study's tracking and effort weights: the
// energy-like third mode is penalized ten times harder than the
// convective modes.
func LorenzWeights() (q, r *mat.SymDense) {
	q = mat.NewSymDense(3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 10,
	})
	r = mat.NewSymDense(3, []float64{
		0.1, 0, 0,
		0, 0.1, 0,
		0, 0, 0.1,
	})
	return q, r
}
