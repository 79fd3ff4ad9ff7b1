package mpc

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/model"
)

// ErrBadWeights indicates non-square, asymmetric, or indefinite cost
// matrices, or a non-positive horizon.
var ErrBadWeights = errors.New("mpc: invalid optimizer configuration")

const (
	// DefaultTol is the convergence tolerance on the per-sweep iterate
	// movement, relative to the iterate magnitude.
	DefaultTol = 1e-4
	// DefaultMaxIter bounds the coordinate-descent sweep budget.
	DefaultMaxIter = 5000
)

// QP solves the finite-horizon tracking problem
//
//	min Σ (x̂[t+1]-xref)ᵀQ(x̂[t+1]-xref) + u[t]ᵀR u[t]
//	s.t. u_min ≤ u[t] ≤ u_max
//
// over U = (u[0], …, u[H-1]), with x̂[t+1] = A·x̂[t] + B·u[t] plus an
// optional correction offset. The problem is condensed into a
// box-constrained quadratic in U and minimized by cyclic projected
// coordinate descent: each coordinate is solved exactly and clipped to
// its box, so every iterate is feasible and the objective never
// increases. The per-coordinate division by the Hessian diagonal also
// rescales the program, which keeps the sweep stable even when the
// condensed Hessian spans many orders of magnitude (powers of an
// unstable A). Exhausting the sweep budget yields StatusInfeasible,
// never an out-of-bounds control.
//
// State bounds are deliberately not part of the program; the simulation
// driver clamps states after each plant step.
type QP struct {
	lin    *model.Linear
	bounds *model.Bounds
	q, r   *mat.SymDense

	horizon int
	dt      float64
	tol     float64
	maxIter int

	corr CorrectionFunc
}

// QPOption adjusts solver tolerances.
type QPOption func(*QP)

func WithTolerance(tol float64) QPOption { return func(q *QP) { q.tol = tol } }
func WithMaxIterations(n int) QPOption   { return func(q *QP) { q.maxIter = n } }

// NewQP validates the configuration: H ≥ 1, Q and R symmetric positive
// semi-definite with dimensions matching the plant. Invalid
// configurations fail construction, they are never silently corrected.
func NewQP(lin *model.Linear, bounds *model.Bounds, q, r *mat.SymDense, horizon int, dt float64, opts ...QPOption) (*QP, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("%w: horizon must be >= 1, got %d", ErrBadWeights, horizon)
	}
	if dt <= 0 {
		return nil, fmt.Errorf("%w: dt must be positive, got %g", ErrBadWeights, dt)
	}
	if q.SymmetricDim() != lin.StateDim() {
		return nil, fmt.Errorf("%w: Q is %dx%d, want %dx%d", ErrBadWeights,
			q.SymmetricDim(), q.SymmetricDim(), lin.StateDim(), lin.StateDim())
	}
	if r.SymmetricDim() != lin.ControlDim() {
		return nil, fmt.Errorf("%w: R is %dx%d, want %dx%d", ErrBadWeights,
			r.SymmetricDim(), r.SymmetricDim(), lin.ControlDim(), lin.ControlDim())
	}
	if err := checkPSD("Q", q); err != nil {
		return nil, err
	}
	if err := checkPSD("R", r); err != nil {
		return nil, err
	}
	if bounds.ControlDim() != lin.ControlDim() {
		return nil, fmt.Errorf("%w: bounds control dim %d, plant wants %d", ErrBadWeights,
			bounds.ControlDim(), lin.ControlDim())
	}

	s := &QP{
		lin:     lin,
		bounds:  bounds,
		q:       q,
		r:       r,
		horizon: horizon,
		dt:      dt,
		tol:     DefaultTol,
		maxIter: DefaultMaxIter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func checkPSD(name string, m *mat.SymDense) error {
	var eig mat.EigenSym
	if !eig.Factorize(m, false) {
		return fmt.Errorf("%w: %s eigendecomposition failed", ErrBadWeights, name)
	}
	for _, v := range eig.Values(nil) {
		if v < -1e-9 {
			return fmt.Errorf("%w: %s is not positive semi-definite (eigenvalue %g)", ErrBadWeights, name, v)
		}
	}
	return nil
}

func (s *QP) Horizon() int { return s.horizon }

// SetCorrection installs the model-correction hook consulted during the
// rollout. The correction is evaluated along a nominal zero-control
// trajectory before the solve and enters the condensed program as a known
// per-step offset; this keeps the program a true convex QP even though
// the corrector itself is nonlinear.
func (s *QP) SetCorrection(f CorrectionFunc) { s.corr = f }

// Solve runs one receding-horizon optimization. Only the first control of
// the optimal sequence is returned; the rest of the plan is discarded and
// recomputed at the next step.
func (s *QP) Solve(x, xref dynamo.State) Solution {
	start := time.Now()

	n := s.lin.StateDim()
	m := s.lin.ControlDim()
	h := s.horizon

	// Per-step offsets from the correction hook, evaluated on a nominal
	// zero-control rollout.
	offsets := make([]dynamo.State, h)
	if s.corr != nil {
		zeroU := make(dynamo.Control, m)
		nominal := x.Clone()
		for t := 0; t < h; t++ {
			offsets[t] = s.corr(nominal, zeroU).Scale(s.dt)
			nominal = s.lin.Step(nominal, zeroU, offsets[t])
		}
	}

	// Free response w[t] = A^t·x + accumulated offsets, stacked over the
	// horizon, and the prediction matrix Γ with blocks A^(t-1-j)·B.
	hm := h * m
	hn := h * n

	powB := make([]*mat.Dense, h) // A^k · B
	powB[0] = mat.DenseCopyOf(s.lin.B)
	for k := 1; k < h; k++ {
		powB[k] = mat.NewDense(n, m, nil)
		powB[k].Mul(s.lin.A, powB[k-1])
	}

	gamma := mat.NewDense(hn, hm, nil)
	for t := 1; t <= h; t++ {
		for j := 0; j < t; j++ {
			gamma.Slice((t-1)*n, t*n, j*m, (j+1)*m).(*mat.Dense).Copy(powB[t-1-j])
		}
	}

	w := mat.NewVecDense(hn, nil)
	cur := x.Clone()
	for t := 0; t < h; t++ {
		cur = s.lin.Step(cur, nil, offsets[t])
		for i := 0; i < n; i++ {
			w.SetVec(t*n+i, cur[i])
		}
	}

	// Condensed quadratic: J(U) = Uᵀ·H·U + 2·fᵀ·U + c with
	// H = ΓᵀQ̄Γ + R̄ and f = ΓᵀQ̄(w - x̄ref).
	qbar := mat.NewDense(hn, hn, nil)
	for t := 0; t < h; t++ {
		qbar.Slice(t*n, (t+1)*n, t*n, (t+1)*n).(*mat.Dense).Copy(s.q)
	}

	var qg mat.Dense
	qg.Mul(qbar, gamma)
	var hess mat.Dense
	hess.Mul(gamma.T(), &qg)
	for t := 0; t < h; t++ {
		for i := 0; i < m; i++ {
			for j := 0; j < m; j++ {
				hess.Set(t*m+i, t*m+j, hess.At(t*m+i, t*m+j)+s.r.At(i, j))
			}
		}
	}

	e := mat.NewVecDense(hn, nil)
	for t := 0; t < h; t++ {
		for i := 0; i < n; i++ {
			e.SetVec(t*n+i, w.AtVec(t*n+i)-xref[i])
		}
	}
	var qe mat.VecDense
	qe.MulVec(qbar, e)
	f := mat.NewVecDense(hm, nil)
	f.MulVec(gamma.T(), &qe)

	c := mat.Dot(e, &qe)

	u, converged := s.minimize(&hess, f)
	if !converged {
		return Solution{
			U:       make(dynamo.Control, m),
			Cost:    math.Inf(1),
			Status:  StatusInfeasible,
			Elapsed: time.Since(start),
		}
	}

	var hu mat.VecDense
	hu.MulVec(&hess, u)
	cost := mat.Dot(u, &hu) + 2*mat.Dot(f, u) + c

	first := make(dynamo.Control, m)
	for i := 0; i < m; i++ {
		first[i] = u.AtVec(i)
	}

	return Solution{
		U:       s.bounds.ClampControl(first),
		Cost:    cost,
		Status:  StatusOptimal,
		Elapsed: time.Since(start),
	}
}

// minimize runs cyclic projected coordinate descent on
// J(U) = UᵀHU + 2fᵀU over the control box. Coordinates with a
// vanishing diagonal do not enter the objective and are left at their
// projected starting value.
func (s *QP) minimize(hess *mat.Dense, f *mat.VecDense) (*mat.VecDense, bool) {
	hm := f.Len()

	u := mat.NewVecDense(hm, nil)
	s.project(u)
	prev := mat.NewVecDense(hm, nil)

	for sweep := 0; sweep < s.maxIter; sweep++ {
		prev.CopyVec(u)
		for i := 0; i < hm; i++ {
			hii := hess.At(i, i)
			if hii < 1e-300 {
				continue
			}
			num := -f.AtVec(i)
			for j := 0; j < hm; j++ {
				if j != i {
					num -= hess.At(i, j) * u.AtVec(j)
				}
			}
			u.SetVec(i, s.clip(i, num/hii))
		}
		if maxAbsDiff(u, prev) <= s.tol*(1+mat.Norm(u, math.Inf(1))) {
			return u, true
		}
	}

	return nil, false
}

// project clamps each horizon slot to the per-channel control box.
func (s *QP) project(u *mat.VecDense) {
	for i := 0; i < u.Len(); i++ {
		u.SetVec(i, s.clip(i, u.AtVec(i)))
	}
}

func (s *QP) clip(i int, v float64) float64 {
	ch := i % s.bounds.ControlDim()
	if v < s.bounds.UMin[ch] {
		v = s.bounds.UMin[ch]
	}
	if v > s.bounds.UMax[ch] {
		v = s.bounds.UMax[ch]
	}
	return v
}

func maxAbsDiff(a, b *mat.VecDense) float64 {
	max := 0.0
	for i := 0; i < a.Len(); i++ {
		d := math.Abs(a.AtVec(i) - b.AtVec(i))
		if d > max {
			max = d
		}
	}
	return max
}
