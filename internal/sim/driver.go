package sim

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/estimator"
	"github.com/san-kum/plasmactl/internal/model"
	"github.com/san-kum/plasmactl/internal/mpc"
)

// Config parameterizes one closed-loop run.
type Config struct {
	Dt       float64
	Duration float64
	Seed     int64

	// Validate integrates the chaotic plant alongside the linear loop
	// with the same controls, for comparison only; it never feeds back
	// into control.
	Validate bool

	// SafetyLimit is a hard perturbation-energy bound. Crossing it stops
	// the run early with a valid partial history. Zero disables it.
	SafetyLimit float64
}

// Driver advances the closed loop: disturbance → control → plant step →
// clamp → record. It owns the state vector and the history for the
// current run; the metrics engine reads the history afterwards.
//
// State bounds are enforced here by clamping, independent of the
// optimizer, so the post-step invariant holds even when a solve fails.
type Driver struct {
	plant  *model.Linear
	ctrl   *mpc.Controller
	bounds *model.Bounds

	chaotic dynamo.System
	integ   dynamo.Integrator

	disturb   dynamo.Disturbance
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	logger    *zap.Logger

	qp      *mpc.QP
	corr    *estimator.Corrector
	sensors *estimator.Sensors
}

func New(plant *model.Linear, ctrl *mpc.Controller, bounds *model.Bounds) *Driver {
	return &Driver{
		plant:  plant,
		ctrl:   ctrl,
		bounds: bounds,
		logger: zap.NewNop(),
	}
}

func (d *Driver) SetLogger(l *zap.Logger) {
	if l != nil {
		d.logger = l
	}
}

func (d *Driver) SetDisturbance(f dynamo.Disturbance) { d.disturb = f }

// SetValidation enables the secondary chaotic trajectory, integrated
// with the given stepper using the same control sequence.
func (d *Driver) SetValidation(sys dynamo.System, integ dynamo.Integrator) {
	d.chaotic = sys
	d.integ = integ
}

// SetAdaptive wires the online correction path: sensor measurements feed
// the corrector, whose predictions enter the QP rollout as offsets and
// whose blended estimate replaces the raw state as controller input.
func (d *Driver) SetAdaptive(qp *mpc.QP, corr *estimator.Corrector, sensors *estimator.Sensors) {
	d.qp = qp
	d.corr = corr
	d.sensors = sensors
}

func (d *Driver) AddMetric(m dynamo.Metric)     { d.metrics = append(d.metrics, m) }
func (d *Driver) AddObserver(o dynamo.Observer) { d.observers = append(d.observers, o) }

func (d *Driver) validate(x0, xref dynamo.State, cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInvalidConfig, cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", dynamo.ErrInvalidConfig, cfg.Duration)
	}
	if len(x0) != d.plant.StateDim() {
		return fmt.Errorf("%w: x0 has %d components, plant wants %d", dynamo.ErrDimensionMismatch, len(x0), d.plant.StateDim())
	}
	if len(xref) != d.plant.StateDim() {
		return fmt.Errorf("%w: xref has %d components, plant wants %d", dynamo.ErrDimensionMismatch, len(xref), d.plant.StateDim())
	}
	return nil
}

// Run executes the closed loop for ceil(Duration/Dt) aligned history
// rows, index 0 being the initial condition. A safety-limit breach or
// context cancellation returns the valid partial history with
// TerminatedEarly set.
func (d *Driver) Run(ctx context.Context, x0, xref dynamo.State, cfg Config) (*dynamo.Result, error) {
	if err := d.validate(x0, xref, cfg); err != nil {
		return nil, err
	}

	steps := int(math.Ceil(cfg.Duration / cfg.Dt))
	if steps < 1 {
		steps = 1
	}

	n := d.plant.StateDim()
	m := d.plant.ControlDim()

	result := &dynamo.Result{
		Times:        make([]float64, 0, steps),
		States:       make([]dynamo.State, 0, steps),
		Controls:     make([]dynamo.Control, 0, steps),
		Disturbances: make([]dynamo.State, 0, steps),
		SolveTimes:   make([]time.Duration, 0, steps),
		Reference:    xref.Clone(),
		Metrics:      make(map[string]float64),
		StopReason:   dynamo.StopCompleted,
	}

	d.ctrl.Reset()
	for _, met := range d.metrics {
		met.Reset()
	}

	x := d.bounds.ClampState(x0.Clone())
	var xnl dynamo.State
	if cfg.Validate && d.chaotic != nil {
		xnl = x.Clone()
		result.Nonlinear = make([]dynamo.State, 0, steps)
		result.Nonlinear = append(result.Nonlinear, xnl.Clone())
	}

	result.Times = append(result.Times, 0)
	result.States = append(result.States, x.Clone())
	result.Controls = append(result.Controls, make(dynamo.Control, m))
	result.Disturbances = append(result.Disturbances, make(dynamo.State, n))
	result.SolveTimes = append(result.SolveTimes, 0)

	// Adaptive-path state, all owned by this run.
	var hidden estimator.Hidden
	var xEst dynamo.State
	uPrev := make(dynamo.Control, m)
	adaptive := d.qp != nil && d.corr != nil && d.sensors != nil
	if adaptive {
		hidden = d.corr.NewHidden()
		d.corr.ResetRun()
		xEst = x.Clone()
	}

	for k := 1; k < steps; k++ {
		select {
		case <-ctx.Done():
			result.TerminatedEarly = true
			result.StopReason = dynamo.StopCanceled
			result.StepsTaken = len(result.Times) - 1
			result.FallbackSteps = d.ctrl.FallbackSteps()
			return result, ctx.Err()
		default:
		}

		t := float64(k) * cfg.Dt

		var dist dynamo.State
		if d.disturb != nil {
			dist = d.disturb(t)
		} else {
			dist = make(dynamo.State, n)
		}

		xCtrl := x
		var measurement, delta dynamo.State
		var hNext estimator.Hidden
		if adaptive {
			measurement = d.sensors.Measure(x, t)
			delta, hNext = d.corr.Predict(xEst, uPrev, hidden)
			hCur := hidden.Clone()
			d.qp.SetCorrection(func(xs dynamo.State, us dynamo.Control) dynamo.State {
				df, _ := d.corr.Predict(xs, us, hCur)
				return df
			})
			xCtrl = xEst
		}

		sol := d.ctrl.Solve(xCtrl, xref)
		u := sol.U

		x = d.plant.Step(x, u, dist)
		x = d.bounds.ClampState(x)

		if adaptive {
			predicted := xEst.Add(delta.Scale(cfg.Dt))
			d.corr.Learn(delta, hNext, predicted.Sub(measurement))
			hidden = hNext
			xEst = xEst.Scale(0.7).Add(measurement.Scale(0.3))
			uPrev = u
		}

		if xnl != nil {
			xnl = d.integ.Step(d.chaotic, xnl, u, float64(k-1)*cfg.Dt, cfg.Dt)
			xnl = d.bounds.ClampState(xnl)
			result.Nonlinear = append(result.Nonlinear, xnl.Clone())
		}

		for _, met := range d.metrics {
			met.Observe(x, u, t)
		}
		for _, obs := range d.observers {
			obs.OnStep(x, u, t)
		}

		result.Times = append(result.Times, t)
		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, dynamo.Control(dynamo.State(u).Clone()))
		result.Disturbances = append(result.Disturbances, dist.Clone())
		result.SolveTimes = append(result.SolveTimes, sol.Elapsed)

		if cfg.SafetyLimit > 0 && x.Energy() > cfg.SafetyLimit {
			d.logger.Warn("safety limit breached, stopping run",
				zap.Float64("t", t),
				zap.Float64("energy", x.Energy()),
				zap.Float64("limit", cfg.SafetyLimit))
			result.TerminatedEarly = true
			result.StopReason = dynamo.StopSafetyLimit
			break
		}
	}

	result.StepsTaken = len(result.Times) - 1
	result.FallbackSteps = d.ctrl.FallbackSteps()
	for _, met := range d.metrics {
		result.Metrics[met.Name()] = met.Value()
	}

	return result, nil
}
