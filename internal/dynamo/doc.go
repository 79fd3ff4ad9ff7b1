// Package dynamo provides core primitives for closed-loop plasma control
// simulation.
//
// The package defines the fundamental types shared by the plant models,
// the predictive controller, and the simulation driver:
//
//   - [State], [Control]: instantaneous vectors
//   - [System]: interface for controlled ODE systems (dX/dt = f(X, u, t))
//   - [Disturbance]: time-indexed perturbation source
//   - [Result]: aligned history of one run
//
// # Thread Safety
//
// Result and State values are owned by a single run. For parallel
// parameter sweeps, use sim.Ensemble, which gives each run its own plant,
// optimizer, and history.
package dynamo
