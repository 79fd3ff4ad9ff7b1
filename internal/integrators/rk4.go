package integrators

import "github.com/san-kum/plasmactl/internal/dynamo"

// RK4 is the classic fourth-order Runge-Kutta scheme, used for the
// nonlinear validation trajectory.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t float64, dt float64) dynamo.State {
	half := 0.5 * dt
	k1 := dyn.Derive(x, u, t)
	k2 := dyn.Derive(x.Add(k1.Scale(half)), u, t+half)
	k3 := dyn.Derive(x.Add(k2.Scale(half)), u, t+half)
	k4 := dyn.Derive(x.Add(k3.Scale(dt)), u, t+dt)

	next := make(dynamo.State, len(x))
	for i := range next {
		next[i] = x[i] + dt/6.0*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return next
}
