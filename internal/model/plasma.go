package model

import (
	"math"
	"math/rand"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// Plasma is the "true" chaotic plant: a Lorenz system with slowly
// drifting rho (plasma-current variation), first-order colored noise
// (edge turbulence), and Gaussian ELM impulse events. The control vector
// enters the derivative through the same input matrix the linear
// surrogate uses, so both plants see identical actuation.
//
// Plasma keeps internal noise state and is not safe for concurrent use;
// every run owns its own instance.
type Plasma struct {
	sigma, rho, beta float64

	rhoAmp    float64 // amplitude of the slow rho oscillation
	rhoPeriod float64

	noise    dynamo.State
	noiseTau float64
	noiseAmp float64
	rng      *rand.Rand

	elmTimes []float64
	elmMag   float64
}

func NewPlasma(sigma, rho, beta float64, seed int64) *Plasma {
	return &Plasma{
		sigma:     sigma,
		rho:       rho,
		beta:      beta,
		rhoAmp:    5.0,
		rhoPeriod: 30.0,
		noise:     make(dynamo.State, 3),
		noiseTau:  0.1,
		noiseAmp:  0.05,
		rng:       rand.New(rand.NewSource(seed)),
		elmTimes:  []float64{2.0, 8.5, 15.2, 22.8},
		elmMag:    0.15,
	}
}

// Quiet disables turbulence noise and ELM events, leaving the bare
// Lorenz dynamics. Used by deterministic validation runs.
func (p *Plasma) Quiet() *Plasma {
	p.noiseAmp = 0
	p.elmTimes = nil
	p.rhoAmp = 0
	return p
}

func (p *Plasma) StateDim() int   { return 3 }
func (p *Plasma) ControlDim() int { return 3 }

// rhoAt models the slow plasma-current drift.
func (p *Plasma) rhoAt(t float64) float64 {
	if p.rhoAmp == 0 {
		return p.rho
	}
	return p.rho + p.rhoAmp*math.Sin(2*math.Pi*t/p.rhoPeriod)
}

// Derive computes the controlled Lorenz derivative. The colored-noise
// filter advances on every evaluation, matching the reference study's
// per-evaluation update.
func (p *Plasma) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	rho := p.rhoAt(t)

	var u0, u1, u2 float64
	if len(u) > 0 {
		u0 = u[0]
	}
	if len(u) > 1 {
		u1 = u[1]
	}
	if len(u) > 2 {
		u2 = u[2]
	}

	dx := dynamo.State{
		p.sigma*(x[1]-x[0]) + u0,
		x[0]*(rho-x[2]) - x[1] + u1,
		x[0]*x[1] - p.beta*x[2] + 0.5*u2,
	}

	if p.noiseAmp > 0 {
		decay := math.Exp(-1.0 / p.noiseTau / 100)
		for i := range p.noise {
			p.noise[i] = p.noise[i]*decay + p.noiseAmp*p.rng.NormFloat64()
			dx[i] += p.noise[i]
		}
	}

	// ELM bursts last ~50 ms around each event time.
	for _, et := range p.elmTimes {
		if math.Abs(t-et) < 0.05 {
			pulse := p.elmMag * math.Exp(-math.Pow((t-et)/0.02, 2))
			dx[0] += pulse * 3.0
			dx[1] += pulse * -2.0
			dx[2] += pulse * 5.0
		}
	}

	return dx
}

func (p *Plasma) GetParams() map[string]float64 {
	return map[string]float64{"sigma": p.sigma, "rho": p.rho, "beta": p.beta}
}

func (p *Plasma) SetParam(name string, v float64) {
	switch name {
	case "sigma":
		p.sigma = v
	case "rho":
		p.rho = v
	case "beta":
		p.beta = v
	}
}

// ELMDisturbance returns the canned disturbance of the study: quiet for
// the first two seconds, a single large edge-localized-mode impulse, then
// continuous low-amplitude noise from the seeded source.
func ELMDisturbance(seed int64) dynamo.Disturbance {
	rng := rand.New(rand.NewSource(seed))
	return func(t float64) dynamo.State {
		switch {
		case t < 2.0:
			return dynamo.State{0, 0, 0}
		case t < 2.1:
			return dynamo.State{5.0, -3.0, 8.0}
		default:
			return dynamo.State{
				0.1 * rng.NormFloat64(),
				0.1 * rng.NormFloat64(),
				0.1 * rng.NormFloat64(),
			}
		}
	}
}
