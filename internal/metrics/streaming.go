package metrics

import (
	"math"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/model"
)

// ControlEffort accumulates mean absolute actuation per step, observed
// live during the loop.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{name: "control_effort"}
}

func (c *ControlEffort) Name() string { return c.name }

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, val := range u {
		c.sum += math.Abs(val)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// Stability scores the fraction of steps spent strictly inside the state
// box (before clamping would have engaged, a step sitting on a bound
// counts as a violation).
type Stability struct {
	name       string
	bounds     *model.Bounds
	violations int
	samples    int
}

func NewStability(bounds *model.Bounds) *Stability {
	return &Stability{name: "stability", bounds: bounds}
}

func (s *Stability) Name() string { return s.name }

func (s *Stability) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	for i, val := range x {
		if i < len(s.bounds.XMin) && (val <= s.bounds.XMin[i] || val >= s.bounds.XMax[i]) {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
