package mpc

import (
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// FailurePolicy selects what the controller emits when the primary
// optimizer reports StatusInfeasible.
type FailurePolicy int

const (
	// OnFailureFallback re-solves with the proportional law.
	OnFailureFallback FailurePolicy = iota
	// OnFailureZero emits a zero control with infinite cost.
	OnFailureZero
)

// Controller is the receding-horizon control authority: it consults the
// primary optimizer each step and degrades per policy when the solve
// fails. Failures are logged as warnings and never propagate to the
// simulation loop.
type Controller struct {
	primary  Optimizer
	fallback Optimizer
	policy   FailurePolicy
	logger   *zap.Logger

	fallbackSteps int
}

// NewController wires the optimizers. primary may be nil, in which case
// every step uses the fallback law directly (no warning is logged: that
// configuration is deliberate, not a failure).
func NewController(primary, fallback Optimizer, policy FailurePolicy, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		logger:   logger,
	}
}

func (c *Controller) Horizon() int {
	if c.primary != nil {
		return c.primary.Horizon()
	}
	return c.fallback.Horizon()
}

// Solve computes the control for the current state. The returned status
// tells the caller which path produced it.
func (c *Controller) Solve(x, xref dynamo.State) Solution {
	if c.primary == nil {
		return c.fallback.Solve(x, xref)
	}

	sol := c.primary.Solve(x, xref)
	if sol.Status != StatusInfeasible {
		return sol
	}

	c.fallbackSteps++
	switch c.policy {
	case OnFailureZero:
		c.logger.Warn("horizon solve failed, emitting zero control",
			zap.Int("horizon", c.primary.Horizon()))
		sol.Cost = math.Inf(1)
		return sol
	default:
		c.logger.Warn("horizon solve failed, using proportional fallback",
			zap.Int("horizon", c.primary.Horizon()))
		fb := c.fallback.Solve(x, xref)
		fb.Elapsed += sol.Elapsed
		return fb
	}
}

// FallbackSteps reports how many solves degraded since the last Reset.
func (c *Controller) FallbackSteps() int { return c.fallbackSteps }

// Reset clears per-run diagnostics. Call before starting an independent
// run.
func (c *Controller) Reset() { c.fallbackSteps = 0 }
