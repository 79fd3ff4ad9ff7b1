package mpc

import (
	"time"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/model"
)

// PDFallback is the closed-form local law used when the QP is unavailable
// or fails: u = clamp(-Kp·(x - xref)). It is strictly local (no
// prediction), pure, and deterministic: the same (x, xref) always yields
// the same control.
type PDFallback struct {
	gains  []float64 // diagonal proportional gains, one per channel
	bounds *model.Bounds
}

// DefaultGains are the tuned proportional gains of the study: full
// authority on the convective modes, half on the energy mode.
func DefaultGains() []float64 { return []float64{2.0, 2.0, 1.0} }

func NewPDFallback(gains []float64, bounds *model.Bounds) *PDFallback {
	return &PDFallback{gains: gains, bounds: bounds}
}

func (p *PDFallback) Horizon() int { return 1 }

func (p *PDFallback) Solve(x, xref dynamo.State) Solution {
	start := time.Now()
	u := make(dynamo.Control, len(p.gains))
	for i := range u {
		ref := 0.0
		if i < len(xref) {
			ref = xref[i]
		}
		if i < len(x) {
			u[i] = -p.gains[i] * (x[i] - ref)
		}
	}
	return Solution{
		U:       p.bounds.ClampControl(u),
		Cost:    0,
		Status:  StatusFallback,
		Elapsed: time.Since(start),
	}
}
