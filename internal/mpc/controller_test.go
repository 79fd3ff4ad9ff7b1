package mpc_test

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/model"
	"github.com/san-kum/plasmactl/internal/mpc"
)

// stubOptimizer returns a canned solution, for failure injection.
type stubOptimizer struct {
	sol    mpc.Solution
	solves int
}

func (s *stubOptimizer) Solve(x, xref dynamo.State) mpc.Solution {
	s.solves++
	return s.sol
}

func (s *stubOptimizer) Horizon() int { return 15 }

var _ = Describe("Controller", func() {
	var (
		bounds   *model.Bounds
		fallback *mpc.PDFallback
		x, xref  dynamo.State
	)

	BeforeEach(func() {
		bounds = model.DefaultBounds()
		fallback = mpc.NewPDFallback(mpc.DefaultGains(), bounds)
		x = dynamo.State{1, -2, 30}
		xref = dynamo.State{0, 0, 25}
	})

	Context("when the primary solve succeeds", func() {
		It("passes the solution through untouched", func() {
			primary := &stubOptimizer{sol: mpc.Solution{
				U:      dynamo.Control{1, 2, 3},
				Cost:   42.0,
				Status: mpc.StatusOptimal,
			}}
			ctrl := mpc.NewController(primary, fallback, mpc.OnFailureFallback, nil)

			sol := ctrl.Solve(x, xref)
			Expect(sol.Status).To(Equal(mpc.StatusOptimal))
			Expect(sol.U).To(Equal(dynamo.Control{1, 2, 3}))
			Expect(sol.Cost).To(Equal(42.0))
			Expect(ctrl.FallbackSteps()).To(BeZero())
		})
	})

	Context("when the primary solve fails", func() {
		var primary *stubOptimizer

		BeforeEach(func() {
			primary = &stubOptimizer{sol: mpc.Solution{
				U:       dynamo.Control{0, 0, 0},
				Cost:    math.Inf(1),
				Status:  mpc.StatusInfeasible,
				Elapsed: 3 * time.Millisecond,
			}}
		})

		It("re-solves with the proportional law under the fallback policy", func() {
			ctrl := mpc.NewController(primary, fallback, mpc.OnFailureFallback, nil)

			sol := ctrl.Solve(x, xref)
			Expect(sol.Status).To(Equal(mpc.StatusFallback))

			direct := fallback.Solve(x, xref)
			Expect(sol.U).To(Equal(direct.U))
			Expect(sol.Elapsed).To(BeNumerically(">=", 3*time.Millisecond))
			Expect(ctrl.FallbackSteps()).To(Equal(1))
		})

		It("emits zero control with infinite cost under the zero policy", func() {
			ctrl := mpc.NewController(primary, fallback, mpc.OnFailureZero, nil)

			sol := ctrl.Solve(x, xref)
			Expect(sol.Status).To(Equal(mpc.StatusInfeasible))
			Expect(sol.U).To(Equal(dynamo.Control{0, 0, 0}))
			Expect(math.IsInf(sol.Cost, 1)).To(BeTrue())
			Expect(ctrl.FallbackSteps()).To(Equal(1))
		})

		It("counts every degraded solve until Reset", func() {
			ctrl := mpc.NewController(primary, fallback, mpc.OnFailureFallback, nil)

			for i := 0; i < 5; i++ {
				ctrl.Solve(x, xref)
			}
			Expect(ctrl.FallbackSteps()).To(Equal(5))

			ctrl.Reset()
			Expect(ctrl.FallbackSteps()).To(BeZero())
		})
	})

	Context("with no primary optimizer", func() {
		It("always uses the fallback without counting failures", func() {
			ctrl := mpc.NewController(nil, fallback, mpc.OnFailureFallback, nil)

			sol := ctrl.Solve(x, xref)
			Expect(sol.Status).To(Equal(mpc.StatusFallback))
			Expect(ctrl.FallbackSteps()).To(BeZero())
			Expect(ctrl.Horizon()).To(Equal(1))
		})
	})
})
