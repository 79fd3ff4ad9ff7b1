// Package mpc implements the receding-horizon predictive controller.
//
// At each timestep the [QP] optimizer condenses the finite-horizon
// tracking problem over the linear plant into a box-constrained quadratic
// in the control sequence and minimizes it with projected coordinate
// descent. Only the first control of the optimal sequence is
// applied; the horizon is re-solved from the next measured state.
//
// Solver capability is an injected [Optimizer] value, not a global flag:
// the [Controller] owns a primary optimizer and the [PDFallback] law and
// branches on [Status], degrading per its [FailurePolicy] when a solve
// fails to converge.
package mpc
