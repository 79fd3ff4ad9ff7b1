package estimator

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// Hidden is the recurrent memory of a Corrector. It is owned by the
// caller: Predict never mutates its input, it returns the successor
// state. Start each independent run from NewHidden and never share one
// Hidden across concurrent runs.
type Hidden []float64

func (h Hidden) Clone() Hidden {
	c := make(Hidden, len(h))
	copy(c, h)
	return c
}

// Corrector is a small recurrent network that learns the residual
// between the linear surrogate and the observed plant online. Given
// (state, control, hidden) it predicts a correction Δf to the linear
// model; Learn performs one gradient step on the output head at a fixed
// learning rate.
//
// Weights are mutable shared state within one run; concurrent runs must
// each own a private Corrector.
type Corrector struct {
	stateDim   int
	controlDim int
	hiddenDim  int
	lr         float64

	wIn  *mat.Dense // (state+control) x hidden
	wRec *mat.Dense // hidden x hidden
	bRec []float64
	wOut *mat.Dense // hidden x state
	bOut []float64

	losses []float64
}

func NewCorrector(stateDim, controlDim, hiddenDim int, learningRate float64, seed int64) *Corrector {
	rng := rand.New(rand.NewSource(seed))
	randMat := func(r, c int) *mat.Dense {
		data := make([]float64, r*c)
		for i := range data {
			data[i] = rng.NormFloat64() * 0.1
		}
		return mat.NewDense(r, c, data)
	}
	return &Corrector{
		stateDim:   stateDim,
		controlDim: controlDim,
		hiddenDim:  hiddenDim,
		lr:         learningRate,
		wIn:        randMat(stateDim+controlDim, hiddenDim),
		wRec:       randMat(hiddenDim, hiddenDim),
		bRec:       make([]float64, hiddenDim),
		wOut:       randMat(hiddenDim, stateDim),
		bOut:       make([]float64, stateDim),
	}
}

// NewHidden returns a zeroed recurrent state for a fresh run.
func (c *Corrector) NewHidden() Hidden {
	return make(Hidden, c.hiddenDim)
}

// Predict computes the model correction Δf and the successor hidden
// state. It is a pure function of its arguments: h is not modified.
func (c *Corrector) Predict(x dynamo.State, u dynamo.Control, h Hidden) (dynamo.State, Hidden) {
	in := make([]float64, c.stateDim+c.controlDim)
	for i := 0; i < c.stateDim && i < len(x); i++ {
		in[i] = x[i]
	}
	for i := 0; i < c.controlDim && i < len(u); i++ {
		in[c.stateDim+i] = u[i]
	}

	next := make(Hidden, c.hiddenDim)
	for j := 0; j < c.hiddenDim; j++ {
		v := c.bRec[j]
		for i := range in {
			v += c.wIn.At(i, j) * in[i]
		}
		for i := 0; i < c.hiddenDim && i < len(h); i++ {
			v += c.wRec.At(j, i) * h[i]
		}
		next[j] = math.Tanh(v)
	}

	delta := make(dynamo.State, c.stateDim)
	for i := 0; i < c.stateDim; i++ {
		v := c.bOut[i]
		for j := 0; j < c.hiddenDim; j++ {
			v += c.wOut.At(j, i) * next[j]
		}
		delta[i] = v
	}

	return delta, next
}

// Learn applies one gradient-descent step on the output head for the
// prediction error observed at hidden state h. delta is the correction
// that was predicted at h; the head gradient depends only on the hidden
// features and the observed error, so delta does not enter the update.
// Full backpropagation through time is intentionally omitted; the
// recurrent layer acts as a fixed random feature map, as in the
// reference study.
func (c *Corrector) Learn(delta dynamo.State, h Hidden, observedErr dynamo.State) {
	for i := 0; i < c.stateDim && i < len(observedErr); i++ {
		for j := 0; j < c.hiddenDim && j < len(h); j++ {
			c.wOut.Set(j, i, c.wOut.At(j, i)-c.lr*h[j]*observedErr[i])
		}
		c.bOut[i] -= c.lr * observedErr[i]
	}
	c.losses = append(c.losses, dynamo.State(observedErr).Norm())
}

// Losses returns the per-step training loss history of the current run.
func (c *Corrector) Losses() []float64 { return c.losses }

// ResetRun clears the learning diagnostics; weights are kept so a warm
// corrector can carry over between runs when desired.
func (c *Corrector) ResetRun() { c.losses = c.losses[:0] }
