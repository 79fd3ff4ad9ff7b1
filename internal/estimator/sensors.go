package estimator

import (
	"math"
	"math/rand"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// Sensors simulates a quantum magnetometer array (NV-center/SQUID class):
// high SNR, white Gaussian noise, and a near-negligible random-walk
// drift. Measurements are absolute, not derived, so there is no
// integration drift.
type Sensors struct {
	channels int
	noiseStd float64

	driftRate float64
	drift     []float64

	gain   []float64
	offset []float64

	rng *rand.Rand
}

// NewSensors configures the array for the given signal-to-noise ratio in
// dB (typical NV-center arrays reach 40-50 dB). The source is seeded so
// measurement sequences reproduce.
func NewSensors(channels int, snrDB float64, seed int64) *Sensors {
	snr := math.Pow(10, snrDB/10)
	s := &Sensors{
		channels:  channels,
		noiseStd:  1.0 / math.Sqrt(snr),
		driftRate: 1e-4,
		drift:     make([]float64, channels),
		gain:      make([]float64, channels),
		offset:    make([]float64, channels),
		rng:       rand.New(rand.NewSource(seed)),
	}
	for i := range s.gain {
		s.gain[i] = 1.0
	}
	return s
}

// Measure observes the true state: m = gain·x + offset + noise + drift.
// The drift state advances on every call.
func (s *Sensors) Measure(x dynamo.State, t float64) dynamo.State {
	m := make(dynamo.State, s.channels)
	for i := 0; i < s.channels; i++ {
		s.drift[i] += s.driftRate * s.rng.NormFloat64() * 1e-5
		v := 0.0
		if i < len(x) {
			v = x[i]
		}
		m[i] = s.gain[i]*v + s.offset[i] + s.noiseStd*s.rng.NormFloat64() + s.drift[i]
	}
	return m
}

// NoiseStd reports the per-channel measurement noise level.
func (s *Sensors) NoiseStd() float64 { return s.noiseStd }
