package metrics

import (
	"math"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// DefaultSettlingThreshold is the fraction of peak energy below which the
// perturbation counts as settled.
const DefaultSettlingThreshold = 0.1

// minControlPower guards the efficiency ratio against division blow-up on
// near-zero-control steps.
const minControlPower = 1e-6

// Report holds the scalar stability and performance indicators derived
// from one recorded run.
type Report struct {
	PeakEnergy         float64
	FinalEnergy        float64
	SuppressionPercent float64
	SettlingTime       float64
	ControlEfficiency  float64
	MaxControlPower    float64
	MeanControlPower   float64
	ConfinementTime    float64
	LyapunovEstimate   float64
	DisruptionDetected bool
	DisruptionTime     float64
}

// Map flattens the report into named scalars for printing and storage.
func (r Report) Map() map[string]float64 {
	m := map[string]float64{
		"peak_energy":         r.PeakEnergy,
		"final_energy":        r.FinalEnergy,
		"suppression_percent": r.SuppressionPercent,
		"settling_time":       r.SettlingTime,
		"control_efficiency":  r.ControlEfficiency,
		"max_control_power":   r.MaxControlPower,
		"mean_control_power":  r.MeanControlPower,
		"confinement_time":    r.ConfinementTime,
		"lyapunov_estimate":   r.LyapunovEstimate,
		"disruption_detected": 0,
	}
	if r.DisruptionDetected {
		m["disruption_detected"] = 1
		m["disruption_time"] = r.DisruptionTime
	}
	return m
}

// Compute reduces a recorded history to its report. It is a pure
// function of the result: the history is read, never modified.
func Compute(res *dynamo.Result, settlingThreshold float64) Report {
	energy := EnergySeries(res.States)
	power := PowerSeries(res.Controls)

	var r Report
	if len(energy) == 0 {
		return r
	}

	r.PeakEnergy = maxOf(energy)
	r.FinalEnergy = energy[len(energy)-1]
	if energy[0] > 0 {
		r.SuppressionPercent = 100 * (energy[0] - r.FinalEnergy) / energy[0]
	}
	r.SettlingTime = SettlingTime(energy, res.Times, settlingThreshold)
	r.ControlEfficiency = controlEfficiency(energy, power)
	r.MaxControlPower = maxOf(power)
	r.MeanControlPower = meanOf(power)
	r.ConfinementTime = ConfinementTime(energy, res.Times)
	r.LyapunovEstimate = lyapunovEstimate(res.States, res.Times)
	r.DisruptionDetected, r.DisruptionTime = detectDisruption(energy, res.Times)
	return r
}

// EnergySeries computes the perturbation energy (sum of squared state
// components) at every recorded step.
func EnergySeries(states []dynamo.State) []float64 {
	e := make([]float64, len(states))
	for i, s := range states {
		e[i] = s.Energy()
	}
	return e
}

// PowerSeries computes the instantaneous control power at every step.
func PowerSeries(controls []dynamo.Control) []float64 {
	p := make([]float64, len(controls))
	for i, u := range controls {
		sum := 0.0
		for _, v := range u {
			sum += v * v
		}
		p[i] = sum
	}
	return p
}

// SettlingTime scans backward for the last sample where the signal
// exceeds threshold·peak and returns the time of the following sample.
// It returns 0 when the signal never exceeds the threshold.
func SettlingTime(signal, times []float64, threshold float64) float64 {
	if len(signal) == 0 || len(times) == 0 {
		return 0
	}
	limit := threshold * maxOf(signal)
	for i := len(signal) - 1; i >= 0; i-- {
		if signal[i] > limit {
			j := i + 1
			if j > len(times)-1 {
				j = len(times) - 1
			}
			return times[j]
		}
	}
	return 0
}

// ConfinementTime computes τ_E = mean(E) / lossRate, the plasma-physics
// stability indicator. It is zero when the loss rate is non-positive
// (energy flat or growing) or the time span is degenerate.
func ConfinementTime(energy, times []float64) float64 {
	if len(energy) == 0 || len(times) < 2 {
		return 0
	}
	span := times[len(times)-1] - times[0]
	if span <= 0 {
		return 0
	}
	lossRate := (energy[0] - energy[len(energy)-1]) / span
	if lossRate <= minControlPower {
		return 0
	}
	return meanOf(energy) / lossRate
}

// controlEfficiency averages the energy removed per unit control power,
// counting only steps with meaningful control and positive suppression.
func controlEfficiency(energy, power []float64) float64 {
	sum := 0.0
	valid := 0
	for i := 1; i < len(energy) && i < len(power); i++ {
		if power[i] <= minControlPower {
			continue
		}
		ratio := (energy[i-1] - energy[i]) / power[i]
		if ratio > 0 {
			sum += ratio
			valid++
		}
	}
	if valid == 0 {
		return 0
	}
	return sum / float64(valid)
}

// lyapunovEstimate approximates the largest Lyapunov exponent from the
// divergence of trajectory points a fixed window apart.
func lyapunovEstimate(states []dynamo.State, times []float64) float64 {
	const window = 100
	if len(states) <= window || len(times) <= window {
		return 0
	}
	dt := (times[len(times)-1] - times[0]) / float64(len(times)-1)
	if dt <= 0 {
		return 0
	}
	sum := 0.0
	count := 0
	for i := 0; i+window < len(states); i++ {
		div := states[i+window].Sub(states[i]).Norm()
		if div > 0 {
			sum += math.Log(div) / (float64(window) * dt)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// detectDisruption flags the first energy excursion beyond a rolling
// 3-sigma band over the history so far, offset by a floor so quiescent
// runs never trigger.
func detectDisruption(energy, times []float64) (bool, float64) {
	const (
		sigmas = 3.0
		floor  = 100.0
	)
	for i := range energy {
		n := i
		if n < 100 {
			n = 100
		}
		if n > len(energy) {
			n = len(energy)
		}
		if energy[i] > sigmas*stddevOf(energy[:n])+floor {
			t := 0.0
			if i < len(times) {
				t = times[i]
			}
			return true, t
		}
	}
	return false, 0
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	max := xs[0]
	for _, v := range xs[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := meanOf(xs)
	sum := 0.0
	for _, v := range xs {
		sum += (v - mu) * (v - mu)
	}
	return math.Sqrt(sum / float64(len(xs)))
}
