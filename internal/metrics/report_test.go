package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/model"
)

func decayResult(n int, dt float64) *dynamo.Result {
	res := &dynamo.Result{}
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		v := 5.0 * math.Exp(-0.5*t)
		res.Times = append(res.Times, t)
		res.States = append(res.States, dynamo.State{v, 0, 0})
		res.Controls = append(res.Controls, dynamo.Control{-0.5 * v, 0, 0})
	}
	return res
}

func TestCompute_DecayingRun(t *testing.T) {
	res := decayResult(500, 0.01)
	r := Compute(res, DefaultSettlingThreshold)

	if math.Abs(r.PeakEnergy-25.0) > 1e-9 {
		t.Errorf("peak energy = %v, want 25", r.PeakEnergy)
	}
	if r.FinalEnergy >= r.PeakEnergy {
		t.Error("final energy should be below peak for a decaying run")
	}
	if r.SuppressionPercent <= 0 || r.SuppressionPercent > 100 {
		t.Errorf("suppression = %v%%, want within (0, 100]", r.SuppressionPercent)
	}
	if r.SettlingTime <= 0 {
		t.Errorf("settling time = %v, want positive for a decaying run", r.SettlingTime)
	}
	if r.ConfinementTime <= 0 {
		t.Errorf("confinement time = %v, want positive (energy is being lost)", r.ConfinementTime)
	}
	if r.MaxControlPower <= 0 {
		t.Error("max control power should be positive")
	}
	if r.DisruptionDetected {
		t.Error("a clean decay must not flag a disruption")
	}
}

// Scaling every state by s scales all energies by s^2; ratios and times
// are unchanged.
func TestCompute_ScaleConsistency(t *testing.T) {
	base := decayResult(500, 0.01)
	scaled := &dynamo.Result{Times: base.Times}
	for i := range base.States {
		scaled.States = append(scaled.States, base.States[i].Scale(4))
		scaled.Controls = append(scaled.Controls, dynamo.Control(dynamo.State(base.Controls[i]).Scale(4)))
	}

	rb := Compute(base, DefaultSettlingThreshold)
	rs := Compute(scaled, DefaultSettlingThreshold)

	if math.Abs(rs.PeakEnergy-16*rb.PeakEnergy) > 1e-6 {
		t.Errorf("peak energy did not scale by 16: %v vs %v", rs.PeakEnergy, rb.PeakEnergy)
	}
	if math.Abs(rs.SuppressionPercent-rb.SuppressionPercent) > 1e-6 {
		t.Errorf("suppression changed under scaling: %v vs %v", rs.SuppressionPercent, rb.SuppressionPercent)
	}
	if math.Abs(rs.SettlingTime-rb.SettlingTime) > 1e-9 {
		t.Errorf("settling time changed under scaling: %v vs %v", rs.SettlingTime, rb.SettlingTime)
	}
}

func TestSettlingTime(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4}

	tests := []struct {
		name   string
		signal []float64
		want   float64
	}{
		{"settles midway", []float64{10, 5, 0.5, 0.3, 0.2}, 2},
		{"never settles", []float64{10, 9, 8, 9, 10}, 4},
		{"immediately flat", []float64{0, 0, 0, 0, 0}, 0},
		{"settles at once", []float64{10, 0.1, 0.1, 0.1, 0.1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SettlingTime(tt.signal, times, 0.1); got != tt.want {
				t.Errorf("SettlingTime = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSettlingTime_Empty(t *testing.T) {
	if got := SettlingTime(nil, nil, 0.1); got != 0 {
		t.Errorf("SettlingTime(nil) = %v, want 0", got)
	}
}

func TestConfinementTime(t *testing.T) {
	times := []float64{0, 1, 2, 3}

	tests := []struct {
		name   string
		energy []float64
		zero   bool
	}{
		{"decaying", []float64{10, 8, 6, 4}, false},
		{"flat", []float64{5, 5, 5, 5}, true},
		{"growing", []float64{4, 6, 8, 10}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConfinementTime(tt.energy, times)
			if tt.zero && got != 0 {
				t.Errorf("ConfinementTime = %v, want 0", got)
			}
			if !tt.zero && got <= 0 {
				t.Errorf("ConfinementTime = %v, want positive", got)
			}
		})
	}

	// tau_E = mean(E)/lossRate: mean 7, loss (10-4)/3 = 2 -> 3.5
	got := ConfinementTime([]float64{10, 8, 6, 4}, times)
	if math.Abs(got-3.5) > 1e-12 {
		t.Errorf("ConfinementTime = %v, want 3.5", got)
	}
}

func TestControlEfficiency_IgnoresIdleSteps(t *testing.T) {
	// Only step 1 has meaningful power and positive suppression.
	energy := []float64{10, 8, 8, 8}
	power := []float64{0, 1, 0, 1e-9}

	got := controlEfficiency(energy, power)
	if math.Abs(got-2.0) > 1e-12 {
		t.Errorf("efficiency = %v, want 2 (only the active step counts)", got)
	}
}

func TestControlEfficiency_NoValidSteps(t *testing.T) {
	if got := controlEfficiency([]float64{1, 2, 3}, []float64{0, 0, 0}); got != 0 {
		t.Errorf("efficiency = %v, want 0 with no control applied", got)
	}
}

func TestEnergyAndPowerSeries(t *testing.T) {
	states := []dynamo.State{{3, 4, 0}, {0, 0, 0}}
	controls := []dynamo.Control{{1, 2, 2}, {0, 0, 0}}

	e := EnergySeries(states)
	if e[0] != 25 || e[1] != 0 {
		t.Errorf("energy series = %v, want [25 0]", e)
	}

	p := PowerSeries(controls)
	if p[0] != 9 || p[1] != 0 {
		t.Errorf("power series = %v, want [9 0]", p)
	}
}

func TestCompute_EmptyResult(t *testing.T) {
	r := Compute(&dynamo.Result{}, DefaultSettlingThreshold)
	if r.PeakEnergy != 0 || r.SettlingTime != 0 {
		t.Errorf("empty result should yield a zero report, got %+v", r)
	}
}

func TestControlEffortMetric(t *testing.T) {
	m := NewControlEffort()

	if m.Name() != "control_effort" {
		t.Errorf("name = %q", m.Name())
	}
	if m.Value() != 0 {
		t.Error("fresh metric should read 0")
	}

	m.Observe(dynamo.State{0, 0, 0}, dynamo.Control{1, -2, 3}, 0)
	m.Observe(dynamo.State{0, 0, 0}, dynamo.Control{0, 0, 0}, 0.01)

	if math.Abs(m.Value()-3.0) > 1e-12 {
		t.Errorf("effort = %v, want 3 (6 abs units over 2 steps)", m.Value())
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("Reset did not clear the metric")
	}
}

func TestStabilityMetric(t *testing.T) {
	bounds, err := model.NewBounds(
		[]float64{-1, -1, -1}, []float64{1, 1, 1},
		[]float64{-10, -10, -10}, []float64{10, 10, 10},
	)
	if err != nil {
		t.Fatal(err)
	}

	m := NewStability(bounds)
	if m.Value() != 1.0 {
		t.Error("fresh stability metric should read 1")
	}

	m.Observe(dynamo.State{0, 0, 0}, nil, 0)    // inside
	m.Observe(dynamo.State{10, 0, 0}, nil, 0.1) // on the bound counts as violation
	m.Observe(dynamo.State{5, -5, 5}, nil, 0.2) // inside
	m.Observe(dynamo.State{0, 12, 0}, nil, 0.3) // outside

	if math.Abs(m.Value()-0.5) > 1e-12 {
		t.Errorf("stability = %v, want 0.5", m.Value())
	}
}
