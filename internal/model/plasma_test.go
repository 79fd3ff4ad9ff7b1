package model

import (
	"math"
	"testing"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

func TestPlasma_QuietDerivative(t *testing.T) {
	p := NewPlasma(10.0, 28.0, 8.0/3.0, 1).Quiet()

	x := dynamo.State{1.0, 2.0, 3.0}
	dx := p.Derive(x, nil, 0)

	wantX := 10.0 * (2.0 - 1.0)
	wantY := 1.0*(28.0-3.0) - 2.0
	wantZ := 1.0*2.0 - 8.0/3.0*3.0

	if math.Abs(dx[0]-wantX) > 1e-12 || math.Abs(dx[1]-wantY) > 1e-12 || math.Abs(dx[2]-wantZ) > 1e-12 {
		t.Errorf("Derive = %v, want [%v %v %v]", dx, wantX, wantY, wantZ)
	}
}

func TestPlasma_ControlCoupling(t *testing.T) {
	p := NewPlasma(10.0, 28.0, 8.0/3.0, 1).Quiet()

	x := dynamo.State{1.0, 2.0, 3.0}
	free := p.Derive(x, nil, 0)
	forced := p.Derive(x, dynamo.Control{2.0, -4.0, 6.0}, 0)

	if math.Abs(forced[0]-free[0]-2.0) > 1e-12 {
		t.Errorf("channel 0 coupling: got %v", forced[0]-free[0])
	}
	if math.Abs(forced[1]-free[1]+4.0) > 1e-12 {
		t.Errorf("channel 1 coupling: got %v", forced[1]-free[1])
	}
	// third channel has half authority
	if math.Abs(forced[2]-free[2]-3.0) > 1e-12 {
		t.Errorf("channel 2 coupling: got %v, want 3.0", forced[2]-free[2])
	}
}

func TestPlasma_SeededDeterminism(t *testing.T) {
	x := dynamo.State{1.0, 1.0, 20.0}

	a := NewPlasma(10.0, 28.0, 8.0/3.0, 42)
	b := NewPlasma(10.0, 28.0, 8.0/3.0, 42)

	for i := 0; i < 50; i++ {
		t0 := float64(i) * 0.01
		da := a.Derive(x, nil, t0)
		db := b.Derive(x, nil, t0)
		for j := range da {
			if da[j] != db[j] {
				t.Fatalf("step %d: same seed diverged: %v vs %v", i, da, db)
			}
		}
	}
}

func TestPlasma_RhoDrift(t *testing.T) {
	p := NewPlasma(10.0, 28.0, 8.0/3.0, 1)
	p.noiseAmp = 0
	p.elmTimes = nil

	// at quarter period the drift peaks at rho + 5
	if got := p.rhoAt(7.5); math.Abs(got-33.0) > 1e-9 {
		t.Errorf("rhoAt(7.5) = %v, want 33", got)
	}
	if got := p.rhoAt(0); math.Abs(got-28.0) > 1e-9 {
		t.Errorf("rhoAt(0) = %v, want 28", got)
	}
}

func TestELMDisturbance_Phases(t *testing.T) {
	d := ELMDisturbance(7)

	quiet := d(1.0)
	for _, v := range quiet {
		if v != 0 {
			t.Errorf("quiet phase should be zero, got %v", quiet)
			break
		}
	}

	impulse := d(2.05)
	if impulse[0] != 5.0 || impulse[1] != -3.0 || impulse[2] != 8.0 {
		t.Errorf("impulse = %v, want [5 -3 8]", impulse)
	}

	late := d(5.0)
	allZero := true
	for _, v := range late {
		if v != 0 {
			allZero = false
		}
		if math.Abs(v) > 1.0 {
			t.Errorf("residual noise too large: %v", late)
		}
	}
	if allZero {
		t.Error("residual noise phase returned exact zeros")
	}
}

func TestELMDisturbance_SeededDeterminism(t *testing.T) {
	a := ELMDisturbance(42)
	b := ELMDisturbance(42)

	for i := 0; i < 20; i++ {
		t0 := 3.0 + float64(i)*0.01
		da, db := a(t0), b(t0)
		for j := range da {
			if da[j] != db[j] {
				t.Fatalf("same seed diverged at t=%v", t0)
			}
		}
	}
}
