package model

import (
	"errors"
	"testing"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

func TestNewBounds_Validation(t *testing.T) {
	tests := []struct {
		name    string
		uMin    []float64
		uMax    []float64
		xMin    []float64
		xMax    []float64
		wantErr bool
	}{
		{"valid", []float64{-1, -1}, []float64{1, 1}, []float64{-5}, []float64{5}, false},
		{"control dim mismatch", []float64{-1}, []float64{1, 1}, []float64{-5}, []float64{5}, true},
		{"state dim mismatch", []float64{-1}, []float64{1}, []float64{-5, -5}, []float64{5}, true},
		{"control min above max", []float64{2}, []float64{1}, []float64{-5}, []float64{5}, true},
		{"state min above max", []float64{-1}, []float64{1}, []float64{6}, []float64{5}, true},
		{"equal bounds", []float64{1}, []float64{1}, []float64{0}, []float64{0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBounds(tt.uMin, tt.uMax, tt.xMin, tt.xMax)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewBounds() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrBadBounds) {
				t.Errorf("error %v is not ErrBadBounds", err)
			}
		})
	}
}

func TestBounds_ClampControl(t *testing.T) {
	b := DefaultBounds()

	u := b.ClampControl(dynamo.Control{100, -100, 3})
	want := dynamo.Control{20, -20, 3}
	for i := range want {
		if u[i] != want[i] {
			t.Errorf("ClampControl = %v, want %v", u, want)
			break
		}
	}
}

func TestBounds_ClampState(t *testing.T) {
	b := DefaultBounds()

	x := b.ClampState(dynamo.State{-50, 10, -5})
	want := dynamo.State{-40, 10, 0}
	for i := range want {
		if x[i] != want[i] {
			t.Errorf("ClampState = %v, want %v", x, want)
			break
		}
	}

	// Clamped states always satisfy the box.
	for i := range x {
		if x[i] < b.XMin[i] || x[i] > b.XMax[i] {
			t.Errorf("clamped state %v escapes bounds", x)
		}
	}
}

func TestNewBounds_Copies(t *testing.T) {
	uMin := []float64{-1, -1}
	b, err := NewBounds(uMin, []float64{1, 1}, []float64{-5, -5}, []float64{5, 5})
	if err != nil {
		t.Fatal(err)
	}

	uMin[0] = -99
	if b.UMin[0] == -99 {
		t.Error("NewBounds aliased the caller's slice")
	}
}
