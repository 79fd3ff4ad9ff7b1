package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

func TestNewLinear_Validation(t *testing.T) {
	square := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	rect := mat.NewDense(2, 3, nil)
	wrongRows := mat.NewDense(3, 2, nil)

	tests := []struct {
		name    string
		a, b    *mat.Dense
		wantErr bool
	}{
		{"valid", square, rect, false},
		{"nil A", nil, rect, true},
		{"nil B", square, nil, true},
		{"non-square A", rect, rect, true},
		{"B row mismatch", square, wrongRows, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLinear(tt.a, tt.b, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLinear() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLinear_Step(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{0.5, 0, 0, 2.0})
	b := mat.NewDense(2, 1, []float64{1, 0})
	lin, err := NewLinear(a, b, nil)
	if err != nil {
		t.Fatal(err)
	}

	x := lin.Step(dynamo.State{4, 3}, dynamo.Control{1}, dynamo.State{0, 0.5})
	if x[0] != 3 || x[1] != 6.5 {
		t.Errorf("Step = %v, want [3 6.5]", x)
	}

	// nil control and disturbance mean free evolution
	x = lin.Step(dynamo.State{4, 3}, nil, nil)
	if x[0] != 2 || x[1] != 6 {
		t.Errorf("free Step = %v, want [2 6]", x)
	}
}

func TestLinearizeLorenz(t *testing.T) {
	lin := LinearizeLorenz(10.0, 28.0, 8.0/3.0)

	xEq := math.Sqrt(8.0 / 3.0 * 27.0)

	want := [][]float64{
		{-10, 10, 0},
		{1, -1, -xEq},
		{xEq, xEq, -8.0 / 3.0},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(lin.A.At(i, j)-want[i][j]) > 1e-12 {
				t.Errorf("A[%d][%d] = %v, want %v", i, j, lin.A.At(i, j), want[i][j])
			}
		}
	}

	if lin.B.At(2, 2) != 0.5 {
		t.Errorf("third actuation channel authority = %v, want 0.5", lin.B.At(2, 2))
	}
	if lin.StateDim() != 3 || lin.ControlDim() != 3 {
		t.Errorf("dims = %d/%d, want 3/3", lin.StateDim(), lin.ControlDim())
	}
}

func TestLorenzWeights(t *testing.T) {
	q, r := LorenzWeights()

	if q.At(2, 2) != 10.0 {
		t.Errorf("energy-mode weight = %v, want 10", q.At(2, 2))
	}
	if q.At(0, 0) != 1.0 || q.At(1, 1) != 1.0 {
		t.Error("convective-mode weights should be 1")
	}
	for i := 0; i < 3; i++ {
		if r.At(i, i) != 0.1 {
			t.Errorf("R[%d][%d] = %v, want 0.1", i, i, r.At(i, i))
		}
	}
}
