package storage

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

func sampleResult() *dynamo.Result {
	return &dynamo.Result{
		Times: []float64{0, 0.01, 0.02},
		States: []dynamo.State{
			{1, 1, 20},
			{0.9, 0.8, 19.5},
			{0.7, 0.6, 19.1},
		},
		Controls: []dynamo.Control{
			{0, 0, 0},
			{-1.2, 0.5, 0.1},
			{-0.9, 0.4, 0.1},
		},
		Disturbances: []dynamo.State{
			{0, 0, 0},
			{0, 0, 0},
			{0.01, -0.02, 0.03},
		},
		SolveTimes:    []time.Duration{0, time.Millisecond, time.Millisecond},
		Metrics:       map[string]float64{"suppression_percent": 87.5},
		StepsTaken:    2,
		FallbackSteps: 1,
		StopReason:    dynamo.StopCompleted,
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	runID, err := st.Save("nominal", 0.01, 10.0, 42, 15, "qp", sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(runID, "nominal_") {
		t.Errorf("run id %q should carry the preset prefix", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Seed != 42 || meta.Horizon != 15 || meta.Solver != "qp" {
		t.Errorf("metadata round trip: %+v", meta)
	}
	if meta.FallbackSteps != 1 || meta.StepsTaken != 2 {
		t.Errorf("run counters lost: %+v", meta)
	}
	if meta.StopReason != "completed" {
		t.Errorf("stop reason = %q, want completed", meta.StopReason)
	}
	if meta.Metrics["suppression_percent"] != 87.5 {
		t.Errorf("metrics lost: %v", meta.Metrics)
	}
}

func TestStore_LoadSeries(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	runID, err := st.Save("nominal", 0.01, 10.0, 42, 15, "qp", sampleResult())
	if err != nil {
		t.Fatal(err)
	}

	cols, header, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"time", "x0", "x1", "x2", "u0", "u1", "u2", "d0", "d1", "d2"} {
		found := false
		for _, h := range header {
			if h == want {
				found = true
			}
		}
		if !found {
			t.Errorf("header missing column %q: %v", want, header)
		}
	}

	if len(cols["time"]) != 3 {
		t.Fatalf("time column has %d rows, want 3", len(cols["time"]))
	}
	if cols["x2"][0] != 20 {
		t.Errorf("x2[0] = %v, want 20", cols["x2"][0])
	}
	if cols["u0"][1] != -1.2 {
		t.Errorf("u0[1] = %v, want -1.2", cols["u0"][1])
	}
	if cols["d1"][2] != -0.02 {
		t.Errorf("d1[2] = %v, want -0.02", cols["d1"][2])
	}
}

func TestStore_SaveWithNonlinear(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	res := sampleResult()
	res.Nonlinear = []dynamo.State{
		{1, 1, 20},
		{0.95, 0.85, 19.6},
		{0.75, 0.65, 19.2},
	}

	runID, err := st.Save("validated", 0.01, 10.0, 1, 15, "qp", res)
	if err != nil {
		t.Fatal(err)
	}

	cols, header, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatal(err)
	}

	hasNL := false
	for _, h := range header {
		if h == "xnl0" {
			hasNL = true
		}
	}
	if !hasNL {
		t.Fatalf("nonlinear columns missing: %v", header)
	}
	if cols["xnl1"][1] != 0.85 {
		t.Errorf("xnl1[1] = %v, want 0.85", cols["xnl1"][1])
	}
}

func TestStore_List(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	if runs, err := st.List(); err != nil || len(runs) != 0 {
		t.Fatalf("fresh store: runs=%v err=%v", runs, err)
	}

	if _, err := st.Save("a", 0.01, 1.0, 1, 5, "qp", sampleResult()); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save("b", 0.01, 1.0, 2, 5, "pd", sampleResult()); err != nil {
		t.Fatal(err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}

func TestStore_ListMissingDir(t *testing.T) {
	st := New(t.TempDir() + "/never-created")
	runs, err := st.List()
	if err != nil {
		t.Fatalf("missing base dir should not error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs from missing dir", len(runs))
	}
}

func TestStore_ExportJSON(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	runID, err := st.Save("nominal", 0.01, 10.0, 42, 15, "qp", sampleResult())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.ExportJSON(runID, &buf); err != nil {
		t.Fatal(err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(buf.Bytes(), &meta); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if meta.ID != runID {
		t.Errorf("exported id = %q, want %q", meta.ID, runID)
	}
}

func TestStore_ExportCSV(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	runID, err := st.Save("nominal", 0.01, 10.0, 42, 15, "qp", sampleResult())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := st.ExportCSV(runID, &buf); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 { // header + 3 rows
		t.Errorf("exported %d lines, want 4", len(lines))
	}
	if !strings.HasPrefix(lines[0], "time,") {
		t.Errorf("header = %q", lines[0])
	}
}
