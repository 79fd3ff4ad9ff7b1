package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// Store persists run histories as one directory per run: metadata.json
// for the scalars and states.csv for the full time series.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID            string             `json:"id"`
	Preset        string             `json:"preset"`
	Timestamp     time.Time          `json:"timestamp"`
	Seed          int64              `json:"seed"`
	Dt            float64            `json:"dt"`
	Duration      float64            `json:"duration"`
	Horizon       int                `json:"horizon"`
	Solver        string             `json:"solver"`
	StepsTaken    int                `json:"steps_taken"`
	FallbackSteps int                `json:"fallback_steps"`
	StoppedEarly  bool               `json:"stopped_early"`
	StopReason    string             `json:"stop_reason"`
	Metrics       map[string]float64 `json:"metrics"`
}

// Save writes the run under a timestamped ID and returns it. The CSV
// carries time, state, nonlinear validation state (when recorded),
// control, and disturbance columns.
func (s *Store) Save(preset string, dt, duration float64, seed int64, horizon int, solver string, result *dynamo.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", preset, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:            runID,
		Preset:        preset,
		Timestamp:     time.Now(),
		Seed:          seed,
		Dt:            dt,
		Duration:      duration,
		Horizon:       horizon,
		Solver:        solver,
		StepsTaken:    result.StepsTaken,
		FallbackSteps: result.FallbackSteps,
		StoppedEarly:  result.TerminatedEarly,
		StopReason:    string(result.StopReason),
		Metrics:       result.Metrics,
	}

	metaPath := filepath.Join(runDir, "metadata.json")
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvPath := filepath.Join(runDir, "states.csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	return runID, writeCSV(csvFile, result)
}

func writeCSV(w io.Writer, result *dynamo.Result) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if len(result.States) == 0 {
		return nil
	}

	n := len(result.States[0])
	withNL := len(result.Nonlinear) == len(result.States)

	header := []string{"time"}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	if withNL {
		for i := 0; i < n; i++ {
			header = append(header, fmt.Sprintf("xnl%d", i))
		}
	}

	numControls := 0
	if len(result.Controls) > 0 {
		numControls = len(result.Controls[0])
		for i := 0; i < numControls; i++ {
			header = append(header, fmt.Sprintf("u%d", i))
		}
	}
	for i := 0; i < n; i++ {
		header = append(header, fmt.Sprintf("d%d", i))
	}

	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range result.States {
		row := []string{strconv.FormatFloat(result.Times[i], 'f', 6, 64)}

		for _, val := range result.States[i] {
			row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
		}
		if withNL {
			for _, val := range result.Nonlinear[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		}

		if i < len(result.Controls) && len(result.Controls[i]) > 0 {
			for _, val := range result.Controls[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		} else {
			for j := 0; j < numControls; j++ {
				row = append(row, "0")
			}
		}

		if i < len(result.Disturbances) && len(result.Disturbances[i]) > 0 {
			for _, val := range result.Disturbances[i] {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		} else {
			for j := 0; j < n; j++ {
				row = append(row, "0")
			}
		}

		if err := cw.Write(row); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		metaPath := filepath.Join(s.baseDir, entry.Name(), "metadata.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		runs = append(runs, meta)
	}

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadSeries reads back the stored CSV as labelled columns.
func (s *Store) LoadSeries(runID string) (map[string][]float64, []string, error) {
	csvPath := filepath.Join(s.baseDir, runID, "states.csv")
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}

	if len(records) < 2 {
		return map[string][]float64{}, []string{}, nil
	}

	header := records[0]
	cols := make(map[string][]float64, len(header))
	for _, name := range header {
		cols[name] = make([]float64, 0, len(records)-1)
	}

	for i := 1; i < len(records); i++ {
		record := records[i]
		for j, raw := range record {
			if j >= len(header) {
				break
			}
			val, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			cols[header[j]] = append(cols[header[j]], val)
		}
	}

	return cols, header, nil
}

// ExportCSV copies the stored time series for a run to the writer.
func (s *Store) ExportCSV(runID string, w io.Writer) error {
	csvPath := filepath.Join(s.baseDir, runID, "states.csv")
	file, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(w, file)
	return err
}

// ExportJSON writes the run metadata as indented JSON.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
