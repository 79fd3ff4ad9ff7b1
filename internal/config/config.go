package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid indicates a malformed run configuration. Configuration
// errors are fatal at construction and never silently corrected.
var ErrInvalid = errors.New("config: invalid configuration")

const (
	DefaultDt       = 0.01
	DefaultDuration = 10.0
	DefaultHorizon  = 15
	DefaultSigma    = 10.0
	DefaultRho      = 28.0
	DefaultBeta     = 8.0 / 3.0
	DefaultSNRdB    = 45.0
	DefaultHidden   = 16
	DefaultLearn    = 0.01
)

// Config describes one closed-loop plasma control run.
type Config struct {
	Horizon  int     `yaml:"horizon"`
	Dt       float64 `yaml:"dt"`
	Duration float64 `yaml:"duration"`
	Seed     int64   `yaml:"seed"`

	// Lorenz surrogate parameters.
	Sigma float64 `yaml:"sigma"`
	Rho   float64 `yaml:"rho"`
	Beta  float64 `yaml:"beta"`

	// Diagonal cost weights; empty selects the study defaults.
	QWeights []float64 `yaml:"q_weights"`
	RWeights []float64 `yaml:"r_weights"`

	// Per-channel box bounds; empty selects the study defaults.
	UMin []float64 `yaml:"u_min"`
	UMax []float64 `yaml:"u_max"`
	XMin []float64 `yaml:"x_min"`
	XMax []float64 `yaml:"x_max"`

	X0   []float64 `yaml:"x0"`
	XRef []float64 `yaml:"x_ref"`

	// Fallback proportional gains (diagonal).
	KpGains []float64 `yaml:"kp_gains"`

	Solver    string  `yaml:"solver"`     // "qp" or "pd"
	OnFailure string  `yaml:"on_failure"` // "fallback" or "zero"
	Tolerance float64 `yaml:"tolerance"`
	MaxIter   int     `yaml:"max_iter"`

	Validate    bool    `yaml:"validate"`
	Adaptive    bool    `yaml:"adaptive"`
	SafetyLimit float64 `yaml:"safety_limit"`
	Disturbance string  `yaml:"disturbance"` // "none" or "elm"

	// Adaptive-path knobs.
	SNRdB        float64 `yaml:"snr_db"`
	HiddenDim    int     `yaml:"hidden_dim"`
	LearningRate float64 `yaml:"learning_rate"`
}

func DefaultConfig() *Config {
	return &Config{
		Horizon:      DefaultHorizon,
		Dt:           DefaultDt,
		Duration:     DefaultDuration,
		Sigma:        DefaultSigma,
		Rho:          DefaultRho,
		Beta:         DefaultBeta,
		QWeights:     []float64{1.0, 1.0, 10.0},
		RWeights:     []float64{0.1, 0.1, 0.1},
		UMin:         []float64{-20.0, -20.0, -10.0},
		UMax:         []float64{20.0, 20.0, 10.0},
		XMin:         []float64{-40.0, -40.0, 0.0},
		XMax:         []float64{40.0, 40.0, 50.0},
		X0:           []float64{1.0, 1.0, 20.0},
		XRef:         []float64{0.0, 0.0, 25.0},
		KpGains:      []float64{2.0, 2.0, 1.0},
		Solver:       "qp",
		OnFailure:    "fallback",
		Tolerance:    1e-4,
		MaxIter:      5000,
		Disturbance:  "none",
		SNRdB:        DefaultSNRdB,
		HiddenDim:    DefaultHidden,
		LearningRate: DefaultLearn,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Check rejects malformed configurations before anything is built.
func (c *Config) Check() error {
	if c.Horizon < 1 {
		return fmt.Errorf("%w: horizon must be >= 1, got %d", ErrInvalid, c.Horizon)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrInvalid, c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %g", ErrInvalid, c.Duration)
	}
	if len(c.UMin) != len(c.UMax) {
		return fmt.Errorf("%w: u_min/u_max length mismatch", ErrInvalid)
	}
	if len(c.XMin) != len(c.XMax) {
		return fmt.Errorf("%w: x_min/x_max length mismatch", ErrInvalid)
	}
	for i := range c.UMin {
		if c.UMin[i] > c.UMax[i] {
			return fmt.Errorf("%w: u_min[%d] > u_max[%d]", ErrInvalid, i, i)
		}
	}
	for i := range c.XMin {
		if c.XMin[i] > c.XMax[i] {
			return fmt.Errorf("%w: x_min[%d] > x_max[%d]", ErrInvalid, i, i)
		}
	}
	if len(c.X0) != len(c.XRef) {
		return fmt.Errorf("%w: x0 and x_ref must have the same length", ErrInvalid)
	}
	switch c.Solver {
	case "qp", "pd":
	default:
		return fmt.Errorf("%w: unknown solver %q", ErrInvalid, c.Solver)
	}
	switch c.OnFailure {
	case "fallback", "zero":
	default:
		return fmt.Errorf("%w: unknown failure policy %q", ErrInvalid, c.OnFailure)
	}
	switch c.Disturbance {
	case "none", "elm":
	default:
		return fmt.Errorf("%w: unknown disturbance %q", ErrInvalid, c.Disturbance)
	}
	return nil
}
