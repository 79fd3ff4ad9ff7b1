package config

// Presets are named control scenarios from the suppression study.
var Presets = map[string]*Config{
	"nominal": DefaultConfig(),
	"elm": func() *Config {
		c := DefaultConfig()
		c.Duration = 30.0
		c.Disturbance = "elm"
		return c
	}(),
	"adaptive": func() *Config {
		c := DefaultConfig()
		c.Duration = 30.0
		c.Disturbance = "elm"
		c.Adaptive = true
		c.Validate = true
		return c
	}(),
	"fallback": func() *Config {
		c := DefaultConfig()
		c.Solver = "pd"
		return c
	}(),
	"guarded": func() *Config {
		c := DefaultConfig()
		c.Disturbance = "elm"
		c.Duration = 30.0
		c.SafetyLimit = 4000.0
		return c
	}(),
}

// GetPreset returns a private copy of the named scenario; mutating it
// never touches the shared table.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	clone := *cfg
	clone.QWeights = copyFloats(cfg.QWeights)
	clone.RWeights = copyFloats(cfg.RWeights)
	clone.UMin = copyFloats(cfg.UMin)
	clone.UMax = copyFloats(cfg.UMax)
	clone.XMin = copyFloats(cfg.XMin)
	clone.XMax = copyFloats(cfg.XMax)
	clone.X0 = copyFloats(cfg.X0)
	clone.XRef = copyFloats(cfg.XRef)
	clone.KpGains = copyFloats(cfg.KpGains)
	return &clone
}

func copyFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	c := make([]float64, len(s))
	copy(c, s)
	return c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}
