package config

import "sort"

var Presets = map[string]func(*Config){
	"classic": func(c *Config) {
		c.Mode = "grayscale"
		c.Binning = "fill"
		c.Injection.Mode = "threshold"
	},
	"rgb-binary": func(c *Config) {
		c.Mode = "rgb"
		c.Binning = "binary"
		c.Depth = 24
		c.Injection.Mode = "threshold"
		c.Injection.Min = 0.4
	},
	"pulse": func(c *Config) {
		c.Mode = "rgb"
		c.Injection.Mode = "random_pulse"
		c.Injection.Min = 0.1
		c.Tempo.Oscillate = true
		c.Tempo.Amplitude = 0.6
		c.Tempo.Period = 4
	},
	"pwm": func(c *Config) {
		c.Mode = "rgb"
		c.Binning = "binary"
		c.Depth = 24
		c.Injection.Mode = "pwm"
		c.Injection.Min = 0
	},
	"deep": func(c *Config) {
		c.Rows = 540
		c.Depth = 96
		c.Binning = "fill"
		c.Tempo.FPS = 60
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	cfg.Sanitize()
	return cfg
}

// Apply applies the named preset on top of c. It reports false for unknown
// names.
func (c *Config) Apply(name string) bool {
	apply, ok := Presets[name]
	if !ok {
		return false
	}
	apply(c)
	c.Sanitize()
	return true
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
