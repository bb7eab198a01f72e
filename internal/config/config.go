package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/lifeviz/internal/life"
	"github.com/san-kum/lifeviz/internal/logging"
	"github.com/san-kum/lifeviz/internal/pixel"
	"github.com/san-kum/lifeviz/internal/source"
)

const (
	DefaultFPS         = 30.0
	MinFPS             = 1.0
	MaxFPS             = 240.0
	DefaultPeriod      = 8.0
	DefaultAmplitude   = 0.5
	DefaultSubdivision = 1
	MaxSubdivision     = 16
	DefaultSequenceFPS = 24.0
	DefaultMin         = 0.5
	DefaultMax         = 1.0

	EnvPrefix = "LIFEVIZ"
)

type Config struct {
	Rows           int             `yaml:"rows" mapstructure:"rows"`
	Depth          int             `yaml:"depth" mapstructure:"depth"`
	Aspect         AspectConfig    `yaml:"aspect" mapstructure:"aspect"`
	Mode           string          `yaml:"mode" mapstructure:"mode"`
	Binning        string          `yaml:"binning" mapstructure:"binning"`
	Injection      InjectionConfig `yaml:"injection" mapstructure:"injection"`
	Tempo          TempoConfig     `yaml:"tempo" mapstructure:"tempo"`
	PreserveNative bool            `yaml:"preserve_native" mapstructure:"preserve_native"`
	Seed           int64           `yaml:"seed" mapstructure:"seed"`
	Workers        int             `yaml:"workers" mapstructure:"workers"`
	Sources        []SourceSpec    `yaml:"sources,omitempty" mapstructure:"sources"`
	Logging        LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

type AspectConfig struct {
	Lock  bool    `yaml:"lock" mapstructure:"lock"`
	Ratio float64 `yaml:"ratio" mapstructure:"ratio"`
}

type InjectionConfig struct {
	Mode   string  `yaml:"mode" mapstructure:"mode"`
	Min    float64 `yaml:"min" mapstructure:"min"`
	Max    float64 `yaml:"max" mapstructure:"max"`
	Invert bool    `yaml:"invert" mapstructure:"invert"`
	Noise  float64 `yaml:"noise" mapstructure:"noise"`
}

type TempoConfig struct {
	FPS       float64 `yaml:"fps" mapstructure:"fps"`
	Oscillate bool    `yaml:"oscillate" mapstructure:"oscillate"`
	// Amplitude is the oscillation depth as a fraction of FPS.
	Amplitude float64 `yaml:"amplitude" mapstructure:"amplitude"`
	// Period is the oscillation period in seconds.
	Period      float64 `yaml:"period" mapstructure:"period"`
	BeatSync    bool    `yaml:"beat_sync" mapstructure:"beat_sync"`
	Subdivision int     `yaml:"subdivision" mapstructure:"subdivision"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

// SourceSpec describes one node of the source tree. Groups carry Children.
type SourceSpec struct {
	Kind     string       `yaml:"kind" mapstructure:"kind"`
	Key      string       `yaml:"key,omitempty" mapstructure:"key"`
	Name     string       `yaml:"name,omitempty" mapstructure:"name"`
	Blend    string       `yaml:"blend,omitempty" mapstructure:"blend"`
	Fit      string       `yaml:"fit,omitempty" mapstructure:"fit"`
	Opacity  *float64     `yaml:"opacity,omitempty" mapstructure:"opacity"`
	Mirror   bool         `yaml:"mirror,omitempty" mapstructure:"mirror"`
	FPS      float64      `yaml:"fps,omitempty" mapstructure:"fps"`
	Children []SourceSpec `yaml:"children,omitempty" mapstructure:"children"`
}

func DefaultConfig() *Config {
	return &Config{
		Rows:    life.DefaultRows,
		Depth:   life.DefaultDepth,
		Aspect:  AspectConfig{Ratio: life.DefaultAspect},
		Mode:    life.Grayscale.String(),
		Binning: life.BinFill.String(),
		Injection: InjectionConfig{
			Mode: life.InjectThreshold.String(),
			Min:  DefaultMin,
			Max:  DefaultMax,
		},
		Tempo: TempoConfig{
			FPS:         DefaultFPS,
			Amplitude:   DefaultAmplitude,
			Period:      DefaultPeriod,
			Subdivision: DefaultSubdivision,
		},
		Logging: LoggingConfig{Level: logging.LevelInfo},
	}
}

// Load reads path (if non-empty) on top of the defaults, applies LIFEVIZ_*
// environment overrides (LIFEVIZ_TEMPO_FPS for tempo.fps) and sanitizes the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("rows", d.Rows)
	v.SetDefault("depth", d.Depth)
	v.SetDefault("aspect.lock", d.Aspect.Lock)
	v.SetDefault("aspect.ratio", d.Aspect.Ratio)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("binning", d.Binning)
	v.SetDefault("injection.mode", d.Injection.Mode)
	v.SetDefault("injection.min", d.Injection.Min)
	v.SetDefault("injection.max", d.Injection.Max)
	v.SetDefault("injection.invert", d.Injection.Invert)
	v.SetDefault("injection.noise", d.Injection.Noise)
	v.SetDefault("tempo.fps", d.Tempo.FPS)
	v.SetDefault("tempo.oscillate", d.Tempo.Oscillate)
	v.SetDefault("tempo.amplitude", d.Tempo.Amplitude)
	v.SetDefault("tempo.period", d.Tempo.Period)
	v.SetDefault("tempo.beat_sync", d.Tempo.BeatSync)
	v.SetDefault("tempo.subdivision", d.Tempo.Subdivision)
	v.SetDefault("preserve_native", d.PreserveNative)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Marshal returns cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Sanitize clamps every field into range and replaces unknown names with
// their defaults. Sources of unknown kind are dropped.
func (c *Config) Sanitize() {
	d := DefaultConfig()

	if c.Rows <= 0 {
		c.Rows = d.Rows
	}
	c.Rows = life.ClampRows(c.Rows)
	if c.Depth <= 0 {
		c.Depth = d.Depth
	}
	c.Depth = life.ClampDepth(c.Depth)
	c.Aspect.Ratio = life.SanitizeAspect(c.Aspect.Ratio)

	mode, _ := life.ParseColorMode(c.Mode)
	c.Mode = mode.String()
	bin, _ := life.ParseBinning(c.Binning)
	c.Binning = bin.String()

	inj, _ := life.ParseInjectionMode(c.Injection.Mode)
	c.Injection.Mode = inj.String()
	c.Injection.Min = unit(c.Injection.Min, d.Injection.Min)
	c.Injection.Max = unit(c.Injection.Max, d.Injection.Max)
	c.Injection.Noise = unit(c.Injection.Noise, 0)

	c.Tempo.FPS = ClampFPS(c.Tempo.FPS)
	c.Tempo.Amplitude = unit(c.Tempo.Amplitude, d.Tempo.Amplitude)
	if !(c.Tempo.Period > 0) || math.IsInf(c.Tempo.Period, 0) {
		c.Tempo.Period = d.Tempo.Period
	}
	c.Tempo.Subdivision = min(max(c.Tempo.Subdivision, 1), MaxSubdivision)

	if c.Workers < 0 {
		c.Workers = 0
	}
	c.Logging.Level = strings.ToUpper(strings.TrimSpace(c.Logging.Level))
	switch c.Logging.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		c.Logging.Level = d.Logging.Level
	}

	c.Sources = sanitizeSources(c.Sources)
}

func sanitizeSources(specs []SourceSpec) []SourceSpec {
	if specs == nil {
		return nil
	}
	out := make([]SourceSpec, 0, len(specs))
	for _, s := range specs {
		kind, ok := source.ParseKind(s.Kind)
		if !ok {
			continue
		}
		s.Kind = kind.String()

		blend, _ := pixel.ParseBlendMode(s.Blend)
		s.Blend = blend.String()
		fit, _ := pixel.ParseFitMode(s.Fit)
		s.Fit = fit.String()

		op := 1.0
		if s.Opacity != nil {
			op = unit(*s.Opacity, 1)
		}
		s.Opacity = &op

		if kind == source.KindSequence && !(s.FPS > 0) {
			s.FPS = DefaultSequenceFPS
		}
		if kind == source.KindGroup {
			s.Children = sanitizeSources(s.Children)
		} else {
			s.Children = nil
		}
		out = append(out, s)
	}
	return out
}

// ClampFPS clamps fps to [MinFPS, MaxFPS]; non-finite or non-positive
// values become DefaultFPS.
func ClampFPS(fps float64) float64 {
	if math.IsNaN(fps) || math.IsInf(fps, 0) || fps <= 0 {
		return DefaultFPS
	}
	return min(max(fps, MinFPS), MaxFPS)
}

func unit(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return min(max(v, 0), 1)
}

// SourceSpecs converts the configured source list into tree specs.
func (c *Config) SourceSpecs() []source.Spec {
	return toSpecs(c.Sources)
}

func toSpecs(specs []SourceSpec) []source.Spec {
	out := make([]source.Spec, 0, len(specs))
	for _, s := range specs {
		kind, ok := source.ParseKind(s.Kind)
		if !ok {
			continue
		}
		settings := source.DefaultSettings()
		settings.Blend, _ = pixel.ParseBlendMode(s.Blend)
		settings.Fit, _ = pixel.ParseFitMode(s.Fit)
		if s.Opacity != nil {
			settings.Opacity = unit(*s.Opacity, 1)
		}
		settings.Mirror = s.Mirror

		out = append(out, source.Spec{
			Kind:     kind,
			Key:      s.Key,
			Name:     s.Name,
			Settings: settings,
			FPS:      s.FPS,
			Children: toSpecs(s.Children),
		})
	}
	return out
}
