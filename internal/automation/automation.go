// Package automation runs sessions headless: recorded runs, scripted
// scenarios and parameter sweeps.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/lifeviz/internal/config"
	"github.com/san-kum/lifeviz/internal/session"
	"github.com/san-kum/lifeviz/internal/storage"
)

// Record ticks sess n times and returns one sample per tick. Without
// sources the ticks run back to back; with sources they follow the session
// tempo so pipelines have time to deliver frames. On cancellation the
// samples gathered so far are returned with ctx.Err().
func Record(ctx context.Context, sess *session.Session, n int) ([]storage.Sample, error) {
	samples := make([]storage.Sample, 0, max(n, 0))
	paced := sess.Tree().Len() > 0

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		sess.Tick()
		st := sess.Stats()
		samples = append(samples, storage.Sample{
			Tick:       st.Tick,
			Generation: st.Generation,
			Population: st.Population,
			Driven:     st.Driven,
		})

		if paced && i < n-1 {
			timer := time.NewTimer(sess.NextInterval())
			select {
			case <-ctx.Done():
				timer.Stop()
				return samples, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return samples, nil
}

// Metadata describes a finished session for storage.
func Metadata(sess *session.Session, preset string, ticks int) storage.RunMetadata {
	st := sess.Stats()
	cfg := sess.Config()
	return storage.RunMetadata{
		Preset:    preset,
		Timestamp: time.Now(),
		Seed:      cfg.Seed,
		Rows:      st.Rows,
		Cols:      st.Cols,
		Depth:     st.Depth,
		Mode:      cfg.Mode,
		Binning:   cfg.Binning,
		Injection: cfg.Injection.Mode,
		Sources:   st.Sources,
		Ticks:     ticks,
	}
}

// Scenario is a scripted sequence of headless runs.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one run of a scenario. Zero fields keep the base configuration.
type Step struct {
	Preset    string                  `yaml:"preset"`
	Ticks     int                     `yaml:"ticks"`
	Rows      int                     `yaml:"rows"`
	Depth     int                     `yaml:"depth"`
	Mode      string                  `yaml:"mode"`
	Binning   string                  `yaml:"binning"`
	Injection *config.InjectionConfig `yaml:"injection"`
	Seed      int64                   `yaml:"seed"`
	Sources   []config.SourceSpec     `yaml:"sources"`
	SaveAs    string                  `yaml:"save_as"`
}

const DefaultStepTicks = 300

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Config layers the step over base.
func (s Step) Config(base *config.Config) (*config.Config, error) {
	c := *base
	c.Sources = append([]config.SourceSpec(nil), base.Sources...)
	if s.Preset != "" && !c.Apply(s.Preset) {
		return nil, fmt.Errorf("unknown preset: %s", s.Preset)
	}
	if s.Rows > 0 {
		c.Rows = s.Rows
	}
	if s.Depth > 0 {
		c.Depth = s.Depth
	}
	if s.Mode != "" {
		c.Mode = s.Mode
	}
	if s.Binning != "" {
		c.Binning = s.Binning
	}
	if s.Injection != nil {
		c.Injection = *s.Injection
	}
	if s.Seed != 0 {
		c.Seed = s.Seed
	}
	if len(s.Sources) > 0 {
		c.Sources = s.Sources
	}
	c.Sanitize()
	return &c, nil
}

// Result is the outcome of one scenario step.
type Result struct {
	Step    int
	Name    string
	RunID   string
	Ticks   int
	Metrics map[string]float64
}

// RunScenario executes every step in order. Steps are saved to store when
// it is non-nil.
func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, store *storage.Store, log *slog.Logger) ([]Result, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "automation", "scenario", scenario.Name)
	results := make([]Result, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Config(base)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		ticks := step.Ticks
		if ticks <= 0 {
			ticks = DefaultStepTicks
		}
		name := step.SaveAs
		if name == "" {
			name = step.Preset
		}

		log.Info("running step", "step", i+1, "of", len(scenario.Steps), "name", name, "ticks", ticks)
		res, err := runOne(ctx, cfg, ticks, name, store, log)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		res.Step = i + 1
		results = append(results, res)
	}
	return results, nil
}

func runOne(ctx context.Context, cfg *config.Config, ticks int, name string, store *storage.Store, log *slog.Logger) (Result, error) {
	sess, err := session.New(ctx, cfg, session.WithLogger(log))
	if err != nil {
		return Result{}, err
	}
	defer sess.Close()

	samples, err := Record(ctx, sess, ticks)
	if err != nil {
		return Result{}, err
	}

	res := Result{Name: name, Ticks: len(samples), Metrics: storage.Summarize(samples)}
	if store != nil {
		id, err := store.Save(Metadata(sess, name, len(samples)), samples)
		if err != nil {
			return res, err
		}
		res.RunID = id
	}
	return res, nil
}

// Sweep varies one numeric parameter across evenly spaced values.
type Sweep struct {
	Param string
	Min   float64
	Max   float64
	Steps int
	Ticks int
}

// SweepParams lists the parameters a Sweep can vary.
var SweepParams = []string{"rows", "depth", "injection.min", "injection.max", "injection.noise"}

type SweepResult struct {
	Value   float64
	Metrics map[string]float64
}

func setParam(c *config.Config, name string, v float64) error {
	switch name {
	case "rows":
		c.Rows = int(v)
	case "depth":
		c.Depth = int(v)
	case "injection.min":
		c.Injection.Min = v
	case "injection.max":
		c.Injection.Max = v
	case "injection.noise":
		c.Injection.Noise = v
	default:
		return fmt.Errorf("unknown sweep parameter %q (available: %v)", name, SweepParams)
	}
	return nil
}

// RunSweep runs one session per parameter value, all from the same seed.
func RunSweep(ctx context.Context, sweep *Sweep, base *config.Config, log *slog.Logger) ([]SweepResult, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "automation", "sweep", sweep.Param)

	steps := max(sweep.Steps, 1)
	ticks := sweep.Ticks
	if ticks <= 0 {
		ticks = DefaultStepTicks
	}
	seed := base.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var stride float64
	if steps > 1 {
		stride = (sweep.Max - sweep.Min) / float64(steps-1)
	}

	results := make([]SweepResult, 0, steps)
	for i := 0; i < steps; i++ {
		value := sweep.Min + float64(i)*stride
		cfg := *base
		cfg.Sources = append([]config.SourceSpec(nil), base.Sources...)
		cfg.Seed = seed
		if err := setParam(&cfg, sweep.Param, value); err != nil {
			return nil, err
		}
		cfg.Sanitize()

		res, err := runOne(ctx, &cfg, ticks, "", nil, log)
		if err != nil {
			return results, err
		}
		results = append(results, SweepResult{Value: value, Metrics: res.Metrics})
		log.Info("sweep point", "step", i+1, "of", steps, "value", value,
			"population_mean", res.Metrics["population_mean"])
	}
	return results, nil
}
