package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/san-kum/lifeviz/internal/beat"
	"github.com/san-kum/lifeviz/internal/config"
	"github.com/san-kum/lifeviz/internal/logging"
	"github.com/san-kum/lifeviz/internal/session"
)

var (
	dataDir    string
	configFile string
	preset     string
	rows       int
	depth      int
	mode       string
	binning    string
	injection  string
	minVal     float64
	maxVal     float64
	invert     bool
	noise      float64
	fps        float64
	oscillate  bool
	beatSync   bool
	listen     bool
	native     bool
	seed       int64
	workers    int
	logLevel   string
	logFile    string
	sources    []string

	// live
	theme   string
	braille bool
	gifPath string
	// run / snapshot / scenario
	runTicks  int
	snapTicks int
	save      bool
	outPath   string
	// plot
	svgPath string
	// sweep
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int
	sweepTicks int
	// config
	writePath string
)

// main registers commands and flags and runs the terminal view when no
// subcommand is given. It exits with status 1 if the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:          "lifeviz",
		Short:        "depth-stacked game of life driven by live imagery",
		SilenceUsage: true,
		RunE:         runLive,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDir, "data", ".lifeviz", "data directory for saved runs")
	pf.StringVar(&configFile, "config", "", "config file path (yaml)")
	pf.StringVar(&preset, "preset", "", "apply a named preset on top of the config")
	pf.IntVar(&rows, "rows", 0, "grid rows")
	pf.IntVar(&depth, "depth", 0, "history depth")
	pf.StringVar(&mode, "mode", "", "color mode (grayscale, rgb)")
	pf.StringVar(&binning, "binning", "", "binning (fill, binary)")
	pf.StringVar(&injection, "injection", "", "injection mode (threshold, random_pulse, pwm)")
	pf.Float64Var(&minVal, "min", 0, "threshold window minimum")
	pf.Float64Var(&maxVal, "max", 0, "threshold window maximum")
	pf.BoolVar(&invert, "invert", false, "invert the threshold window")
	pf.Float64Var(&noise, "noise", 0, "probability of forcing a pixel dead")
	pf.Float64Var(&fps, "fps", 0, "base tick rate")
	pf.BoolVar(&oscillate, "oscillate", false, "oscillate the tick rate")
	pf.BoolVar(&beatSync, "beat-sync", false, "sync ticks to detected beats")
	pf.BoolVar(&listen, "listen", false, "run beat detection on the default audio input")
	pf.BoolVar(&native, "native", false, "keep a native-resolution composite")
	pf.Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	pf.IntVar(&workers, "workers", 0, "step workers (0 = one per CPU)")
	pf.StringVar(&logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&logFile, "log-file", "", "write JSON logs to this file")
	pf.StringArrayVar(&sources, "source", nil, "add a source: kind:key[,blend=..][,fit=..][,opacity=..][,mirror][,fps=..]")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "run with the terminal view",
		RunE:  runLive,
	}
	for _, c := range []*cobra.Command{rootCmd, liveCmd} {
		c.Flags().StringVar(&theme, "theme", "phosphor", "color theme")
		c.Flags().BoolVar(&braille, "braille", false, "start in Braille mode")
		c.Flags().StringVar(&gifPath, "gif", "lifeviz.gif", "recording output path")
	}

	guiCmd := &cobra.Command{
		Use:   "gui",
		Short: "run in a raylib window",
		RunE:  runGUI,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run headless for a number of ticks and report statistics",
		RunE:  runHeadless,
	}
	runCmd.Flags().IntVar(&runTicks, "ticks", 300, "ticks to run")
	runCmd.Flags().BoolVar(&save, "save", false, "store the run in the data directory")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "write a PNG of the automaton after a number of ticks",
		RunE:  runSnapshot,
	}
	snapshotCmd.Flags().IntVar(&snapTicks, "ticks", 100, "ticks to run")
	snapshotCmd.Flags().StringVar(&outPath, "out", "lifeviz.png", "output path")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the population of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	plotCmd.Flags().StringVar(&svgPath, "svg", "", "write the plot as SVG to this path instead")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "run the steps of a scenario file headless",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&save, "save", false, "store every step in the data directory")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run one session per value of a parameter and compare populations",
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&sweepParam, "param", "injection.min", "parameter to vary")
	sweepCmd.Flags().Float64Var(&sweepMin, "from", 0, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "to", 1, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 5, "number of values")
	sweepCmd.Flags().IntVar(&sweepTicks, "ticks", 200, "ticks per value")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a saved run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Run: func(cmd *cobra.Command, args []string) {
			for _, p := range config.ListPresets() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
			}
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration as YAML",
		RunE:  printConfig,
	}
	configCmd.Flags().StringVar(&writePath, "write", "", "also save it to this path")

	rootCmd.AddCommand(liveCmd, guiCmd, runCmd, snapshotCmd, scenarioCmd, sweepCmd, listCmd, plotCmd, exportCmd, presetsCmd, configCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, LIFEVIZ_* environment,
// the preset and finally explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if preset != "" && !cfg.Apply(preset) {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}

	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("rows", func() { cfg.Rows = rows })
	set("depth", func() { cfg.Depth = depth })
	set("mode", func() { cfg.Mode = mode })
	set("binning", func() { cfg.Binning = binning })
	set("injection", func() { cfg.Injection.Mode = injection })
	set("min", func() { cfg.Injection.Min = minVal })
	set("max", func() { cfg.Injection.Max = maxVal })
	set("invert", func() { cfg.Injection.Invert = invert })
	set("noise", func() { cfg.Injection.Noise = noise })
	set("fps", func() { cfg.Tempo.FPS = fps })
	set("oscillate", func() { cfg.Tempo.Oscillate = oscillate })
	set("beat-sync", func() { cfg.Tempo.BeatSync = beatSync })
	set("native", func() { cfg.PreserveNative = native })
	set("seed", func() { cfg.Seed = seed })
	set("workers", func() { cfg.Workers = workers })
	set("log-level", func() { cfg.Logging.Level = logLevel })
	set("log-file", func() { cfg.Logging.File = logFile })

	for _, s := range sources {
		spec, err := parseSource(s)
		if err != nil {
			return nil, err
		}
		cfg.Sources = append(cfg.Sources, spec)
	}

	cfg.Sanitize()
	return cfg, nil
}

// newLogger builds the logger for cfg. quiet discards output when no log
// file is configured, for views that own the terminal.
func newLogger(cfg *config.Config, quiet bool) (*slog.Logger, io.Closer, error) {
	if quiet && cfg.Logging.File == "" {
		return logging.Discard(), io.NopCloser(nil), nil
	}
	return logging.New(cfg.Logging.Level, cfg.Logging.File)
}

// prepare loads the config and its logger. cleanup closes the log file.
func prepare(cmd *cobra.Command, quiet bool) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	log, closer, err := newLogger(cfg, quiet)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, func() { closer.Close() }, nil
}

// start builds a session from the config and returns it with a context
// cancelled on SIGINT/SIGTERM. cleanup stops everything.
func start(cmd *cobra.Command, quiet bool) (context.Context, *session.Session, *slog.Logger, func(), error) {
	cfg, log, closeLog, err := prepare(cmd, quiet)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx = logging.WithLogger(ctx, log)

	opts := []session.Option{session.WithLogger(log)}
	if listen || cfg.Tempo.BeatSync {
		opts = append(opts, session.WithBeat(beat.NewStream(beat.NewAnalyzer(beat.SampleRate), log)))
	}

	sess, err := session.New(ctx, cfg, opts...)
	if err != nil {
		cancel()
		closeLog()
		return nil, nil, nil, nil, err
	}

	cleanup := func() {
		cancel()
		sess.Close()
		closeLog()
	}
	return ctx, sess, log, cleanup, nil
}
