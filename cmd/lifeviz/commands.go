package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	xdraw "golang.org/x/image/draw"

	"github.com/san-kum/lifeviz/internal/automation"
	"github.com/san-kum/lifeviz/internal/config"
	"github.com/san-kum/lifeviz/internal/export"
	"github.com/san-kum/lifeviz/internal/gui"
	"github.com/san-kum/lifeviz/internal/session"
	"github.com/san-kum/lifeviz/internal/source"
	"github.com/san-kum/lifeviz/internal/storage"
	"github.com/san-kum/lifeviz/internal/viz"
)

// runSession ticks sess on its own goroutine while view blocks, then stops
// the tick loop and waits for it.
func runSession(ctx context.Context, sess *session.Session, view func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	viewErr := view()
	cancel()
	if err := <-done; err != nil {
		return err
	}
	return viewErr
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, sess, log, cleanup, err := start(cmd, true)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []viz.Option{viz.WithTheme(theme), viz.WithGIFPath(gifPath), viz.WithLogger(log)}
	if braille {
		opts = append(opts, viz.WithBraille())
	}
	return runSession(ctx, sess, func() error { return viz.Run(sess, opts...) })
}

func runGUI(cmd *cobra.Command, args []string) error {
	ctx, sess, log, cleanup, err := start(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	return runSession(ctx, sess, func() error {
		gui.Run(sess, log)
		return nil
	})
}

func runHeadless(cmd *cobra.Command, args []string) error {
	ctx, sess, log, cleanup, err := start(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	startTime := time.Now()
	samples, err := automation.Record(ctx, sess, runTicks)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	elapsed := time.Since(startTime)

	st := sess.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "grid %dx%d depth %d (%s, %s)\n", st.Cols, st.Rows, st.Depth, st.Mode, st.Binning)
	fmt.Fprintf(out, "ticks %d in %v (%.1f ticks/s)\n", len(samples), elapsed.Round(time.Millisecond),
		float64(len(samples))/max(elapsed.Seconds(), 1e-9))
	printMetrics(out, storage.Summarize(samples))

	if data := storage.Series(samples); len(data) > 1 {
		fmt.Fprintln(out, asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("population")))
	}

	if !save {
		return nil
	}
	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	id, err := store.Save(automation.Metadata(sess, preset, len(samples)), samples)
	if err != nil {
		return err
	}
	log.Info("run saved", "id", id, "dir", dataDir)
	fmt.Fprintf(out, "saved: %s\n", id)
	return nil
}

var metricOrder = []string{"population_final", "population_mean", "population_min", "population_max", "driven_fraction"}

func printMetrics(w io.Writer, metrics map[string]float64) {
	for _, k := range metricOrder {
		fmt.Fprintf(w, "  %-18s %.2f\n", k, metrics[k])
	}
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx, sess, log, cleanup, err := start(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := automation.Record(ctx, sess, max(snapTicks, 1)); err != nil {
		return err
	}
	var frame session.Frame
	if !sess.CopyFrame(&frame) {
		return errors.New("no frame was produced")
	}

	if strings.EqualFold(filepath.Ext(outPath), ".svg") {
		canvas := viz.NewCanvas((frame.W+1)/2, (frame.H+3)/4)
		canvas.Plot(frame.Pix, frame.W, frame.H, 0.5)
		err = export.WriteFile(outPath, export.CanvasToSVG(canvas, 4, "#00ff00"))
	} else {
		err = writePNG(outPath, frame.Pix, frame.W, frame.H)
	}
	if err != nil {
		return err
	}
	log.Info("snapshot written", "path", outPath, "width", frame.W, "height", frame.H)
	return nil
}

// writePNG writes a BGRA frame scaled up by an integer factor so that the
// short side is at least 720 pixels.
func writePNG(path string, pix []byte, w, h int) error {
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i+3 < len(pix) && i+3 < len(src.Pix); i += 4 {
		src.Pix[i+0] = pix[i+2]
		src.Pix[i+1] = pix[i+1]
		src.Pix[i+2] = pix[i+0]
		src.Pix[i+3] = pix[i+3]
	}
	scale := max(720/max(min(w, h), 1), 1)
	dst := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, dst); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no saved runs")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tPRESET\tGRID\tMODE\tTICKS\tFINAL POP")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%dx%d\t%s\t%d\t%.0f\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04"), r.Preset,
			r.Cols, r.Rows, r.Depth, r.Mode, r.Ticks, r.Metrics["population_final"])
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	samples, err := store.LoadSamples(args[0])
	if err != nil {
		return err
	}
	data := storage.Series(samples)
	if len(data) < 2 {
		return storage.ErrNoSamples
	}
	if svgPath != "" {
		return export.WriteFile(svgPath, export.SeriesToSVG(data, 800, 240, "#00ff00"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("%s population (%s, %d ticks)", meta.ID, meta.Mode, meta.Ticks))))
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	base, log, cleanup, err := prepare(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store *storage.Store
	if save {
		store = storage.New(dataDir)
		if err := store.Init(); err != nil {
			return err
		}
	}
	results, err := automation.RunScenario(ctx, sc, base, store, log)
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "step %d %s (%d ticks) %s\n", r.Step, r.Name, r.Ticks, r.RunID)
		printMetrics(out, r.Metrics)
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, log, cleanup, err := prepare(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	results, err := automation.RunSweep(ctx, &automation.Sweep{
		Param: sweepParam,
		Min:   sweepMin,
		Max:   sweepMax,
		Steps: sweepSteps,
		Ticks: sweepTicks,
	}, base, log)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tFINAL\tMEAN\tMIN\tMAX\n", strings.ToUpper(sweepParam))
	for _, r := range results {
		fmt.Fprintf(w, "%.3f\t%.0f\t%.1f\t%.0f\t%.0f\n", r.Value,
			r.Metrics["population_final"], r.Metrics["population_mean"],
			r.Metrics["population_min"], r.Metrics["population_max"])
	}
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	return err
}

func exportRun(cmd *cobra.Command, args []string) error {
	return storage.New(dataDir).ExportJSON(cmd.OutOrStdout(), args[0])
}

func printConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	cmd.OutOrStdout().Write(data)
	if writePath != "" {
		return config.Save(writePath, cfg)
	}
	return nil
}

// parseSource reads kind:key followed by optional comma separated
// settings, e.g. "file:bg.png,blend=screen,fit=fill,opacity=0.5,mirror".
func parseSource(s string) (config.SourceSpec, error) {
	parts := strings.Split(s, ",")
	kind, key, _ := strings.Cut(parts[0], ":")
	spec := config.SourceSpec{Kind: strings.TrimSpace(kind), Key: key}
	if _, ok := source.ParseKind(spec.Kind); !ok {
		return spec, fmt.Errorf("invalid source %q: unknown kind %q", s, spec.Kind)
	}

	for _, p := range parts[1:] {
		name, value, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch name {
		case "blend":
			spec.Blend = value
		case "fit":
			spec.Fit = value
		case "name":
			spec.Name = value
		case "mirror":
			spec.Mirror = true
		case "opacity":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return spec, fmt.Errorf("invalid source %q: opacity: %w", s, err)
			}
			spec.Opacity = &v
		case "fps":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return spec, fmt.Errorf("invalid source %q: fps: %w", s, err)
			}
			spec.FPS = v
		default:
			return spec, fmt.Errorf("invalid source %q: unknown setting %q", s, name)
		}
	}
	return spec, nil
}
