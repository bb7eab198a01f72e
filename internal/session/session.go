package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/lifeviz/internal/beat"
	"github.com/san-kum/lifeviz/internal/config"
	"github.com/san-kum/lifeviz/internal/life"
	"github.com/san-kum/lifeviz/internal/source"
)

// Runner is a beat source that needs its own goroutine.
type Runner interface {
	Run(ctx context.Context) error
}

// Frame is one published tick. Pix is the cols×rows BGRA rasterization of
// the automaton; Native is the full-resolution composite when native
// preservation is on and a source provided one.
type Frame struct {
	Pix  []byte
	W, H int

	Native           []byte
	NativeW, NativeH int

	Tick uint64
}

// Stats is a snapshot of the session.
type Stats struct {
	life.Stats
	Tick      uint64
	FPS       float64
	TargetFPS float64
	Sources   int
	// Driven is true when the last tick injected a composite.
	Driven bool
	Paused bool
	Beat   beat.Info
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithBeat attaches a beat collaborator. If it also implements Runner, Run
// starts it next to the tick loop.
func WithBeat(b BeatSource) Option {
	return func(s *Session) { s.beat = b }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithSourceOptions passes extra options to the source tree.
func WithSourceOptions(opts ...source.Option) Option {
	return func(s *Session) { s.treeOpts = append(s.treeOpts, opts...) }
}

// Session owns the automaton and the source tree and advances them once per
// tick: composite, mask, inject, step, rasterize.
type Session struct {
	log      *slog.Logger
	auto     *life.Automaton
	tree     *source.Tree
	masks    *life.MaskBuilder
	beat     BeatSource
	now      func() time.Time
	treeOpts []source.Option

	// tickMu serializes ticks; mu guards everything below it.
	tickMu sync.Mutex
	mu     sync.Mutex

	cfg         config.Config
	tempo       Tempo
	params      life.MaskParams
	pending     float64
	reconfigure bool
	paused      bool

	start    time.Time
	lastTick time.Time
	tick     uint64
	fps      float64
	driven   bool

	front, back []byte
	frontW      int
	frontH      int
	native      []byte
	nativeW     int
	nativeH     int
}

// New builds a session from a sanitized copy of cfg. Source pipelines run
// until ctx is cancelled or Close is called.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	c := *cfg
	c.Sanitize()

	s := &Session{
		cfg:   c,
		tempo: TempoFromConfig(c.Tempo),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "session")

	seed := c.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	s.params = maskParams(c.Injection)
	s.masks = life.NewMaskBuilder(s.params, seed+1)

	s.auto = life.New(seed)
	mode, _ := life.ParseColorMode(c.Mode)
	bin, _ := life.ParseBinning(c.Binning)
	s.auto.SetMode(mode)
	s.auto.SetBinning(bin)
	s.auto.SetWorkers(c.Workers)

	treeOpts := append([]source.Option{
		source.WithLogger(s.log),
		source.WithAspectHandler(s.onAspect),
	}, s.treeOpts...)
	s.tree = source.NewTree(ctx, treeOpts...)
	if c.Aspect.Lock {
		s.tree.SetAspectLock(true, c.Aspect.Ratio)
	}

	s.auto.Configure(c.Rows, c.Depth, s.tree.Aspect())
	s.mu.Lock()
	s.reconfigure = false
	s.mu.Unlock()

	if err := s.tree.Build(uuid.Nil, c.SourceSpecs()); err != nil {
		s.tree.Close()
		return nil, fmt.Errorf("failed to build sources: %w", err)
	}

	rows, cols := s.auto.Size()
	s.log.Info("session configured", "rows", rows, "cols", cols, "depth", s.auto.Depth(),
		"mode", mode.String(), "sources", s.tree.Len())
	return s, nil
}

func maskParams(c config.InjectionConfig) life.MaskParams {
	mode, _ := life.ParseInjectionMode(c.Mode)
	return life.MaskParams{
		Mode:   mode,
		Min:    c.Min,
		Max:    c.Max,
		Invert: c.Invert,
		Noise:  c.Noise,
	}
}

func (s *Session) onAspect(aspect float64) {
	s.mu.Lock()
	s.pending = aspect
	s.reconfigure = true
	s.mu.Unlock()
}

// Tree exposes the source tree for adding, moving and removing sources.
func (s *Session) Tree() *source.Tree {
	return s.tree
}

// Automaton exposes the automaton.
func (s *Session) Automaton() *life.Automaton {
	return s.auto
}

// Config returns the effective configuration, including runtime changes.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Tick runs one simulation step. It never blocks on a source.
func (s *Session) Tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.tree.Prune()

	s.mu.Lock()
	paused := s.paused
	params := s.params
	preserve := s.cfg.PreserveNative
	reconfigure, aspect := s.reconfigure, s.pending
	rows, depth := s.cfg.Rows, s.cfg.Depth
	s.reconfigure = false
	s.mu.Unlock()

	if reconfigure {
		s.auto.Configure(rows, depth, aspect)
		r, c := s.auto.Size()
		s.log.Info("reconfigured", "rows", r, "cols", c, "depth", s.auto.Depth(), "aspect", aspect)
	}
	if paused {
		return
	}

	rows, cols := s.auto.Size()
	tick := s.currentTick()

	driven := false
	comp, ok := s.tree.Composite(cols, rows, preserve)
	if ok {
		s.masks.Params = params
		driven = s.inject(comp.Pix, cols, rows, tick)
	}
	s.auto.Step()

	s.back = s.auto.Rasterize(s.back)
	s.publish(cols, rows, comp, driven)
}

func (s *Session) currentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

func (s *Session) inject(pix []byte, w, h int, tick uint64) bool {
	rgb := s.auto.Mode() == life.RGB
	var periods [3]int
	if rgb {
		periods = s.auto.Split()
	} else {
		periods[0] = s.auto.Depth()
	}

	masks := s.masks.Build(pix, w, h, rgb, tick, periods)
	switch len(masks) {
	case 1:
		return s.auto.Inject(masks[0])
	case 3:
		return s.auto.InjectRGB(masks[0], masks[1], masks[2])
	}
	return false
}

func (s *Session) publish(w, h int, comp source.Composite, driven bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.front, s.back = s.back, s.front
	s.frontW, s.frontH = w, h

	if comp.Native != nil {
		if cap(s.native) < len(comp.Native) {
			s.native = make([]byte, len(comp.Native))
		}
		s.native = s.native[:len(comp.Native)]
		copy(s.native, comp.Native)
		s.nativeW, s.nativeH = comp.NativeW, comp.NativeH
	} else {
		s.native = s.native[:0]
		s.nativeW, s.nativeH = 0, 0
	}

	if !s.lastTick.IsZero() {
		if dt := now.Sub(s.lastTick).Seconds(); dt > 0 {
			inst := 1 / dt
			if s.fps == 0 {
				s.fps = inst
			} else {
				s.fps = 0.9*s.fps + 0.1*inst
			}
		}
	}
	s.lastTick = now
	s.tick++
	s.driven = driven
}

// CopyFrame copies the latest published frame into dst, reusing its
// buffers. It reports false before the first tick.
func (s *Session) CopyFrame(dst *Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tick == 0 {
		return false
	}
	dst.Pix = append(dst.Pix[:0], s.front...)
	dst.W, dst.H = s.frontW, s.frontH
	dst.Native = append(dst.Native[:0], s.native...)
	dst.NativeW, dst.NativeH = s.nativeW, s.nativeH
	if len(s.native) == 0 {
		dst.Native = nil
	}
	dst.Tick = s.tick
	return true
}

func (s *Session) Stats() Stats {
	st := Stats{
		Stats:   s.auto.Stats(),
		Sources: s.tree.Len(),
	}
	if s.beat != nil {
		st.Beat = s.beat.Snapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Tick = s.tick
	st.FPS = s.fps
	st.TargetFPS = s.tempo.CurrentFPS(s.elapsedLocked())
	st.Driven = s.driven
	st.Paused = s.paused
	return st
}

func (s *Session) elapsedLocked() time.Duration {
	if s.start.IsZero() {
		return 0
	}
	return s.now().Sub(s.start)
}

// NextInterval is the delay before the next tick under the current tempo.
func (s *Session) NextInterval() time.Duration {
	var info beat.Info
	hasBeat := s.beat != nil
	if hasBeat {
		info = s.beat.Snapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo.Interval(s.elapsedLocked(), info, hasBeat)
}

// Run ticks until ctx is done. A beat Runner, if present, runs alongside;
// its failure is logged and the session keeps its free-running tempo.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.start.IsZero() {
		s.start = s.now()
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)

	if r, ok := s.beat.(Runner); ok {
		g.Go(func() error {
			if err := r.Run(ctx); err != nil {
				s.log.Warn("beat detection unavailable", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
			s.Tick()
			timer.Reset(s.NextInterval())
		}
	})

	return g.Wait()
}

// Close stops every source pipeline.
func (s *Session) Close() {
	s.tree.Close()
}
