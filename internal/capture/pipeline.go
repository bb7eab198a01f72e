package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/san-kum/lifeviz/internal/logging"
	"github.com/san-kum/lifeviz/internal/pixel"
)

var (
	ErrNoFrame     = errors.New("capture: no new frame")
	ErrUnavailable = errors.New("capture: source unavailable")
	ErrStopped     = errors.New("capture: pipeline stopped")
)

// Sink receives raw BGRA frames from an acquirer. Submit copies pix, so the
// caller may reuse it as soon as Submit returns.
type Sink interface {
	Submit(pix []byte, w, h int)
}

// Acquirer produces frames until ctx is cancelled. A nil return means the
// acquirer finished on its own; an error is a failure the pipeline may
// retry according to its Policy.
type Acquirer interface {
	Run(ctx context.Context, sink Sink) error
}

// Request describes the frame the render side wants.
type Request struct {
	W, H   int
	Fit    pixel.FitMode
	Mirror bool
	Native bool
}

// Frame is the result of a pull. Its buffers belong to the pipeline and stay
// valid until the next Pull on the same pipeline.
type Frame struct {
	Pix  []byte
	W, H int

	Native           []byte
	NativeW, NativeH int
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Frames  uint64
	Misses  int
	Failed  bool
	Running bool
}

// Pipeline moves frames from one acquirer to the render side. The
// acquisition goroutine only ever touches the latest slot; Pull swaps that
// slot into its own input slot and downscales into the ready slot.
type Pipeline struct {
	kind   Kind
	name   string
	acq    Acquirer
	policy Policy
	log    *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	latest    []byte
	latestW   int
	latestH   int
	fresh     bool
	frames    uint64
	lastFrame time.Time
	failure   error

	pullMu   sync.Mutex
	input    []byte
	inputW   int
	inputH   int
	ready    []byte
	readyReq Request
	hasReady bool
	mapping  pixel.Mapping
	misses   int
	added    time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

func WithPolicy(pol Policy) Option {
	return func(p *Pipeline) { p.policy = pol }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(kind Kind, name string, acq Acquirer, opts ...Option) *Pipeline {
	p := &Pipeline{
		kind:   kind,
		name:   name,
		acq:    acq,
		policy: DefaultPolicy(kind),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	p.log = p.log.With("component", "capture", "source", name, "kind", kind.String())
	p.added = p.now()
	return p
}

func (p *Pipeline) Kind() Kind   { return p.kind }
func (p *Pipeline) Name() string { return p.name }

// Start launches the acquisition goroutine. Calling Start on a running
// pipeline does nothing.
func (p *Pipeline) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(logging.WithLogger(ctx, p.log))
	p.cancel = cancel
	p.done = make(chan struct{})

	p.mu.Lock()
	p.failure = nil
	p.mu.Unlock()
	p.pullMu.Lock()
	p.added = p.now()
	p.pullMu.Unlock()

	go p.run(ctx, p.done)
}

// Stop cancels the acquisition goroutine and waits for it to exit.
func (p *Pipeline) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.log.Debug("pipeline stopped")
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempts := 0
	for {
		err := p.acq.Run(ctx, p)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			p.log.Debug("acquirer finished")
			return
		}

		attempts++
		if attempts > p.policy.Retries {
			p.log.Warn("acquisition failed", "error", err, "attempts", attempts)
			p.mu.Lock()
			p.failure = err
			p.mu.Unlock()
			return
		}
		p.log.Debug("acquisition failed, restarting", "error", err, "attempt", attempts)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.policy.RetryDelay):
		}
	}
}

// Submit stores a raw frame in the latest slot, replacing any frame that
// has not been pulled yet.
func (p *Pipeline) Submit(pix []byte, w, h int) {
	if w <= 0 || h <= 0 || len(pix) < pixel.Size(w, h) {
		return
	}
	now := p.now()

	p.mu.Lock()
	p.latest = pixel.Ensure(p.latest, w, h)
	copy(p.latest, pix[:pixel.Size(w, h)])
	p.latestW, p.latestH = w, h
	p.fresh = true
	p.frames++
	p.lastFrame = now
	p.mu.Unlock()
}

// Pull returns the newest frame scaled to req. When no new raw frame has
// arrived since the last pull, the previous result is returned, rescaled
// only if req changed. The second result is false until the first frame
// arrives.
func (p *Pipeline) Pull(req Request) (Frame, bool) {
	p.pullMu.Lock()
	defer p.pullMu.Unlock()

	p.mu.Lock()
	got := p.fresh
	if got {
		p.latest, p.input = p.input, p.latest
		p.inputW, p.inputH = p.latestW, p.latestH
		p.fresh = false
	}
	failed := p.failure != nil
	p.mu.Unlock()

	if got && !failed {
		p.misses = 0
	} else {
		p.misses++
	}

	if p.inputW == 0 || p.inputH == 0 || req.W <= 0 || req.H <= 0 {
		return Frame{}, false
	}

	if got || !p.hasReady || p.readyReq.W != req.W || p.readyReq.H != req.H ||
		p.readyReq.Fit != req.Fit || p.readyReq.Mirror != req.Mirror {
		p.downscale(req)
	}

	f := Frame{Pix: p.ready, W: req.W, H: req.H}
	if req.Native {
		f.Native = p.input[:pixel.Size(p.inputW, p.inputH)]
		f.NativeW, f.NativeH = p.inputW, p.inputH
	}
	return f, true
}

func (p *Pipeline) downscale(req Request) {
	mirror := req.Mirror && p.kind.Mirrorable()
	if !p.mapping.Matches(req.Fit, p.inputW, p.inputH, req.W, req.H, mirror) {
		p.mapping.Compute(req.Fit, p.inputW, p.inputH, req.W, req.H, mirror)
	}
	p.ready = pixel.Ensure(p.ready, req.W, req.H)
	pixel.Resample(p.ready, p.input, &p.mapping)
	p.readyReq = req
	p.hasReady = true
}

// NativeSize returns the dimensions of the newest raw frame.
func (p *Pipeline) NativeSize() (w, h int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == 0 {
		return 0, 0, false
	}
	return p.latestW, p.latestH, true
}

// Expired reports whether the source should be dropped: its acquisition
// loop failed for good, or it has missed enough pulls and been silent for
// longer than the grace window.
func (p *Pipeline) Expired() bool {
	p.mu.Lock()
	failed := p.failure != nil
	frames := p.frames
	last := p.lastFrame
	p.mu.Unlock()

	if failed {
		return true
	}

	p.pullMu.Lock()
	misses := p.misses
	added := p.added
	p.pullMu.Unlock()

	if misses < p.policy.MissThreshold {
		return false
	}
	if frames > 0 && !p.policy.Stall {
		return false
	}
	since := added
	if last.After(since) {
		since = last
	}
	return p.now().Sub(since) > p.policy.Grace
}

// Err returns the error that ended acquisition, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failure
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	s := Stats{Frames: p.frames, Failed: p.failure != nil}
	p.mu.Unlock()

	p.pullMu.Lock()
	s.Misses = p.misses
	p.pullMu.Unlock()

	p.runMu.Lock()
	s.Running = p.done != nil
	p.runMu.Unlock()
	return s
}
