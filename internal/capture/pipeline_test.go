package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/lifeviz/internal/logging"
	"github.com/san-kum/lifeviz/internal/pixel"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// solid returns a w×h BGRA buffer of one color.
func solid(w, h int, b, g, r byte) []byte {
	buf := make([]byte, pixel.Size(w, h))
	for i := 0; i < len(buf); i += 4 {
		buf[i], buf[i+1], buf[i+2], buf[i+3] = b, g, r, 255
	}
	return buf
}

func gradient(w, h int) []byte {
	buf := make([]byte, pixel.Size(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			buf[o], buf[o+1], buf[o+2], buf[o+3] = byte(x), byte(y), byte(x+y), 255
		}
	}
	return buf
}

func newTestPipeline(kind Kind, opts ...Option) *Pipeline {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewPipeline(kind, "test", NewFeed(), opts...)
}

func TestPullBeforeFirstFrame(t *testing.T) {
	p := newTestPipeline(KindWindow)
	if _, ok := p.Pull(Request{W: 8, H: 8}); ok {
		t.Error("expected no frame before the first submission")
	}
	if _, _, ok := p.NativeSize(); ok {
		t.Error("expected no native size before the first submission")
	}
}

func TestPullStretchIdentity(t *testing.T) {
	p := newTestPipeline(KindWindow)
	src := gradient(16, 9)
	p.Submit(src, 16, 9)

	f, ok := p.Pull(Request{W: 16, H: 9, Fit: pixel.FitStretch})
	if !ok {
		t.Fatal("expected a frame")
	}
	if diff := cmp.Diff(src, f.Pix); diff != "" {
		t.Errorf("stretch at equal size changed pixels:\n%s", diff)
	}
}

func TestLatestFrameWins(t *testing.T) {
	p := newTestPipeline(KindWindow)
	p.Submit(solid(4, 4, 1, 1, 1), 4, 4)
	p.Submit(solid(4, 4, 2, 2, 2), 4, 4)
	p.Submit(solid(4, 4, 3, 3, 3), 4, 4)

	f, ok := p.Pull(Request{W: 4, H: 4, Fit: pixel.FitStretch})
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Pix[0] != 3 {
		t.Errorf("expected newest frame, got value %d", f.Pix[0])
	}
	if p.Stats().Frames != 3 {
		t.Errorf("frames = %d, want 3", p.Stats().Frames)
	}
}

func TestSubmitCopiesInput(t *testing.T) {
	p := newTestPipeline(KindWindow)
	src := solid(2, 2, 9, 9, 9)
	p.Submit(src, 2, 2)
	src[0] = 100

	f, _ := p.Pull(Request{W: 2, H: 2, Fit: pixel.FitStretch})
	if f.Pix[0] != 9 {
		t.Errorf("pipeline observed caller mutation: %d", f.Pix[0])
	}
}

func TestSubmitRejectsShortBuffers(t *testing.T) {
	p := newTestPipeline(KindWindow)
	p.Submit(make([]byte, 10), 4, 4)
	p.Submit(nil, 0, 0)
	if p.Stats().Frames != 0 {
		t.Error("short buffers should be ignored")
	}
}

func TestPullReusesReadyFrame(t *testing.T) {
	p := newTestPipeline(KindWindow)
	p.Submit(solid(4, 4, 5, 5, 5), 4, 4)

	req := Request{W: 4, H: 4, Fit: pixel.FitStretch}
	first, _ := p.Pull(req)
	second, ok := p.Pull(req)
	if !ok {
		t.Fatal("expected the previous frame to be returned")
	}
	if &first.Pix[0] != &second.Pix[0] {
		t.Error("expected the ready buffer to be reused")
	}
	if p.Stats().Misses != 1 {
		t.Errorf("misses = %d, want 1", p.Stats().Misses)
	}
}

func TestPullRescalesOnRequestChange(t *testing.T) {
	p := newTestPipeline(KindWindow)
	p.Submit(solid(8, 8, 7, 7, 7), 8, 8)

	p.Pull(Request{W: 8, H: 8, Fit: pixel.FitStretch})
	f, ok := p.Pull(Request{W: 2, H: 3, Fit: pixel.FitStretch})
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.W != 2 || f.H != 3 || len(f.Pix) != pixel.Size(2, 3) {
		t.Errorf("got %dx%d with %d bytes", f.W, f.H, len(f.Pix))
	}
	if f.Pix[0] != 7 {
		t.Errorf("unexpected pixel %d", f.Pix[0])
	}
}

func TestPullNative(t *testing.T) {
	p := newTestPipeline(KindWindow)
	src := gradient(10, 6)
	p.Submit(src, 10, 6)

	f, ok := p.Pull(Request{W: 5, H: 3, Native: true})
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.NativeW != 10 || f.NativeH != 6 {
		t.Errorf("native size %dx%d", f.NativeW, f.NativeH)
	}
	if diff := cmp.Diff(src, f.Native); diff != "" {
		t.Errorf("native buffer differs:\n%s", diff)
	}

	f, _ = p.Pull(Request{W: 5, H: 3})
	if f.Native != nil {
		t.Error("native buffer returned without being requested")
	}
}

func TestBuffersAreReused(t *testing.T) {
	p := newTestPipeline(KindWindow)
	seen := map[*byte]bool{}
	for i := 0; i < 6; i++ {
		p.Submit(solid(4, 4, byte(i), 0, 0), 4, 4)
		f, _ := p.Pull(Request{W: 4, H: 4, Native: true})
		seen[&f.Native[0]] = true
		if f.Native[0] != byte(i) {
			t.Fatalf("pull %d returned stale frame", i)
		}
	}
	if len(seen) > 2 {
		t.Errorf("expected two alternating raw buffers, saw %d", len(seen))
	}
}

func TestMirrorOnlyForWebcams(t *testing.T) {
	src := gradient(4, 1)
	req := Request{W: 4, H: 1, Fit: pixel.FitStretch, Mirror: true}

	cam := newTestPipeline(KindWebcam)
	cam.Submit(src, 4, 1)
	f, _ := cam.Pull(req)
	if f.Pix[0] != 3 {
		t.Errorf("webcam should be mirrored, first pixel x=%d", f.Pix[0])
	}

	win := newTestPipeline(KindWindow)
	win.Submit(src, 4, 1)
	f, _ = win.Pull(req)
	if f.Pix[0] != 0 {
		t.Errorf("window should not be mirrored, first pixel x=%d", f.Pix[0])
	}
}

func TestExpiryNeedsMissesAndGrace(t *testing.T) {
	clock := newFakeClock()
	p := newTestPipeline(KindWebcam, WithClock(clock.Now))
	pol := DefaultPolicy(KindWebcam)

	for i := 0; i < pol.MissThreshold; i++ {
		p.Pull(Request{W: 4, H: 4})
	}
	if p.Expired() {
		t.Fatal("expired before the grace window")
	}

	clock.Advance(pol.Grace + time.Millisecond)
	if !p.Expired() {
		t.Fatal("expected expiry after misses and grace")
	}

	p.Submit(solid(4, 4, 1, 1, 1), 4, 4)
	p.Pull(Request{W: 4, H: 4})
	if p.Expired() {
		t.Error("a fresh frame should reset expiry")
	}
}

func TestExpiryIgnoresSilentStaticFiles(t *testing.T) {
	clock := newFakeClock()
	p := newTestPipeline(KindFile, WithClock(clock.Now))
	p.Submit(solid(4, 4, 1, 1, 1), 4, 4)

	for i := 0; i < 100; i++ {
		p.Pull(Request{W: 4, H: 4})
	}
	clock.Advance(time.Hour)
	if p.Expired() {
		t.Error("a decoded still image should not expire")
	}
}

func TestExpiryForFrameStall(t *testing.T) {
	clock := newFakeClock()
	p := newTestPipeline(KindWindow, WithClock(clock.Now))
	pol := DefaultPolicy(KindWindow)

	p.Submit(solid(4, 4, 1, 1, 1), 4, 4)
	p.Pull(Request{W: 4, H: 4})
	for i := 0; i < pol.MissThreshold; i++ {
		p.Pull(Request{W: 4, H: 4})
	}
	if p.Expired() {
		t.Fatal("expired inside the grace window")
	}
	clock.Advance(pol.Grace + time.Second)
	if !p.Expired() {
		t.Error("expected a stalled window source to expire")
	}
}

type failingAcquirer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *failingAcquirer) Run(ctx context.Context, sink Sink) error {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.err
}

func (a *failingAcquirer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestFailedAcquisitionExpires(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name      string
		retries   int
		wantCalls int
	}{
		{"no retries", 0, 1},
		{"one retry", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acq := &failingAcquirer{err: errBoom}
			p := NewPipeline(KindWebcam, "cam", acq,
				WithLogger(logging.Discard()),
				WithPolicy(Policy{Retries: tt.retries, RetryDelay: time.Millisecond, Grace: time.Hour, MissThreshold: 1000}))
			p.Start(context.Background())
			defer p.Stop()

			eventually(t, "failure", func() bool { return p.Err() != nil })
			if !errors.Is(p.Err(), errBoom) {
				t.Errorf("Err() = %v", p.Err())
			}
			if !p.Expired() {
				t.Error("failed pipeline should be expired")
			}
			if got := acq.Calls(); got != tt.wantCalls {
				t.Errorf("acquirer ran %d times, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestStopJoinsAcquisition(t *testing.T) {
	feed := NewFeed()
	p := NewPipeline(KindWindow, "win", feed, WithLogger(logging.Discard()))
	p.Start(context.Background())

	eventually(t, "feed attached", func() bool { return feed.Push(solid(2, 2, 1, 1, 1), 2, 2) })
	if !p.Stats().Running {
		t.Error("expected running pipeline")
	}

	p.Stop()
	if feed.Push(solid(2, 2, 1, 1, 1), 2, 2) {
		t.Error("feed still attached after Stop returned")
	}
	if p.Stats().Running {
		t.Error("expected stopped pipeline")
	}
	p.Stop()
}

func TestFeedFailEndsRun(t *testing.T) {
	feed := NewFeed()
	p := NewPipeline(KindWindow, "win", feed, WithLogger(logging.Discard()))
	p.Start(context.Background())
	defer p.Stop()

	eventually(t, "feed attached", func() bool { return feed.Push(solid(2, 2, 1, 1, 1), 2, 2) })
	feed.Fail(ErrUnavailable)
	eventually(t, "failure", func() bool { return errors.Is(p.Err(), ErrUnavailable) })
}

func TestPollingAcquirer(t *testing.T) {
	var mu sync.Mutex
	polls := 0
	poller := PollerFunc(func(ctx context.Context, dst []byte) ([]byte, int, int, error) {
		mu.Lock()
		defer mu.Unlock()
		polls++
		if polls%2 == 0 {
			return dst, 0, 0, ErrNoFrame
		}
		return solid(3, 2, byte(polls), 0, 0), 3, 2, nil
	})

	p := NewPipeline(KindWindow, "poll", Polling(poller, time.Millisecond), WithLogger(logging.Discard()))
	p.Start(context.Background())
	defer p.Stop()

	eventually(t, "polled frames", func() bool { return p.Stats().Frames >= 2 })
	if p.Err() != nil {
		t.Errorf("ErrNoFrame should not fail the pipeline: %v", p.Err())
	}
	w, h, ok := p.NativeSize()
	if !ok || w != 3 || h != 2 {
		t.Errorf("native size %dx%d ok=%v", w, h, ok)
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"window":   KindWindow,
		"Webcam":   KindWebcam,
		"camera":   KindWebcam,
		"file":     KindFile,
		"image":    KindFile,
		"sequence": KindSequence,
		"video":    KindSequence,
	}
	for in, want := range tests {
		if got, ok := ParseKind(in); !ok || got != want {
			t.Errorf("ParseKind(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseKind("hologram"); ok {
		t.Error("unknown kind parsed")
	}
}
