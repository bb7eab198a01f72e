package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/lifeviz/internal/beat"
	"github.com/san-kum/lifeviz/internal/capture"
	"github.com/san-kum/lifeviz/internal/config"
	"github.com/san-kum/lifeviz/internal/life"
	"github.com/san-kum/lifeviz/internal/logging"
	"github.com/san-kum/lifeviz/internal/source"
)

func white(w, h int) []byte {
	buf := make([]byte, w*h*4)
	for i := range buf {
		buf[i] = 255
	}
	return buf
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Rows = life.MinRows
	cfg.Seed = 7
	return cfg
}

type failingBeat struct {
	runs atomic.Int32
}

func (b *failingBeat) Snapshot() beat.Info { return beat.Info{} }

func (b *failingBeat) Run(ctx context.Context) error {
	b.runs.Add(1)
	return errors.New("no input device")
}

var _ = Describe("Session", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(func() { cancel() })
	})

	newSession := func(cfg *config.Config, opts ...Option) *Session {
		opts = append([]Option{WithLogger(logging.Discard())}, opts...)
		s, err := New(ctx, cfg, opts...)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(s.Close)
		return s
	}

	// pushWhenReady waits for the feed's pipeline to start, then pushes.
	pushWhenReady := func(s *Session, pix []byte, w, h int) *capture.Feed {
		list := s.Tree().List()
		Expect(list).NotTo(BeEmpty())
		feed, ok := s.Tree().Feed(list[0].ID)
		Expect(ok).To(BeTrue())
		Eventually(func() bool { return feed.Push(pix, w, h) }).Should(BeTrue())
		return feed
	}

	windowConfig := func() *config.Config {
		cfg := testConfig()
		cfg.Sources = []config.SourceSpec{{Kind: "window", Name: "desk"}}
		return cfg
	}

	Describe("procedural mode", func() {
		It("steps once per tick without sources", func() {
			s := newSession(testConfig())
			var f Frame
			Expect(s.CopyFrame(&f)).To(BeFalse())

			s.Tick()
			s.Tick()

			st := s.Stats()
			Expect(st.Tick).To(Equal(uint64(2)))
			Expect(st.Generation).To(Equal(uint64(2)))
			Expect(st.Driven).To(BeFalse())
			Expect(st.Sources).To(Equal(0))

			Expect(s.CopyFrame(&f)).To(BeTrue())
			Expect(f.W).To(Equal(st.Cols))
			Expect(f.H).To(Equal(st.Rows))
			Expect(f.Pix).To(HaveLen(st.Cols * st.Rows * 4))
			Expect(f.Native).To(BeNil())
			Expect(f.Tick).To(Equal(uint64(2)))
		})

		It("does not advance while paused", func() {
			s := newSession(testConfig())
			s.Tick()
			Expect(s.TogglePause()).To(BeTrue())
			s.Tick()
			s.Tick()
			Expect(s.Stats().Generation).To(Equal(uint64(1)))
			Expect(s.Stats().Paused).To(BeTrue())

			Expect(s.TogglePause()).To(BeFalse())
			s.Tick()
			Expect(s.Stats().Generation).To(Equal(uint64(2)))
		})
	})

	Describe("driven mode", func() {
		It("injects the composite before stepping", func() {
			s := newSession(windowConfig())
			pushWhenReady(s, white(64, 64), 64, 64)

			s.Tick()
			st := s.Stats()
			Expect(st.Driven).To(BeTrue())
			Expect(st.Generation).To(Equal(uint64(1)))

			// The injected all-alive generation sits in the red share of the
			// history, so every cell has at least a third of full red.
			var f Frame
			Expect(s.CopyFrame(&f)).To(BeTrue())
			for i := 0; i < f.W*f.H; i++ {
				Expect(f.Pix[i*4+2]).To(BeNumerically(">=", 85))
				Expect(f.Pix[i*4+3]).To(Equal(byte(255)))
			}
		})

		It("injects per channel in RGB mode", func() {
			cfg := windowConfig()
			cfg.Mode = "rgb"
			s := newSession(cfg)
			pushWhenReady(s, white(32, 32), 32, 32)

			s.Tick()
			Expect(s.Stats().Driven).To(BeTrue())
			Expect(s.Stats().Mode).To(Equal(life.RGB))
		})

		It("copies the native composite when asked", func() {
			cfg := windowConfig()
			cfg.PreserveNative = true
			s := newSession(cfg)
			pushWhenReady(s, white(40, 30), 40, 30)

			s.Tick()
			var f Frame
			Expect(s.CopyFrame(&f)).To(BeTrue())
			Expect(f.NativeW).To(Equal(40))
			Expect(f.NativeH).To(Equal(30))
			Expect(f.Native).To(HaveLen(40 * 30 * 4))
		})
	})

	Describe("aspect", func() {
		It("follows the primary source on the next tick", func() {
			s := newSession(windowConfig())
			_, cols := s.Automaton().Size()
			Expect(cols).To(Equal(life.Columns(life.MinRows, life.DefaultAspect)))

			pushWhenReady(s, white(400, 100), 400, 100)
			s.Tick()
			s.Tick()

			_, cols = s.Automaton().Size()
			Expect(cols).To(Equal(life.Columns(life.MinRows, 4)))
		})

		It("ignores the source while locked", func() {
			cfg := windowConfig()
			cfg.Aspect = config.AspectConfig{Lock: true, Ratio: 1}
			s := newSession(cfg)

			pushWhenReady(s, white(400, 100), 400, 100)
			s.Tick()
			s.Tick()

			_, cols := s.Automaton().Size()
			Expect(cols).To(Equal(life.Columns(life.MinRows, 1)))
		})

		It("falls back to procedural mode and the default aspect when the source is lost", func() {
			pol := capture.Policy{}
			s := newSession(windowConfig(), WithSourceOptions(source.WithPolicy(capture.KindWindow, pol)))

			feed := pushWhenReady(s, white(400, 100), 400, 100)
			s.Tick()
			s.Tick()
			Expect(s.Stats().Cols).To(Equal(life.Columns(life.MinRows, 4)))

			feed.Fail(errors.New("window closed"))
			Eventually(func() int {
				s.Tick()
				return s.Stats().Sources
			}).Should(Equal(0))

			st := s.Stats()
			Expect(st.Cols).To(Equal(life.Columns(life.MinRows, life.DefaultAspect)))
			s.Tick()
			Expect(s.Stats().Driven).To(BeFalse())
		})
	})

	Describe("controls", func() {
		It("reconfigures rows and depth on the next tick", func() {
			s := newSession(testConfig())
			s.SetRows(100)
			s.SetDepth(9)
			s.Tick()

			st := s.Stats()
			Expect(st.Rows).To(Equal(100))
			Expect(st.Depth).To(Equal(9))
			Expect(st.Split).To(Equal([3]int{3, 3, 3}))
			Expect(s.Config().Rows).To(Equal(100))
		})

		It("clamps the base rate", func() {
			s := newSession(testConfig())
			Expect(s.SetFPS(1000)).To(Equal(config.MaxFPS))
			Expect(s.Config().Tempo.FPS).To(Equal(config.MaxFPS))
		})

		It("toggles modes and records them in the config", func() {
			s := newSession(testConfig())
			Expect(s.ToggleMode()).To(Equal(life.RGB))
			Expect(s.Config().Mode).To(Equal("rgb"))
			Expect(s.ToggleBinning()).To(Equal(life.BinBinary))
			Expect(s.Config().Binning).To(Equal("binary"))
			Expect(s.CycleInjection()).To(Equal(life.InjectRandomPulse))
			Expect(s.CycleInjection()).To(Equal(life.InjectPWM))
			Expect(s.CycleInjection()).To(Equal(life.InjectThreshold))
			Expect(s.Config().Injection.Mode).To(Equal("threshold"))
		})
	})

	Describe("Run", func() {
		It("ticks until cancelled and survives a failing beat detector", func() {
			cfg := testConfig()
			cfg.Tempo.FPS = config.MaxFPS
			b := &failingBeat{}
			s := newSession(cfg, WithBeat(b))

			done := make(chan error, 1)
			go func() { done <- s.Run(ctx) }()

			Eventually(func() uint64 { return s.Stats().Tick }).Should(BeNumerically(">=", 3))
			Eventually(b.runs.Load).Should(Equal(int32(1)))

			cancel()
			Eventually(done, time.Second).Should(Receive(BeNil()))
		})
	})
})
