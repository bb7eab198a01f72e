package source

import (
	"context"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/lifeviz/internal/capture"
	"github.com/san-kum/lifeviz/internal/life"
	"github.com/san-kum/lifeviz/internal/logging"
	"github.com/san-kum/lifeviz/internal/pixel"
)

func solid(w, h int, c [4]byte) []byte {
	buf := make([]byte, pixel.Size(w, h))
	for i := 0; i < len(buf); i += 4 {
		copy(buf[i:i+4], c[:])
	}
	return buf
}

func gradient(w, h int) []byte {
	buf := make([]byte, pixel.Size(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			buf[o], buf[o+1], buf[o+2], buf[o+3] = byte(x*10), byte(y*10), byte(x+y), 255
		}
	}
	return buf
}

func px(buf []byte, i int) [4]byte {
	var p [4]byte
	copy(p[:], buf[i*4:i*4+4])
	return p
}

type aspectRecorder struct {
	mu     sync.Mutex
	values []float64
}

func (r *aspectRecorder) record(a float64) {
	r.mu.Lock()
	r.values = append(r.values, a)
	r.mu.Unlock()
}

func (r *aspectRecorder) last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 0
	}
	return r.values[len(r.values)-1]
}

var _ = Describe("Tree", func() {
	var (
		tree    *Tree
		aspects *aspectRecorder
	)

	stretch := Settings{Blend: pixel.BlendNormal, Fit: pixel.FitStretch, Opacity: 1}

	addLeaf := func(parent uuid.UUID, kind Kind, name string, s Settings) uuid.UUID {
		id, err := tree.Add(parent, -1, kind, name, "", capture.NewFeed(), s)
		Expect(err).NotTo(HaveOccurred())
		return id
	}

	submit := func(id uuid.UUID, pix []byte, w, h int) {
		p, ok := tree.Pipeline(id)
		Expect(ok).To(BeTrue())
		p.Submit(pix, w, h)
	}

	BeforeEach(func() {
		aspects = &aspectRecorder{}
		tree = NewTree(context.Background(),
			WithLogger(logging.Discard()),
			WithAspectHandler(aspects.record))
	})

	AfterEach(func() {
		tree.Close()
	})

	Describe("Composite", func() {
		It("returns nothing for an empty tree", func() {
			_, ok := tree.Composite(4, 4, false)
			Expect(ok).To(BeFalse())
		})

		It("returns nothing when every source is frameless", func() {
			addLeaf(uuid.Nil, KindWindow, "a", stretch)
			addLeaf(uuid.Nil, KindFile, "b", stretch)
			_, ok := tree.Composite(4, 4, false)
			Expect(ok).To(BeFalse())
		})

		It("reproduces a single Normal source exactly", func() {
			id := addLeaf(uuid.Nil, KindWindow, "a", stretch)
			src := gradient(6, 4)
			submit(id, src, 6, 4)

			c, ok := tree.Composite(6, 4, false)
			Expect(ok).To(BeTrue())
			Expect(c.Pix).To(Equal(src))
		})

		It("copies the first source regardless of its blend and opacity", func() {
			id := addLeaf(uuid.Nil, KindWindow, "a",
				Settings{Blend: pixel.BlendMultiply, Fit: pixel.FitStretch, Opacity: 0.2})
			src := gradient(3, 3)
			submit(id, src, 3, 3)

			c, ok := tree.Composite(3, 3, false)
			Expect(ok).To(BeTrue())
			Expect(c.Pix).To(Equal(src))
		})

		It("blends later sources with their own mode and opacity", func() {
			base := addLeaf(uuid.Nil, KindWindow, "base", stretch)
			top := addLeaf(uuid.Nil, KindWindow, "top",
				Settings{Blend: pixel.BlendAdditive, Fit: pixel.FitStretch, Opacity: 1})
			submit(base, solid(2, 2, [4]byte{10, 20, 30, 255}), 2, 2)
			submit(top, solid(2, 2, [4]byte{100, 100, 250, 255}), 2, 2)

			c, ok := tree.Composite(2, 2, false)
			Expect(ok).To(BeTrue())
			Expect(px(c.Pix, 3)).To(Equal([4]byte{110, 120, 255, 255}))
		})

		It("depends on compositing order", func() {
			a := addLeaf(uuid.Nil, KindWindow, "a", Settings{Fit: pixel.FitStretch, Opacity: 0.5})
			b := addLeaf(uuid.Nil, KindWindow, "b", Settings{Fit: pixel.FitStretch, Opacity: 0.5})
			pa := [4]byte{0, 0, 0, 255}
			pb := [4]byte{200, 200, 200, 255}
			submit(a, solid(1, 1, pa), 1, 1)
			submit(b, solid(1, 1, pb), 1, 1)

			c, _ := tree.Composite(1, 1, false)
			Expect(px(c.Pix, 0)).To(Equal(pixel.Blend(pa, pb, pixel.BlendNormal, 0.5)))

			Expect(tree.Move(b, uuid.Nil, 0)).To(Succeed())
			c, _ = tree.Composite(1, 1, false)
			Expect(px(c.Pix, 0)).To(Equal(pixel.Blend(pb, pa, pixel.BlendNormal, 0.5)))
		})

		It("skips frameless sources and copies the first one with a frame", func() {
			addLeaf(uuid.Nil, KindWebcam, "silent", stretch)
			id := addLeaf(uuid.Nil, KindWindow, "live",
				Settings{Blend: pixel.BlendScreen, Fit: pixel.FitStretch, Opacity: 0.3})
			src := gradient(4, 2)
			submit(id, src, 4, 2)

			c, ok := tree.Composite(4, 2, false)
			Expect(ok).To(BeTrue())
			Expect(c.Pix).To(Equal(src))
		})

		It("mirrors only camera sources", func() {
			mirrored := stretch
			mirrored.Mirror = true

			cam := addLeaf(uuid.Nil, KindWebcam, "cam", mirrored)
			submit(cam, gradient(4, 1), 4, 1)
			c, _ := tree.Composite(4, 1, false)
			Expect(c.Pix[0]).To(Equal(byte(30)))

			Expect(tree.Remove(cam)).To(Succeed())
			win := addLeaf(uuid.Nil, KindWindow, "win", mirrored)
			submit(win, gradient(4, 1), 4, 1)
			c, _ = tree.Composite(4, 1, false)
			Expect(c.Pix[0]).To(Equal(byte(0)))
		})

		It("composites groups as one opaque layer", func() {
			base := addLeaf(uuid.Nil, KindWindow, "base", stretch)
			group, err := tree.AddGroup(uuid.Nil, -1, "group",
				Settings{Blend: pixel.BlendNormal, Fit: pixel.FitStretch, Opacity: 0.5})
			Expect(err).NotTo(HaveOccurred())
			g1 := addLeaf(group, KindWindow, "g1", stretch)
			g2 := addLeaf(group, KindWindow, "g2",
				Settings{Blend: pixel.BlendAdditive, Fit: pixel.FitStretch, Opacity: 1})

			baseColor := [4]byte{0, 0, 0, 255}
			submit(base, solid(2, 2, baseColor), 2, 2)
			submit(g1, solid(2, 2, [4]byte{50, 60, 70, 0}), 2, 2)
			submit(g2, solid(2, 2, [4]byte{50, 60, 70, 255}), 2, 2)

			c, ok := tree.Composite(2, 2, false)
			Expect(ok).To(BeTrue())
			groupColor := [4]byte{100, 120, 140, 255}
			Expect(px(c.Pix, 0)).To(Equal(pixel.Blend(baseColor, groupColor, pixel.BlendNormal, 0.5)))
		})

		It("skips empty groups", func() {
			_, err := tree.AddGroup(uuid.Nil, -1, "empty", stretch)
			Expect(err).NotTo(HaveOccurred())
			id := addLeaf(uuid.Nil, KindWindow, "a", stretch)
			src := gradient(2, 2)
			submit(id, src, 2, 2)

			c, ok := tree.Composite(2, 2, false)
			Expect(ok).To(BeTrue())
			Expect(c.Pix).To(Equal(src))
		})

		It("builds a native composite at the primary's resolution", func() {
			primary := addLeaf(uuid.Nil, KindWindow, "primary", stretch)
			overlay := addLeaf(uuid.Nil, KindWindow, "overlay", stretch)
			submit(primary, solid(8, 4, [4]byte{1, 2, 3, 255}), 8, 4)
			submit(overlay, solid(4, 2, [4]byte{9, 9, 9, 255}), 4, 2)

			c, ok := tree.Composite(4, 2, true)
			Expect(ok).To(BeTrue())
			Expect(c.NativeW).To(Equal(8))
			Expect(c.NativeH).To(Equal(4))
			Expect(c.Native).To(Equal(solid(8, 4, [4]byte{9, 9, 9, 255})))

			c, _ = tree.Composite(4, 2, false)
			Expect(c.Native).To(BeNil())
		})

		It("mirrors the native frame of a mirrored camera primary", func() {
			mirrored := stretch
			mirrored.Mirror = true
			cam := addLeaf(uuid.Nil, KindWebcam, "cam", mirrored)
			submit(cam, gradient(4, 1), 4, 1)

			c, ok := tree.Composite(4, 1, true)
			Expect(ok).To(BeTrue())
			Expect(c.Native[0]).To(Equal(byte(30)))
			Expect(c.Native[12]).To(Equal(byte(0)))
		})
	})

	Describe("aspect", func() {
		It("starts at the default aspect", func() {
			Expect(tree.Aspect()).To(Equal(life.DefaultAspect))
		})

		It("follows the primary source once it has a frame", func() {
			id := addLeaf(uuid.Nil, KindWindow, "a", stretch)
			submit(id, solid(200, 100, [4]byte{}), 200, 100)
			tree.Composite(10, 10, false)

			Expect(tree.Aspect()).To(Equal(2.0))
			Expect(aspects.last()).To(Equal(2.0))
		})

		It("re-derives when a new primary is inserted or the primary is removed", func() {
			first := addLeaf(uuid.Nil, KindWindow, "first", stretch)
			submit(first, solid(200, 100, [4]byte{}), 200, 100)
			tree.Composite(10, 10, false)

			id, err := tree.Add(uuid.Nil, 0, KindWindow, "top", "", capture.NewFeed(), stretch)
			Expect(err).NotTo(HaveOccurred())
			submit(id, solid(100, 100, [4]byte{}), 100, 100)
			tree.Composite(10, 10, false)
			Expect(tree.Aspect()).To(Equal(1.0))

			Expect(tree.Remove(id)).To(Succeed())
			Expect(tree.Aspect()).To(Equal(2.0))

			Expect(tree.Remove(first)).To(Succeed())
			Expect(tree.Aspect()).To(Equal(life.DefaultAspect))
			Expect(aspects.last()).To(Equal(life.DefaultAspect))
		})

		It("keeps the default aspect while the index-0 source has no frame", func() {
			top := addLeaf(uuid.Nil, KindWindow, "top", stretch)
			below := addLeaf(uuid.Nil, KindWindow, "below", stretch)
			submit(below, solid(200, 100, [4]byte{}), 200, 100)
			tree.Composite(10, 10, false)
			Expect(tree.Aspect()).To(Equal(life.DefaultAspect))

			submit(top, solid(100, 100, [4]byte{}), 100, 100)
			tree.Composite(10, 10, false)
			Expect(tree.Aspect()).To(Equal(1.0))
			Expect(aspects.last()).To(Equal(1.0))
		})

		It("holds the locked ratio", func() {
			tree.SetAspectLock(true, 1.5)
			id := addLeaf(uuid.Nil, KindWindow, "a", stretch)
			submit(id, solid(200, 100, [4]byte{}), 200, 100)
			tree.Composite(10, 10, false)
			Expect(tree.Aspect()).To(Equal(1.5))

			tree.SetAspectLock(false, 0)
			Expect(tree.Aspect()).To(Equal(2.0))
		})
	})

	Describe("structure", func() {
		It("rejects unknown ids and non-group parents", func() {
			leaf := addLeaf(uuid.Nil, KindWindow, "leaf", stretch)
			_, err := tree.Add(leaf, -1, KindWindow, "child", "", capture.NewFeed(), stretch)
			Expect(err).To(MatchError(ErrNotGroup))
			Expect(tree.Remove(uuid.New())).To(MatchError(ErrNotFound))
			Expect(tree.Move(uuid.New(), uuid.Nil, 0)).To(MatchError(ErrNotFound))
			_, err = tree.Add(uuid.Nil, -1, KindGroup, "g", "", capture.NewFeed(), stretch)
			Expect(err).To(MatchError(ErrLeafKind))
		})

		It("refuses to move a group into its own subtree", func() {
			outer, _ := tree.AddGroup(uuid.Nil, -1, "outer", stretch)
			inner, _ := tree.AddGroup(outer, -1, "inner", stretch)
			Expect(tree.Move(outer, inner, 0)).To(MatchError(ErrCycle))
			Expect(tree.Move(outer, outer, 0)).To(MatchError(ErrCycle))
		})

		It("lists nodes depth first with their depth", func() {
			a := addLeaf(uuid.Nil, KindWindow, "a", stretch)
			g, _ := tree.AddGroup(uuid.Nil, -1, "g", stretch)
			addLeaf(g, KindFile, "g1", stretch)
			Expect(tree.Move(a, g, 0)).To(Succeed())

			list := tree.List()
			Expect(list).To(HaveLen(3))
			Expect(list[0].Name).To(Equal("g"))
			Expect(list[0].Children).To(Equal(2))
			Expect(list[1].Name).To(Equal("a"))
			Expect(list[1].Depth).To(Equal(1))
			Expect(list[2].Name).To(Equal("g1"))
		})

		It("stops pipelines of a removed subtree before returning", func() {
			g, _ := tree.AddGroup(uuid.Nil, -1, "g", stretch)
			id := addLeaf(g, KindWindow, "leaf", stretch)
			p, _ := tree.Pipeline(id)
			Expect(p.Stats().Running).To(BeTrue())

			Expect(tree.Remove(g)).To(Succeed())
			Expect(p.Stats().Running).To(BeFalse())
			Expect(tree.Len()).To(Equal(0))
		})

		It("clamps opacity on update", func() {
			id := addLeaf(uuid.Nil, KindWindow, "a", stretch)
			Expect(tree.Update(id, Settings{Opacity: 7})).To(Succeed())
			s, err := tree.Settings(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Opacity).To(Equal(1.0))
		})

		It("exposes the push feed of window sources", func() {
			id := addLeaf(uuid.Nil, KindWindow, "win", stretch)
			feed, ok := tree.Feed(id)
			Expect(ok).To(BeTrue())
			Eventually(func() bool {
				return feed.Push(solid(2, 2, [4]byte{5, 5, 5, 255}), 2, 2)
			}).Should(BeTrue())

			c, ok := tree.Composite(2, 2, false)
			Expect(ok).To(BeTrue())
			Expect(px(c.Pix, 0)).To(Equal([4]byte{5, 5, 5, 255}))
		})
	})

	Describe("Prune", func() {
		It("drops expired sources and keeps healthy ones", func() {
			tree.Close()
			tree = NewTree(context.Background(),
				WithLogger(logging.Discard()),
				WithAspectHandler(aspects.record),
				WithPolicy(capture.KindWebcam, capture.Policy{Grace: -1, MissThreshold: 1, Stall: true}))

			dead := addLeaf(uuid.Nil, KindWebcam, "dead-cam", stretch)
			alive := addLeaf(uuid.Nil, KindWindow, "window", stretch)
			submit(alive, solid(2, 2, [4]byte{}), 2, 2)

			tree.Composite(2, 2, false)
			Expect(tree.Prune()).To(ConsistOf("dead-cam"))
			_, ok := tree.Pipeline(dead)
			Expect(ok).To(BeFalse())
			_, ok = tree.Pipeline(alive)
			Expect(ok).To(BeTrue())
		})
	})

	Describe("Build", func() {
		It("creates nested nodes from specs", func() {
			err := tree.Build(uuid.Nil, []Spec{
				{Kind: KindWindow, Name: "desktop", Settings: stretch},
				{Kind: KindGroup, Name: "layer", Settings: stretch, Children: []Spec{
					{Kind: KindFile, Key: "/nonexistent/a.png", Settings: stretch},
					{Kind: KindSequence, Key: "/nonexistent/frames", FPS: 0.5, Settings: stretch},
				}},
			})
			Expect(err).NotTo(HaveOccurred())

			list := tree.List()
			Expect(list).To(HaveLen(4))
			Expect(list[2].Name).To(Equal("/nonexistent/a.png"))
			Expect(list[2].Kind).To(Equal(KindFile))
			Expect(list[3].Kind).To(Equal(KindSequence))
		})
	})
})

var _ = Describe("Kind", func() {
	DescribeTable("ParseKind",
		func(in string, want Kind, ok bool) {
			got, parsed := ParseKind(in)
			Expect(parsed).To(Equal(ok))
			Expect(got).To(Equal(want))
		},
		Entry("group", "group", KindGroup, true),
		Entry("webcam", "webcam", KindWebcam, true),
		Entry("file", "file", KindFile, true),
		Entry("sequence", "video", KindSequence, true),
		Entry("unknown", "tape", KindWindow, false),
	)
})
