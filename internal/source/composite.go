package source

import (
	"github.com/san-kum/lifeviz/internal/capture"
	"github.com/san-kum/lifeviz/internal/pixel"
)

// Composite is the blended result of one tick. Its buffers are reused by
// the next call to Tree.Composite.
type Composite struct {
	Pix  []byte
	W, H int

	// Native is set only when requested and at least one source provided a
	// native frame. Its size is the native size of the primary source.
	Native           []byte
	NativeW, NativeH int
}

type compositeBuffers struct {
	sim              []byte
	native           []byte
	nativeW, nativeH int
	hasNative        bool
}

// layer is what one node contributes to its parent for a tick.
type layer struct {
	pix              []byte
	native           []byte
	nativeW, nativeH int
}

// Composite pulls every source and blends them, depth first, into one
// w×h frame. Sources without a frame are skipped; if none has one the
// second result is false and the caller should run procedurally.
func (t *Tree) Composite(w, h int, native bool) (Composite, bool) {
	t.mu.Lock()
	if w <= 0 || h <= 0 || !compositeList(t.roots, w, h, native, &t.out) {
		t.mu.Unlock()
		return Composite{}, false
	}

	c := Composite{Pix: t.out.sim, W: w, H: h}
	if native && t.out.hasNative {
		c.Native = t.out.native
		c.NativeW, c.NativeH = t.out.nativeW, t.out.nativeH
	}
	// The primary source may have just delivered its first frame.
	aspect, changed := t.deriveAspectLocked()
	t.mu.Unlock()

	t.notify(aspect, changed)
	return c, true
}

// compositeList blends nodes in order into dst. The first node with a frame
// is copied, later ones are blended on top with their own settings.
func compositeList(nodes []*Node, w, h int, native bool, dst *compositeBuffers) bool {
	first := true
	dst.hasNative = false

	for _, n := range nodes {
		l, ok := n.frame(w, h, native)
		if !ok {
			continue
		}

		if first {
			dst.sim = pixel.Ensure(dst.sim, w, h)
			pixel.CopyOpaque(dst.sim, l.pix)
		} else {
			pixel.BlendInto(dst.sim, l.pix, n.settings.Blend, n.settings.Opacity)
		}

		if native && l.native != nil {
			mirror := n.mirrorNative()
			if !dst.hasNative {
				// The first native layer fixes the composite's native size.
				dst.nativeW, dst.nativeH = l.nativeW, l.nativeH
				dst.native = pixel.Ensure(dst.native, l.nativeW, l.nativeH)
				if mirror {
					n.placeNative(l, dst.nativeW, dst.nativeH, pixel.FitStretch, true)
					pixel.Resample(dst.native, l.native, &n.nativeMap)
				} else {
					pixel.CopyOpaque(dst.native, l.native)
				}
				dst.hasNative = true
			} else {
				n.placeNative(l, dst.nativeW, dst.nativeH, n.settings.Fit, mirror)
				pixel.CompositeMapped(dst.native, l.native, &n.nativeMap, n.settings.Blend, n.settings.Opacity)
			}
		}
		first = false
	}
	return !first
}

// frame returns this node's layer for the tick.
func (n *Node) frame(w, h int, native bool) (layer, bool) {
	if n.IsGroup() {
		buf := compositeBuffers{sim: n.sim, native: n.native, nativeW: n.nativeW, nativeH: n.nativeH}
		ok := compositeList(n.children, w, h, native, &buf)
		n.sim, n.native, n.nativeW, n.nativeH = buf.sim, buf.native, buf.nativeW, buf.nativeH
		if !ok {
			return layer{}, false
		}
		l := layer{pix: n.sim}
		if buf.hasNative {
			l.native = n.native[:pixel.Size(n.nativeW, n.nativeH)]
			l.nativeW, l.nativeH = n.nativeW, n.nativeH
		}
		return l, true
	}

	f, ok := n.pipeline.Pull(capture.Request{
		W:      w,
		H:      h,
		Fit:    n.settings.Fit,
		Mirror: n.settings.Mirror && n.Kind == KindWebcam,
		Native: native,
	})
	if !ok {
		return layer{}, false
	}
	return layer{pix: f.Pix, native: f.Native, nativeW: f.NativeW, nativeH: f.NativeH}, true
}

// mirrorNative reports whether this node's native frame must be flipped.
// Sim frames are already mirrored by the pipeline.
func (n *Node) mirrorNative() bool {
	return n.settings.Mirror && n.Kind == KindWebcam
}

func (n *Node) placeNative(l layer, dstW, dstH int, fit pixel.FitMode, mirror bool) {
	if !n.nativeMap.Matches(fit, l.nativeW, l.nativeH, dstW, dstH, mirror) {
		n.nativeMap.Compute(fit, l.nativeW, l.nativeH, dstW, dstH, mirror)
	}
}
