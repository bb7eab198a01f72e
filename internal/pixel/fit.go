package pixel

import "strings"

// FitMode selects how a source image is mapped onto a destination.
type FitMode int

const (
	FitFill FitMode = iota
	FitFit
	FitStretch
	FitCenter
	FitTile
	FitSpan
)

var fitNames = map[FitMode]string{
	FitFill:    "fill",
	FitFit:     "fit",
	FitStretch: "stretch",
	FitCenter:  "center",
	FitTile:    "tile",
	FitSpan:    "span",
}

func (m FitMode) String() string {
	if s, ok := fitNames[m]; ok {
		return s
	}
	return "fill"
}

// ParseFitMode parses a case-insensitive fit mode name. Unknown names yield
// FitFill and false.
func ParseFitMode(s string) (FitMode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range fitNames {
		if name == s {
			return m, true
		}
	}
	return FitFill, false
}

// Mapping is a separable pixel mapping from a SrcW×SrcH image onto a
// DstW×DstH image. X[dx] is the source column for destination column dx and
// Y[dy] the source row for destination row dy; -1 means no source pixel.
type Mapping struct {
	Mode       FitMode
	SrcW, SrcH int
	DstW, DstH int
	Mirrored   bool
	X          []int32
	Y          []int32
}

// ComputeFitMapping returns a fresh mapping for the given mode and sizes.
func ComputeFitMapping(mode FitMode, srcW, srcH, dstW, dstH int) *Mapping {
	m := &Mapping{}
	m.Compute(mode, srcW, srcH, dstW, dstH, false)
	return m
}

// Matches reports whether m was computed for exactly these parameters.
func (m *Mapping) Matches(mode FitMode, srcW, srcH, dstW, dstH int, mirror bool) bool {
	return m.Mode == mode && m.SrcW == srcW && m.SrcH == srcH &&
		m.DstW == dstW && m.DstH == dstH && m.Mirrored == mirror && len(m.X) == dstW
}

// Compute recomputes m in place, reusing its index slices. When mirror is
// set the source is flipped horizontally before sampling.
func (m *Mapping) Compute(mode FitMode, srcW, srcH, dstW, dstH int, mirror bool) {
	if dstW < 0 {
		dstW = 0
	}
	if dstH < 0 {
		dstH = 0
	}
	m.Mode, m.SrcW, m.SrcH, m.DstW, m.DstH, m.Mirrored = mode, srcW, srcH, dstW, dstH, mirror
	m.X = resizeIndex(m.X, dstW)
	m.Y = resizeIndex(m.Y, dstH)

	if srcW <= 0 || srcH <= 0 {
		fillIndex(m.X, -1)
		fillIndex(m.Y, -1)
		return
	}

	switch mode {
	case FitStretch:
		mapScaled(m.X, srcW, dstW, 0)
		mapScaled(m.Y, srcH, dstH, 0)
	case FitFit:
		sw, sh := containSize(srcW, srcH, dstW, dstH)
		mapScaled(m.X, srcW, sw, (dstW-sw)/2)
		mapScaled(m.Y, srcH, sh, (dstH-sh)/2)
	case FitCenter:
		mapScaled(m.X, srcW, srcW, (dstW-srcW)/2)
		mapScaled(m.Y, srcH, srcH, (dstH-srcH)/2)
	case FitTile:
		for i := range m.X {
			m.X[i] = int32(i % srcW)
		}
		for i := range m.Y {
			m.Y[i] = int32(i % srcH)
		}
	case FitSpan:
		sh := scaleDim(srcH, dstW, srcW)
		mapScaled(m.X, srcW, dstW, 0)
		mapScaled(m.Y, srcH, sh, (dstH-sh)/2)
	default:
		sw, sh := coverSize(srcW, srcH, dstW, dstH)
		mapScaled(m.X, srcW, sw, (dstW-sw)/2)
		mapScaled(m.Y, srcH, sh, (dstH-sh)/2)
	}

	if mirror {
		for i, x := range m.X {
			if x >= 0 {
				m.X[i] = int32(srcW-1) - x
			}
		}
	}
}

// Covered reports whether destination pixel (x, y) has a source pixel.
func (m *Mapping) Covered(x, y int) bool {
	return m.X[x] >= 0 && m.Y[y] >= 0
}

// mapScaled maps each destination index onto a source axis of length srcN
// that has been scaled to `scaled` destination pixels and placed at offset.
// Negative offsets crop, positive offsets letterbox.
func mapScaled(dst []int32, srcN, scaled, offset int) {
	if scaled <= 0 {
		fillIndex(dst, -1)
		return
	}
	for d := range dst {
		rel := d - offset
		if rel < 0 || rel >= scaled {
			dst[d] = -1
			continue
		}
		s := (2*rel + 1) * srcN / (2 * scaled)
		if s >= srcN {
			s = srcN - 1
		}
		dst[d] = int32(s)
	}
}

// containSize is the largest uniform scaling of src that fits inside dst.
func containSize(srcW, srcH, dstW, dstH int) (int, int) {
	if dstW*srcH <= dstH*srcW {
		return dstW, max(1, scaleDim(srcH, dstW, srcW))
	}
	return max(1, scaleDim(srcW, dstH, srcH)), dstH
}

// coverSize is the smallest uniform scaling of src that covers dst.
func coverSize(srcW, srcH, dstW, dstH int) (int, int) {
	if dstW*srcH >= dstH*srcW {
		return dstW, max(dstH, scaleDim(srcH, dstW, srcW))
	}
	return max(dstW, scaleDim(srcW, dstH, srcH)), dstH
}

// scaleDim returns round(v*num/den).
func scaleDim(v, num, den int) int {
	if den <= 0 {
		return 0
	}
	return (v*num + den/2) / den
}

func resizeIndex(s []int32, n int) []int32 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int32, n)
}

func fillIndex(s []int32, v int32) {
	for i := range s {
		s[i] = v
	}
}
