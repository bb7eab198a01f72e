package life

import (
	"math"
	"math/rand"
	"strings"
)

// InjectionMode selects how pixel values become live cells.
type InjectionMode int

const (
	// InjectThreshold makes a cell alive when its value passes the window.
	InjectThreshold InjectionMode = iota
	// InjectRandomPulse makes a gated cell alive with probability equal to
	// its value.
	InjectRandomPulse
	// InjectPWM spreads a gated cell's value over the channel's depth as a
	// pulse train.
	InjectPWM
)

var injectionNames = map[InjectionMode]string{
	InjectThreshold:   "threshold",
	InjectRandomPulse: "random_pulse",
	InjectPWM:         "pwm",
}

func (m InjectionMode) String() string {
	if s, ok := injectionNames[m]; ok {
		return s
	}
	return "threshold"
}

// ParseInjectionMode parses an injection mode name. Unknown names yield
// InjectThreshold and false.
func ParseInjectionMode(s string) (InjectionMode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	switch s {
	case "pulse_width_modulation", "pulsewidthmodulation":
		return InjectPWM, true
	case "randompulse", "random":
		return InjectRandomPulse, true
	}
	for m, name := range injectionNames {
		if name == s {
			return m, true
		}
	}
	return InjectThreshold, false
}

// MaskParams configures mask generation.
type MaskParams struct {
	Mode   InjectionMode
	Min    float64
	Max    float64
	Invert bool
	// Noise is the per-pixel probability of forcing a cell dead.
	Noise float64
}

// Window returns the threshold window clamped to [0,1] with min <= max.
func (p MaskParams) Window() (lo, hi float64) {
	lo, hi = clamp01(p.Min), clamp01(p.Max)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

// Luminance returns the Rec. 709 luma of an 8-bit color in [0,1]. Integer
// weights keep a gray level v at exactly v/255.
func Luminance(r, g, b uint8) float64 {
	return float64(2126*int(r)+7152*int(g)+722*int(b)) / 2550000
}

// ThresholdAlive applies the threshold rule: values below lo are dead,
// values above hi alive, and values inside the window alive unless
// inverted, in which case only the upper half of the window is alive.
func ThresholdAlive(v, lo, hi float64, invert bool) bool {
	if v < lo {
		return false
	}
	if v > hi {
		return true
	}
	if !invert {
		return true
	}
	return v >= (lo+hi)/2
}

// PWMGate returns 0 outside [lo, hi] and the normalized position of v
// inside it. Inverted gates are 1 in the upper half and 0 in the lower.
func PWMGate(v, lo, hi float64, invert bool) float64 {
	if v < lo || v > hi {
		return 0
	}
	pos := 1.0
	if span := hi - lo; span > 1e-9 {
		pos = (v - lo) / span
	}
	if invert {
		if pos >= 0.5 {
			return 1
		}
		return 0
	}
	return pos
}

// PWMAlive reports whether a gated cell is alive on this tick. The gate is
// spread over period ticks as round(gate*period) evenly distributed pulses.
func PWMAlive(gate float64, tick uint64, period int) bool {
	if gate <= 0 || period <= 0 {
		return false
	}
	alive := int(math.Round(gate * float64(period)))
	if alive <= 0 {
		return false
	}
	phase := int(tick % uint64(period))
	return (phase*alive)%period < alive
}

// MaskBuilder converts BGRA pixels into injection masks. It keeps its mask
// grids between calls, so callers must consume the masks before the next
// Build. A MaskBuilder is not safe for concurrent use.
type MaskBuilder struct {
	Params MaskParams
	rng    *rand.Rand
	masks  [3]*Grid
}

// NewMaskBuilder returns a builder whose random draws derive from seed.
func NewMaskBuilder(params MaskParams, seed int64) *MaskBuilder {
	return &MaskBuilder{
		Params: params,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Build converts a w×h BGRA image into masks. In grayscale mode (rgb
// false) one mask from luminance is returned, with periods[0] as its PWM
// period. In RGB mode three masks are returned, one per channel, each with
// its own period. Build returns nil when pix is too short for w×h.
func (b *MaskBuilder) Build(pix []byte, w, h int, rgb bool, tick uint64, periods [3]int) []*Grid {
	if w <= 0 || h <= 0 || len(pix) < w*h*4 {
		return nil
	}

	n := 1
	if rgb {
		n = 3
	}
	for i := 0; i < n; i++ {
		if b.masks[i] == nil {
			b.masks[i] = NewGrid(h, w)
		}
		b.masks[i].reshape(h, w)
	}

	p := b.Params
	lo, hi := p.Window()
	noise := clamp01(p.Noise)

	for i := 0; i < w*h; i++ {
		o := i * 4
		bl, gr, rd := pix[o], pix[o+1], pix[o+2]

		// One pulse draw and one noise draw per pixel, shared by all
		// channels.
		var pulse float64
		if p.Mode == InjectRandomPulse {
			pulse = b.rng.Float64()
		}
		dead := noise > 0 && b.rng.Float64() < noise

		if !rgb {
			b.masks[0].Cells[i] = !dead && b.alive(Luminance(rd, gr, bl), lo, hi, pulse, tick, periods[0])
			continue
		}
		vals := [3]float64{float64(rd) / 255, float64(gr) / 255, float64(bl) / 255}
		for ch := 0; ch < 3; ch++ {
			b.masks[ch].Cells[i] = !dead && b.alive(vals[ch], lo, hi, pulse, tick, periods[ch])
		}
	}
	return b.masks[:n]
}

func (b *MaskBuilder) alive(v, lo, hi, pulse float64, tick uint64, period int) bool {
	switch b.Params.Mode {
	case InjectRandomPulse:
		return PWMGate(v, lo, hi, b.Params.Invert) > 0 && pulse < v
	case InjectPWM:
		return PWMAlive(PWMGate(v, lo, hi, b.Params.Invert), tick, period)
	default:
		return ThresholdAlive(v, lo, hi, b.Params.Invert)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
