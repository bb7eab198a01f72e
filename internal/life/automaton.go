package life

import (
	"math"
	"math/rand"
	"strings"
	"sync"
)

// Dimension and depth bounds.
const (
	MinRows  = 72
	MaxRows  = 2160
	MinCols  = 32
	MaxCols  = 4096
	MinDepth = 3
	MaxDepth = 96

	DefaultRows    = 360
	DefaultDepth   = 24
	DefaultAspect  = 16.0 / 9.0
	DefaultDensity = 0.5
)

// ColorMode selects between one shared History and one History per channel.
type ColorMode int

const (
	Grayscale ColorMode = iota
	RGB
)

func (m ColorMode) String() string {
	if m == RGB {
		return "rgb"
	}
	return "grayscale"
}

// ParseColorMode parses "grayscale"/"gray" or "rgb". Unknown names yield
// Grayscale and false.
func ParseColorMode(s string) (ColorMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "grayscale", "gray", "grey", "greyscale":
		return Grayscale, true
	case "rgb", "color", "colour":
		return RGB, true
	}
	return Grayscale, false
}

// ClampRows clamps a row count to [MinRows, MaxRows].
func ClampRows(rows int) int {
	return min(max(rows, MinRows), MaxRows)
}

// ClampDepth clamps a history depth to [MinDepth, MaxDepth].
func ClampDepth(depth int) int {
	return min(max(depth, MinDepth), MaxDepth)
}

// SanitizeAspect returns aspect, or DefaultAspect when it is not a finite
// positive number.
func SanitizeAspect(aspect float64) float64 {
	if math.IsNaN(aspect) || math.IsInf(aspect, 0) || aspect <= 0 {
		return DefaultAspect
	}
	return aspect
}

// Columns derives the column count for rows and aspect (columns/rows).
func Columns(rows int, aspect float64) int {
	cols := int(math.Round(float64(rows) * SanitizeAspect(aspect)))
	return min(max(cols, MinCols), MaxCols)
}

// SplitDepth divides depth into red, green and blue shares: depth/3 each,
// with the remainder going to red first, then green.
func SplitDepth(depth int) [3]int {
	base, rem := depth/3, depth%3
	split := [3]int{base, base, base}
	if rem > 0 {
		split[0]++
	}
	if rem > 1 {
		split[1]++
	}
	return split
}

// Stats is a point-in-time summary of an Automaton.
type Stats struct {
	Rows, Cols int
	Depth      int
	Split      [3]int
	Mode       ColorMode
	Binning    Binning
	Generation uint64
	Population [3]int
}

// Automaton is the depth-stacked Game of Life. The zero value is not usable;
// construct with New and call Configure.
type Automaton struct {
	mu sync.RWMutex

	rows, cols int
	depth      int
	aspect     float64
	split      [3]int
	mode       ColorMode
	binning    Binning
	density    float64
	workers    int
	generation uint64
	configured bool

	hist [3]*History
	rng  *rand.Rand
}

// New returns an unconfigured automaton seeded with seed.
func New(seed int64) *Automaton {
	return &Automaton{
		density: DefaultDensity,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Configure clamps its inputs, recomputes the column count and channel
// split, and reinitializes every History with a random generation. It never
// fails.
func (a *Automaton) Configure(rows, depth int, aspect float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rows = ClampRows(rows)
	a.depth = ClampDepth(depth)
	a.aspect = SanitizeAspect(aspect)
	a.cols = Columns(a.rows, a.aspect)
	a.split = SplitDepth(a.depth)
	a.configured = true
	a.reinitLocked()
}

// SetMode switches between grayscale and RGB. Switching reinitializes and
// randomizes every History.
func (a *Automaton) SetMode(mode ColorMode) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if mode != RGB {
		mode = Grayscale
	}
	if a.mode == mode {
		return
	}
	a.mode = mode
	if a.configured {
		a.reinitLocked()
	}
}

// SetBinning selects the history-to-intensity algorithm.
func (a *Automaton) SetBinning(b Binning) {
	a.mu.Lock()
	a.binning = b
	a.mu.Unlock()
}

// SetDensity sets the live-cell probability used by randomization.
func (a *Automaton) SetDensity(p float64) {
	a.mu.Lock()
	a.density = min(max(p, 0), 1)
	a.mu.Unlock()
}

// SetWorkers bounds the goroutines Step uses; 0 means one per CPU.
func (a *Automaton) SetWorkers(n int) {
	a.mu.Lock()
	a.workers = n
	a.mu.Unlock()
}

// Randomize replaces every History with a single random generation.
func (a *Automaton) Randomize() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.configured {
		a.reinitLocked()
	}
}

// Size returns the grid dimensions.
func (a *Automaton) Size() (rows, cols int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rows, a.cols
}

// Depth returns the configured history depth.
func (a *Automaton) Depth() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.depth
}

// Split returns the red, green and blue depth shares.
func (a *Automaton) Split() [3]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.split
}

// Mode returns the color mode.
func (a *Automaton) Mode() ColorMode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

// Stats summarizes the automaton.
func (a *Automaton) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Stats{
		Rows:       a.rows,
		Cols:       a.cols,
		Depth:      a.depth,
		Split:      a.split,
		Mode:       a.mode,
		Binning:    a.binning,
		Generation: a.generation,
	}
	for ch := 0; ch < a.channels(); ch++ {
		if g := a.hist[ch].Newest(); g != nil {
			s.Population[ch] = g.Population()
		}
	}
	if a.mode == Grayscale {
		s.Population[1], s.Population[2] = s.Population[0], s.Population[0]
	}
	return s
}

// Step advances every History by one generation.
func (a *Automaton) Step() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.configured {
		return
	}
	for ch := 0; ch < a.channels(); ch++ {
		h := a.hist[ch]
		next := h.Scratch()
		src := h.Newest()
		if src == nil {
			next.Fill(false)
		} else {
			parallelRows(src.Rows, a.workers, func(start, end int) {
				stepRows(next, src, start, end)
			})
		}
		h.Push(next)
	}
	a.generation++
}

// Inject ORs mask into a clone of the newest generation and pushes the
// result as a new generation. In RGB mode the mask is injected into every
// channel. A mask whose shape differs from the grid is ignored and Inject
// returns false.
func (a *Automaton) Inject(mask *Grid) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.configured || mask == nil || mask.Rows != a.rows || mask.Cols != a.cols {
		return false
	}
	for ch := 0; ch < a.channels(); ch++ {
		a.injectLocked(a.hist[ch], mask)
	}
	return true
}

// InjectRGB injects one mask per channel. In grayscale mode the union of
// the three masks is injected into the single History. Any shape mismatch
// makes the whole call a no-op.
func (a *Automaton) InjectRGB(r, g, b *Grid) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	masks := [3]*Grid{r, g, b}
	if !a.configured {
		return false
	}
	for _, m := range masks {
		if m == nil || m.Rows != a.rows || m.Cols != a.cols {
			return false
		}
	}

	if a.mode == RGB {
		for ch, m := range masks {
			a.injectLocked(a.hist[ch], m)
		}
		return true
	}

	h := a.hist[0]
	next := h.Scratch()
	a.cloneNewest(h, next)
	for i := range next.Cells {
		next.Cells[i] = next.Cells[i] || r.Cells[i] || g.Cells[i] || b.Cells[i]
	}
	h.Push(next)
	return true
}

// Color returns the visible color of cell (row, col).
func (a *Automaton) Color(row, col int) (r, g, b uint8) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.configured || row < 0 || col < 0 || row >= a.rows || col >= a.cols {
		return 0, 0, 0
	}
	c := a.colorLocked(row*a.cols + col)
	return c[0], c[1], c[2]
}

// Rasterize writes the BGRA image of the automaton into dst, growing it as
// needed, and returns it. The image is cols pixels wide and rows tall.
func (a *Automaton) Rasterize(dst []byte) []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := a.rows * a.cols * 4
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	if !a.configured {
		return dst
	}

	parallelRows(a.rows, a.workers, func(start, end int) {
		for idx := start * a.cols; idx < end*a.cols; idx++ {
			c := a.colorLocked(idx)
			o := idx * 4
			dst[o] = c[2]
			dst[o+1] = c[1]
			dst[o+2] = c[0]
			dst[o+3] = 255
		}
	})
	return dst
}

func (a *Automaton) channels() int {
	if a.mode == RGB {
		return 3
	}
	return 1
}

// reinitLocked rebuilds the Histories for the current shape and mode and
// seeds each with one random generation.
func (a *Automaton) reinitLocked() {
	a.hist = [3]*History{}
	if a.mode == RGB {
		for ch := 0; ch < 3; ch++ {
			a.hist[ch] = NewHistory(a.split[ch], a.rows, a.cols)
		}
	} else {
		a.hist[0] = NewHistory(a.depth, a.rows, a.cols)
	}
	for ch := 0; ch < a.channels(); ch++ {
		g := a.hist[ch].Scratch()
		for i := range g.Cells {
			g.Cells[i] = a.rng.Float64() < a.density
		}
		a.hist[ch].Push(g)
	}
	a.generation = 0
}

func (a *Automaton) injectLocked(h *History, mask *Grid) {
	next := h.Scratch()
	a.cloneNewest(h, next)
	for i, alive := range mask.Cells {
		if alive {
			next.Cells[i] = true
		}
	}
	h.Push(next)
}

func (a *Automaton) cloneNewest(h *History, dst *Grid) {
	if src := h.Newest(); src != nil {
		dst.CopyFrom(src)
		return
	}
	dst.Fill(false)
}

// colorLocked bins the history slices for the cell at flat index idx.
func (a *Automaton) colorLocked(idx int) [3]uint8 {
	var out [3]uint8
	if a.mode == RGB {
		for ch := 0; ch < 3; ch++ {
			h := a.hist[ch]
			out[ch] = binCell(a.binning, h, 0, h.Depth(), idx)
		}
		return out
	}

	h := a.hist[0]
	start := 0
	for ch := 0; ch < 3; ch++ {
		end := start + a.split[ch]
		out[ch] = binCell(a.binning, h, start, end, idx)
		start = end
	}
	return out
}

// stepRows applies Conway's rule to rows [r0, r1) of src, writing dst.
// Cells beyond the border count as dead.
func stepRows(dst, src *Grid, r0, r1 int) {
	rows, cols := src.Rows, src.Cols
	cells := src.Cells
	for r := r0; r < r1; r++ {
		for c := 0; c < cols; c++ {
			n := 0
			for dr := -1; dr <= 1; dr++ {
				rr := r + dr
				if rr < 0 || rr >= rows {
					continue
				}
				base := rr * cols
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					cc := c + dc
					if cc < 0 || cc >= cols {
						continue
					}
					if cells[base+cc] {
						n++
					}
				}
			}
			i := r*cols + c
			dst.Cells[i] = n == 3 || (cells[i] && n == 2)
		}
	}
}
