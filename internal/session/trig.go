package session

import "math"

// sineTable is a precomputed sine lookup with linear interpolation.
type sineTable struct {
	sin []float64
	n   int
}

var defaultSine = newSineTable(4096)

func newSineTable(n int) *sineTable {
	t := &sineTable{sin: make([]float64, n), n: n}
	for i := 0; i < n; i++ {
		t.sin[i] = math.Sin(float64(i) * 2 * math.Pi / float64(n))
	}
	return t
}

// Sin returns sin(x) from the table.
func (t *sineTable) Sin(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}

	idx := x * float64(t.n) / (2 * math.Pi)
	i := int(idx)
	frac := idx - float64(i)

	i0 := i % t.n
	i1 := (i + 1) % t.n
	return t.sin[i0]*(1-frac) + t.sin[i1]*frac
}
