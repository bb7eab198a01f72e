package life

import "strings"

// Binning converts a slice of generations into one 0-255 intensity.
type Binning int

const (
	// BinFill is the fraction of considered generations in which the cell
	// was alive. It ignores order.
	BinFill Binning = iota
	// BinBinary reads the considered generations as a binary number with
	// the oldest generation as the low bit.
	BinBinary
)

func (b Binning) String() string {
	if b == BinBinary {
		return "binary"
	}
	return "fill"
}

// ParseBinning parses "fill" or "binary". Unknown names yield BinFill and
// false.
func ParseBinning(s string) (Binning, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fill":
		return BinFill, true
	case "binary":
		return BinBinary, true
	}
	return BinFill, false
}

// binCell bins generations [start, end) of h for the cell at idx. Only
// generations that exist are considered; none yields 0.
func binCell(b Binning, h *History, start, end, idx int) uint8 {
	end = min(end, h.Len())
	n := end - start
	if n <= 0 {
		return 0
	}

	if b == BinBinary {
		var v uint64
		for i := start; i < end; i++ {
			v <<= 1
			if h.At(i).Cells[idx] {
				v |= 1
			}
		}
		return binaryIntensity(v, n)
	}

	count := 0
	for i := start; i < end; i++ {
		if h.At(i).Cells[idx] {
			count++
		}
	}
	return uint8((count*255 + n/2) / n)
}

// binaryIntensity normalizes an n-bit value by 2^n-1 onto 0..255 with
// round-half-up.
func binaryIntensity(v uint64, n int) uint8 {
	if n > 32 {
		// Only the 32 newest generations carry weight.
		v >>= uint(n - 32)
		n = 32
	}
	full := uint64(1)<<uint(n) - 1
	return uint8((v*255 + full/2) / full)
}
