package viz

import (
	"strings"

	"github.com/san-kum/lifeviz/internal/life"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{}
	c.Resize(w, h)
	return c
}

// Resize changes the canvas size in cells and clears it.
func (c *Canvas) Resize(w, h int) {
	w, h = max(w, 0), max(h, 0)
	if w != c.Width || h != c.Height {
		c.Width, c.Height = w, h
		c.Grid = make([][]rune, h)
		for i := range c.Grid {
			c.Grid[i] = make([]rune, w)
		}
	}
	c.Clear()
}

// Set sets a pixel at (x, y) where x,y are in "sub-pixel" coordinates.
// The canvas size in sub-pixels is (Width*2) x (Height*4).
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}

	col := x / 2
	row := y / 4
	if col >= c.Width || row >= c.Height {
		return
	}

	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = 0x2800
		}
	}
}

// Plot lights every dot whose frame pixel is at least threshold luminance.
// The frame is scaled to fill the canvas while keeping its aspect ratio.
func (c *Canvas) Plot(pix []byte, w, h int, threshold float64) {
	c.Clear()
	outW, outH := fitInside(w, h, c.Width*2, c.Height*4)
	if outW == 0 || outH == 0 || len(pix) < w*h*4 {
		return
	}
	for y := 0; y < outH; y++ {
		sy := y * h / outH
		for x := 0; x < outW; x++ {
			sx := x * w / outW
			o := (sy*w + sx) * 4
			if life.Luminance(pix[o+2], pix[o+1], pix[o]) >= threshold {
				c.Set(x, y)
			}
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for i, row := range c.Grid {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(row))
	}
	return b.String()
}

// fitInside scales w×h to the largest size inside maxW×maxH with the same
// aspect ratio.
func fitInside(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	if w*maxH <= h*maxW {
		return max(1, w*maxH/h), maxH
	}
	return maxW, max(1, h*maxW/w)
}
