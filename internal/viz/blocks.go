package viz

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const halfBlock = "▀"

// Blocks draws BGRA frames as colored half blocks: each terminal cell shows
// two vertically stacked pixels.
type Blocks struct {
	styles map[uint32]lipgloss.Style
}

func NewBlocks() *Blocks {
	return &Blocks{styles: make(map[uint32]lipgloss.Style)}
}

// Render scales the frame into at most cols×rows cells keeping its aspect
// ratio.
func (b *Blocks) Render(pix []byte, w, h, cols, rows int) string {
	outW, outH := fitInside(w, h, cols, rows*2)
	if outW == 0 || outH == 0 || len(pix) < w*h*4 {
		return ""
	}
	// Keep cached styles bounded; palettes shift as the automaton evolves.
	if len(b.styles) > 4096 {
		clear(b.styles)
	}

	var sb strings.Builder
	for y := 0; y < outH; y += 2 {
		if y > 0 {
			sb.WriteByte('\n')
		}
		top := y * h / outH
		bottom := top
		if y+1 < outH {
			bottom = (y + 1) * h / outH
		}
		for x := 0; x < outW; x++ {
			sx := x * w / outW
			fg := quantize(pix[(top*w+sx)*4:])
			bg := quantize(pix[(bottom*w+sx)*4:])
			sb.WriteString(b.style(fg, bg).Render(halfBlock))
		}
	}
	return sb.String()
}

func (b *Blocks) style(fg, bg uint16) lipgloss.Style {
	key := uint32(fg)<<16 | uint32(bg)
	if s, ok := b.styles[key]; ok {
		return s
	}
	s := lipgloss.NewStyle().
		Foreground(lipgloss.Color(quantHex(fg))).
		Background(lipgloss.Color(quantHex(bg)))
	b.styles[key] = s
	return s
}

// quantize packs a BGRA pixel into 5 bits per channel.
func quantize(p []byte) uint16 {
	return uint16(p[2]>>3)<<10 | uint16(p[1]>>3)<<5 | uint16(p[0]>>3)
}

func quantHex(q uint16) string {
	expand := func(v uint16) int {
		v &= 0x1f
		return int(v<<3 | v>>2)
	}
	return hexColor(expand(q>>10), expand(q>>5), expand(q))
}
