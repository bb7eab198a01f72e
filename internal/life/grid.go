package life

// Grid is one generation: a rows×cols boolean matrix stored row-major.
type Grid struct {
	Rows, Cols int
	Cells      []bool
}

// NewGrid returns an all-dead grid.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return &Grid{Rows: rows, Cols: cols, Cells: make([]bool, rows*cols)}
}

// At reports whether cell (r, c) is alive. Out-of-range cells are dead.
func (g *Grid) At(r, c int) bool {
	if r < 0 || c < 0 || r >= g.Rows || c >= g.Cols {
		return false
	}
	return g.Cells[r*g.Cols+c]
}

// Set assigns cell (r, c). Out-of-range writes are ignored.
func (g *Grid) Set(r, c int, alive bool) {
	if r < 0 || c < 0 || r >= g.Rows || c >= g.Cols {
		return
	}
	g.Cells[r*g.Cols+c] = alive
}

// SameShape reports whether g and o have equal dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return o != nil && g.Rows == o.Rows && g.Cols == o.Cols
}

// Fill sets every cell to alive.
func (g *Grid) Fill(alive bool) {
	for i := range g.Cells {
		g.Cells[i] = alive
	}
}

// CopyFrom overwrites g with o. Shapes must match.
func (g *Grid) CopyFrom(o *Grid) {
	copy(g.Cells, o.Cells)
}

// Clone returns an independent copy of g.
func (g *Grid) Clone() *Grid {
	c := NewGrid(g.Rows, g.Cols)
	copy(c.Cells, g.Cells)
	return c
}

// Population counts live cells.
func (g *Grid) Population() int {
	n := 0
	for _, alive := range g.Cells {
		if alive {
			n++
		}
	}
	return n
}

// reshape resizes g in place, reusing the backing array when possible.
// Contents are unspecified afterwards.
func (g *Grid) reshape(rows, cols int) {
	g.Rows, g.Cols = rows, cols
	n := rows * cols
	if cap(g.Cells) >= n {
		g.Cells = g.Cells[:n]
		return
	}
	g.Cells = make([]bool, n)
}
