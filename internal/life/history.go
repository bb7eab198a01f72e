package life

// History is a bounded, newest-first sequence of generations. Evicted grids
// are kept for reuse so a steady-state Step allocates nothing.
type History struct {
	depth  int
	rows   int
	cols   int
	frames []*Grid
	spare  []*Grid
}

// NewHistory returns an empty history holding at most depth grids of the
// given shape.
func NewHistory(depth, rows, cols int) *History {
	if depth < 1 {
		depth = 1
	}
	return &History{
		depth:  depth,
		rows:   rows,
		cols:   cols,
		frames: make([]*Grid, 0, depth+1),
	}
}

// Depth is the capacity of h.
func (h *History) Depth() int { return h.depth }

// Len is the number of stored generations.
func (h *History) Len() int { return len(h.frames) }

// At returns the i-th newest generation; 0 is the newest.
func (h *History) At(i int) *Grid { return h.frames[i] }

// Newest returns the newest generation or nil when h is empty.
func (h *History) Newest() *Grid {
	if len(h.frames) == 0 {
		return nil
	}
	return h.frames[0]
}

// Push inserts g as the newest generation and evicts the oldest one when
// the history is over capacity.
func (h *History) Push(g *Grid) {
	h.frames = append(h.frames, nil)
	copy(h.frames[1:], h.frames)
	h.frames[0] = g
	for len(h.frames) > h.depth {
		last := len(h.frames) - 1
		h.spare = append(h.spare, h.frames[last])
		h.frames[last] = nil
		h.frames = h.frames[:last]
	}
}

// Scratch returns a grid of the history's shape that is not part of the
// history. Its contents are unspecified.
func (h *History) Scratch() *Grid {
	if n := len(h.spare); n > 0 {
		g := h.spare[n-1]
		h.spare[n-1] = nil
		h.spare = h.spare[:n-1]
		g.reshape(h.rows, h.cols)
		return g
	}
	return NewGrid(h.rows, h.cols)
}

// Reset drops every generation, keeping them for reuse.
func (h *History) Reset() {
	for i, g := range h.frames {
		h.spare = append(h.spare, g)
		h.frames[i] = nil
	}
	h.frames = h.frames[:0]
}
