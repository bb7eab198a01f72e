// Package life implements the depth-stacked cellular automaton.
//
// An [Automaton] keeps a bounded, newest-first [History] of boolean [Grid]
// generations. A cell's visible color is derived from a slice of that
// history rather than from its current state alone:
//
//   - Grayscale mode keeps one History; the red, green and blue intensities
//     come from three contiguous slices of it.
//   - RGB mode keeps three independent Histories, one per channel, each with
//     its own share of the configured depth.
//
// External imagery enters through injection: a boolean mask is OR-ed into a
// clone of the newest generation and pushed as a new History entry. The
// next Step then evolves that entry under Conway's rule with a bounded
// (non-wrapping) neighborhood.
//
// [MaskBuilder] converts composite BGRA pixels into injection masks using a
// threshold window and one of three injection modes.
//
// # Thread Safety
//
// Automaton methods are safe for concurrent use. Configure, SetMode, Step
// and Inject take the write lock; Color, Rasterize and Stats take the read
// lock, so readers never observe a half-replaced configuration.
package life
