// Package viz is the terminal view of a running session.
//
// The view polls the session for its latest frame and draws it either with
// colored half blocks (two pixels per cell) or as a monochrome Braille
// canvas (eight dots per cell). A side panel shows generation, population
// and tempo statistics with an asciigraph population plot.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Randomize the automaton
//	M     - Toggle grayscale/RGB
//	B     - Toggle fill/binary binning
//	I     - Cycle injection mode
//	+/-   - Faster/slower base rate
//	[/]   - Less/more depth
//	Up/Dn - More/fewer rows
//	O     - Toggle rate oscillation
//	S     - Toggle beat sync
//	L     - Toggle aspect lock
//	V     - Toggle blocks/Braille
//	T     - Cycle color themes
//	G     - Toggle GIF recording
//	?     - Show help overlay
//
// # Recording
//
// G starts recording rasterized frames; pressing it again writes them as
// an animated GIF to the current directory.
package viz
