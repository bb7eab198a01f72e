// Package pixel implements the stateless pixel algebra used by the
// compositor: geometric fit mappings between differently sized images and
// per-channel blend modes.
//
// All buffers are tightly packed BGRA, 8 bits per channel, row-major, with
// stride width*4. Functions never allocate on the hot path when the caller
// reuses destination buffers and mappings.
//
// # Fit modes
//
//	Fill    - uniform scale, covers destination, centered crop (default)
//	Fit     - uniform scale, fully visible, centered letterbox
//	Stretch - independent scale per axis
//	Center  - no scaling, centered, clipped or letterboxed
//	Tile    - no scaling, repeated from the top-left corner
//	Span    - width-driven scale, vertical axis centered (crop or letterbox)
//
// Destination pixels with no source pixel are opaque black.
//
// # Blend modes
//
// Normal, Additive, Multiply, Screen, Overlay, Lighten, Darken and
// Subtractive operate per channel on the backdrop (destination) and the
// layer (source). The blended value is then interpolated toward the
// backdrop by the layer opacity. Only Normal is associative, so layer order
// matters.
package pixel
