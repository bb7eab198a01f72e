// Package capture acquires frames from external visual sources.
//
// Each source runs a Pipeline: a background acquisition goroutine writes raw
// frames into a latest-frame slot, and the render side pulls a downscaled
// copy without ever waiting on the source.
package capture
