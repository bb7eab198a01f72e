// Package beat estimates tempo from live audio.
//
// An Analyzer turns mono sample frames into onsets by spectral flux and
// derives a BPM estimate from the spacing between them. A Stream feeds an
// Analyzer from the default PortAudio input device.
package beat
