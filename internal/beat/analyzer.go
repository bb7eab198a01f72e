package beat

import (
	"math"
	"math/cmplx"
	"sort"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

const (
	SampleRate = 44100
	BufferSize = 1024

	fluxHistory  = 43 // about one second of frames
	maxOnsets    = 24
	minOnsets    = 4
	refractory   = 0.2 // seconds
	thresholdK   = 1.5
	thresholdMin = 1e-3
	minBPM       = 60.0
	maxBPM       = 200.0
)

// Info is a tempo estimate. BPM is 0 until enough onsets were seen.
type Info struct {
	BPM       float64
	SinceBeat time.Duration
}

// Valid reports whether the estimate can drive a clock.
func (i Info) Valid() bool {
	return i.BPM > 0 && !math.IsNaN(i.BPM)
}

// Period is the beat period.
func (i Info) Period() time.Duration {
	if !i.Valid() {
		return 0
	}
	return time.Duration(float64(time.Minute) / i.BPM)
}

// Analyzer detects onsets by spectral flux over Hann-windowed FFT frames.
// Time is measured in processed samples, so results are deterministic for a
// given input.
type Analyzer struct {
	mu sync.Mutex

	sampleRate float64
	buf        []complex128
	prevMag    []float64
	flux       []float64
	fluxPos    int
	fluxLen    int

	samples   int64
	lastOnset int64
	hasOnset  bool
	onsets    []int64
	bpm       float64
}

func NewAnalyzer(sampleRate int) *Analyzer {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	return &Analyzer{
		sampleRate: float64(sampleRate),
		flux:       make([]float64, fluxHistory),
	}
}

// Process consumes one frame of mono samples and reports whether it holds
// an onset.
func (a *Analyzer) Process(in []float32) bool {
	n := len(in)
	if n == 0 {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buf) != n {
		a.buf = make([]complex128, n)
		a.prevMag = make([]float64, n/2)
	}
	for i, v := range in {
		window := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(max(n-1, 1))))
		a.buf[i] = complex(float64(v)*window, 0)
	}
	spectrum := fft.FFT(a.buf)

	flux := 0.0
	for i := range a.prevMag {
		mag := cmplx.Abs(spectrum[i])
		if d := mag - a.prevMag[i]; d > 0 {
			flux += d
		}
		a.prevMag[i] = mag
	}

	mean, std := a.fluxStats()
	a.pushFlux(flux)
	a.samples += int64(n)

	if flux <= mean+thresholdK*std+thresholdMin {
		return false
	}
	if a.hasOnset && float64(a.samples-a.lastOnset) < refractory*a.sampleRate {
		return false
	}
	a.onset(a.samples)
	return true
}

func (a *Analyzer) fluxStats() (mean, std float64) {
	if a.fluxLen == 0 {
		return 0, 0
	}
	for _, f := range a.flux[:a.fluxLen] {
		mean += f
	}
	mean /= float64(a.fluxLen)
	for _, f := range a.flux[:a.fluxLen] {
		std += (f - mean) * (f - mean)
	}
	return mean, math.Sqrt(std / float64(a.fluxLen))
}

func (a *Analyzer) pushFlux(f float64) {
	a.flux[a.fluxPos] = f
	a.fluxPos = (a.fluxPos + 1) % len(a.flux)
	if a.fluxLen < len(a.flux) {
		a.fluxLen++
	}
}

func (a *Analyzer) onset(at int64) {
	a.lastOnset = at
	a.hasOnset = true
	a.onsets = append(a.onsets, at)
	if len(a.onsets) > maxOnsets {
		a.onsets = a.onsets[len(a.onsets)-maxOnsets:]
	}
	if len(a.onsets) >= minOnsets {
		a.bpm = estimateBPM(a.onsets, a.sampleRate)
	}
}

// estimateBPM averages the inter-onset intervals that lie within 15% of the
// median interval and folds the result into [minBPM, maxBPM].
func estimateBPM(onsets []int64, sampleRate float64) float64 {
	intervals := make([]float64, 0, len(onsets)-1)
	for i := 1; i < len(onsets); i++ {
		intervals = append(intervals, float64(onsets[i]-onsets[i-1])/sampleRate)
	}
	sorted := append([]float64(nil), intervals...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]
	if median <= 0 {
		return 0
	}

	sum, count := 0.0, 0
	for _, iv := range intervals {
		if math.Abs(iv-median) <= 0.15*median {
			sum += iv
			count++
		}
	}
	bpm := 60 / (sum / float64(count))
	for bpm < minBPM {
		bpm *= 2
	}
	for bpm > maxBPM {
		bpm /= 2
	}
	return bpm
}

// Snapshot returns the current estimate. SinceBeat is measured in stream
// time and lags wall time by at most one frame.
func (a *Analyzer) Snapshot() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	info := Info{BPM: a.bpm}
	if a.hasOnset {
		info.SinceBeat = time.Duration(float64(a.samples-a.lastOnset) / a.sampleRate * float64(time.Second))
	}
	return info
}

// Reset forgets all onsets and the estimate.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onsets = a.onsets[:0]
	a.bpm = 0
	a.hasOnset = false
	a.fluxLen, a.fluxPos = 0, 0
	for i := range a.prevMag {
		a.prevMag[i] = 0
	}
}
