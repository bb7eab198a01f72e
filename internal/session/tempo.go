package session

import (
	"math"
	"time"

	"github.com/san-kum/lifeviz/internal/beat"
	"github.com/san-kum/lifeviz/internal/config"
)

// BeatSource supplies the latest tempo estimate.
type BeatSource interface {
	Snapshot() beat.Info
}

// Tempo decides how long to wait before the next tick.
type Tempo struct {
	FPS       float64
	Oscillate bool
	Amplitude float64
	// Period of the oscillation.
	Period      time.Duration
	BeatSync    bool
	Subdivision int
}

// TempoFromConfig builds a Tempo from sanitized config values.
func TempoFromConfig(c config.TempoConfig) Tempo {
	return Tempo{
		FPS:         c.FPS,
		Oscillate:   c.Oscillate,
		Amplitude:   c.Amplitude,
		Period:      time.Duration(c.Period * float64(time.Second)),
		BeatSync:    c.BeatSync,
		Subdivision: c.Subdivision,
	}
}

// CurrentFPS returns the free-running rate at elapsed time since start:
// the base rate, optionally modulated by a sinusoid.
func (t Tempo) CurrentFPS(elapsed time.Duration) float64 {
	fps := config.ClampFPS(t.FPS)
	if t.Oscillate && t.Period > 0 {
		phase := 2 * math.Pi * float64(elapsed) / float64(t.Period)
		fps *= 1 + t.Amplitude*defaultSine.Sin(phase)
	}
	return min(max(fps, config.MinFPS), config.MaxFPS)
}

// Interval returns the delay before the next tick. With beat sync on and a
// valid estimate, ticks land on subdivisions of the beat grid; otherwise
// the free-running rate applies.
func (t Tempo) Interval(elapsed time.Duration, b beat.Info, hasBeat bool) time.Duration {
	minInterval := time.Second / time.Duration(config.MaxFPS)

	if t.BeatSync && hasBeat && b.Valid() {
		sub := max(t.Subdivision, 1)
		step := b.Period() / time.Duration(sub)
		if step < minInterval {
			step = minInterval
		}
		next := step - b.SinceBeat%step
		if next < minInterval {
			next += step
		}
		return next
	}

	return time.Duration(float64(time.Second) / t.CurrentFPS(elapsed))
}
