package session

import (
	"github.com/san-kum/lifeviz/internal/config"
	"github.com/san-kum/lifeviz/internal/life"
)

// SetMode switches color mode. The automaton reinitializes.
func (s *Session) SetMode(m life.ColorMode) {
	s.auto.SetMode(m)
	s.mu.Lock()
	s.cfg.Mode = s.auto.Mode().String()
	s.mu.Unlock()
}

func (s *Session) ToggleMode() life.ColorMode {
	next := life.RGB
	if s.auto.Mode() == life.RGB {
		next = life.Grayscale
	}
	s.SetMode(next)
	return next
}

func (s *Session) SetBinning(b life.Binning) {
	s.auto.SetBinning(b)
	s.mu.Lock()
	s.cfg.Binning = b.String()
	s.mu.Unlock()
}

func (s *Session) ToggleBinning() life.Binning {
	next := life.BinBinary
	if s.auto.Stats().Binning == life.BinBinary {
		next = life.BinFill
	}
	s.SetBinning(next)
	return next
}

// SetInjection replaces the mask parameters from the next tick on.
func (s *Session) SetInjection(c config.InjectionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Injection = c
	s.cfg.Sanitize()
	s.params = maskParams(s.cfg.Injection)
}

// CycleInjection moves to the next injection mode.
func (s *Session) CycleInjection() life.InjectionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := (s.params.Mode + 1) % 3
	s.cfg.Injection.Mode = next.String()
	s.params.Mode = next
	return next
}

// SetRows and SetDepth take effect on the next tick.
func (s *Session) SetRows(rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Rows = life.ClampRows(rows)
	s.pending = s.tree.Aspect()
	s.reconfigure = true
}

func (s *Session) SetDepth(depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Depth = life.ClampDepth(depth)
	s.pending = s.tree.Aspect()
	s.reconfigure = true
}

// SetFPS sets the base tick rate.
func (s *Session) SetFPS(fps float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps = config.ClampFPS(fps)
	s.cfg.Tempo.FPS = fps
	s.tempo.FPS = fps
	return fps
}

func (s *Session) ToggleOscillate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempo.Oscillate = !s.tempo.Oscillate
	s.cfg.Tempo.Oscillate = s.tempo.Oscillate
	return s.tempo.Oscillate
}

func (s *Session) ToggleBeatSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempo.BeatSync = !s.tempo.BeatSync
	s.cfg.Tempo.BeatSync = s.tempo.BeatSync
	return s.tempo.BeatSync
}

// SetAspectLock pins the automaton's aspect to ratio, or releases it to
// follow the primary source again.
func (s *Session) SetAspectLock(locked bool, ratio float64) {
	s.mu.Lock()
	s.cfg.Aspect.Lock = locked
	if locked {
		s.cfg.Aspect.Ratio = life.SanitizeAspect(ratio)
	}
	s.mu.Unlock()
	s.tree.SetAspectLock(locked, ratio)
}

func (s *Session) Randomize() {
	s.auto.Randomize()
}

func (s *Session) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}
