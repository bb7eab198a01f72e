package beat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// Stream feeds an Analyzer from the default input device.
type Stream struct {
	Analyzer *Analyzer
	log      *slog.Logger
}

func NewStream(a *Analyzer, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	return &Stream{Analyzer: a, log: log.With("component", "beat")}
}

// Snapshot returns the analyzer's current estimate.
func (s *Stream) Snapshot() Info {
	return s.Analyzer.Snapshot()
}

// Run captures audio until ctx is done.
func (s *Stream) Run(ctx context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer portaudio.Terminate()

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, BufferSize, s.process)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	s.log.Info("beat detection started", "sample_rate", SampleRate, "buffer", BufferSize)

	<-ctx.Done()
	if err := stream.Stop(); err != nil {
		s.log.Debug("failed to stop input stream", "error", err)
	}
	return nil
}

func (s *Stream) process(in []float32) {
	if s.Analyzer.Process(in) {
		s.log.Debug("onset", "bpm", s.Analyzer.Snapshot().BPM)
	}
}
