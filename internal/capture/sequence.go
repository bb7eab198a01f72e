package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/san-kum/lifeviz/internal/logging"
)

var ErrEmptySequence = errors.New("capture: no frames in sequence directory")

// SequenceAcquirer plays a directory of still frames, sorted by name, at FPS.
// The directory is rescanned when its contents change.
type SequenceAcquirer struct {
	Dir    string
	FPS    float64
	Loop   bool
	MaxDim int
}

// ScanSequence lists the image files of dir in name order.
func ScanSequence(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !IsImagePath(e.Name()) {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	sort.Strings(frames)
	return frames, nil
}

func (a *SequenceAcquirer) Run(ctx context.Context, sink Sink) error {
	log := logging.FromContext(ctx)

	frames, err := ScanSequence(a.Dir)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return ErrEmptySequence
	}

	fps := a.FPS
	if fps <= 0 {
		fps = 24
	}
	maxDim := a.MaxDim
	if maxDim == 0 {
		maxDim = DefaultMaxDim
	}

	rescan := make(chan struct{}, 1)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go watchDir(watchCtx, filepath.Clean(a.Dir), IsImagePath, func() {
		select {
		case rescan <- struct{}{}:
		default:
		}
	})

	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	var buf []byte
	idx := 0
	for {
		if idx >= len(frames) {
			if !a.Loop {
				return nil
			}
			idx = 0
		}

		pix, w, h, err := DecodeFile(frames[idx], maxDim, buf)
		if err != nil {
			log.Debug("skipping frame", "path", frames[idx], "error", err)
		} else {
			buf = pix
			sink.Submit(pix, w, h)
		}
		idx++

		select {
		case <-ctx.Done():
			return nil
		case <-rescan:
			next, err := ScanSequence(a.Dir)
			if err != nil {
				return err
			}
			if len(next) == 0 {
				return ErrEmptySequence
			}
			log.Info("sequence rescanned", "dir", a.Dir, "frames", len(next))
			frames = next
			if idx >= len(frames) {
				idx = 0
			}
		case <-ticker.C:
		}
	}
}
