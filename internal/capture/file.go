package capture

import (
	"context"
	"path/filepath"

	"github.com/san-kum/lifeviz/internal/logging"
)

// DefaultMaxDim bounds decoded still images and sequence frames.
const DefaultMaxDim = 1920

// FileAcquirer decodes a still image once and again whenever the file
// changes on disk.
type FileAcquirer struct {
	Path   string
	MaxDim int
}

func (a *FileAcquirer) Run(ctx context.Context, sink Sink) error {
	log := logging.FromContext(ctx)
	maxDim := a.MaxDim
	if maxDim == 0 {
		maxDim = DefaultMaxDim
	}

	pix, w, h, err := DecodeFile(a.Path, maxDim, nil)
	if err != nil {
		return err
	}
	sink.Submit(pix, w, h)
	log.Debug("image loaded", "path", a.Path, "width", w, "height", h)

	target := filepath.Clean(a.Path)
	watchDir(ctx, filepath.Dir(target), func(name string) bool { return name == target }, func() {
		var err error
		var nw, nh int
		pix, nw, nh, err = DecodeFile(a.Path, maxDim, pix)
		if err != nil {
			// Editors often write in several steps; keep the last good frame.
			log.Debug("image reload failed", "path", a.Path, "error", err)
			return
		}
		sink.Submit(pix, nw, nh)
		log.Info("image reloaded", "path", a.Path, "width", nw, "height", nh)
	})
	return nil
}
