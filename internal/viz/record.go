package viz

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"time"

	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultMaxFrames bounds a recording so memory stays flat.
	DefaultMaxFrames = 900
	recordMaxWidth   = 640
)

var ErrNothingRecorded = errors.New("viz: no frames recorded")

// Recorder collects rasterized frames for an animated GIF.
type Recorder struct {
	MaxFrames int

	frames []*image.Paletted
	delays []int
	last   time.Time
	rgba   *image.RGBA
}

func NewRecorder() *Recorder {
	return &Recorder{MaxFrames: DefaultMaxFrames}
}

func (r *Recorder) Len() int { return len(r.frames) }

// Add appends one BGRA frame captured at t. Frames past MaxFrames are
// dropped.
func (r *Recorder) Add(pix []byte, w, h int, t time.Time) {
	if w <= 0 || h <= 0 || len(pix) < w*h*4 {
		return
	}
	if r.MaxFrames > 0 && len(r.frames) >= r.MaxFrames {
		return
	}

	if r.rgba == nil || r.rgba.Rect.Dx() != w || r.rgba.Rect.Dy() != h {
		r.rgba = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	for i := 0; i < w*h*4; i += 4 {
		r.rgba.Pix[i] = pix[i+2]
		r.rgba.Pix[i+1] = pix[i+1]
		r.rgba.Pix[i+2] = pix[i]
		r.rgba.Pix[i+3] = 255
	}

	outW, outH := w, h
	if w > recordMaxWidth {
		outW, outH = recordMaxWidth, max(1, h*recordMaxWidth/w)
	}
	frame := image.NewPaletted(image.Rect(0, 0, outW, outH), palette.Plan9)
	if outW == w {
		draw.FloydSteinberg.Draw(frame, frame.Rect, r.rgba, image.Point{})
	} else {
		scaled := image.NewRGBA(frame.Rect)
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Rect, r.rgba, r.rgba.Rect, xdraw.Src, nil)
		draw.FloydSteinberg.Draw(frame, frame.Rect, scaled, image.Point{})
	}

	// GIF delays are in hundredths of a second; the delay of a frame is
	// the time until the next one.
	if n := len(r.delays); n > 0 {
		r.delays[n-1] = max(2, int(t.Sub(r.last)/(10*time.Millisecond)))
	}
	r.frames = append(r.frames, frame)
	r.delays = append(r.delays, 4)
	r.last = t
}

// Save writes the recording to path and resets the recorder.
func (r *Recorder) Save(path string) error {
	if len(r.frames) == 0 {
		return ErrNothingRecorded
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	// Frames differ in size after a reconfigure; the logical screen must
	// hold the largest.
	var screen image.Config
	for _, fr := range r.frames {
		screen.Width = max(screen.Width, fr.Rect.Dx())
		screen.Height = max(screen.Height, fr.Rect.Dy())
	}
	screen.ColorModel = color.Palette(palette.Plan9)

	anim := &gif.GIF{Image: r.frames, Delay: r.delays, LoopCount: 0, Config: screen}
	if err := gif.EncodeAll(f, anim); err != nil {
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	r.Reset()
	return f.Close()
}

func (r *Recorder) Reset() {
	r.frames, r.delays = nil, nil
	r.last = time.Time{}
}
