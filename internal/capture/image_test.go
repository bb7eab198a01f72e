package capture

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/bmp"

	"github.com/san-kum/lifeviz/internal/logging"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestToBGRA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 40, G: 50, B: 60, A: 255})

	pix, w, h := ToBGRA(img, 0, nil)
	if w != 2 || h != 1 {
		t.Fatalf("size %dx%d", w, h)
	}
	want := []byte{30, 20, 10, 255, 60, 50, 40, 255}
	if diff := cmp.Diff(want, pix); diff != "" {
		t.Errorf("BGRA mismatch:\n%s", diff)
	}
}

func TestToBGRAScalesDown(t *testing.T) {
	tests := []struct {
		name         string
		w, h, maxDim int
		wantW, wantH int
	}{
		{"landscape", 400, 200, 100, 100, 50},
		{"portrait", 100, 300, 150, 50, 150},
		{"within bounds", 80, 60, 100, 80, 60},
		{"disabled", 500, 500, 0, 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			pix, w, h := ToBGRA(img, tt.maxDim, nil)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("got %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
			if len(pix) != w*h*4 {
				t.Errorf("buffer length %d", len(pix))
			}
		})
	}
}

func TestDecodeFileFormats(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "a.png")
	writePNG(t, pngPath, 3, 2, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	bmpPath := filepath.Join(dir, "b.bmp")
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 100, 50, 255
	}
	f, err := os.Create(bmpPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	for _, path := range []string{pngPath, bmpPath} {
		pix, w, h, err := DecodeFile(path, 0, nil)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if w != 3 || h != 2 {
			t.Errorf("%s: size %dx%d", path, w, h)
		}
		if pix[0] != 50 || pix[1] != 100 || pix[2] != 200 || pix[3] != 255 {
			t.Errorf("%s: first pixel %v", path, pix[:4])
		}
	}

	if _, _, _, err := DecodeFile(filepath.Join(dir, "missing.png"), 0, nil); err == nil {
		t.Error("expected error for missing file")
	}
	garbage := filepath.Join(dir, "garbage.png")
	os.WriteFile(garbage, []byte("not an image"), 0644)
	if _, _, _, err := DecodeFile(garbage, 0, nil); err == nil {
		t.Error("expected error for undecodable file")
	}
}

func TestScanSequence(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_002.png", "frame_001.png", "notes.txt", "frame_003.JPG"} {
		os.WriteFile(filepath.Join(dir, name), nil, 0644)
	}
	os.Mkdir(filepath.Join(dir, "sub.png"), 0755)

	frames, err := ScanSequence(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "frame_001.png"),
		filepath.Join(dir, "frame_002.png"),
		filepath.Join(dir, "frame_003.JPG"),
	}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("ScanSequence mismatch:\n%s", diff)
	}
}

func TestFileAcquirer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	writePNG(t, path, 6, 4, color.RGBA{R: 255, A: 255})

	p := NewPipeline(KindFile, "still", &FileAcquirer{Path: path}, WithLogger(logging.Discard()))
	p.Start(context.Background())
	defer p.Stop()

	eventually(t, "decoded image", func() bool { return p.Stats().Frames > 0 })
	f, ok := p.Pull(Request{W: 6, H: 4})
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Pix[2] != 255 || f.Pix[0] != 0 {
		t.Errorf("expected red, got %v", f.Pix[:4])
	}
}

func TestFileAcquirerMissingFileFails(t *testing.T) {
	p := NewPipeline(KindFile, "missing", &FileAcquirer{Path: filepath.Join(t.TempDir(), "nope.png")},
		WithLogger(logging.Discard()))
	p.Start(context.Background())
	defer p.Stop()

	eventually(t, "failure", func() bool { return p.Err() != nil })
	if !p.Expired() {
		t.Error("expected expiry after failure")
	}
}

func TestSequenceAcquirerLoops(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "0.png"), 2, 2, color.RGBA{R: 1, A: 255})
	writePNG(t, filepath.Join(dir, "1.png"), 2, 2, color.RGBA{R: 2, A: 255})

	acq := &SequenceAcquirer{Dir: dir, FPS: 200, Loop: true}
	p := NewPipeline(KindSequence, "seq", acq, WithLogger(logging.Discard()))
	p.Start(context.Background())
	defer p.Stop()

	eventually(t, "looped playback", func() bool { return p.Stats().Frames > 4 })
	if p.Err() != nil {
		t.Errorf("unexpected failure: %v", p.Err())
	}
}

func TestSequenceAcquirerEmptyDir(t *testing.T) {
	acq := &SequenceAcquirer{Dir: t.TempDir(), FPS: 10}
	err := acq.Run(context.Background(), NewPipeline(KindSequence, "seq", NewFeed()))
	if err != ErrEmptySequence {
		t.Errorf("Run() = %v, want ErrEmptySequence", err)
	}
}

func TestSequenceAcquirerStopsWithoutLoop(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "0.png"), 2, 2, color.RGBA{A: 255})

	acq := &SequenceAcquirer{Dir: dir, FPS: 100}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := NewPipeline(KindSequence, "seq", NewFeed(), WithLogger(logging.Discard()))
	if err := acq.Run(ctx, p); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if ctx.Err() != nil {
		t.Error("expected playback to end before the timeout")
	}
	if p.Stats().Frames != 1 {
		t.Errorf("frames = %d, want 1", p.Stats().Frames)
	}
}
