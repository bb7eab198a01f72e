package main

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/san-kum/lifeviz/internal/config"
)

func TestParseSource(t *testing.T) {
	half := 0.5
	tests := []struct {
		name    string
		in      string
		want    config.SourceSpec
		wantErr bool
	}{
		{name: "kind only", in: "window", want: config.SourceSpec{Kind: "window"}},
		{name: "kind and key", in: "file:bg.png", want: config.SourceSpec{Kind: "file", Key: "bg.png"}},
		{
			name: "settings",
			in:   "file:bg.png,blend=screen,fit=fill,opacity=0.5,mirror,name=bg",
			want: config.SourceSpec{Kind: "file", Key: "bg.png", Blend: "screen", Fit: "fill", Opacity: &half, Mirror: true, Name: "bg"},
		},
		{name: "sequence fps", in: "sequence:frames/,fps=12", want: config.SourceSpec{Kind: "sequence", Key: "frames/", FPS: 12}},
		{name: "unknown kind", in: "printer:x", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "bad opacity", in: "file:a.png,opacity=lots", wantErr: true},
		{name: "unknown setting", in: "file:a.png,volume=11", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSource(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseSource(%q) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSource(%q): %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseSource(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestWritePNGScales(t *testing.T) {
	w, h := 16, 9
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i+0], pix[i+1], pix[i+2], pix[i+3] = 10, 20, 30, 255
	}

	path := filepath.Join(t.TempDir(), "snap.png")
	if err := writePNG(path, pix, w, h); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}

	b := img.Bounds()
	if b.Dx() != w*80 || b.Dy() != h*80 {
		t.Fatalf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), w*80, h*80)
	}
	r, g, bl, a := img.At(5, 5).RGBA()
	if r>>8 != 30 || g>>8 != 20 || bl>>8 != 10 || a>>8 != 255 {
		t.Errorf("pixel = %d,%d,%d,%d, want 30,20,10,255", r>>8, g>>8, bl>>8, a>>8)
	}
}
