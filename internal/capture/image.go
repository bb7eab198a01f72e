package capture

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/san-kum/lifeviz/internal/pixel"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsImagePath reports whether path has an extension DecodeFile understands.
func IsImagePath(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// DecodeFile decodes an image file into a BGRA buffer, reusing dst.
func DecodeFile(path string, maxDim int, dst []byte) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return dst, 0, 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return dst, 0, 0, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	pix, w, h := ToBGRA(img, maxDim, dst)
	return pix, w, h, nil
}

// ToBGRA converts img to a BGRA buffer. Images larger than maxDim on either
// side are scaled down first, keeping their aspect ratio; maxDim <= 0
// disables scaling.
func ToBGRA(img image.Image, maxDim int, dst []byte) ([]byte, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return dst, 0, 0
	}

	scale := maxDim > 0 && (w > maxDim || h > maxDim)
	if scale {
		if w >= h {
			h = max(1, h*maxDim/w)
			w = maxDim
		} else {
			w = max(1, w*maxDim/h)
			h = maxDim
		}
	}

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	if scale {
		xdraw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), img, b, xdraw.Src, nil)
	} else {
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	dst = pixel.Ensure(dst, w, h)
	for i := 0; i < w*h; i++ {
		o := i * 4
		so := (i/w)*rgba.Stride + (i%w)*4
		dst[o] = rgba.Pix[so+2]
		dst[o+1] = rgba.Pix[so+1]
		dst[o+2] = rgba.Pix[so]
		dst[o+3] = 255
	}
	return dst, w, h
}
