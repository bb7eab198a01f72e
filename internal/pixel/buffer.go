package pixel

// BytesPerPixel is the size of one BGRA pixel.
const BytesPerPixel = 4

// Size returns the byte length of a w×h BGRA buffer.
func Size(w, h int) int {
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h * BytesPerPixel
}

// Ensure returns buf resized to hold a w×h BGRA image. The backing array is
// reused when it is large enough.
func Ensure(buf []byte, w, h int) []byte {
	n := Size(w, h)
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]byte, n)
}

// FillOpaqueBlack sets every pixel of buf to (0,0,0,255).
func FillOpaqueBlack(buf []byte) {
	for i := 0; i+3 < len(buf); i += BytesPerPixel {
		buf[i] = 0
		buf[i+1] = 0
		buf[i+2] = 0
		buf[i+3] = 255
	}
}

// CopyOpaque copies src into dst forcing alpha to 255.
func CopyOpaque(dst, src []byte) {
	n := copy(dst, src)
	for i := 3; i < n; i += BytesPerPixel {
		dst[i] = 255
	}
}
