package pixel

// Resample writes src (m.SrcW×m.SrcH) into dst (m.DstW×m.DstH) through m.
// Pixels without a source pixel become opaque black; alpha is forced opaque.
func Resample(dst, src []byte, m *Mapping) {
	if len(dst) < Size(m.DstW, m.DstH) {
		return
	}
	srcStride := m.SrcW * BytesPerPixel
	if len(src) < Size(m.SrcW, m.SrcH) {
		FillOpaqueBlack(dst[:Size(m.DstW, m.DstH)])
		return
	}

	di := 0
	for _, sy := range m.Y {
		if sy < 0 {
			FillOpaqueBlack(dst[di : di+m.DstW*BytesPerPixel])
			di += m.DstW * BytesPerPixel
			continue
		}
		row := src[int(sy)*srcStride:]
		for _, sx := range m.X {
			if sx < 0 {
				dst[di], dst[di+1], dst[di+2] = 0, 0, 0
			} else {
				si := int(sx) * BytesPerPixel
				dst[di] = row[si]
				dst[di+1] = row[si+1]
				dst[di+2] = row[si+2]
			}
			dst[di+3] = 255
			di += BytesPerPixel
		}
	}
}

// CompositeMapped blends src onto dst through m using the blend mode and
// opacity. Uncovered destination pixels blend an opaque black layer pixel.
func CompositeMapped(dst, src []byte, m *Mapping, mode BlendMode, opacity float64) {
	if len(dst) < Size(m.DstW, m.DstH) {
		return
	}
	w := opacityWeight(opacity)
	srcOK := len(src) >= Size(m.SrcW, m.SrcH)
	srcStride := m.SrcW * BytesPerPixel

	di := 0
	for _, sy := range m.Y {
		for _, sx := range m.X {
			var b, g, r byte
			if srcOK && sy >= 0 && sx >= 0 {
				si := int(sy)*srcStride + int(sx)*BytesPerPixel
				b, g, r = src[si], src[si+1], src[si+2]
			}
			dst[di] = mix(dst[di], BlendChannel(dst[di], b, mode), w)
			dst[di+1] = mix(dst[di+1], BlendChannel(dst[di+1], g, mode), w)
			dst[di+2] = mix(dst[di+2], BlendChannel(dst[di+2], r, mode), w)
			dst[di+3] = 255
			di += BytesPerPixel
		}
	}
}
