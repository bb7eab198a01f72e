package pixel

import "strings"

// BlendMode is a per-channel compositing operator.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendAdditive
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendLighten
	BlendDarken
	BlendSubtractive
)

var blendNames = map[BlendMode]string{
	BlendNormal:      "normal",
	BlendAdditive:    "additive",
	BlendMultiply:    "multiply",
	BlendScreen:      "screen",
	BlendOverlay:     "overlay",
	BlendLighten:     "lighten",
	BlendDarken:      "darken",
	BlendSubtractive: "subtractive",
}

func (m BlendMode) String() string {
	if s, ok := blendNames[m]; ok {
		return s
	}
	return "normal"
}

// ParseBlendMode parses a case-insensitive blend mode name. Unknown names
// yield BlendNormal and false.
func ParseBlendMode(s string) (BlendMode, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range blendNames {
		if name == s {
			return m, true
		}
	}
	return BlendNormal, false
}

// BlendChannel combines backdrop d with layer s for one 8-bit channel.
func BlendChannel(d, s byte, mode BlendMode) byte {
	di, si := int(d), int(s)
	switch mode {
	case BlendAdditive:
		return byte(min(255, di+si))
	case BlendMultiply:
		return byte((di*si + 127) / 255)
	case BlendScreen:
		return byte(255 - ((255-di)*(255-si)+127)/255)
	case BlendOverlay:
		if di < 128 {
			return byte((2*di*si + 127) / 255)
		}
		return byte(255 - (2*(255-di)*(255-si)+127)/255)
	case BlendLighten:
		return byte(max(di, si))
	case BlendDarken:
		return byte(min(di, si))
	case BlendSubtractive:
		return byte(max(0, di-si))
	default:
		return s
	}
}

// Blend combines one BGRA layer pixel onto one BGRA backdrop pixel. The
// blended color is interpolated toward the backdrop by opacity in [0,1];
// alpha is forced opaque.
func Blend(dst, src [4]byte, mode BlendMode, opacity float64) [4]byte {
	w := opacityWeight(opacity)
	return [4]byte{
		mix(dst[0], BlendChannel(dst[0], src[0], mode), w),
		mix(dst[1], BlendChannel(dst[1], src[1], mode), w),
		mix(dst[2], BlendChannel(dst[2], src[2], mode), w),
		255,
	}
}

// BlendInto blends an equally sized layer buffer onto dst in place.
func BlendInto(dst, src []byte, mode BlendMode, opacity float64) {
	n := min(len(dst), len(src))
	w := opacityWeight(opacity)
	if mode == BlendNormal && w == 255 {
		CopyOpaque(dst[:n], src[:n])
		return
	}
	for i := 0; i+3 < n; i += BytesPerPixel {
		dst[i] = mix(dst[i], BlendChannel(dst[i], src[i], mode), w)
		dst[i+1] = mix(dst[i+1], BlendChannel(dst[i+1], src[i+1], mode), w)
		dst[i+2] = mix(dst[i+2], BlendChannel(dst[i+2], src[i+2], mode), w)
		dst[i+3] = 255
	}
}

// opacityWeight clamps opacity to [0,1] and converts it to 0..255.
func opacityWeight(opacity float64) int {
	if !(opacity > 0) {
		return 0
	}
	if opacity >= 1 {
		return 255
	}
	return int(opacity*255 + 0.5)
}

// mix interpolates from d toward b by w/255.
func mix(d, b byte, w int) byte {
	switch w {
	case 255:
		return b
	case 0:
		return d
	}
	return byte((int(d)*(255-w) + int(b)*w + 127) / 255)
}
