package capture

// WebcamAcquirer captures BGRA frames from a camera device.
type WebcamAcquirer struct {
	// Device is a V4L2 device path such as /dev/video0. Empty picks the
	// system default.
	Device string
	Width  int
	Height int
	FPS    int
}

func (a *WebcamAcquirer) size() (w, h, fps int) {
	w, h, fps = a.Width, a.Height, a.FPS
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	if fps <= 0 {
		fps = 30
	}
	return w, h, fps
}
