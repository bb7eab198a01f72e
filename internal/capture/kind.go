package capture

import (
	"strings"
	"time"
)

// Kind identifies what a pipeline captures from.
type Kind int

const (
	KindWindow Kind = iota
	KindWebcam
	KindFile
	KindSequence
)

var kindNames = map[Kind]string{
	KindWindow:   "window",
	KindWebcam:   "webcam",
	KindFile:     "file",
	KindSequence: "sequence",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind parses a source kind name.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "camera", "cam":
		return KindWebcam, true
	case "video", "video_sequence", "videosequence", "dir":
		return KindSequence, true
	case "image":
		return KindFile, true
	}
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindWindow, false
}

// Mirrorable reports whether sources of this kind honor the mirror flag.
func (k Kind) Mirrorable() bool {
	return k == KindWebcam
}

// Policy controls when a pipeline is considered lost.
type Policy struct {
	// Grace is how long a source may go without frames before it can expire.
	Grace time.Duration
	// MissThreshold is the number of consecutive frameless pulls required
	// before expiry.
	MissThreshold int
	// Retries is how many times a failed acquisition loop is restarted.
	Retries    int
	RetryDelay time.Duration
	// Stall makes a source with frames expire when they stop arriving.
	// Static sources (files) only expire when no frame ever arrived.
	Stall bool
}

// DefaultPolicy returns the grace policy for a kind. Cameras get one
// restart and the longest window since devices are slow to open.
func DefaultPolicy(k Kind) Policy {
	switch k {
	case KindWebcam:
		return Policy{Grace: 10 * time.Second, MissThreshold: 30, Retries: 1, RetryDelay: time.Second, Stall: true}
	case KindFile:
		return Policy{Grace: 2 * time.Second, MissThreshold: 1}
	case KindSequence:
		return Policy{Grace: 3 * time.Second, MissThreshold: 15, Stall: true}
	default:
		return Policy{Grace: 3 * time.Second, MissThreshold: 15, Stall: true}
	}
}
