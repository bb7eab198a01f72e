package source

import (
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/san-kum/lifeviz/internal/capture"
	"github.com/san-kum/lifeviz/internal/pixel"
)

// Kind is a capture kind or a group.
type Kind int

const (
	KindWindow Kind = iota
	KindWebcam
	KindFile
	KindSequence
	KindGroup
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	if ck, ok := k.Capture(); ok {
		return ck.String()
	}
	return "unknown"
}

// Capture returns the capture kind of a leaf kind.
func (k Kind) Capture() (capture.Kind, bool) {
	switch k {
	case KindWindow:
		return capture.KindWindow, true
	case KindWebcam:
		return capture.KindWebcam, true
	case KindFile:
		return capture.KindFile, true
	case KindSequence:
		return capture.KindSequence, true
	}
	return 0, false
}

// ParseKind parses a kind name, including "group".
func ParseKind(s string) (Kind, bool) {
	if strings.EqualFold(strings.TrimSpace(s), "group") {
		return KindGroup, true
	}
	ck, ok := capture.ParseKind(s)
	if !ok {
		return KindWindow, false
	}
	return fromCapture(ck), true
}

func fromCapture(k capture.Kind) Kind {
	switch k {
	case capture.KindWebcam:
		return KindWebcam
	case capture.KindFile:
		return KindFile
	case capture.KindSequence:
		return KindSequence
	}
	return KindWindow
}

// Settings are the per-source layering parameters.
type Settings struct {
	Blend   pixel.BlendMode
	Fit     pixel.FitMode
	Opacity float64
	Mirror  bool
}

// DefaultSettings is Normal blend, Fill fit, fully opaque.
func DefaultSettings() Settings {
	return Settings{Blend: pixel.BlendNormal, Fit: pixel.FitFill, Opacity: 1}
}

func (s Settings) sanitized() Settings {
	if math.IsNaN(s.Opacity) {
		s.Opacity = 1
	}
	s.Opacity = min(max(s.Opacity, 0), 1)
	return s
}

// Node is one entry of the source forest: a leaf wrapping a capture
// pipeline, or a group owning an ordered child list.
type Node struct {
	ID   uuid.UUID
	Kind Kind
	Name string
	Key  string

	settings Settings
	acq      capture.Acquirer
	pipeline *capture.Pipeline
	children []*Node
	parent   *Node

	// Group scratch composites.
	sim              []byte
	native           []byte
	nativeW, nativeH int

	// Mapping used to place this node onto its parent's native composite.
	nativeMap pixel.Mapping
}

func (n *Node) IsGroup() bool { return n.Kind == KindGroup }

// Pipeline returns the leaf's pipeline, nil for groups.
func (n *Node) Pipeline() *capture.Pipeline { return n.pipeline }

// Info is a read-only snapshot of a node for listings.
type Info struct {
	ID       uuid.UUID
	Kind     Kind
	Name     string
	Key      string
	Depth    int
	Settings Settings
	Frames   uint64
	NativeW  int
	NativeH  int
	Children int
}

func (n *Node) info(depth int) Info {
	in := Info{
		ID:       n.ID,
		Kind:     n.Kind,
		Name:     n.Name,
		Key:      n.Key,
		Depth:    depth,
		Settings: n.settings,
		Children: len(n.children),
	}
	if n.pipeline != nil {
		in.Frames = n.pipeline.Stats().Frames
		in.NativeW, in.NativeH, _ = n.pipeline.NativeSize()
	}
	return in
}

// nativeSize returns the native dimensions of the first leaf, depth first,
// that has delivered a frame.
func (n *Node) nativeSize() (w, h int, ok bool) {
	if n.pipeline != nil {
		return n.pipeline.NativeSize()
	}
	for _, c := range n.children {
		if w, h, ok := c.nativeSize(); ok {
			return w, h, true
		}
	}
	return 0, 0, false
}

func (n *Node) stop() {
	if n.pipeline != nil {
		n.pipeline.Stop()
	}
	for _, c := range n.children {
		c.stop()
	}
}

func (n *Node) walk(depth int, fn func(*Node, int) bool) bool {
	if !fn(n, depth) {
		return false
	}
	for _, c := range n.children {
		if !c.walk(depth+1, fn) {
			return false
		}
	}
	return true
}
