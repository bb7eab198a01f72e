package source

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/lifeviz/internal/capture"
)

// Spec describes a node to build, with its children for groups.
type Spec struct {
	Kind     Kind
	Key      string
	Name     string
	Settings Settings
	// FPS is the playback rate of sequences.
	FPS      float64
	Children []Spec
}

// NewAcquirer returns the acquirer for a leaf kind. Window sources are fed
// by an external grabber through the returned *capture.Feed.
func NewAcquirer(kind Kind, key string, fps float64) (capture.Acquirer, error) {
	switch kind {
	case KindWindow:
		return capture.NewFeed(), nil
	case KindWebcam:
		return &capture.WebcamAcquirer{Device: key}, nil
	case KindFile:
		return &capture.FileAcquirer{Path: key}, nil
	case KindSequence:
		return &capture.SequenceAcquirer{Dir: key, FPS: fps, Loop: true}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrLeafKind, kind)
}

// Build adds specs under parent in order. It stops at the first error.
func (t *Tree) Build(parent uuid.UUID, specs []Spec) error {
	for _, sp := range specs {
		name := sp.Name
		if name == "" {
			name = sp.Key
		}
		if name == "" {
			name = sp.Kind.String()
		}

		if sp.Kind == KindGroup {
			id, err := t.AddGroup(parent, -1, name, sp.Settings)
			if err != nil {
				return err
			}
			if err := t.Build(id, sp.Children); err != nil {
				return err
			}
			continue
		}

		acq, err := NewAcquirer(sp.Kind, sp.Key, sp.FPS)
		if err != nil {
			return err
		}
		var opts []capture.Option
		if sp.Kind == KindSequence && sp.FPS > 0 {
			// Slow sequences may legitimately go several seconds between
			// frames.
			pol := capture.DefaultPolicy(capture.KindSequence)
			pol.Grace = max(pol.Grace, time.Duration(3*float64(time.Second)/sp.FPS))
			opts = append(opts, capture.WithPolicy(pol))
		}
		if _, err := t.Add(parent, -1, sp.Kind, name, sp.Key, acq, sp.Settings, opts...); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	return nil
}
