//go:build !gst

package capture

import (
	"context"
	"fmt"
)

// Run fails immediately: camera capture needs the gst build tag.
func (a *WebcamAcquirer) Run(ctx context.Context, sink Sink) error {
	return fmt.Errorf("%w: webcam support not built (use -tags gst)", ErrUnavailable)
}
