package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Feed is a callback acquirer: an external producer (a window grabber, a
// test, any push-style source) calls Push on its own schedule and the frames
// go straight to the running pipeline.
type Feed struct {
	mu   sync.Mutex
	sink Sink
	errc chan error
}

func NewFeed() *Feed {
	return &Feed{errc: make(chan error, 1)}
}

// Push forwards a frame. It reports false when no pipeline is running the
// feed.
func (f *Feed) Push(pix []byte, w, h int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sink == nil {
		return false
	}
	f.sink.Submit(pix, w, h)
	return true
}

// Fail ends the current run with err.
func (f *Feed) Fail(err error) {
	select {
	case f.errc <- err:
	default:
	}
}

func (f *Feed) Run(ctx context.Context, sink Sink) error {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.sink = nil
		f.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-f.errc:
		return err
	}
}

// Poller returns the current frame of a polled source. It may return
// ErrNoFrame when nothing changed since the last poll. dst is a buffer the
// poller may reuse for its result.
type Poller interface {
	Poll(ctx context.Context, dst []byte) (pix []byte, w, h int, err error)
}

// PollerFunc adapts a function to Poller.
type PollerFunc func(ctx context.Context, dst []byte) ([]byte, int, int, error)

func (fn PollerFunc) Poll(ctx context.Context, dst []byte) ([]byte, int, int, error) {
	return fn(ctx, dst)
}

type polling struct {
	poller   Poller
	interval time.Duration
}

// Polling turns a Poller into an Acquirer that polls every interval. Any
// error other than ErrNoFrame ends the run.
func Polling(p Poller, interval time.Duration) Acquirer {
	if interval <= 0 {
		interval = time.Second / 30
	}
	return &polling{poller: p, interval: interval}
}

func (a *polling) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var buf []byte
	for {
		pix, w, h, err := a.poller.Poll(ctx, buf)
		switch {
		case err == nil:
			sink.Submit(pix, w, h)
			buf = pix
		case !errors.Is(err, ErrNoFrame):
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
