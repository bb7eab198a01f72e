//go:build gst

package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/san-kum/lifeviz/internal/logging"
)

// Run builds v4l2src → videoconvert → videoscale → capsfilter → appsink,
// plays it and forwards every sample until ctx is done or the bus reports
// an error.
func (a *WebcamAcquirer) Run(ctx context.Context, sink Sink) error {
	log := logging.FromContext(ctx)
	w, h, fps := a.size()

	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("%w: v4l2src: %v", ErrUnavailable, err)
	}
	if a.Device != "" {
		src.SetProperty("device", a.Device)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("failed to create videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return fmt.Errorf("failed to create videoscale: %w", err)
	}
	caps, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("failed to create capsfilter: %w", err)
	}
	caps.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d,framerate=%d/1", w, h, fps)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, convert, scale, caps, appsink.Element)
	if err := gst.ElementLinkMany(src, convert, scale, caps, appsink.Element); err != nil {
		return fmt.Errorf("failed to link webcam pipeline: %w", err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			sample := s.PullSample()
			if sample == nil {
				return gst.FlowOK
			}
			buffer := sample.GetBuffer()
			if buffer == nil {
				return gst.FlowOK
			}
			mapInfo := buffer.Map(gst.MapRead)
			// Submit copies, so the mapped memory can be released right after.
			sink.Submit(mapInfo.Bytes(), w, h)
			buffer.Unmap()
			return gst.FlowOK
		},
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: failed to start camera: %v", ErrUnavailable, err)
	}
	log.Info("webcam started", "device", a.Device, "width", w, "height", h, "fps", fps)

	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return fmt.Errorf("webcam: end of stream")
		case gst.MessageError:
			gerr := msg.ParseError()
			log.Warn("webcam pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			return fmt.Errorf("webcam: %s", gerr.Error())
		}
	}
}
