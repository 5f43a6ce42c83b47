// Package gstcam streams a V4L2 camera through a GStreamer pipeline.
//
// Pipeline:
//
//	v4l2src device=<path> ! videoconvert ! video/x-raw,format=RGB ! appsink max-buffers=1 drop=true
//
// The appsink keeps only the newest buffer, so a grab always sees the frame
// the camera is producing now at whatever size it currently negotiates.
package gstcam

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

const (
	sinkName          = "photodrop_sink"
	defaultFirstFrame = 5 * time.Second
)

// Description returns the gst-launch description for a camera node.
func Description(path string) string {
	return fmt.Sprintf(
		"v4l2src device=%s ! videoconvert ! video/x-raw,format=RGB ! appsink name=%s max-buffers=1 drop=true sync=false",
		path, sinkName,
	)
}

// Device is one camera node.
type Device struct {
	Info capture.Info
	// FirstFrameTimeout bounds how long Open waits for the camera to deliver.
	FirstFrameTimeout time.Duration
}

func New(info capture.Info) *Device {
	return &Device{Info: info, FirstFrameTimeout: defaultFirstFrame}
}

func (d *Device) Open(ctx context.Context) (capture.Stream, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(Description(d.Info.Path))
	if err != nil {
		return nil, fmt.Errorf("%w: create pipeline: %w", common.ErrDeviceUnavailable, err)
	}

	elem, err := pipeline.GetElementByName(sinkName)
	if err != nil {
		return nil, fmt.Errorf("%w: appsink: %w", common.ErrDeviceUnavailable, err)
	}
	sink := app.SinkFromElement(elem)

	s := &stream{
		src:      capture.Source{Device: d.Info.Path, Label: d.Info.Name, Facing: d.Info.Facing},
		pipeline: pipeline,
		slot:     newSlot(),
	}
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: start pipeline: %w", common.ErrDeviceUnavailable, err)
	}

	timeout := d.FirstFrameTimeout
	if timeout <= 0 {
		timeout = defaultFirstFrame
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := s.slot.wait(wctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: no frames from %s: %w", common.ErrDeviceUnavailable, d.Info.Path, err)
	}
	return s, nil
}

type stream struct {
	src      capture.Source
	pipeline *gst.Pipeline
	slot     *slot
	seq      uint64

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Source() capture.Source { return s.src }

func (s *stream) Dimensions() (int, int) {
	f, ok := s.slot.peek()
	if !ok {
		return 0, 0
	}
	return f.Width, f.Height
}

func (s *stream) Frame(ctx context.Context) (capture.Frame, error) {
	if s.slot.isClosed() {
		return capture.Frame{}, common.ErrNoActiveStream
	}
	return s.slot.wait(ctx)
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.slot.close()
		if err := s.pipeline.SetState(gst.StateNull); err != nil {
			s.closeErr = fmt.Errorf("stop pipeline: %w", err)
		}
	})
	return s.closeErr
}

// onNewSample copies the buffer out of GStreamer, which reuses it.
func (s *stream) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}

	width, height, ok := capsDimensions(sample.GetCaps())
	if !ok {
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	frameData, ok := packRGB(data, width, height)
	buffer.Unmap()
	if !ok {
		return gst.FlowOK
	}

	s.slot.put(capture.Frame{
		Width:     width,
		Height:    height,
		Format:    capture.FormatRGB24,
		Data:      frameData,
		Seq:       atomic.AddUint64(&s.seq, 1),
		Timestamp: time.Now(),
	})
	return gst.FlowOK
}

// packRGB copies a packed RGB buffer into tight rows. GStreamer aligns each
// RGB row to 4 bytes, so widths where w*3 is not a multiple of 4 arrive
// with padding after every row.
func packRGB(data []byte, width, height int) ([]byte, bool) {
	row := width * 3
	if len(data) == row*height {
		out := make([]byte, len(data))
		copy(out, data)
		return out, true
	}
	stride := (row + 3) &^ 3
	if len(data) < stride*(height-1)+row {
		return nil, false
	}
	out := make([]byte, row*height)
	for y := 0; y < height; y++ {
		copy(out[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return out, true
}

func capsDimensions(caps *gst.Caps) (int, int, bool) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, false
	}
	st := caps.GetStructureAt(0)
	wv, err := st.GetValue("width")
	if err != nil {
		return 0, 0, false
	}
	hv, err := st.GetValue("height")
	if err != nil {
		return 0, 0, false
	}
	w, wok := wv.(int)
	h, hok := hv.(int)
	return w, h, wok && hok && w > 0 && h > 0
}
