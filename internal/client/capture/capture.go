// Package capture acquires a live video source, grabs single still frames
// from it and hands them to an encoder.
//
// A Device opens a Stream; a Session owns at most one Stream at a time and
// releases it on every exit path. Concrete devices live in the gstcam
// (V4L2 camera through GStreamer) and imagedev (still image on disk)
// subpackages.
package capture

import (
	"context"
	"fmt"
	"time"
)

// Facing tells which way a camera points relative to the kiosk screen.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
	FacingUnknown     Facing = "unknown"
)

// Source reports the video source that was actually granted. Fallback is set
// when no environment-facing source could be opened.
type Source struct {
	Device   string
	Label    string
	Facing   Facing
	Fallback bool
}

// PixelFormat is the memory layout of Frame.Data.
type PixelFormat int

const (
	FormatRGB24 PixelFormat = iota
	FormatRGBA
)

// BytesPerPixel returns the stride of one pixel, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB24:
		return 3
	case FormatRGBA:
		return 4
	default:
		return 0
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "RGB24"
	case FormatRGBA:
		return "RGBA"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Frame is one raw, uncompressed video frame. Data is owned by the frame.
type Frame struct {
	Width     int
	Height    int
	Format    PixelFormat
	Data      []byte
	Seq       uint64
	Timestamp time.Time
}

// Stream is an open hardware stream. Frame returns the stream's current
// frame at its current dimensions. Close must be safe to call more than once.
type Stream interface {
	Source() Source
	Dimensions() (width, height int)
	Frame(ctx context.Context) (Frame, error)
	Close() error
}

// Device opens streams. A failed Open must not leave anything held.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Encoder compresses a raw frame.
type Encoder interface {
	Encode(f Frame) ([]byte, error)
	ContentType() string
}

// Image is an encoded still grabbed from a stream.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Source      Source
	TakenAt     time.Time
}
