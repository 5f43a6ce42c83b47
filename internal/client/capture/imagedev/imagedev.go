// Package imagedev serves a still image from disk as if it were a camera.
// It backs kiosks without a camera and tests of the submission flow.
package imagedev

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/common"
)

type Device struct {
	Path string
	now  func() time.Time
}

func New(path string) *Device {
	return &Device{Path: path, now: time.Now}
}

func (d *Device) Open(ctx context.Context) (capture.Stream, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDeviceUnavailable, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", common.ErrDeviceUnavailable, d.Path, err)
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	now := d.now
	if now == nil {
		now = time.Now
	}
	return &stream{
		src: capture.Source{Device: d.Path, Label: "still image", Facing: capture.FacingUnknown},
		img: rgba,
		now: now,
	}, nil
}

type stream struct {
	src capture.Source
	now func() time.Time

	mu     sync.Mutex
	img    *image.RGBA
	seq    uint64
	closed bool
}

func (s *stream) Source() capture.Source { return s.src }

func (s *stream) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0
	}
	return s.img.Rect.Dx(), s.img.Rect.Dy()
}

func (s *stream) Frame(ctx context.Context) (capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.Frame{}, common.ErrNoActiveStream
	}
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}

	s.seq++
	data := make([]byte, len(s.img.Pix))
	copy(data, s.img.Pix)
	return capture.Frame{
		Width:     s.img.Rect.Dx(),
		Height:    s.img.Rect.Dy(),
		Format:    capture.FormatRGBA,
		Data:      data,
		Seq:       s.seq,
		Timestamp: s.now(),
	}, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
