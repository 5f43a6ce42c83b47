// Package encoder turns raw capture frames into JPEG images.
package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/common"
)

// Quality is the compression quality on the 0..1 scale used by the kiosk.
const Quality = 0.9

const ContentType = "image/jpeg"

// JPEG encodes frames at a fixed quality. The zero value uses Quality.
type JPEG struct {
	Quality float64
}

func (e JPEG) ContentType() string { return ContentType }

// Encode compresses f without resizing, cropping or rotating it. It fails
// only on malformed frames.
func (e JPEG) Encode(f capture.Frame) ([]byte, error) {
	img, err := toImage(f)
	if err != nil {
		return nil, err
	}

	q := e.Quality
	if q <= 0 || q > 1 {
		q = Quality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(math.Round(q * 100))}); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

// Encode is JPEG{}.Encode.
func Encode(f capture.Frame) ([]byte, error) {
	return JPEG{}.Encode(f)
}

func toImage(f capture.Frame) (image.Image, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid frame size %dx%d", common.ErrEncoding, f.Width, f.Height)
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: unsupported pixel format %s", common.ErrEncoding, f.Format)
	}
	if want := f.Width * f.Height * bpp; len(f.Data) != want {
		return nil, fmt.Errorf("%w: frame has %d bytes, %dx%d %s needs %d", common.ErrEncoding, len(f.Data), f.Width, f.Height, f.Format, want)
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Format == capture.FormatRGBA {
		return &image.RGBA{Pix: f.Data, Stride: f.Width * 4, Rect: rect}, nil
	}

	img := image.NewRGBA(rect)
	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
		img.Pix[j] = f.Data[i]
		img.Pix[j+1] = f.Data[i+1]
		img.Pix[j+2] = f.Data[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img, nil
}
