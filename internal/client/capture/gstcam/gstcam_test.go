package gstcam

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/client/encoder"
	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescription(t *testing.T) {
	got := Description("/dev/video2")
	assert.Equal(t,
		"v4l2src device=/dev/video2 ! videoconvert ! video/x-raw,format=RGB ! appsink name=photodrop_sink max-buffers=1 drop=true sync=false",
		got)
}

func TestSlot_KeepsNewestFrame(t *testing.T) {
	s := newSlot()
	_, ok := s.peek()
	assert.False(t, ok)

	s.put(capture.Frame{Width: 640, Height: 480, Seq: 1})
	s.put(capture.Frame{Width: 1280, Height: 720, Seq: 2})

	f, err := s.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, 1280, f.Width)
}

func TestSlot_WaitBlocksUntilFirstFrame(t *testing.T) {
	s := newSlot()
	done := make(chan capture.Frame, 1)
	go func() {
		f, _ := s.wait(context.Background())
		done <- f
	}()

	time.Sleep(10 * time.Millisecond)
	s.put(capture.Frame{Seq: 7})

	select {
	case f := <-done:
		assert.Equal(t, uint64(7), f.Seq)
	case <-time.After(time.Second):
		t.Fatal("wait did not return")
	}
}

func TestSlot_WaitHonoursContext(t *testing.T) {
	s := newSlot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlot_CloseWakesWaitersAndDropsFrames(t *testing.T) {
	s := newSlot()
	s.close()

	_, err := s.wait(context.Background())
	assert.ErrorIs(t, err, common.ErrNoActiveStream)

	s.put(capture.Frame{Seq: 1})
	assert.True(t, s.isClosed())
	f, _ := s.peek()
	assert.Zero(t, f.Seq)
}

func paddedRGB(width, height int) []byte {
	stride := (width*3 + 3) &^ 3
	data := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width*3; x++ {
			data[y*stride+x] = byte(y + x)
		}
		for x := width * 3; x < stride; x++ {
			data[y*stride+x] = 0xEE
		}
	}
	return data
}

func TestPackRGB_StripsRowPadding(t *testing.T) {
	data := paddedRGB(3, 2)
	require.Len(t, data, 24)

	got, ok := packRGB(data, 3, 2)
	require.True(t, ok)
	require.Len(t, got, 18)
	assert.Equal(t, data[0:9], got[0:9])
	assert.Equal(t, data[12:21], got[9:18])
	assert.NotContains(t, got, byte(0xEE))
}

func TestPackRGB_TightBufferCopied(t *testing.T) {
	data := make([]byte, 4*2*3)
	data[5] = 7

	got, ok := packRGB(data, 4, 2)
	require.True(t, ok)
	assert.Equal(t, data, got)
	got[5] = 9
	assert.Equal(t, byte(7), data[5])
}

func TestPackRGB_ShortBuffer(t *testing.T) {
	_, ok := packRGB(make([]byte, 10), 3, 2)
	assert.False(t, ok)
}

func TestPackRGB_OddWidthEncodes(t *testing.T) {
	const w, h = 801, 600
	data, ok := packRGB(paddedRGB(w, h), w, h)
	require.True(t, ok)

	enc := encoder.JPEG{Quality: encoder.Quality}
	img, err := enc.Encode(capture.Frame{Width: w, Height: h, Format: capture.FormatRGB24, Data: data})
	require.NoError(t, err)
	assert.NotEmpty(t, img)
}
