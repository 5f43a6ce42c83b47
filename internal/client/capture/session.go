package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateInactive State = iota
	StateAcquiring
	StateStreaming
	StateCapturing
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateAcquiring:
		return "acquiring"
	case StateStreaming:
		return "streaming"
	case StateCapturing:
		return "capturing"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session holds at most one open stream of a single device.
type Session struct {
	dev Device
	enc Encoder
	log logging.Logger

	mu     sync.Mutex
	state  State
	stream Stream
}

func NewSession(dev Device, enc Encoder, log logging.Logger) *Session {
	return &Session{dev: dev, enc: enc, log: log.With("module", "capture")}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether a stream is held.
func (s *Session) Active() bool {
	st := s.State()
	return st == StateStreaming || st == StateCapturing
}

// Source describes the held stream; zero when no stream is held.
func (s *Session) Source() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return Source{}
	}
	return s.stream.Source()
}

// Open acquires the device. A session that is acquiring or streaming refuses
// a second Open; a released session can be opened again.
func (s *Session) Open(ctx context.Context) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAcquiring, StateStreaming, StateCapturing:
		return Source{}, fmt.Errorf("%w: session already holds the device", common.ErrDeviceUnavailable)
	}

	s.state = StateAcquiring
	stream, err := s.dev.Open(ctx)
	if err != nil {
		s.state = StateReleased
		if !errors.Is(err, common.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", common.ErrDeviceUnavailable, err)
		}
		s.log.Warn(ctx, "camera open failed", "error", err)
		return Source{}, err
	}

	s.stream = stream
	s.state = StateStreaming

	src := stream.Source()
	w, h := stream.Dimensions()
	s.log.Info(ctx, "camera streaming", "device", src.Device, "facing", src.Facing, "fallback", src.Fallback, "width", w, "height", h)
	return src, nil
}

// Grab takes the stream's current frame and encodes it. The image has the
// stream's dimensions at the moment of the grab.
func (s *Session) Grab(ctx context.Context) (Image, error) {
	s.mu.Lock()
	if s.state != StateStreaming || s.stream == nil {
		s.mu.Unlock()
		return Image{}, common.ErrNoActiveStream
	}
	s.state = StateCapturing
	stream := s.stream
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.state == StateCapturing {
			s.state = StateStreaming
		}
		s.mu.Unlock()
	}()

	frame, err := stream.Frame(ctx)
	if err != nil {
		return Image{}, fmt.Errorf("grab frame: %w", err)
	}

	data, err := s.enc.Encode(frame)
	if err != nil {
		return Image{}, err
	}

	return Image{
		Data:        data,
		ContentType: s.enc.ContentType(),
		Width:       frame.Width,
		Height:      frame.Height,
		Source:      stream.Source(),
		TakenAt:     frame.Timestamp,
	}, nil
}

// Close stops the stream. It is safe to call in any state and more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		s.state = StateReleased
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	s.state = StateReleased
	if err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// Run opens a session on dev, calls fn and releases the device however fn
// returns, panics included.
func Run(ctx context.Context, dev Device, enc Encoder, log logging.Logger, fn func(ctx context.Context, s *Session) error) (err error) {
	s := NewSession(dev, enc, log)
	if _, err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, s)
}
