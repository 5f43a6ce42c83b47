package gstcam

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/common"
)

// slot holds the newest frame delivered by the appsink callback.
type slot struct {
	mu     sync.Mutex
	frame  capture.Frame
	filled bool
	closed bool
	ready  chan struct{}
}

func newSlot() *slot {
	return &slot{ready: make(chan struct{})}
}

func (s *slot) put(f capture.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frame = f
	if !s.filled {
		s.filled = true
		close(s.ready)
	}
}

func (s *slot) peek() (capture.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.filled
}

// wait returns the newest frame, blocking until the first one arrives.
func (s *slot) wait(ctx context.Context) (capture.Frame, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return capture.Frame{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.Frame{}, common.ErrNoActiveStream
	}
	return s.frame, nil
}

func (s *slot) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.frame = capture.Frame{}
	if !s.filled {
		s.filled = true
		close(s.ready)
	}
}

func (s *slot) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
