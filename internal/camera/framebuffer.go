package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FrameBuffer is a device fed by frames pushed from a browser.
type FrameBuffer struct {
	maxBytes int
	tracks   atomic.Int32

	mu     sync.RWMutex
	latest Frame
}

// NewFrameBuffer creates a buffer that rejects frames larger than maxBytes.
func NewFrameBuffer(maxBytes int) *FrameBuffer {
	return &FrameBuffer{maxBytes: maxBytes}
}

// Push stores a frame. Frames pushed while no stream is open are dropped.
func (b *FrameBuffer) Push(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty frame")
	}
	if b.maxBytes > 0 && len(data) > b.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	if b.tracks.Load() == 0 {
		return ErrNotOpen
	}

	frame := Frame{Data: append([]byte(nil), data...), At: time.Now()}
	b.mu.Lock()
	b.latest = frame
	b.mu.Unlock()
	return nil
}

// Open implements Device.
func (b *FrameBuffer) Open(context.Context) (Stream, error) {
	b.tracks.Add(1)
	return &bufferStream{buf: b}, nil
}

// ActiveTracks implements Device.
func (b *FrameBuffer) ActiveTracks() int {
	return int(b.tracks.Load())
}

type bufferStream struct {
	buf    *FrameBuffer
	closed atomic.Bool
}

func (s *bufferStream) Latest() (Frame, error) {
	if s.closed.Load() {
		return Frame{}, ErrNotOpen
	}
	s.buf.mu.RLock()
	defer s.buf.mu.RUnlock()
	if s.buf.latest.Data == nil {
		return Frame{}, ErrNoFrame
	}
	return s.buf.latest, nil
}

func (s *bufferStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.buf.tracks.Add(-1) == 0 {
		s.buf.mu.Lock()
		s.buf.latest = Frame{}
		s.buf.mu.Unlock()
	}
	return nil
}
