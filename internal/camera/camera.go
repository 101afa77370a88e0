// Package camera models the capture device as a scoped resource: a stream is
// acquired when scanning starts and is released on every exit path.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrClosed   = errors.New("camera scope is closed")
	ErrNoFrame  = errors.New("no frame captured yet")
	ErrNotOpen  = errors.New("camera is not open")
	ErrTooLarge = errors.New("frame exceeds size limit")
)

// Frame is a single JPEG image captured from the device.
type Frame struct {
	Data []byte
	At   time.Time
}

// Stream is an open capture track.
type Stream interface {
	Latest() (Frame, error)
	Close() error
}

// Device opens capture streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
	ActiveTracks() int
}

// Scope owns at most one open stream of a device.
type Scope struct {
	device Device
	log    zerolog.Logger

	mu          sync.Mutex
	stream      Stream
	stopRelease func() bool
	closed      bool
}

// NewScope creates a scope for the device. Nothing is acquired until Start.
func NewScope(device Device, log zerolog.Logger) *Scope {
	return &Scope{device: device, log: log.With().Str("component", "camera").Logger()}
}

// Start acquires a stream. The stream is released when ctx is done, on Stop
// or on Close, whichever happens first. Starting an open scope is a no-op.
func (s *Scope) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.stream != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stream, err := s.device.Open(ctx)
	if err != nil {
		return fmt.Errorf("could not open camera: %w", err)
	}
	s.stream = stream
	s.stopRelease = context.AfterFunc(ctx, func() {
		if err := s.release(stream); err != nil {
			s.log.Warn().Err(err).Msg("failed to release camera on cancellation")
		}
	})
	s.log.Debug().Msg("camera started")
	return nil
}

// Stop releases the open stream, if any.
func (s *Scope) Stop() error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil
	}
	return s.release(stream)
}

// release closes stream if it is still the scope's current stream.
func (s *Scope) release(stream Stream) error {
	s.mu.Lock()
	if s.stream != stream {
		s.mu.Unlock()
		return nil
	}
	s.stream = nil
	if s.stopRelease != nil {
		s.stopRelease()
		s.stopRelease = nil
	}
	s.mu.Unlock()

	if err := stream.Close(); err != nil {
		return fmt.Errorf("could not close camera stream: %w", err)
	}
	s.log.Debug().Msg("camera stopped")
	return nil
}

// Close releases the stream and prevents further use.
func (s *Scope) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Open reports whether a stream is currently held.
func (s *Scope) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Latest returns the most recent frame of the open stream.
func (s *Scope) Latest() (Frame, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return Frame{}, ErrNotOpen
	}
	return stream.Latest()
}

// ActiveTracks reports the number of open streams on the underlying device.
func (s *Scope) ActiveTracks() int {
	return s.device.ActiveTracks()
}
