// Package mock provides test doubles for the capture package interfaces.
//
// AudioSource replays queued sample blocks and then blocks until closed or
// fed more samples. VideoSource returns a fixed frame or a configured error.
//
// Example:
//
//	mic := mock.NewAudioSource(16000)
//	cam := &mock.VideoSource{Image: img}
//	p := capture.NewPipeline(mic, cam, capture.Config{BlockSize: 4})
//	mic.Push(0.1, 0.2, 0.3, 0.4)
package mock

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("mock: source closed")

// AudioSource is a mock implementation of capture.AudioSource.
type AudioSource struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []float32
	rate int

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// ReadErr, if non-nil, is returned by Read once the queued samples are
	// exhausted.
	ReadErr error

	opened bool
	closed bool

	// OpenCount and CloseCount record calls.
	OpenCount  int
	CloseCount int
}

// NewAudioSource returns a source delivering samples at rate.
func NewAudioSource(rate int) *AudioSource {
	s := &AudioSource{rate: rate}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push queues samples for Read. Thread-safe.
func (s *AudioSource) Push(samples ...float32) {
	s.mu.Lock()
	s.buf = append(s.buf, samples...)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Fail makes the next Read that runs out of samples return err.
func (s *AudioSource) Fail(err error) {
	s.mu.Lock()
	s.ReadErr = err
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Open records the call and returns OpenErr.
func (s *AudioSource) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCount++
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.opened = true
	return nil
}

// SampleRate returns the configured rate.
func (s *AudioSource) SampleRate() int { return s.rate }

// Read blocks until len(buf) samples are queued, the source fails, or it
// is closed.
func (s *AudioSource) Read(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) < len(buf) && !s.closed && s.ReadErr == nil {
		s.cond.Wait()
	}
	if s.closed {
		return 0, ErrClosed
	}
	if len(s.buf) < len(buf) {
		return 0, s.ReadErr
	}
	n := copy(buf, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Close records the call and wakes any blocked Read.
func (s *AudioSource) Close() error {
	s.mu.Lock()
	s.CloseCount++
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

// Opened reports whether Open succeeded and Close has not been called.
func (s *AudioSource) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened && !s.closed
}

// VideoSource is a mock implementation of capture.VideoSource.
type VideoSource struct {
	mu sync.Mutex

	// Image is returned by Frame.
	Image image.Image

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// FrameErr, if non-nil, is returned by Frame instead of Image.
	FrameErr error

	OpenCount  int
	FrameCount int
	CloseCount int
}

// Open records the call and returns OpenErr.
func (v *VideoSource) Open(context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.OpenCount++
	return v.OpenErr
}

// Frame records the call and returns Image or FrameErr.
func (v *VideoSource) Frame(context.Context) (image.Image, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.FrameCount++
	if v.FrameErr != nil {
		return nil, v.FrameErr
	}
	return v.Image, nil
}

// Close records the call.
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CloseCount++
	return nil
}

// SetImage replaces the frame returned by Frame. Thread-safe.
func (v *VideoSource) SetImage(img image.Image) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Image = img
	v.FrameErr = nil
}

// SetFrameErr makes Frame return err. Thread-safe.
func (v *VideoSource) SetFrameErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.FrameErr = err
}

// Counts returns Open, Frame, and Close call counts. Thread-safe.
func (v *VideoSource) Counts() (open, frame, closed int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.OpenCount, v.FrameCount, v.CloseCount
}

// Counts returns Open and Close call counts. Thread-safe.
func (s *AudioSource) Counts() (open, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OpenCount, s.CloseCount
}
