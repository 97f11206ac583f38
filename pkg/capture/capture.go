// Package capture pulls microphone audio and camera frames from a capture
// source and packages them for the live stream.
//
// A capture source is split into an [AudioSource] (continuous float samples
// at a fixed rate) and an optional [VideoSource] (still frames on demand).
// [Pipeline] opens both concurrently, delivers fixed-size audio blocks as they
// arrive, and redraws sampled frames into a shared [FrameBuffer] that other
// components read without mutating.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrFrameUnavailable is returned by a [VideoSource] when no new frame could
// be obtained but the source itself is still usable (for example a network
// camera that timed out once). The previous frame stays valid.
var ErrFrameUnavailable = errors.New("capture: frame unavailable")

// AudioSource delivers mono float samples in [-1, 1].
type AudioSource interface {
	// Open acquires the device. It fails if the device is missing or access
	// is denied.
	Open(ctx context.Context) error

	// SampleRate is the native rate of samples returned by Read.
	SampleRate() int

	// Read blocks until buf is full (or the source fails) and returns the
	// number of samples written. After Close, Read returns an error.
	Read(buf []float32) (int, error)

	// Close releases the device. Idempotent.
	Close() error
}

// VideoSource produces still frames.
type VideoSource interface {
	// Open acquires the camera or verifies the network endpoint.
	Open(ctx context.Context) error

	// Frame returns the latest frame at the source's native resolution.
	Frame(ctx context.Context) (image.Image, error)

	// Close releases the camera. Idempotent.
	Close() error
}

// FirstFramer is implemented by video sources that already hold a frame when
// Open returns. [Pipeline.Open] seeds the frame buffer with it so one-shot
// queries have an image before the first sampling tick.
type FirstFramer interface {
	FirstFrame() image.Image
}

// SourceError reports a capture source that could not be opened or failed
// while running.
type SourceError struct {
	// Source is "audio" or "video".
	Source string
	// Op is the failed operation ("open", "read", "frame").
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("capture: %s %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }
