// Package live defines the Provider interface for persistent multimodal
// streaming backends.
//
// A live provider wraps a real-time inference service that accepts a
// continuous stream of audio blocks and still images and answers with
// streamed audio. The central abstraction is [Stream]: a long-lived,
// bidirectional channel with a non-blocking send side and an event channel
// for everything the model produces.
//
// Capabilities beyond the core contract are expressed as optional
// interfaces (see [Nudger]) and discovered with a type assertion.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send after the stream has been closed or has
// failed.
var ErrClosed = errors.New("live: stream closed")

// ErrQueueFull is returned by Send when the outbound queue cannot accept
// another message without blocking.
var ErrQueueFull = errors.New("live: outbound queue full")

// Kind identifies the media type of an outbound [Message].
type Kind int

const (
	// KindAudio is a block of PCM16LE audio.
	KindAudio Kind = iota
	// KindImage is a single compressed still image.
	KindImage
)

// String returns "audio" or "image".
func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

// Message is one outbound media chunk.
type Message struct {
	Kind Kind

	// Payload is the base64 text encoding of the media bytes.
	Payload []byte

	// MIMEType describes the decoded payload, e.g. "audio/pcm;rate=16000" or
	// "image/jpeg".
	MIMEType string
}

// Event is one inbound occurrence on the stream. Several fields may be set
// on the same event.
type Event struct {
	// Audio is a base64 text payload of PCM16LE output audio, or nil.
	Audio []byte

	// MIMEType describes Audio.
	MIMEType string

	// Interrupted reports that the model detected a barge-in and any audio
	// still playing must be cancelled.
	Interrupted bool

	// TurnComplete reports that the model finished its current turn.
	TurnComplete bool

	// Text is an optional text part or transcription emitted by the model.
	Text string
}

// Config is the initial configuration for a new stream.
type Config struct {
	// Model overrides the provider's default model.
	Model string

	// Instructions is the system instruction for the session.
	Instructions string

	// Voice names a prebuilt voice. Empty uses the provider default.
	Voice string
}

// Provider opens persistent streams.
type Provider interface {
	// Connect dials the endpoint and returns a Stream that is ready to accept
	// media. Connect blocks until the endpoint acknowledges the session or
	// ctx is cancelled.
	Connect(ctx context.Context, cfg Config) (Stream, error)
}

// Stream is one live connection.
type Stream interface {
	// Send enqueues msg for transmission without blocking. It returns
	// [ErrClosed] once the stream is closed and [ErrQueueFull] when the
	// outbound queue is saturated. Messages still queued when the stream
	// closes are discarded.
	Send(msg Message) error

	// Events returns the inbound event channel. It is closed when the stream
	// ends for any reason.
	Events() <-chan Event

	// Err returns the error that terminated the stream, or nil if it is still
	// open or was closed locally.
	Err() error

	// Close terminates the stream and releases its resources. Idempotent.
	Close() error
}

// Nudger is implemented by streams that accept an explicit text turn, used to
// prompt the model to speak about something without user audio.
type Nudger interface {
	Nudge(text string) error
}
