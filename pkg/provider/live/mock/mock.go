// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out a controlled Stream. Use
// Stream to push inbound events, simulate a transport drop, and inspect every
// message the caller sent.
//
// Example:
//
//	st := mock.NewStream()
//	p := &mock.Provider{Stream: st}
//	s, _ := p.Connect(ctx, live.Config{})
//	st.Push(live.Event{Interrupted: true})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/visionally/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	Ctx context.Context
	Cfg live.Config
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Stream is returned by Connect. If nil, Connect returns a new Stream.
	Stream *Stream

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Stream, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Stream == nil {
		p.Stream = NewStream()
	}
	return p.Stream, nil
}

// Calls returns the number of Connect calls. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ConnectCalls)
}

// Stream is a mock implementation of live.Stream and live.Nudger.
type Stream struct {
	mu sync.Mutex

	events chan live.Event
	closed bool
	ended  bool
	err    error

	// SendErr, if non-nil, is returned by Send instead of recording.
	SendErr error

	sent       []live.Message
	nudges     []string
	closeCount int
}

// NewStream returns an open Stream with a buffered event channel.
func NewStream() *Stream {
	return &Stream{events: make(chan live.Event, 64)}
}

// Send records msg unless the stream is closed.
func (s *Stream) Send(msg live.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return live.ErrClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

// Events implements live.Stream.
func (s *Stream) Events() <-chan live.Event { return s.events }

// Err implements live.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Nudge records text.
func (s *Stream) Nudge(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.ended {
		return live.ErrClosed
	}
	s.nudges = append(s.nudges, text)
	return nil
}

// Close records the call and closes the event channel once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	s.closed = true
	s.end()
	return nil
}

// Push delivers ev on the event channel. It is a no-op after the stream
// ended.
func (s *Stream) Push(ev live.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events <- ev
}

// Fail simulates a transport drop: Err reports err and Events is closed.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.err = err
	s.end()
}

func (s *Stream) end() {
	if !s.ended {
		s.ended = true
		close(s.events)
	}
}

// Sent returns a copy of every message accepted by Send.
func (s *Stream) Sent() []live.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.Message(nil), s.sent...)
}

// Nudges returns a copy of every Nudge text.
func (s *Stream) Nudges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.nudges...)
}

// CloseCount returns how many times Close was called.
func (s *Stream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
