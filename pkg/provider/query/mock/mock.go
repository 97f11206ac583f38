// Package mock provides a test double for query.Provider.
//
// Set Gate to hold calls in flight until the test releases them, which is how
// busy-guard behaviour is exercised.
package mock

import (
	"context"
	"sync"
)

// Call records a single invocation of Provider.Request.
type Call struct {
	Image    []byte
	MIMEType string
	Prompt   string
}

// Provider is a mock implementation of query.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned on success.
	Response string

	// Err, if non-nil, is returned instead of Response.
	Err error

	// Gate, if non-nil, blocks each call until a value is received (or the
	// channel is closed) or ctx is done.
	Gate chan struct{}

	// Started, if non-nil, receives one value when each call begins.
	Started chan struct{}

	calls []Call
}

// Request records the call and returns Response, Err.
func (p *Provider) Request(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Image: image, MIMEType: mimeType, Prompt: prompt})
	gate, started := p.Gate, p.Started
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Response, p.Err
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallCount returns the number of recorded calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// SetResponse replaces Response and Err. Thread-safe.
func (p *Provider) SetResponse(resp string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Response, p.Err = resp, err
}
