// Package query defines the Provider interface for one-shot image analysis
// backends.
//
// A query provider takes a single still image plus a text prompt and answers
// with text, with no streaming and no session state. Implementations must be
// safe for concurrent use.
package query

import "context"

// Provider answers a single prompt about one image.
type Provider interface {
	// Request sends image (encoded as mimeType, e.g. "image/jpeg") together
	// with prompt and returns the model's text answer. An empty string with a
	// nil error means the model produced no text.
	Request(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// Func adapts an ordinary function to a Provider.
type Func func(ctx context.Context, image []byte, mimeType, prompt string) (string, error)

// Request implements Provider.
func (f Func) Request(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	return f(ctx, image, mimeType, prompt)
}
