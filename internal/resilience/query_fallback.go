package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/visionally/pkg/provider/query"
)

var _ query.Provider = (*QueryFallback)(nil)

// QueryFallback implements [query.Provider] over a [FallbackGroup]. With a
// single provider it only adds a circuit breaker.
type QueryFallback struct {
	group *FallbackGroup[query.Provider]
}

// NewQueryFallback creates a QueryFallback with primary as the preferred
// provider.
func NewQueryFallback(primary query.Provider, primaryName string, cfg FallbackConfig) *QueryFallback {
	return &QueryFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another provider tried after the earlier ones.
func (f *QueryFallback) AddFallback(name string, p query.Provider) {
	f.group.AddFallback(name, p)
}

// Request implements query.Provider.
func (f *QueryFallback) Request(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	text, served, err := ExecuteWithResult(f.group, func(p query.Provider) (string, error) {
		return p.Request(ctx, image, mimeType, prompt)
	})
	if err == nil && f.group.Len() > 1 {
		slog.Debug("query served", "provider", served)
	}
	return text, err
}

// Breaker returns the breaker for the named provider, or nil.
func (f *QueryFallback) Breaker(name string) *CircuitBreaker {
	return f.group.Breaker(name)
}
