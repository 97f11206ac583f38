package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/visionally/pkg/provider/live"
	"github.com/MrWong99/visionally/pkg/provider/query"
	"github.com/MrWong99/visionally/pkg/provider/speech"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	live   map[string]func(ProviderEntry) (live.Provider, error)
	query  map[string]func(ProviderEntry) (query.Provider, error)
	speech map[string]func(ProviderEntry) (speech.Sink, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:   make(map[string]func(ProviderEntry) (live.Provider, error)),
		query:  make(map[string]func(ProviderEntry) (query.Provider, error)),
		speech: make(map[string]func(ProviderEntry) (speech.Sink, error)),
	}
}

// RegisterLive registers a live stream provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name string, factory func(ProviderEntry) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterQuery registers a one-shot query provider factory under name.
func (r *Registry) RegisterQuery(name string, factory func(ProviderEntry) (query.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.query[name] = factory
}

// RegisterSpeech registers a speech sink factory under name.
func (r *Registry) RegisterSpeech(name string, factory func(ProviderEntry) (speech.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[name] = factory
}

// CreateLive instantiates a live provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLive(entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateQuery instantiates a query provider using the factory registered under entry.Name.
func (r *Registry) CreateQuery(entry ProviderEntry) (query.Provider, error) {
	r.mu.RLock()
	factory, ok := r.query[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: query/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSpeech instantiates a speech sink using the factory registered under entry.Name.
func (r *Registry) CreateSpeech(entry ProviderEntry) (speech.Sink, error) {
	r.mu.RLock()
	factory, ok := r.speech[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: speech/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
