package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/visionally/internal/app"
	"github.com/MrWong99/visionally/internal/config"
	"github.com/MrWong99/visionally/pkg/provider/live"
	geminilive "github.com/MrWong99/visionally/pkg/provider/live/gemini"
	"github.com/MrWong99/visionally/pkg/provider/query"
	geminiquery "github.com/MrWong99/visionally/pkg/provider/query/gemini"
	oaquery "github.com/MrWong99/visionally/pkg/provider/query/openai"
	"github.com/MrWong99/visionally/pkg/provider/speech"
	"github.com/MrWong99/visionally/pkg/provider/speech/espeak"
)

// registerBuiltinProviders wires the shipped provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini-live", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	// ── Query ─────────────────────────────────────────────────────────────────

	reg.RegisterQuery("gemini", func(entry config.ProviderEntry) (query.Provider, error) {
		var opts []geminiquery.Option
		if entry.Model != "" {
			opts = append(opts, geminiquery.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminiquery.WithBaseURL(entry.BaseURL))
		}
		return geminiquery.New(context.Background(), entry.APIKey, opts...)
	})

	reg.RegisterQuery("openai", func(entry config.ProviderEntry) (query.Provider, error) {
		var opts []oaquery.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaquery.WithBaseURL(entry.BaseURL))
		}
		return oaquery.New(entry.APIKey, entry.Model, opts...)
	})

	// ── Speech ────────────────────────────────────────────────────────────────

	reg.RegisterSpeech("espeak", func(entry config.ProviderEntry) (speech.Sink, error) {
		var opts []espeak.Option
		if bin := entry.OptionString("binary", ""); bin != "" {
			opts = append(opts, espeak.WithBinary(bin))
		}
		if voice := entry.OptionString("voice", ""); voice != "" {
			opts = append(opts, espeak.WithVoice(voice))
		}
		// Spoken notices are also logged so a headless run stays readable.
		return speech.Multi{espeak.New(opts...), speech.LogSink{}}, nil
	})

	reg.RegisterSpeech("log", func(config.ProviderEntry) (speech.Sink, error) {
		return speech.LogSink{}, nil
	})
}

// buildProviders instantiates the providers named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{
		QueryName:         cfg.Providers.Query.Name,
		QueryFallbackName: cfg.Providers.QueryFallback.Name,
	}

	lp, err := reg.CreateLive(cfg.Providers.Live)
	if err != nil {
		return nil, fmt.Errorf("create live provider %q: %w", cfg.Providers.Live.Name, err)
	}
	ps.Live = lp
	slog.Info("provider created", "kind", "live", "name", cfg.Providers.Live.Name)

	qp, err := reg.CreateQuery(cfg.Providers.Query)
	if err != nil {
		return nil, fmt.Errorf("create query provider %q: %w", cfg.Providers.Query.Name, err)
	}
	ps.Query = qp
	slog.Info("provider created", "kind", "query", "name", cfg.Providers.Query.Name)

	if fb := cfg.Providers.QueryFallback; fb.Name != "" {
		p, err := reg.CreateQuery(fb)
		if err != nil {
			return nil, fmt.Errorf("create query fallback %q: %w", fb.Name, err)
		}
		ps.QueryFallback = p
		slog.Info("provider created", "kind", "query_fallback", "name", fb.Name)
	}

	ps.Speech, err = buildSpeech(cfg, reg)
	if err != nil {
		return nil, err
	}
	return ps, nil
}

// buildSpeech falls back to the log sink when the configured one is not
// registered, so announcements are never silently lost.
func buildSpeech(cfg *config.Config, reg *config.Registry) (speech.Sink, error) {
	sp, err := reg.CreateSpeech(cfg.Providers.Speech)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("speech provider not registered, logging announcements instead", "name", cfg.Providers.Speech.Name)
		return speech.LogSink{}, nil
	case err != nil:
		return nil, fmt.Errorf("create speech provider %q: %w", cfg.Providers.Speech.Name, err)
	}
	slog.Info("provider created", "kind", "speech", "name", cfg.Providers.Speech.Name)
	return sp, nil
}
