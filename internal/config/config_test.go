package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/visionally/internal/config"
	"github.com/MrWong99/visionally/pkg/provider/live"
	livemock "github.com/MrWong99/visionally/pkg/provider/live/mock"
	"github.com/MrWong99/visionally/pkg/provider/query"
	"github.com/MrWong99/visionally/pkg/provider/speech"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

providers:
  live:
    name: gemini-live
    api_key: g-test
    model: gemini-2.0-flash-exp
    options:
      voice: Kore
  query:
    name: gemini
  query_fallback:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  speech:
    name: espeak

capture:
  source: network
  network_url: http://192.168.1.20:8080/shot.jpg
  block_size: 2048
  frame_rate: 0.5

output:
  sink: discard

assistant:
  color_vision: deuteranopia
  speech_rate: 1.25
  scan:
    enabled: true
    warmup: 20s
    period: 12s
    nudge_live_stream: true

journal:
  memory_capacity: 64

resilience:
  max_failures: 3
  reset_timeout: 1m
`

func load(t *testing.T, yaml string) (*config.Config, error) {
	t.Helper()
	return config.LoadFromReader(strings.NewReader(yaml))
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, sampleYAML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if got := cfg.Providers.Live.OptionString("voice", ""); got != "Kore" {
		t.Errorf("providers.live.options.voice: got %q, want Kore", got)
	}
	if cfg.Providers.Query.APIKey != "g-test" {
		t.Errorf("providers.query.api_key should inherit the live key, got %q", cfg.Providers.Query.APIKey)
	}
	if cfg.Providers.QueryFallback.APIKey != "sk-test" {
		t.Errorf("providers.query_fallback.api_key: got %q", cfg.Providers.QueryFallback.APIKey)
	}
	if cfg.Capture.Source != config.CaptureNetwork {
		t.Errorf("capture.source: got %q", cfg.Capture.Source)
	}
	if cfg.Capture.FrameRate != 0.5 {
		t.Errorf("capture.frame_rate: got %.2f, want 0.5", cfg.Capture.FrameRate)
	}
	if cfg.Assistant.Scan.Warmup != 20*time.Second || cfg.Assistant.Scan.Period != 12*time.Second {
		t.Errorf("assistant.scan: got warmup %s period %s", cfg.Assistant.Scan.Warmup, cfg.Assistant.Scan.Period)
	}
	if cfg.Assistant.Scan.Retry != 3*time.Second {
		t.Errorf("assistant.scan.retry default: got %s, want 3s", cfg.Assistant.Scan.Retry)
	}
	if cfg.Resilience.ResetTimeout != time.Minute {
		t.Errorf("resilience.reset_timeout: got %s", cfg.Resilience.ResetTimeout)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, "")
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	if cfg.Providers.Live.Name != "gemini-live" || cfg.Providers.Query.Name != "gemini" || cfg.Providers.Speech.Name != "espeak" {
		t.Errorf("default providers: got %+v", cfg.Providers)
	}
	if cfg.Capture.Source != config.CaptureLocal || cfg.Capture.SampleRate != 16000 || cfg.Capture.BlockSize != 4096 {
		t.Errorf("default capture: got %+v", cfg.Capture)
	}
	if cfg.Output.Sink != config.OutputFFplay {
		t.Errorf("default output.sink: got %q", cfg.Output.Sink)
	}
	a := cfg.Assistant
	if a.ColorVision != "none" || a.SpeechRate != 1.0 || a.StreamQuality != 50 || a.SnapshotQuality != 80 {
		t.Errorf("default assistant: got %+v", a)
	}
	if a.Scan.Enabled {
		t.Error("scan should be disabled by default")
	}
	if a.Scan.Warmup != 15*time.Second || a.Scan.Period != 10*time.Second {
		t.Errorf("default scan timing: got %+v", a.Scan)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := load(t, "server:\n  listen: \":80\"\n")
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"capture source", "capture:\n  source: webcam\n", "capture.source"},
		{"network url missing", "capture:\n  source: network\n", "network_url"},
		{"network url scheme", "capture:\n  source: network\n  network_url: rtsp://cam/stream\n", "network_url"},
		{"frame rate", "capture:\n  frame_rate: 60\n", "frame_rate"},
		{"output sink", "output:\n  sink: speakers\n", "output.sink"},
		{"color vision", "assistant:\n  color_vision: purple\n", "color_vision"},
		{"speech rate", "assistant:\n  speech_rate: 3\n", "speech_rate"},
		{"quality", "assistant:\n  stream_quality: 150\n", "stream_quality"},
		{"warmup", "assistant:\n  scan:\n    warmup: 5s\n    period: 10s\n", "warmup"},
		{"retry", "assistant:\n  scan:\n    period: 10s\n    retry: 10s\n", "retry"},
		{"journal", "journal:\n  memory_capacity: -1\n", "memory_capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tt.yaml)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := load(t, "server:\n  log_level: loud\noutput:\n  sink: speakers\n")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "output.sink"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()
	if _, err := load(t, "providers:\n  query:\n    name: my-custom\n"); err != nil {
		t.Fatalf("unknown provider name should not fail validation: %v", err)
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterLive("fake", func(e config.ProviderEntry) (live.Provider, error) {
		gotEntry = e
		return &livemock.Provider{}, nil
	})
	reg.RegisterQuery("fake", func(config.ProviderEntry) (query.Provider, error) {
		return query.Func(nil), nil
	})
	reg.RegisterSpeech("log", func(config.ProviderEntry) (speech.Sink, error) {
		return speech.LogSink{}, nil
	})

	if _, err := reg.CreateLive(config.ProviderEntry{Name: "fake", Model: "m1"}); err != nil {
		t.Fatalf("CreateLive: %v", err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received model %q, want m1", gotEntry.Model)
	}
	if _, err := reg.CreateQuery(config.ProviderEntry{Name: "fake"}); err != nil {
		t.Fatalf("CreateQuery: %v", err)
	}
	if _, err := reg.CreateSpeech(config.ProviderEntry{Name: "log"}); err != nil {
		t.Fatalf("CreateSpeech: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	_, err := reg.CreateQuery(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
	if !strings.Contains(err.Error(), "query/\"nope\"") {
		t.Errorf("error should name the kind and provider, got: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSpeech("broken", func(config.ProviderEntry) (speech.Sink, error) { return nil, boom })

	if _, err := reg.CreateSpeech(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Fatalf("expected factory error, got %v", err)
	}
}
