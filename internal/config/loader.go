package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/visionally/internal/assist"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live":   {"gemini-live"},
	"query":  {"gemini", "openai"},
	"speech": {"espeak", "log"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.Live.Name == "" {
		cfg.Providers.Live.Name = "gemini-live"
	}
	if cfg.Providers.Query.Name == "" {
		cfg.Providers.Query.Name = "gemini"
	}
	if cfg.Providers.Speech.Name == "" {
		cfg.Providers.Speech.Name = "espeak"
	}
	// The one-shot Gemini call shares the live key unless given its own.
	if cfg.Providers.Query.APIKey == "" && cfg.Providers.Query.Name == "gemini" {
		cfg.Providers.Query.APIKey = cfg.Providers.Live.APIKey
	}

	c := &cfg.Capture
	if c.Source == "" {
		c.Source = CaptureLocal
	}
	if c.FFmpegBinary == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.BlockSize == 0 {
		c.BlockSize = 4096
	}
	if c.FrameRate == 0 {
		c.FrameRate = 1
	}
	if c.NetworkTimeout == 0 {
		c.NetworkTimeout = 5 * time.Second
	}

	if cfg.Output.Sink == "" {
		cfg.Output.Sink = OutputFFplay
	}
	if cfg.Output.FFplayBinary == "" {
		cfg.Output.FFplayBinary = "ffplay"
	}

	a := &cfg.Assistant
	if a.ColorVision == "" {
		a.ColorVision = string(assist.ColorVisionNone)
	}
	if a.SpeechRate == 0 {
		a.SpeechRate = 1.0
	}
	if a.StreamQuality == 0 {
		a.StreamQuality = assist.DefaultStreamQuality
	}
	if a.SnapshotQuality == 0 {
		a.SnapshotQuality = assist.DefaultSnapshotQuality
	}
	if a.QueryTimeout == 0 {
		a.QueryTimeout = assist.DefaultQueryTimeout
	}
	if a.Scan.Period == 0 {
		a.Scan.Period = assist.DefaultScanPeriod
	}
	if a.Scan.Warmup == 0 {
		a.Scan.Warmup = assist.DefaultScanWarmup
	}
	if a.Scan.Retry == 0 {
		a.Scan.Retry = a.Scan.Period / 4
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = 5
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = 30 * time.Second
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("query", cfg.Providers.Query.Name)
	validateProviderName("query", cfg.Providers.QueryFallback.Name)
	validateProviderName("speech", cfg.Providers.Speech.Name)

	if cfg.Providers.Live.APIKey == "" && cfg.Providers.Live.BaseURL == "" {
		slog.Warn("providers.live.api_key is empty; the live stream will be rejected by the endpoint")
	}
	if fb := cfg.Providers.QueryFallback; fb.Name != "" && fb.Name == cfg.Providers.Query.Name && fb.Model == cfg.Providers.Query.Model {
		slog.Warn("providers.query_fallback is identical to providers.query; it will fail the same way")
	}

	c := cfg.Capture
	if c.Source != "" && !c.Source.IsValid() {
		errs = append(errs, fmt.Errorf("capture.source %q is invalid; valid values: local, network, audio-only", c.Source))
	}
	if c.Source == CaptureNetwork {
		if c.NetworkURL == "" {
			errs = append(errs, errors.New("capture.network_url is required when capture.source is network"))
		} else if u, err := url.Parse(c.NetworkURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("capture.network_url %q must be an http or https URL", c.NetworkURL))
		}
	}
	if c.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive", c.SampleRate))
	}
	if c.BlockSize < 0 {
		errs = append(errs, fmt.Errorf("capture.block_size %d must be positive", c.BlockSize))
	}
	if c.FrameRate < 0 || c.FrameRate > 30 {
		errs = append(errs, fmt.Errorf("capture.frame_rate %.2f is out of range (0, 30]", c.FrameRate))
	} else if c.FrameRate > 2 {
		slog.Warn("capture.frame_rate above 2 fps increases endpoint load with little benefit", "frame_rate", c.FrameRate)
	}

	if cfg.Output.Sink != "" && !cfg.Output.Sink.IsValid() {
		errs = append(errs, fmt.Errorf("output.sink %q is invalid; valid values: ffplay, discard", cfg.Output.Sink))
	}

	a := cfg.Assistant
	if !assist.ColorVision(a.ColorVision).Valid() {
		errs = append(errs, fmt.Errorf("assistant.color_vision %q is invalid", a.ColorVision))
	}
	if a.SpeechRate != 0 && (a.SpeechRate < 0.5 || a.SpeechRate > 2.0) {
		errs = append(errs, fmt.Errorf("assistant.speech_rate %.2f is out of range [0.5, 2.0]", a.SpeechRate))
	}
	for name, q := range map[string]int{"stream_quality": a.StreamQuality, "snapshot_quality": a.SnapshotQuality} {
		if q < 0 || q > 100 {
			errs = append(errs, fmt.Errorf("assistant.%s %d is out of range [1, 100]", name, q))
		}
	}
	if a.QueryTimeout < 0 {
		errs = append(errs, fmt.Errorf("assistant.query_timeout %s must be positive", a.QueryTimeout))
	}
	s := a.Scan
	if s.Period < 0 || s.Warmup < 0 || s.Retry < 0 {
		errs = append(errs, errors.New("assistant.scan durations must be positive"))
	}
	if s.Period > 0 && s.Warmup > 0 && s.Warmup <= s.Period {
		errs = append(errs, fmt.Errorf("assistant.scan.warmup %s must be longer than assistant.scan.period %s", s.Warmup, s.Period))
	}
	if s.Period > 0 && s.Retry >= s.Period {
		errs = append(errs, fmt.Errorf("assistant.scan.retry %s must be shorter than assistant.scan.period %s", s.Retry, s.Period))
	}

	if cfg.Journal.MemoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("journal.memory_capacity %d must not be negative", cfg.Journal.MemoryCapacity))
	}
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a custom registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
