package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/internal/config"
	"github.com/MrWong99/visionally/pkg/provider/live"
	livemock "github.com/MrWong99/visionally/pkg/provider/live/mock"
	"github.com/MrWong99/visionally/pkg/provider/query"
	querymock "github.com/MrWong99/visionally/pkg/provider/query/mock"
	speechmock "github.com/MrWong99/visionally/pkg/provider/speech/mock"
)

// jpegMagic is enough for content sniffing.
var jpegMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}

func TestOneShot(t *testing.T) {
	t.Parallel()
	p := &querymock.Provider{Response: "  Red shirt with blue stripes.\n"}
	sink := &speechmock.Sink{}
	var out bytes.Buffer

	err := oneShot(context.Background(), &out, oneShotRequest{
		Provider:    p,
		Image:       jpegMagic,
		Kind:        assist.KindColor,
		ColorVision: assist.ColorVisionProtanopia,
		Speech:      sink,
		Rate:        1.2,
	})
	if err != nil {
		t.Fatalf("oneShot: %v", err)
	}
	if got := out.String(); got != "Red shirt with blue stripes.\n" {
		t.Errorf("output = %q", got)
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if calls[0].MIMEType != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", calls[0].MIMEType)
	}
	if calls[0].Prompt != assist.KindColor.Prompt(assist.ColorVisionProtanopia) {
		t.Errorf("prompt = %q", calls[0].Prompt)
	}
	texts := sink.Texts()
	if len(texts) != 2 || texts[0] != "Checking colors" || texts[1] != "Red shirt with blue stripes." {
		t.Errorf("announcements = %q", texts)
	}
}

func TestOneShot_EmptyResult(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	err := oneShot(context.Background(), &out, oneShotRequest{
		Provider: &querymock.Provider{Response: "   "},
		Image:    jpegMagic,
		Kind:     assist.KindText,
	})
	if err != nil {
		t.Fatalf("oneShot: %v", err)
	}
	if strings.TrimSpace(out.String()) != assist.MsgNoResults {
		t.Errorf("output = %q, want %q", out.String(), assist.MsgNoResults)
	}
}

func TestOneShot_Failure(t *testing.T) {
	t.Parallel()
	cause := errors.New("quota exceeded")
	sink := &speechmock.Sink{}
	err := oneShot(context.Background(), &bytes.Buffer{}, oneShotRequest{
		Provider: &querymock.Provider{Err: cause},
		Image:    jpegMagic,
		Kind:     assist.KindObject,
		Speech:   sink,
	})
	var qe *assist.QueryError
	if !errors.As(err, &qe) || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want *assist.QueryError wrapping cause", err)
	}
	texts := sink.Texts()
	if len(texts) == 0 || texts[len(texts)-1] != assist.MsgQueryError {
		t.Errorf("announcements = %q, want trailing %q", texts, assist.MsgQueryError)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Providers.QueryFallback = config.ProviderEntry{Name: "backup"}
	cfg.Providers.Speech = config.ProviderEntry{Name: "missing"}

	reg := config.NewRegistry()
	reg.RegisterLive("gemini-live", func(config.ProviderEntry) (live.Provider, error) { return &livemock.Provider{}, nil })
	reg.RegisterQuery("gemini", func(config.ProviderEntry) (query.Provider, error) { return &querymock.Provider{}, nil })
	reg.RegisterQuery("backup", func(config.ProviderEntry) (query.Provider, error) { return &querymock.Provider{}, nil })

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if ps.Live == nil || ps.Query == nil || ps.QueryFallback == nil {
		t.Errorf("providers not populated: %+v", ps)
	}
	if ps.QueryName != "gemini" || ps.QueryFallbackName != "backup" {
		t.Errorf("names = %q/%q", ps.QueryName, ps.QueryFallbackName)
	}
	if ps.Speech == nil {
		t.Error("unregistered speech provider should fall back to the log sink")
	}
}

func TestBuildProviders_MissingLive(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	_, err := buildProviders(cfg, config.NewRegistry())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	if _, err := loadConfig(missing, false); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("required missing config: err = %v", err)
	}
	cfg, err := loadConfig(missing, true)
	if err != nil {
		t.Fatalf("optional missing config: %v", err)
	}
	if cfg.Providers.Query.Name != "gemini" {
		t.Errorf("defaults not applied: %+v", cfg.Providers.Query)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("assistant:\n  color_vision: tritanopia\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig(path, false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Assistant.ColorVision != "tritanopia" {
		t.Errorf("color_vision = %q", cfg.Assistant.ColorVision)
	}
}

func TestQueryCmd_RequiresImage(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"query", "--kind", "text"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error without --image")
	}
}

func TestQueryCmd_RejectsUnknownKind(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"query", "--kind", "scene", "--image", "x.jpg"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unknown query kind") {
		t.Fatalf("err = %v, want unknown query kind", err)
	}
}
