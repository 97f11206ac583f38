package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/visionally/internal/config"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := load(t, sampleYAML)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(t), baseConfig(t))
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Server.LogLevel = config.LogWarn

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogWarn {
		t.Errorf("log level change not detected: %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level should be hot-reloadable, restart required for %v", d.RestartRequired)
	}
}

func TestDiff_ScanEnabled(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Assistant.Scan.Enabled = false

	d := config.Diff(old, new)
	if !d.ScanEnabledChanged || d.NewScanEnabled {
		t.Errorf("scan toggle not detected: %+v", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("scan toggle should be hot-reloadable, restart required for %v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(t), baseConfig(t)
	new.Providers.Live.Model = "another-model"
	new.Assistant.Scan.Period = 11 * time.Second
	new.Server.ListenAddr = ":9191"

	d := config.Diff(old, new)
	for _, want := range []string{"providers", "assistant", "server"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired should contain %q, got %v", want, d.RestartRequired)
		}
	}
	if slices.Contains(d.RestartRequired, "capture") {
		t.Errorf("capture did not change, got %v", d.RestartRequired)
	}
}
