package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/visionally/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
assistant:
  scan:
    enabled: false
`

const watcherUpdatedYAML = `
server:
  log_level: debug
assistant:
  scan:
    enabled: true
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

// writeFile writes content and pushes the mtime forward so every write is
// observable regardless of filesystem timestamp granularity.
func writeFile(t *testing.T, path, content string, gen int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
	ts := time.Now().Add(time.Duration(gen) * time.Second)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

type change struct {
	old, new *config.Config
	diff     config.ConfigDiff
}

func newWatcher(t *testing.T, opts ...config.WatcherOption) (*config.Watcher, string, chan change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML, 0)

	ch := make(chan change, 4)
	w, err := config.NewWatcher(path, func(old, new *config.Config, d config.ConfigDiff) {
		ch <- change{old, new, d}
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, ch
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	w, _, _ := newWatcher(t)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() returned nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML, 0)

	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_CheckDetectsChange(t *testing.T) {
	t.Parallel()
	w, path, ch := newWatcher(t)

	writeFile(t, path, watcherUpdatedYAML, 1)
	if !w.Check() {
		t.Fatal("Check should adopt the updated config")
	}

	select {
	case c := <-ch:
		if c.old.Server.LogLevel != config.LogInfo || c.new.Server.LogLevel != config.LogDebug {
			t.Errorf("callback configs: old %q new %q", c.old.Server.LogLevel, c.new.Server.LogLevel)
		}
		if !c.diff.LogLevelChanged || !c.diff.ScanEnabledChanged || !c.diff.NewScanEnabled {
			t.Errorf("diff: %+v", c.diff)
		}
	default:
		t.Fatal("onChange was not called")
	}
	if w.Current().Server.LogLevel != config.LogDebug {
		t.Errorf("Current not updated: %q", w.Current().Server.LogLevel)
	}
}

func TestWatcher_InvalidKeepsPrevious(t *testing.T) {
	t.Parallel()
	w, path, ch := newWatcher(t)

	writeFile(t, path, watcherInvalidYAML, 1)
	if w.Check() {
		t.Fatal("Check should reject an invalid config")
	}
	if len(ch) != 0 {
		t.Error("onChange must not fire for an invalid config")
	}
	if w.Current().Server.LogLevel != config.LogInfo {
		t.Errorf("previous config should remain, got %q", w.Current().Server.LogLevel)
	}
}

func TestWatcher_TouchWithoutChange(t *testing.T) {
	t.Parallel()
	w, path, ch := newWatcher(t)

	writeFile(t, path, watcherValidYAML, 1)
	if w.Check() {
		t.Fatal("identical content should not count as a change")
	}
	if len(ch) != 0 {
		t.Error("onChange must not fire when content is unchanged")
	}
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	t.Parallel()
	w, path, ch := newWatcher(t, config.WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	writeFile(t, path, watcherUpdatedYAML, 1)
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
