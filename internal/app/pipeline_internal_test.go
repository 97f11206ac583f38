package app

import (
	"testing"
	"time"

	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/internal/config"
)

func TestBuildPipeline(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		source    config.CaptureSource
		wantVideo bool
		wantErr   bool
	}{
		{name: "local", source: config.CaptureLocal, wantVideo: true},
		{name: "network", source: config.CaptureNetwork, wantVideo: true},
		{name: "audio only", source: config.CaptureAudioOnly},
		{name: "unknown", source: "webcam", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			cfg.Capture.Source = tt.source
			cfg.Capture.NetworkURL = "http://cam.local/shot.jpg"
			cfg.Capture.FrameRate = 2

			p, err := buildPipeline(cfg.Capture)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildPipeline: %v", err)
			}
			if p.HasVideo() != tt.wantVideo {
				t.Errorf("HasVideo = %v, want %v", p.HasVideo(), tt.wantVideo)
			}
			if got := p.FrameInterval(); got != 500*time.Millisecond {
				t.Errorf("FrameInterval = %s, want 500ms", got)
			}
		})
	}
}

func TestSessionConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Assistant.ColorVision = "tritanopia"
	cfg.Assistant.SpeechRate = 1.5
	cfg.Assistant.Scan.Enabled = true
	cfg.Assistant.Scan.NudgeLiveStream = true

	sc := sessionConfig(cfg)
	if sc.Live.Voice != defaultVoice {
		t.Errorf("voice = %q, want %q", sc.Live.Voice, defaultVoice)
	}
	if sc.ColorVision != assist.ColorVisionTritanopia || sc.SpeechRate != 1.5 {
		t.Errorf("assistant fields not mapped: %+v", sc)
	}
	if !sc.Scan.Enabled || sc.Scan.Warmup != assist.DefaultScanWarmup || sc.Scan.Period != assist.DefaultScanPeriod {
		t.Errorf("scan = %+v", sc.Scan)
	}
	if !sc.NudgeLiveStream {
		t.Error("nudge not mapped")
	}
	if sc.StreamQuality != 50 || sc.SnapshotQuality != 80 {
		t.Errorf("qualities = %d/%d, want 50/80", sc.StreamQuality, sc.SnapshotQuality)
	}
}
