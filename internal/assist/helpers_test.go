package assist_test

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/internal/assist/mock"
	"github.com/MrWong99/visionally/internal/scanlog"
	"github.com/MrWong99/visionally/pkg/audio"
	"github.com/MrWong99/visionally/pkg/audio/playback"
	pbmock "github.com/MrWong99/visionally/pkg/audio/playback/mock"
	"github.com/MrWong99/visionally/pkg/capture"
	capmock "github.com/MrWong99/visionally/pkg/capture/mock"
	"github.com/MrWong99/visionally/pkg/provider/live"
	livemock "github.com/MrWong99/visionally/pkg/provider/live/mock"
	querymock "github.com/MrWong99/visionally/pkg/provider/query/mock"
	speechmock "github.com/MrWong99/visionally/pkg/provider/speech/mock"
)

type harness struct {
	sess    *assist.Session
	mic     *capmock.AudioSource
	cam     *capmock.VideoSource
	pipe    *capture.Pipeline
	live    *livemock.Provider
	stream  *livemock.Stream
	query   *querymock.Provider
	speech  *speechmock.Sink
	out     *pbmock.Output
	sched   *playback.Scheduler
	clock   *mock.Clock
	journal *scanlog.MemStore
}

type harnessOption func(*assist.Config, *capture.Config)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := assist.Config{
		ID:          "test-session",
		ColorVision: assist.ColorVisionProtanopia,
		SpeechRate:  1.5,
		Live:        live.Config{Voice: "Kore"},
		Scan:        assist.ScanConfig{Enabled: true, Warmup: 15 * time.Second, Period: 10 * time.Second},
	}
	capCfg := capture.Config{BlockSize: 4}
	for _, o := range opts {
		o(&cfg, &capCfg)
	}

	h := &harness{
		mic:     capmock.NewAudioSource(16000),
		cam:     &capmock.VideoSource{Image: testImage(8, 6)},
		stream:  livemock.NewStream(),
		query:   &querymock.Provider{Response: "A chair two meters ahead."},
		speech:  &speechmock.Sink{},
		out:     &pbmock.Output{},
		clock:   &mock.Clock{},
		journal: scanlog.NewMemStore(0),
	}
	h.live = &livemock.Provider{Stream: h.stream}
	h.pipe = capture.NewPipeline(h.mic, h.cam, capCfg)
	h.pipe.Frames().Draw(testImage(8, 6))
	h.sched = playback.New(h.out)

	sess, err := assist.New(cfg, assist.Deps{
		Capture:   h.pipe,
		Live:      h.live,
		Query:     h.query,
		QueryName: "gemini",
		Playback:  h.sched,
		Speech:    h.speech,
		Journal:   h.journal,
		Clock:     h.clock,
	})
	if err != nil {
		t.Fatalf("assist.New: %v", err)
	}
	h.sess = sess
	t.Cleanup(func() { _ = sess.Close() })
	return h
}

func withScan(sc assist.ScanConfig) harnessOption {
	return func(c *assist.Config, _ *capture.Config) { c.Scan = sc }
}

func withNudge() harnessOption {
	return func(c *assist.Config, _ *capture.Config) { c.NudgeLiveStream = true }
}

func withFrameRate(fps float64) harnessOption {
	return func(_ *assist.Config, cc *capture.Config) { cc.FrameRate = fps }
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := h.sess.Status(); got != assist.StatusActive {
		t.Fatalf("status after Start = %s, want active", got)
	}
}

func (h *harness) sentOfKind(k live.Kind) []live.Message {
	var out []live.Message
	for _, m := range h.stream.Sent() {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

func testImage(w, hgt int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, hgt))
	for y := range hgt {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), B: 90, A: 255})
		}
	}
	return img
}

// audioPayload encodes n samples as an inbound base64 PCM16LE payload.
func audioPayload(n int) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i % 200)
	}
	return audio.EncodeBytes(audio.PCM16LE(samples))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
