package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/visionally/internal/app"
	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/internal/config"
	"github.com/MrWong99/visionally/internal/observe"
	"github.com/MrWong99/visionally/internal/scanlog"
	"github.com/MrWong99/visionally/pkg/capture"
	capmock "github.com/MrWong99/visionally/pkg/capture/mock"
	"github.com/MrWong99/visionally/pkg/provider/live"
	livemock "github.com/MrWong99/visionally/pkg/provider/live/mock"
	querymock "github.com/MrWong99/visionally/pkg/provider/query/mock"
	speechmock "github.com/MrWong99/visionally/pkg/provider/speech/mock"
)

type fixture struct {
	app     *app.App
	cfg     *config.Config
	mic     *capmock.AudioSource
	stream  *livemock.Stream
	live    *livemock.Provider
	query   *querymock.Provider
	speech  *speechmock.Sink
	journal *scanlog.MemStore
	base    string
}

func testConfig() *config.Config {
	cfg := &config.Config{Output: config.OutputConfig{Sink: config.OutputDiscard}}
	config.ApplyDefaults(cfg)
	cfg.Assistant.ColorVision = string(assist.ColorVisionDeuteranopia)
	cfg.Providers.Live.Options = map[string]any{"voice": "Puck"}
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cfg:     testConfig(),
		mic:     capmock.NewAudioSource(16000),
		stream:  livemock.NewStream(),
		query:   &querymock.Provider{Response: "Exit sign above the door."},
		speech:  &speechmock.Sink{},
		journal: scanlog.NewMemStore(8),
	}
	f.live = &livemock.Provider{Stream: f.stream}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f.base = "http://" + ln.Addr().String()

	pipelines := func() (*capture.Pipeline, error) {
		cam := &capmock.VideoSource{Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}
		p := capture.NewPipeline(f.mic, cam, capture.Config{BlockSize: 4})
		p.Frames().Draw(image.NewRGBA(image.Rect(0, 0, 4, 4)))
		return p, nil
	}

	a, err := app.New(context.Background(), f.cfg, &app.Providers{
		Live:      f.live,
		Query:     f.query,
		QueryName: "gemini",
		Speech:    f.speech,
	},
		app.WithPipelineFactory(pipelines),
		app.WithOutputSink(io.Discard),
		app.WithJournal(f.journal),
		app.WithListener(ln),
		app.WithMetrics(observe.DefaultMetrics()),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	f.app = a
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return f
}

// run starts App.Run and waits until the session is Active.
func (f *fixture) run(t *testing.T) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- f.app.Run(ctx) }()
	waitFor(t, "session active", f.app.Sessions().IsActive)
	t.Cleanup(cancelFn)
	return cancelFn, ch
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

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func do(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(), &app.Providers{}); err == nil {
		t.Fatal("expected error without providers")
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

func TestRun_StartsSessionAndStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cancel, done := f.run(t)

	if got := f.live.ConnectCalls[0].Cfg.Voice; got != "Puck" {
		t.Errorf("live voice = %q, want Puck", got)
	}
	if got := f.live.ConnectCalls[0].Cfg.Instructions; !strings.Contains(got, "Deuteranopia") {
		t.Errorf("instructions should name the color vision condition, got %q", got)
	}
	waitFor(t, "ready announcement", func() bool {
		texts := f.speech.Texts()
		return len(texts) > 0 && texts[0] == assist.MsgReady
	})

	cancel()
	if err := waitErr(t, done); err != nil {
		t.Errorf("Run after cancel = %v, want nil", err)
	}
	if got := f.app.Sessions().Status(); got != assist.StatusClosed {
		t.Errorf("status = %s, want closed", got)
	}
	if !f.stream.Closed() {
		t.Error("live stream should be closed")
	}
}

func TestRun_TransportFailureEndsRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, done := f.run(t)

	f.stream.Fail(errors.New("socket reset"))
	err := waitErr(t, done)
	var te *assist.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Run error = %v, want *assist.TransportError", err)
	}
	if got := f.app.Sessions().Status(); got != assist.StatusFailed {
		t.Errorf("status = %s, want failed", got)
	}
}

func TestRun_CaptureFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mic.OpenErr = errors.New("no microphone")

	err := f.app.Run(context.Background())
	var ce *assist.CaptureError
	if !errors.As(err, &ce) {
		t.Fatalf("Run error = %v, want *assist.CaptureError", err)
	}
	if f.live.Calls() != 0 {
		t.Error("must not dial after a capture failure")
	}
}

func TestSessionManager_RefusesSecondSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.run(t)

	if _, err := f.app.Sessions().Start(context.Background()); !errors.Is(err, app.ErrSessionActive) {
		t.Fatalf("second Start = %v, want ErrSessionActive", err)
	}
}

func TestApplyConfig_TogglesScanning(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.run(t)

	f.app.ApplyConfig(config.ConfigDiff{ScanEnabledChanged: true, NewScanEnabled: true})
	if !f.app.Sessions().Current().Scanning() {
		t.Error("scanning should be enabled on the running session")
	}
	f.app.ApplyConfig(config.ConfigDiff{ScanEnabledChanged: true, NewScanEnabled: false})
	if f.app.Sessions().Scanning() {
		t.Error("scanning should be disabled")
	}
}

// ─── HTTP surface ────────────────────────────────────────────────────────────

func TestHTTP_Probes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.run(t)

	var body struct {
		Status  string            `json:"status"`
		Session string            `json:"session"`
		Checks  map[string]string `json:"checks"`
	}
	if code := do(t, "GET", f.base+"/readyz", "", &body); code != http.StatusOK {
		t.Fatalf("/readyz = %d, want 200", code)
	}
	if body.Session != "Active" || body.Checks["session"] != "ok" {
		t.Errorf("/readyz body = %+v", body)
	}
	if code := do(t, "GET", f.base+"/healthz", "", nil); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
}

func TestHTTP_QueryAndJournal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.run(t)

	var res struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}
	if code := do(t, "POST", f.base+"/query/text", "", &res); code != http.StatusOK {
		t.Fatalf("POST /query/text = %d, want 200", code)
	}
	if res.Text != "Exit sign above the door." {
		t.Errorf("text = %q", res.Text)
	}
	waitFor(t, "result spoken", func() bool {
		texts := f.speech.Texts()
		return len(texts) > 0 && texts[len(texts)-1] == "Exit sign above the door."
	})

	var entries []scanlog.Entry
	if code := do(t, "GET", f.base+"/journal?limit=5", "", &entries); code != http.StatusOK {
		t.Fatalf("GET /journal = %d", code)
	}
	if len(entries) != 1 || entries[0].Kind != "text" || entries[0].Trigger != "manual" {
		t.Errorf("journal = %+v", entries)
	}
}

func TestHTTP_QueryErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.run(t)

	if code := do(t, "POST", f.base+"/query/scene", "", nil); code != http.StatusBadRequest {
		t.Errorf("unsupported kind = %d, want 400", code)
	}

	f.query.SetResponse("", errors.New("quota exceeded"))
	if code := do(t, "POST", f.base+"/query/object", "", nil); code != http.StatusBadGateway {
		t.Errorf("provider failure = %d, want 502", code)
	}
}

func TestHTTP_ScanToggle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.run(t)

	var st struct {
		Status   string `json:"status"`
		Label    string `json:"label"`
		Scanning bool   `json:"scanning"`
	}
	if code := do(t, "PUT", f.base+"/scan", `{"enabled": true}`, &st); code != http.StatusOK {
		t.Fatalf("PUT /scan = %d", code)
	}
	if !st.Scanning || st.Status != "active" || st.Label != "Active" {
		t.Errorf("status after toggle = %+v", st)
	}
	if code := do(t, "PUT", f.base+"/scan", `{}`, nil); code != http.StatusBadRequest {
		t.Errorf("missing enabled = %d, want 400", code)
	}
}

var _ live.Provider = (*livemock.Provider)(nil)
