// Package app wires the VisionAlly subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New builds every subsystem from
// the config, Run starts the session and serves HTTP until the context is
// cancelled or the session ends, and Shutdown tears everything down.
//
// For testing, inject doubles via functional options (WithPipelineFactory,
// WithOutputSink, WithJournal, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/visionally/internal/assist"
	"github.com/MrWong99/visionally/internal/config"
	"github.com/MrWong99/visionally/internal/health"
	"github.com/MrWong99/visionally/internal/observe"
	"github.com/MrWong99/visionally/internal/resilience"
	"github.com/MrWong99/visionally/internal/scanlog"
	"github.com/MrWong99/visionally/internal/scanlog/postgres"
	"github.com/MrWong99/visionally/pkg/audio"
	"github.com/MrWong99/visionally/pkg/audio/output"
	"github.com/MrWong99/visionally/pkg/audio/playback"
	"github.com/MrWong99/visionally/pkg/capture"
	"github.com/MrWong99/visionally/pkg/capture/ffmpeg"
	"github.com/MrWong99/visionally/pkg/capture/netcam"
	"github.com/MrWong99/visionally/pkg/provider/live"
	"github.com/MrWong99/visionally/pkg/provider/query"
	"github.com/MrWong99/visionally/pkg/provider/speech"
)

// defaultVoice is the prebuilt live voice used when none is configured.
const defaultVoice = "Kore"

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. QueryFallback may be nil.
type Providers struct {
	Live live.Provider

	Query     query.Provider
	QueryName string

	QueryFallback     query.Provider
	QueryFallbackName string

	Speech speech.Sink
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics     *observe.Metrics
	telemetry   *observe.Telemetry
	clock       assist.Clock
	newPipeline func() (*capture.Pipeline, error)
	sink        output.Sink
	journal     scanlog.Store
	query       *resilience.QueryFallback
	renderer    *output.Renderer
	scheduler   *playback.Scheduler
	sessions    *SessionManager
	listener    net.Listener

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPipelineFactory replaces the config-driven capture pipeline.
func WithPipelineFactory(fn func() (*capture.Pipeline, error)) Option {
	return func(a *App) { a.newPipeline = fn }
}

// WithOutputSink replaces the ffplay or discard sink.
func WithOutputSink(s output.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithJournal injects a scan journal instead of creating one from config.
func WithJournal(s scanlog.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithMetrics injects the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry injects the telemetry whose registry /metrics serves.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithClock injects the scan loop clock.
func WithClock(c assist.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithListener serves HTTP on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Live == nil || providers.Query == nil {
		return nil, errors.New("app: live and query providers are required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if a.telemetry == nil && a.metrics == nil {
		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "visionally"})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.telemetry = tel
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(sctx)
		})
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 2. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 3. Query path ────────────────────────────────────────────────────
	a.initQuery()

	// ── 4. Capture ───────────────────────────────────────────────────────
	if a.newPipeline == nil {
		capCfg := cfg.Capture
		a.newPipeline = func() (*capture.Pipeline, error) { return buildPipeline(capCfg) }
	}

	// ── 5. Output ────────────────────────────────────────────────────────
	if err := a.initOutput(ctx); err != nil {
		return nil, fmt.Errorf("app: init output: %w", err)
	}

	// ── 6. Sessions ──────────────────────────────────────────────────────
	speak := providers.Speech
	if speak == nil {
		speak = speech.LogSink{}
	}
	a.sessions = NewSessionManager(SessionManagerConfig{
		Session: sessionConfig(cfg),
		Deps: assist.Deps{
			Live:      providers.Live,
			Query:     a.query,
			QueryName: providers.QueryName,
			Playback:  a.scheduler,
			Speech:    speak,
			Journal:   a.journal,
			Clock:     a.clock,
			Metrics:   a.metrics,
		},
		NewPipeline: a.newPipeline,
	})

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initJournal opens the PostgreSQL journal, falls back to an in-memory one,
// or leaves the journal disabled.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	j := a.cfg.Journal
	switch {
	case j.PostgresDSN != "":
		store, err := postgres.NewStore(ctx, j.PostgresDSN)
		if err != nil {
			return err
		}
		a.journal = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("scan journal: postgres")
	case j.MemoryCapacity > 0:
		a.journal = scanlog.NewMemStore(j.MemoryCapacity)
		slog.Info("scan journal: memory", "capacity", j.MemoryCapacity)
	}
	return nil
}

// initQuery puts the query providers behind circuit breakers.
func (a *App) initQuery() {
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  a.cfg.Resilience.MaxFailures,
			ResetTimeout: a.cfg.Resilience.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				if to == resilience.StateOpen {
					a.metrics.RecordProviderError(context.Background(), name, "circuit_open")
				}
			},
		},
	}
	p := a.providers
	a.query = resilience.NewQueryFallback(p.Query, defaultString(p.QueryName, "query"), fbCfg)
	if p.QueryFallback != nil {
		a.query.AddFallback(defaultString(p.QueryFallbackName, "query-fallback"), p.QueryFallback)
	}
}

// initOutput creates the render sink, renderer and playback scheduler.
func (a *App) initOutput(ctx context.Context) error {
	if a.sink == nil {
		switch a.cfg.Output.Sink {
		case config.OutputDiscard:
			a.sink = io.Discard
		default:
			s, err := output.NewFFplaySink(a.cfg.Output.FFplayBinary, audio.OutputSampleRate)
			if err != nil {
				return err
			}
			a.sink = s
			a.closers = append(a.closers, s.Close)
		}
	}
	a.renderer = output.New(a.sink, audio.OutputSampleRate)
	a.scheduler = playback.New(a.renderer, playback.WithObserver(
		func(p playback.Placement) {
			a.metrics.RecordChunk(ctx, audio.SamplesToDuration(p.End-p.Start, audio.OutputSampleRate))
		},
		func(stopped int) {
			a.metrics.RecordInterruption(ctx, stopped)
		},
	))
	a.closers = append([]func() error{a.scheduler.Close, a.renderer.Close}, a.closers...)
	return nil
}

// buildPipeline creates the capture pipeline the config selects.
func buildPipeline(c config.CaptureConfig) (*capture.Pipeline, error) {
	mic := ffmpeg.NewMic(ffmpeg.Config{
		Binary:     c.FFmpegBinary,
		Device:     c.MicrophoneDevice,
		SampleRate: c.SampleRate,
	})

	var video capture.VideoSource
	switch c.Source {
	case config.CaptureLocal:
		video = ffmpeg.NewCamera(ffmpeg.Config{
			Binary: c.FFmpegBinary,
			Device: c.CameraDevice,
		})
	case config.CaptureNetwork:
		video = netcam.New(c.NetworkURL, netcam.WithTimeout(c.NetworkTimeout))
	case config.CaptureAudioOnly:
	default:
		return nil, fmt.Errorf("unknown capture source %q", c.Source)
	}

	return capture.NewPipeline(mic, video, capture.Config{
		BlockSize: c.BlockSize,
		FrameRate: c.FrameRate,
	}), nil
}

// sessionConfig maps the assistant config onto a session template.
func sessionConfig(cfg *config.Config) assist.Config {
	a := cfg.Assistant
	cv := assist.ColorVision(a.ColorVision)
	return assist.Config{
		Live: live.Config{
			Voice: cfg.Providers.Live.OptionString("voice", defaultVoice),
		},
		ColorVision:     cv,
		SpeechRate:      a.SpeechRate,
		StreamQuality:   a.StreamQuality,
		SnapshotQuality: a.SnapshotQuality,
		QueryTimeout:    a.QueryTimeout,
		Scan: assist.ScanConfig{
			Enabled: a.Scan.Enabled,
			Warmup:  a.Scan.Warmup,
			Period:  a.Scan.Period,
			Retry:   a.Scan.Retry,
		},
		NudgeLiveStream: a.Scan.NudgeLiveStream,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Handler returns the HTTP surface: probes, metrics and the control API.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	health.New(
		[]health.Checker{{Name: "session", Check: a.sessions.ReadyCheck}},
		health.WithLabel(func() string { return a.sessions.Status().Label() }),
	).Register(mux)
	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.Handler())
	}
	newControl(a.sessions, a.journal).register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// Run starts the renderer, the HTTP server and one session, and blocks
// until ctx is cancelled or the session ends. A session that fails to start
// or ends Failed is returned as the error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.renderer.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if ln, err := a.listen(); err != nil {
		return err
	} else if ln != nil {
		srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("http listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		// Ending the session ends the run.
		defer cancel()
		sess, err := a.sessions.Start(gctx)
		if err != nil {
			return err
		}
		slog.Info("session status", "session_id", sess.ID(), "status", sess.Status().Label())
		select {
		case <-sess.Done():
		case <-gctx.Done():
			_ = sess.Close()
			<-sess.Done()
		}
		slog.Info("session status", "session_id", sess.ID(), "status", sess.Status().Label())
		return sess.Err()
	})

	return g.Wait()
}

func (a *App) listen() (net.Listener, error) {
	if a.listener != nil {
		return a.listener, nil
	}
	if a.cfg.Server.ListenAddr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return ln, nil
}

// ApplyConfig applies the hot-reloadable parts of a config change.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.ScanEnabledChanged {
		slog.Info("config: autonomous scanning toggled", "enabled", d.NewScanEnabled)
		a.sessions.SetScanning(d.NewScanEnabled)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes take effect after restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes the session and tears down all subsystems. If ctx expires
// before all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.sessions.Stop(); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
