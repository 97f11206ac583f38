// Package assist runs one real-time assistant session.
//
// A [Session] keeps a live audio/video stream open with the inference
// endpoint, schedules streamed audio replies on the playback scheduler, and
// runs an autonomous [ScanLoop] that shares a [TaskGuard] with manual
// one-shot queries so that at most one query is ever in flight.
//
// Status lives in one field guarded by one mutex. Every outbound send
// re-checks it under that mutex immediately before handing the message to
// the stream, so nothing is sent once the session has left Active.
//
// Lifecycle:
//
//	Idle → Connecting → Active → Closing → Closed | Failed
//
// A Session is single-use. Reconnecting requires a new Session.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/visionally/internal/observe"
	"github.com/MrWong99/visionally/internal/scanlog"
	"github.com/MrWong99/visionally/pkg/audio"
	"github.com/MrWong99/visionally/pkg/audio/playback"
	"github.com/MrWong99/visionally/pkg/capture"
	"github.com/MrWong99/visionally/pkg/provider/live"
	"github.com/MrWong99/visionally/pkg/provider/query"
	"github.com/MrWong99/visionally/pkg/provider/speech"
)

// Defaults for [Config].
const (
	DefaultStreamQuality   = 50
	DefaultSnapshotQuality = 80
	DefaultQueryTimeout    = 30 * time.Second
)

const imageMIMEType = "image/jpeg"

// Config is fixed when the session is created.
type Config struct {
	// ID labels logs and journal entries. Optional.
	ID string

	// Live configures the persistent stream. An empty Instructions is
	// replaced by [SystemInstruction] for ColorVision.
	Live live.Config

	// ColorVision is the user's color-vision condition.
	ColorVision ColorVision

	// SpeechRate is the rate at which query results are announced.
	// Default [speech.DefaultRate].
	SpeechRate float64

	// StreamQuality is the JPEG quality of frames sent on the live stream.
	// Default 50.
	StreamQuality int

	// SnapshotQuality is the JPEG quality of one-shot query images.
	// Default 80.
	SnapshotQuality int

	// QueryTimeout bounds each one-shot query. Default 30s.
	QueryTimeout time.Duration

	// Scan configures the autonomous scan loop.
	Scan ScanConfig

	// NudgeLiveStream also injects autonomous scan results into the live
	// stream as a text turn, if the stream supports [live.Nudger].
	NudgeLiveStream bool
}

func (c *Config) applyDefaults() {
	if c.SpeechRate <= 0 {
		c.SpeechRate = speech.DefaultRate
	}
	if c.StreamQuality <= 0 {
		c.StreamQuality = DefaultStreamQuality
	}
	if c.SnapshotQuality <= 0 {
		c.SnapshotQuality = DefaultSnapshotQuality
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.Live.Instructions == "" {
		c.Live.Instructions = SystemInstruction(c.ColorVision)
	}
}

// Deps are the collaborators of a [Session].
type Deps struct {
	// Capture supplies audio blocks and video frames. Required.
	Capture *capture.Pipeline

	// Live dials the persistent stream. Required.
	Live live.Provider

	// Query answers one-shot prompts. Required.
	Query query.Provider

	// QueryName labels query metrics and journal entries.
	QueryName string

	// Playback schedules inbound audio. Required.
	Playback *playback.Scheduler

	// Speech announces status messages and results. Defaults to a
	// [speech.LogSink].
	Speech speech.Sink

	// Journal, if set, records every one-shot result.
	Journal scanlog.Store

	// Clock drives the scan loop timers. Defaults to the system clock.
	Clock Clock

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Session is one assistant session. All exported methods are safe for
// concurrent use.
type Session struct {
	cfg       Config
	capture   *capture.Pipeline
	live      live.Provider
	query     query.Provider
	queryName string
	playback  *playback.Scheduler
	speech    speech.Sink
	journal   scanlog.Store
	metrics   *observe.Metrics
	guard     TaskGuard
	scan      *ScanLoop

	mu     sync.Mutex
	status Status
	stream live.Stream
	err    error
	cancel context.CancelFunc
	done   chan struct{}

	wg sync.WaitGroup
}

// New creates an Idle session.
func New(cfg Config, deps Deps) (*Session, error) {
	var errs []error
	if deps.Capture == nil {
		errs = append(errs, errors.New("capture pipeline is required"))
	}
	if deps.Live == nil {
		errs = append(errs, errors.New("live provider is required"))
	}
	if deps.Query == nil {
		errs = append(errs, errors.New("query provider is required"))
	}
	if deps.Playback == nil {
		errs = append(errs, errors.New("playback scheduler is required"))
	}
	if deps.Speech == nil {
		deps.Speech = speech.LogSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.QueryName == "" {
		deps.QueryName = "query"
	}
	if !cfg.ColorVision.Valid() {
		errs = append(errs, fmt.Errorf("unknown color vision %q", cfg.ColorVision))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("assist: new session: %w", err)
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:       cfg,
		capture:   deps.Capture,
		live:      deps.Live,
		query:     deps.Query,
		queryName: deps.QueryName,
		playback:  deps.Playback,
		speech:    deps.Speech,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		done:      make(chan struct{}),
	}
	s.scan = NewScanLoop(cfg.Scan, &s.guard, ScanHooks{
		Active:   func() bool { return s.Status() == StatusActive },
		Speaking: s.playback.IsSpeaking,
		Scan: func(ctx context.Context) (string, error) {
			return s.runQuery(ctx, "auto", KindScene)
		},
		Deliver: s.deliverScene,
	}, WithClock(deps.Clock), WithScanMetrics(deps.Metrics))
	return s, nil
}

// ID returns the configured session ID.
func (s *Session) ID() string { return s.cfg.ID }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Done is closed once the session reaches Closed or Failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that failed the session, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Busy reports whether a one-shot query is in flight.
func (s *Session) Busy() bool { return s.guard.Busy() }

// SetScanning turns the autonomous scan loop on or off.
func (s *Session) SetScanning(on bool) { s.scan.SetEnabled(on) }

// Scanning reports whether the autonomous scan loop is on.
func (s *Session) Scanning() bool { return s.scan.Enabled() }

// transitionLocked must be called with s.mu held.
func (s *Session) transitionLocked(to Status) {
	from := s.status
	if from == to {
		return
	}
	s.status = to
	s.metrics.RecordTransition(context.Background(), from.String(), to.String())
	slog.Info("assist: session status changed", "session_id", s.cfg.ID, "from", from.String(), "to", to.String())
}

// Start opens the capture source, then dials the live stream, and moves the
// session to Active. A capture failure returns a [*CaptureError] without
// dialling; a dial failure returns a [*TransportError]. Either leaves the
// session Failed with a spoken notice. Cancelling ctx later closes the
// session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusIdle {
		s.mu.Unlock()
		return ErrSessionReused
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.transitionLocked(StatusConnecting)
	s.mu.Unlock()

	if err := s.capture.Open(runCtx); err != nil {
		cerr := &CaptureError{Op: "open", Err: err}
		if s.abortStart(cerr) {
			return ErrNotActive
		}
		s.announce(MsgCameraError)
		return cerr
	}

	stream, err := s.live.Connect(runCtx, s.cfg.Live)
	if err != nil {
		terr := &TransportError{Op: "connect", Err: err}
		s.metrics.RecordProviderError(ctx, "live", "connect")
		if s.abortStart(terr) {
			return ErrNotActive
		}
		s.announce(MsgConnectionLost)
		return terr
	}

	s.mu.Lock()
	if s.status != StatusConnecting {
		// Close was called while dialling.
		s.mu.Unlock()
		_ = stream.Close()
		s.abortStart(nil)
		return ErrNotActive
	}
	s.stream = stream
	s.transitionLocked(StatusActive)
	s.wg.Add(3)
	s.mu.Unlock()

	go s.outbound(runCtx)
	go s.inbound(runCtx, stream)
	go func() {
		defer s.wg.Done()
		<-runCtx.Done()
		s.shutdown(nil)
	}()
	s.scan.Start(runCtx)

	s.announce(MsgReady)
	return nil
}

// abortStart releases the capture source after a failed or cancelled
// Start and settles the final status. It reports whether Close had been
// requested, in which case the session ends Closed and cause is dropped.
func (s *Session) abortStart(cause error) (closing bool) {
	if err := s.capture.Close(); err != nil {
		slog.Debug("assist: capture close after failed start", "err", err)
	}
	s.scan.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	closing = s.status == StatusClosing
	final := StatusFailed
	if closing || cause == nil {
		final, cause = StatusClosed, nil
	}
	s.err = cause
	s.transitionLocked(final)
	s.cancel()
	close(s.done)
	if cause != nil {
		slog.Error("assist: session failed to start", "session_id", s.cfg.ID, "err", cause)
	}
	return closing
}

// Close ends the session and waits for its goroutines to exit. It is
// idempotent; calls after the first return nil once the session is done.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.status {
	case StatusIdle:
		s.transitionLocked(StatusClosed)
		close(s.done)
		s.mu.Unlock()
		s.scan.Stop()
		return nil
	case StatusConnecting:
		s.transitionLocked(StatusClosing)
		cancel := s.cancel
		s.mu.Unlock()
		cancel()
		<-s.done
		return nil
	case StatusActive:
		s.mu.Unlock()
		s.shutdown(nil)
	default:
		s.mu.Unlock()
	}
	<-s.done
	s.wg.Wait()
	return nil
}

// shutdown tears an Active session down. A nil cause ends Closed, anything
// else ends Failed with a spoken notice. Only the first call has an effect.
// It never waits for the session goroutines because they call it.
func (s *Session) shutdown(cause error) {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(StatusClosing)
	stream := s.stream
	s.mu.Unlock()

	s.scan.Stop()
	s.cancel()
	s.playback.Interrupt()
	if err := stream.Close(); err != nil {
		slog.Debug("assist: stream close", "err", err)
	}
	if err := s.capture.Close(); err != nil {
		slog.Debug("assist: capture close", "err", err)
	}

	s.mu.Lock()
	final := StatusClosed
	if cause != nil {
		final = StatusFailed
		s.err = cause
	}
	s.transitionLocked(final)
	close(s.done)
	s.mu.Unlock()

	if cause == nil {
		return
	}
	slog.Error("assist: session failed", "session_id", s.cfg.ID, "err", cause)
	var cerr *CaptureError
	if errors.As(cause, &cerr) {
		s.announce(MsgCameraError)
	} else {
		s.announce(MsgConnectionLost)
	}
}

// ── Outbound ─────────────────────────────────────────────────────────────────

// outbound forwards audio blocks as they arrive and video frames on a
// ticker until ctx is cancelled or the capture source fails.
func (s *Session) outbound(ctx context.Context) {
	defer s.wg.Done()

	audioErrs := s.capture.StartAudioCapture(ctx, func(block []float32, rate int) {
		s.send(ctx, live.Message{
			Kind:     live.KindAudio,
			Payload:  audio.EncodeOutbound(block, rate),
			MIMEType: audio.InputMIMEType,
		})
	})

	var frames <-chan time.Time
	if s.capture.HasVideo() {
		ticker := time.NewTicker(s.capture.FrameInterval())
		defer ticker.Stop()
		frames = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-audioErrs:
			if !ok {
				audioErrs = nil
				continue
			}
			s.shutdown(&CaptureError{Op: "audio", Err: err})
			return
		case <-frames:
			if err := s.forwardFrame(ctx); err != nil {
				s.shutdown(&CaptureError{Op: "video", Err: err})
				return
			}
		}
	}
}

// forwardFrame samples one frame and sends it. It returns an error only for
// a fatal source failure.
func (s *Session) forwardFrame(ctx context.Context) error {
	img, err := s.capture.SampleVideoFrame(ctx)
	switch {
	case errors.Is(err, capture.ErrNoFrame), errors.Is(err, capture.ErrFrameUnavailable):
		slog.Debug("assist: no frame to send", "err", err)
		return nil
	case err != nil:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	jpg, err := capture.EncodeJPEG(img, s.cfg.StreamQuality)
	if err != nil {
		slog.Warn("assist: encode frame", "err", err)
		return nil
	}
	s.send(ctx, live.Message{
		Kind:     live.KindImage,
		Payload:  audio.EncodeBytes(jpg),
		MIMEType: imageMIMEType,
	})
	return nil
}

// send hands msg to the stream if, and only if, the session is Active at
// that moment.
func (s *Session) send(ctx context.Context, msg live.Message) {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		s.metrics.RecordOutbound(ctx, msg.Kind.String(), "dropped")
		return
	}
	err := s.stream.Send(msg)
	s.mu.Unlock()

	status := "sent"
	switch {
	case errors.Is(err, live.ErrQueueFull):
		status = "dropped"
		slog.Warn("assist: live stream queue full, dropping message", "kind", msg.Kind.String())
	case err != nil:
		status = "error"
		slog.Debug("assist: send failed", "kind", msg.Kind.String(), "err", err)
	}
	s.metrics.RecordOutbound(ctx, msg.Kind.String(), status)
}

// ── Inbound ──────────────────────────────────────────────────────────────────

// inbound consumes stream events until the stream ends. A stream that ends
// with an error fails the session.
func (s *Session) inbound(ctx context.Context, stream live.Stream) {
	defer s.wg.Done()

	for ev := range stream.Events() {
		s.handleEvent(ctx, ev)
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		s.metrics.RecordProviderError(ctx, "live", "stream")
		s.shutdown(&TransportError{Op: "stream", Err: err})
		return
	}
	s.shutdown(nil)
}

func (s *Session) handleEvent(ctx context.Context, ev live.Event) {
	if ev.Interrupted {
		s.playback.Interrupt()
		slog.Debug("assist: playback interrupted by endpoint")
	}
	if len(ev.Audio) > 0 {
		samples, err := audio.DecodeInbound(ev.Audio)
		if err != nil {
			s.metrics.DecodeErrors.Add(ctx, 1)
			slog.Warn("assist: dropping malformed audio", "err", err)
		} else if s.Status() == StatusActive {
			if _, err := s.playback.Enqueue(playback.Chunk{Samples: samples, SampleRate: audio.OutputSampleRate}); err != nil {
				slog.Debug("assist: enqueue audio", "err", err)
			}
		}
	}
	if ev.Text != "" {
		slog.Debug("assist: model text", "text", ev.Text)
	}
}

// ── One-shot queries ─────────────────────────────────────────────────────────

// Query runs a manual one-shot query about the current frame and announces
// the result. It returns [ErrBusy] while another query is in flight and
// [ErrNotActive] if the session is not Active, including when it stopped
// being Active before the answer arrived. A provider failure is announced
// and returned as a [*QueryError].
func (s *Session) Query(ctx context.Context, kind Kind) (string, error) {
	if kind.Label() == "" {
		return "", fmt.Errorf("assist: query: unsupported kind %q", kind)
	}
	if s.Status() != StatusActive {
		return "", ErrNotActive
	}
	release, ok := s.guard.TryAcquire("manual")
	if !ok {
		s.metrics.RecordQuery(ctx, s.queryName, string(kind), "manual", "busy", 0)
		return "", ErrBusy
	}
	defer release()

	s.announce(kind.Label())
	text, err := s.runQuery(ctx, "manual", kind)
	if s.Status() != StatusActive {
		return "", ErrNotActive
	}
	if err != nil {
		s.announce(MsgQueryError)
		return "", err
	}
	if text == "" {
		text = MsgNoResults
	}
	s.say(text)
	return text, nil
}

// runQuery encodes the current frame and asks the query provider. The
// caller must hold the guard.
func (s *Session) runQuery(ctx context.Context, trigger string, kind Kind) (string, error) {
	img, err := s.capture.Frames().JPEG(s.cfg.SnapshotQuality)
	if err != nil {
		return "", &QueryError{Kind: kind, Trigger: trigger, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()
	ctx, span := observe.StartSpan(ctx, "assist.query", trace.WithAttributes(
		attribute.String("query.kind", string(kind)),
		attribute.String("query.trigger", trigger),
		attribute.String("query.provider", s.queryName),
	))

	start := time.Now()
	text, err := s.query.Request(ctx, img, imageMIMEType, kind.Prompt(s.cfg.ColorVision))
	latency := time.Since(start)
	observe.EndSpan(span, err)
	text = strings.TrimSpace(text)

	entry := scanlog.Entry{
		SessionID: s.cfg.ID,
		Trigger:   trigger,
		Kind:      string(kind),
		Provider:  s.queryName,
		At:        start,
		Latency:   latency,
		Outcome:   scanlog.OutcomeOK,
		Text:      text,
	}
	switch {
	case err != nil:
		entry.Outcome, entry.Error, entry.Text = scanlog.OutcomeError, err.Error(), ""
	case text == "":
		entry.Outcome = scanlog.OutcomeEmpty
	}
	s.metrics.RecordQuery(ctx, s.queryName, string(kind), trigger, entry.Outcome, latency)
	s.record(ctx, entry)

	if err != nil {
		s.metrics.RecordProviderError(ctx, s.queryName, "query")
		observe.Logger(ctx).Warn("assist: query failed",
			"kind", string(kind), "trigger", trigger, "latency", latency, "err", err)
		return "", &QueryError{Kind: kind, Trigger: trigger, Err: err}
	}
	observe.Logger(ctx).Debug("assist: query answered",
		"kind", string(kind), "trigger", trigger, "latency", latency, "chars", len(text))
	return text, nil
}

func (s *Session) record(ctx context.Context, e scanlog.Entry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(context.WithoutCancel(ctx), e); err != nil {
		slog.Warn("assist: journal write failed", "err", err)
	}
}

// deliverScene announces an autonomous result and, when configured,
// forwards it to the live stream.
func (s *Session) deliverScene(text string) {
	s.mu.Lock()
	active := s.status == StatusActive
	stream := s.stream
	s.mu.Unlock()
	if !active {
		return
	}
	s.say(text)

	if !s.cfg.NudgeLiveStream {
		return
	}
	n, ok := stream.(live.Nudger)
	if !ok {
		slog.Debug("assist: live stream cannot take text turns, skipping nudge")
		return
	}
	// Nudge may block on the network, so it runs outside s.mu. A stream
	// closed in the meantime rejects it with live.ErrClosed.
	if err := n.Nudge(sceneNudge(text)); err != nil {
		slog.Debug("assist: nudge failed", "err", err)
	}
}

// announce speaks a fixed status message at the default rate.
func (s *Session) announce(text string) {
	s.speech.Announce(text, speech.DefaultRate)
}

// say speaks a query result at the configured rate.
func (s *Session) say(text string) {
	s.speech.Announce(text, s.cfg.SpeechRate)
}
