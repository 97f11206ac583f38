// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It holds a bidirectional WebSocket connection to the BidiGenerateContent
// endpoint. Outbound media is queued and written by a single goroutine in
// enqueue order; inbound serverContent is translated into live.Event values.
// Streams also implement live.Nudger by sending a clientContent text turn.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MrWong99/visionally/pkg/provider/live"
	"github.com/coder/websocket"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Stream   = (*stream)(nil)
	_ live.Nudger   = (*stream)(nil)
)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-12-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	defaultVoice   = "Kore"
	outputMIMEType = "audio/pcm;rate=24000"

	defaultQueueSize  = 64
	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second
	readLimit         = 16 << 20
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the default model used for streams.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Used in tests to point at a
// local server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithQueueSize sets the outbound queue capacity. Default 64.
func WithQueueSize(n int) Option {
	return func(p *Provider) { p.queueSize = n }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for the Gemini Live API.
type Provider struct {
	apiKey    string
	model     string
	baseURL   string
	queueSize int
}

// New creates a Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:    apiKey,
		model:     defaultModel,
		baseURL:   defaultBaseURL,
		queueSize: defaultQueueSize,
	}
	for _, o := range opts {
		o(p)
	}
	if p.queueSize <= 0 {
		p.queueSize = defaultQueueSize
	}
	return p
}

// Connect dials the endpoint, sends the setup message and waits for
// setupComplete.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Stream, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, url.QueryEscape(p.apiKey),
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	if err := writeJSON(ctx, conn, newSetup(model, cfg)); err != nil {
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}
	if err := awaitSetupComplete(ctx, conn); err != nil {
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	s := &stream{
		conn:   conn,
		out:    make(chan live.Message, p.queueSize),
		events: make(chan live.Event, 64),
		ctx:    sessCtx,
		cancel: sessCancel,
	}
	s.wg.Add(3)
	go s.receiveLoop()
	go s.sendLoop()
	go s.keepaliveLoop()
	return s, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

type clientContentMessage struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []contentTurn `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type contentTurn struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

func newSetup(model string, cfg live.Config) setupMessage {
	voice := cfg.Voice
	if voice == "" {
		voice = defaultVoice
	}
	msg := setupMessage{
		Setup: setupConfig{
			Model: "models/" + model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
					},
				},
			},
		},
	}
	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}
	return msg
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// awaitSetupComplete reads frames until the server acknowledges the setup.
func awaitSetupComplete(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != nil {
			return msg.Error.err()
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func (ge *geminiError) err() error {
	text := ge.Message
	if text == "" {
		text = "unknown error"
	}
	return fmt.Errorf("gemini: server error %d: %s", ge.Code, text)
}

// ── stream ─────────────────────────────────────────────────────────────────────

type stream struct {
	conn   *websocket.Conn
	out    chan live.Message
	events chan live.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// receiveLoop owns events and closes it on exit.
func (s *stream) receiveLoop() {
	defer s.wg.Done()
	defer close(s.events)
	defer s.cancel()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				slog.Debug("gemini: server closed the stream")
				return
			}
			s.fail(fmt.Errorf("gemini: read: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("gemini: skipping malformed frame", "err", err)
			continue
		}
		if msg.Error != nil {
			s.fail(msg.Error.err())
			return
		}
		if msg.GoAway != nil {
			slog.Warn("gemini: server announced disconnect", "time_left", msg.GoAway.TimeLeft)
		}
		if msg.ServerContent != nil {
			if !s.emit(msg.ServerContent) {
				return
			}
		}
	}
}

// emit translates one serverContent frame. It returns false if the stream
// shut down while delivering.
func (s *stream) emit(sc *serverContent) bool {
	var evs []live.Event
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			switch {
			case p.InlineData != nil:
				mime := p.InlineData.MIMEType
				if mime == "" {
					mime = outputMIMEType
				}
				evs = append(evs, live.Event{Audio: []byte(p.InlineData.Data), MIMEType: mime})
			case p.Text != "":
				evs = append(evs, live.Event{Text: p.Text})
			}
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		evs = append(evs, live.Event{Text: sc.OutputTranscription.Text})
	}
	if sc.Interrupted || sc.TurnComplete {
		evs = append(evs, live.Event{Interrupted: sc.Interrupted, TurnComplete: sc.TurnComplete})
	}
	for _, ev := range evs {
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return false
		}
	}
	return true
}

// sendLoop writes queued media in order. Anything left in the queue when the
// stream stops is dropped.
func (s *stream) sendLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-s.out:
			msg := realtimeInputMessage{
				RealtimeInput: realtimeInput{
					MediaChunks: []inlineData{{MIMEType: m.MIMEType, Data: string(m.Payload)}},
				},
			}
			if err := writeJSON(s.ctx, s.conn, msg); err != nil {
				if s.ctx.Err() == nil {
					s.fail(fmt.Errorf("gemini: write %s: %w", m.Kind, err))
				}
				return
			}
		}
	}
}

// keepaliveLoop pings the connection so idle periods do not drop it.
func (s *stream) keepaliveLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.errVal == nil && !s.closed {
		s.errVal = err
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ── live.Stream methods ────────────────────────────────────────────────────────

// Send enqueues one media chunk.
func (s *stream) Send(msg live.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.errVal != nil || s.ctx.Err() != nil {
		return live.ErrClosed
	}
	select {
	case s.out <- msg:
		return nil
	default:
		return live.ErrQueueFull
	}
}

// Events implements live.Stream.
func (s *stream) Events() <-chan live.Event { return s.events }

// Err implements live.Stream.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Nudge sends a user text turn and asks the model to respond.
func (s *stream) Nudge(text string) error {
	if s.isClosed() || s.ctx.Err() != nil {
		return live.ErrClosed
	}
	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns:        []contentTurn{{Role: "user", Parts: []part{{Text: text}}}},
			TurnComplete: true,
		},
	}
	if err := writeJSON(s.ctx, s.conn, msg); err != nil {
		return fmt.Errorf("gemini: nudge: %w", err)
	}
	return nil
}

// Close terminates the stream. Idempotent.
func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel() // unblocks all loops
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	s.wg.Wait()
	return nil
}
