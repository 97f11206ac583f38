// Package espeak implements speech.Sink by running espeak-ng. A new
// announcement cuts off the one still speaking.
package espeak

import (
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/MrWong99/visionally/pkg/provider/speech"
)

var _ speech.Sink = (*Sink)(nil)

const baseWPM = 175

// Option is a functional option for Sink.
type Option func(*Sink)

// WithBinary overrides the executable. Default "espeak-ng".
func WithBinary(path string) Option {
	return func(s *Sink) { s.binary = path }
}

// WithVoice selects an espeak voice such as "en-us".
func WithVoice(voice string) Option {
	return func(s *Sink) { s.voice = voice }
}

// Sink speaks through espeak-ng.
type Sink struct {
	binary string
	voice  string

	mu      sync.Mutex
	current *exec.Cmd
	closed  bool
}

// New returns a Sink.
func New(opts ...Option) *Sink {
	s := &Sink{binary: "espeak-ng"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Available reports whether the binary can be found in PATH.
func (s *Sink) Available() bool {
	_, err := exec.LookPath(s.binary)
	return err == nil
}

// Args builds the espeak argument list for one announcement. rate is a
// multiplier on the default 175 words per minute.
func (s *Sink) Args(text string, rate float64) []string {
	if rate <= 0 {
		rate = speech.DefaultRate
	}
	wpm := max(80, min(450, int(baseWPM*rate)))
	args := []string{"-s", strconv.Itoa(wpm)}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	return append(args, "--", text)
}

// Announce stops any announcement in progress and starts a new one.
func (s *Sink) Announce(text string, rate float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopLocked()

	cmd := exec.Command(s.binary, s.Args(text, rate)...)
	if err := cmd.Start(); err != nil {
		slog.Warn("espeak: start failed", "err", err, "text", text)
		return
	}
	s.current = cmd
	go func() {
		_ = cmd.Wait()
		s.mu.Lock()
		if s.current == cmd {
			s.current = nil
		}
		s.mu.Unlock()
	}()
}

// Speaking reports whether an announcement is still running.
func (s *Sink) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close stops any announcement and ignores later ones. Idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	return nil
}

func (s *Sink) stopLocked() {
	if s.current != nil && s.current.Process != nil {
		_ = s.current.Process.Kill()
	}
	s.current = nil
}
