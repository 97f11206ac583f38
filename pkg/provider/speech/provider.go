// Package speech defines the Sink interface for short spoken status
// announcements, independent of the streamed model audio.
package speech

import (
	"log/slog"
	"strings"
)

// DefaultRate is the neutral speaking rate multiplier.
const DefaultRate = 1.0

// Sink speaks short announcements. Announce is fire-and-forget: it must not
// block on synthesis. Whether a new announcement cuts off or queues behind
// the current one is up to the implementation.
type Sink interface {
	Announce(text string, rate float64)
}

// LogSink writes announcements to a logger instead of speaking them. Useful
// headless and as a fallback when no synthesizer is installed.
type LogSink struct {
	Logger *slog.Logger
}

// Announce implements Sink.
func (s LogSink) Announce(text string, rate float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("announce", "text", text, "rate", rate)
}

// Multi fans an announcement out to every sink in order.
type Multi []Sink

// Announce implements Sink.
func (m Multi) Announce(text string, rate float64) {
	for _, s := range m {
		s.Announce(text, rate)
	}
}
