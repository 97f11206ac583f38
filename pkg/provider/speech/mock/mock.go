// Package mock provides a recording speech.Sink.
package mock

import "sync"

// Announcement is one recorded Announce call.
type Announcement struct {
	Text string
	Rate float64
}

// Sink records every announcement.
type Sink struct {
	mu  sync.Mutex
	all []Announcement

	// Notify, if non-nil, receives each announcement as it is made.
	Notify chan Announcement
}

// Announce implements speech.Sink.
func (s *Sink) Announce(text string, rate float64) {
	s.mu.Lock()
	s.all = append(s.all, Announcement{Text: text, Rate: rate})
	notify := s.Notify
	s.mu.Unlock()
	if notify != nil {
		notify <- Announcement{Text: text, Rate: rate}
	}
}

// Announcements returns a copy of everything announced so far.
func (s *Sink) Announcements() []Announcement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Announcement(nil), s.all...)
}

// Texts returns just the announced texts.
func (s *Sink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.all))
	for i, a := range s.all {
		out[i] = a.Text
	}
	return out
}
