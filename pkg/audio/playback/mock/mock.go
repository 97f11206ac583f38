// Package mock provides a manually clocked [playback.Output] for tests.
//
// The clock only moves when the test calls [Output.Advance]; voices whose
// end position has been reached are completed (their onEnded callbacks run
// on the calling goroutine, outside the output lock).
package mock

import (
	"sync"

	"github.com/MrWong99/visionally/pkg/audio/playback"
)

var _ playback.Output = (*Output)(nil)

// Scheduled records one call to Output.Schedule.
type Scheduled struct {
	At      int64
	Samples int
	voice   *Voice
}

// Stopped reports whether the scheduled voice was stopped.
func (s Scheduled) Stopped() bool { return s.voice.Stopped() }

// Ended reports whether the scheduled voice completed naturally.
func (s Scheduled) Ended() bool { return s.voice.Ended() }

// Output is a fake audio device.
type Output struct {
	// Rate is returned by SampleRate. Zero means 24000.
	Rate int

	mu        sync.Mutex
	now       int64
	scheduled []Scheduled
}

// Voice is the handle returned by Output.Schedule.
type Voice struct {
	mu      sync.Mutex
	end     int64
	onEnded func()
	stopped bool
	ended   bool
}

// Stop implements playback.Voice.
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
}

// Stopped reports whether Stop was called.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// Ended reports whether the voice played to completion.
func (v *Voice) Ended() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ended
}

// SampleRate implements playback.Output.
func (o *Output) SampleRate() int {
	if o.Rate == 0 {
		return 24000
	}
	return o.Rate
}

// Now implements playback.Output.
func (o *Output) Now() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Schedule implements playback.Output.
func (o *Output) Schedule(samples []int16, at int64, onEnded func()) playback.Voice {
	v := &Voice{end: at + int64(len(samples)), onEnded: onEnded}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scheduled = append(o.scheduled, Scheduled{At: at, Samples: len(samples), voice: v})
	return v
}

// Advance moves the clock forward by n samples and completes every voice
// that has fully played.
func (o *Output) Advance(n int64) {
	o.mu.Lock()
	o.now += n
	now := o.now
	var done []func()
	for _, s := range o.scheduled {
		v := s.voice
		v.mu.Lock()
		if !v.stopped && !v.ended && v.end <= now {
			v.ended = true
			if v.onEnded != nil {
				done = append(done, v.onEnded)
			}
		}
		v.mu.Unlock()
	}
	o.mu.Unlock()

	for _, fn := range done {
		fn()
	}
}

// Scheduled returns a copy of every Schedule call in order.
func (o *Output) Scheduled() []Scheduled {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Scheduled, len(o.scheduled))
	copy(out, o.scheduled)
	return out
}
