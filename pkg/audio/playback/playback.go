// Package playback schedules decoded audio chunks back-to-back on an output
// clock so that successive chunks play with no gap and no overlap.
//
// The [Scheduler] keeps a playback cursor (the next free start position on
// the output clock, in samples) and the set of voices that are scheduled or
// still playing. [Scheduler.Interrupt] is the only operation that breaks
// gapless playback: it stops every active voice and pulls the cursor back to
// the current clock position.
//
// All exported methods are safe for concurrent use.
package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/visionally/pkg/audio"
)

// ErrClosed is returned by [Scheduler.Enqueue] after [Scheduler.Close].
var ErrClosed = errors.New("playback: scheduler closed")

// Voice is a handle on one chunk scheduled on an [Output].
type Voice interface {
	// Stop silences the voice immediately. The voice's onEnded callback is
	// not invoked for a stopped voice. Stop is idempotent.
	Stop()
}

// Output is an audio device with a sample-accurate clock.
//
// Implementations must invoke onEnded asynchronously (never from inside
// Schedule) and without holding any lock that Schedule or Voice.Stop takes.
type Output interface {
	// SampleRate is the device rate in Hz. All positions are in samples at
	// this rate.
	SampleRate() int

	// Now returns the current output clock position in samples.
	Now() int64

	// Schedule places samples on the device timeline starting at position
	// at. onEnded is called once the last sample has been played.
	Schedule(samples []int16, at int64, onEnded func()) Voice
}

// Chunk is a decoded block of mono output audio.
type Chunk struct {
	// Samples holds the PCM16 samples.
	Samples []int16

	// SampleRate is the rate of Samples in Hz. Zero means
	// [audio.OutputSampleRate].
	SampleRate int
}

// Duration returns how long the chunk plays for.
func (c Chunk) Duration() time.Duration {
	rate := c.SampleRate
	if rate == 0 {
		rate = audio.OutputSampleRate
	}
	return audio.SamplesToDuration(int64(len(c.Samples)), rate)
}

// Placement describes where a chunk landed on the output clock.
type Placement struct {
	// Start is the first sample position of the chunk.
	Start int64

	// End is one past the last sample position; the next gapless chunk
	// starts here.
	End int64
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithObserver registers callbacks for scheduling events. Either may be nil.
// Callbacks run with the scheduler lock held and must not call back into the
// scheduler.
func WithObserver(onEnqueue func(Placement), onInterrupt func(stopped int)) Option {
	return func(s *Scheduler) {
		s.onEnqueue = onEnqueue
		s.onInterrupt = onInterrupt
	}
}

// Scheduler plays chunks on an [Output] in enqueue order.
type Scheduler struct {
	out Output

	onEnqueue   func(Placement)
	onInterrupt func(int)

	mu     sync.Mutex
	cursor int64
	active map[uint64]Voice
	seq    uint64
	closed bool
}

// New creates a Scheduler that plays through out.
func New(out Output, opts ...Option) *Scheduler {
	s := &Scheduler{
		out:    out,
		active: make(map[uint64]Voice),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules chunk at max(cursor, clock now) and advances the cursor
// by the chunk's length. Chunks recorded at a different rate than the
// output are resampled first. Empty chunks are not registered.
func (s *Scheduler) Enqueue(chunk Chunk) (Placement, error) {
	samples := chunk.Samples
	rate := chunk.SampleRate
	if rate == 0 {
		rate = audio.OutputSampleRate
	}
	samples = audio.ResampleMono(samples, rate, s.out.SampleRate())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Placement{}, ErrClosed
	}

	start := max(s.cursor, s.out.Now())
	p := Placement{Start: start, End: start + int64(len(samples))}
	if len(samples) == 0 {
		return p, nil
	}

	s.seq++
	id := s.seq
	s.active[id] = s.out.Schedule(samples, start, func() { s.finished(id) })
	s.cursor = p.End

	if s.onEnqueue != nil {
		s.onEnqueue(p)
	}
	return p, nil
}

// Interrupt stops every scheduled or playing chunk, empties the active set,
// and resets the cursor to the current clock position.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptLocked()
}

func (s *Scheduler) interruptLocked() {
	n := len(s.active)
	for id, v := range s.active {
		v.Stop()
		delete(s.active, id)
	}
	s.cursor = s.out.Now()
	if s.onInterrupt != nil {
		s.onInterrupt(n)
	}
}

// IsSpeaking reports whether any chunk is scheduled or playing.
func (s *Scheduler) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) > 0
}

// Active returns the number of chunks scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the next free start position.
func (s *Scheduler) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Close interrupts playback and rejects further chunks. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.interruptLocked()
	return nil
}

// finished removes a naturally completed voice. Voices already removed by
// Interrupt are ignored.
func (s *Scheduler) finished(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
