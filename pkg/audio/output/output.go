// Package output implements [playback.Output] as a software timeline: voices
// are placed at absolute sample positions and a render loop mixes them into a
// PCM16LE sink in real time. The output clock is the number of samples handed
// to the sink, so scheduling is sample-accurate regardless of sink latency.
package output

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/visionally/pkg/audio"
	"github.com/MrWong99/visionally/pkg/audio/playback"
)

var _ playback.Output = (*Renderer)(nil)

// defaultTick is how often the real-time loop renders a block.
const defaultTick = 20 * time.Millisecond

// Sink receives rendered PCM16LE mono audio.
type Sink interface {
	Write(p []byte) (int, error)
}

// Option configures a [Renderer].
type Option func(*Renderer)

// WithTick sets the render period of [Renderer.Run].
func WithTick(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.tick = d
		}
	}
}

// Renderer mixes scheduled voices into a [Sink]. All methods are safe for
// concurrent use.
type Renderer struct {
	sink Sink
	rate int
	tick time.Duration

	mu     sync.Mutex
	pos    int64
	voices []*voice
	closed bool
}

type voice struct {
	r       *Renderer
	start   int64
	samples []int16
	onEnded func()
	stopped bool
}

func (v *voice) end() int64 { return v.start + int64(len(v.samples)) }

// Stop implements playback.Voice.
func (v *voice) Stop() {
	v.r.mu.Lock()
	defer v.r.mu.Unlock()
	v.stopped = true
}

// New creates a Renderer writing mono PCM16LE at rate to sink. Zero rate
// means [audio.OutputSampleRate].
func New(sink Sink, rate int, opts ...Option) *Renderer {
	if rate <= 0 {
		rate = audio.OutputSampleRate
	}
	r := &Renderer{sink: sink, rate: rate, tick: defaultTick}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SampleRate implements playback.Output.
func (r *Renderer) SampleRate() int { return r.rate }

// Now implements playback.Output.
func (r *Renderer) Now() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// Schedule implements playback.Output. Voices scheduled after Close are
// returned already stopped.
func (r *Renderer) Schedule(samples []int16, at int64, onEnded func()) playback.Voice {
	v := &voice{r: r, start: at, samples: samples, onEnded: onEnded}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		v.stopped = true
		return v
	}
	r.voices = append(r.voices, v)
	return v
}

// Render mixes the next n samples, advances the clock, writes the block to
// the sink, and then runs the onEnded callback of every voice that finished
// inside the block.
func (r *Renderer) Render(n int) error {
	if n <= 0 {
		return nil
	}

	r.mu.Lock()
	from := r.pos
	to := from + int64(n)
	mix := make([]int32, n)
	var ended []func()

	keep := r.voices[:0]
	for _, v := range r.voices {
		if v.stopped {
			continue
		}
		lo := max(from, v.start)
		hi := min(to, v.end())
		for p := lo; p < hi; p++ {
			mix[p-from] += int32(v.samples[p-v.start])
		}
		if v.end() <= to {
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
			continue
		}
		keep = append(keep, v)
	}
	clear(r.voices[len(keep):])
	r.voices = keep
	r.pos = to
	r.mu.Unlock()

	block := make([]int16, n)
	for i, s := range mix {
		block[i] = int16(max(-32768, min(32767, s)))
	}
	_, err := r.sink.Write(audio.PCM16LE(block))

	for _, fn := range ended {
		fn()
	}
	return err
}

// Run renders in real time until ctx is cancelled, Close is called, or the
// sink fails. The number of samples rendered per tick tracks wall-clock time
// so the clock does not drift from the device.
func (r *Renderer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	startedAt := time.Now()
	base := r.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if r.isClosed() {
			return nil
		}
		due := base + audio.DurationToSamples(time.Since(startedAt), r.rate) - r.Now()
		if err := r.Render(int(due)); err != nil {
			return fmt.Errorf("output: write sink: %w", err)
		}
	}
}

// Close stops every voice and makes Run return. Idempotent.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	for _, v := range r.voices {
		v.stopped = true
	}
	r.voices = nil
	return nil
}

func (r *Renderer) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
