package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBlockSize is the number of samples per delivered audio block.
	DefaultBlockSize = 4096

	// DefaultFrameRate is the video sampling rate in frames per second.
	DefaultFrameRate = 1.0
)

// Config tunes a [Pipeline].
type Config struct {
	// BlockSize is the number of samples per audio block. Default 4096.
	BlockSize int

	// FrameRate is how many video frames per second are sampled. Default 1.
	FrameRate float64
}

// Pipeline owns one audio source, an optional video source, and the shared
// frame buffer. Open, Close, and the sampling methods are safe for
// concurrent use.
type Pipeline struct {
	audio  AudioSource
	video  VideoSource
	frames *FrameBuffer
	cfg    Config

	closeOnce sync.Once
	closeErr  error
}

// NewPipeline creates a Pipeline. video may be nil for an audio-only source.
func NewPipeline(audio AudioSource, video VideoSource, cfg Config) *Pipeline {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	return &Pipeline{
		audio:  audio,
		video:  video,
		frames: NewFrameBuffer(),
		cfg:    cfg,
	}
}

// Frames returns the shared frame buffer.
func (p *Pipeline) Frames() *FrameBuffer { return p.frames }

// HasVideo reports whether the pipeline has a video source.
func (p *Pipeline) HasVideo() bool { return p.video != nil }

// FrameInterval is the period between video samples.
func (p *Pipeline) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / p.cfg.FrameRate)
}

// Open opens the audio and video sources concurrently. If either fails,
// both are released and a [*SourceError] is returned. A video source that
// implements [FirstFramer] seeds the frame buffer. Each source receives
// ctx itself, so anything a source ties to it lives as long as the caller's
// context rather than the concurrent open.
func (p *Pipeline) Open(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		if err := p.audio.Open(ctx); err != nil {
			return &SourceError{Source: "audio", Op: "open", Err: err}
		}
		return nil
	})
	if p.video != nil {
		g.Go(func() error {
			if err := p.video.Open(ctx); err != nil {
				return &SourceError{Source: "video", Op: "open", Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = p.Close()
		return err
	}
	if ff, ok := p.video.(FirstFramer); ok {
		if img := ff.FirstFrame(); img != nil {
			p.frames.Draw(img)
		}
	}
	return nil
}

// StartAudioCapture starts delivering blocks of [Config.BlockSize] samples
// to onSamples, in capture order, on a single goroutine. Delivery stops when
// ctx is cancelled or the source fails; a failure is sent on the returned
// channel (buffered, at most one value), which is closed when delivery stops.
func (p *Pipeline) StartAudioCapture(ctx context.Context, onSamples func(block []float32, rate int)) <-chan error {
	errCh := make(chan error, 1)
	rate := p.audio.SampleRate()
	go func() {
		defer close(errCh)
		for {
			buf := make([]float32, p.cfg.BlockSize)
			n, err := p.audio.Read(buf)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				errCh <- &SourceError{Source: "audio", Op: "read", Err: err}
				return
			}
			if n == 0 {
				continue
			}
			p.frames.StoreAudio(buf[:n])
			onSamples(buf[:n], rate)
		}
	}()
	return errCh
}

// SampleVideoFrame pulls the latest frame from the video source and redraws
// the shared buffer with it. When the source reports [ErrFrameUnavailable]
// the previous frame is kept and returned.
func (p *Pipeline) SampleVideoFrame(ctx context.Context) (*image.RGBA, error) {
	if p.video == nil {
		return nil, ErrNoFrame
	}
	img, err := p.video.Frame(ctx)
	switch {
	case errors.Is(err, ErrFrameUnavailable):
		snap, snapErr := p.frames.Snapshot()
		if snapErr != nil {
			return nil, err
		}
		slog.Debug("capture: keeping previous frame", "err", err)
		return snap, nil
	case err != nil:
		return nil, &SourceError{Source: "video", Op: "frame", Err: err}
	}
	p.frames.Draw(img)
	return p.frames.Snapshot()
}

// Close releases both sources. Idempotent; later calls return the first
// result.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		var errs []error
		if err := p.audio.Close(); err != nil {
			errs = append(errs, err)
		}
		if p.video != nil {
			if err := p.video.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}
