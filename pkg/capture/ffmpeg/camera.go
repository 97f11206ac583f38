package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/MrWong99/visionally/pkg/capture"
)

const maxJPEGSize = 8 << 20

var (
	soi = []byte{0xFF, 0xD8}
	eoi = []byte{0xFF, 0xD9}
)

// Camera captures frames from a local camera. It implements
// capture.VideoSource.
type Camera struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	latest  []byte
	readErr error
	closed  bool
	done    chan struct{}
}

// NewCamera returns an unopened camera source.
func NewCamera(cfg Config) *Camera {
	return &Camera{cfg: cfg}
}

// Open starts ffmpeg and the reader that tracks the newest frame. The
// process runs until Close.
func (c *Camera) Open(context.Context) error {
	bin := c.cfg.binary()
	if err := lookPath(bin); err != nil {
		return err
	}
	args, err := CameraArgs(hostOS(), c.cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("ffmpeg: camera closed")
	}
	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: open camera stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start camera capture: %w", err)
	}
	c.cmd = cmd
	c.done = make(chan struct{})
	go c.readLoop(stdout)
	return nil
}

func (c *Camera) readLoop(r io.Reader) {
	defer close(c.done)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 256*1024), maxJPEGSize)
	sc.Split(SplitJPEG)
	for sc.Scan() {
		frame := append([]byte(nil), sc.Bytes()...)
		c.mu.Lock()
		c.latest = frame
		c.mu.Unlock()
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	c.mu.Lock()
	if !c.closed {
		slog.Warn("ffmpeg: camera stream ended", "err", err)
	}
	c.readErr = err
	c.mu.Unlock()
}

// Frame decodes the newest complete JPEG. Before the first frame arrives it
// returns capture.ErrFrameUnavailable.
func (c *Camera) Frame(context.Context) (image.Image, error) {
	c.mu.Lock()
	data, readErr := c.latest, c.readErr
	c.mu.Unlock()
	if readErr != nil {
		return nil, fmt.Errorf("ffmpeg: camera: %w", readErr)
	}
	if data == nil {
		return nil, capture.ErrFrameUnavailable
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", capture.ErrFrameUnavailable, err)
	}
	return img, nil
}

// Close kills ffmpeg and waits for the reader. Idempotent.
func (c *Camera) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cmd, done := c.cmd, c.done
	c.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
	if done != nil {
		<-done
	}
	return nil
}

// SplitJPEG is a bufio.SplitFunc that yields complete JPEG images from an
// MJPEG byte stream. Bytes before a start-of-image marker are discarded.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, soi)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF in case it begins the next marker.
		if n := len(data); n > 0 && data[n-1] == 0xFF {
			return n - 1, nil, nil
		}
		return len(data), nil, nil
	}
	end := bytes.Index(data[start+len(soi):], eoi)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	stop := start + len(soi) + end + len(eoi)
	return stop, data[start:stop], nil
}
