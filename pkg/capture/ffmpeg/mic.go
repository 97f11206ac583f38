package ffmpeg

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"
)

// Mic captures microphone audio as float32 samples. It implements
// capture.AudioSource.
type Mic struct {
	cfg Config

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout *bufio.Reader
	raw    []byte
	closed bool
}

// NewMic returns an unopened microphone source.
func NewMic(cfg Config) *Mic {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Mic{cfg: cfg}
}

// SampleRate implements capture.AudioSource.
func (m *Mic) SampleRate() int { return m.cfg.SampleRate }

// Open starts ffmpeg. The process runs until Close.
func (m *Mic) Open(context.Context) error {
	bin := m.cfg.binary()
	if err := lookPath(bin); err != nil {
		return err
	}
	args, err := MicArgs(hostOS(), m.cfg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("ffmpeg: mic closed")
	}
	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg: open mic stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg: start mic capture: %w", err)
	}
	m.cmd = cmd
	m.stdout = bufio.NewReaderSize(stdout, 64*1024)
	return nil
}

// Read fills buf with little-endian float32 samples. Only one goroutine may
// call Read at a time.
func (m *Mic) Read(buf []float32) (int, error) {
	m.mu.Lock()
	r := m.stdout
	m.mu.Unlock()
	if r == nil {
		return 0, io.ErrClosedPipe
	}
	need := len(buf) * 4
	if cap(m.raw) < need {
		m.raw = make([]byte, need)
	}
	raw := m.raw[:need]
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, fmt.Errorf("ffmpeg: read mic: %w", err)
	}
	decodeF32LE(buf, raw)
	return len(buf), nil
}

// Close kills ffmpeg. Idempotent.
func (m *Mic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}

func decodeF32LE(dst []float32, raw []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
}
