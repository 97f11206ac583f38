package output

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// FFplaySink pipes PCM16LE mono audio into an ffplay child process.
type FFplaySink struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFplaySink starts ffplay (path defaults to "ffplay") reading raw PCM at
// rate from stdin.
func NewFFplaySink(path string, rate int) (*FFplaySink, error) {
	if path == "" {
		path = "ffplay"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("output: %s is required for playback: %w", path, err)
	}
	cmd := exec.Command(path,
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", rate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("output: open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("output: start ffplay: %w", err)
	}
	return &FFplaySink{cmd: cmd, stdin: stdin}, nil
}

// Write implements Sink.
func (s *FFplaySink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return 0, errors.New("output: ffplay sink closed")
	}
	return s.stdin.Write(p)
}

// Close terminates ffplay. Idempotent.
func (s *FFplaySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return nil
	}
	_ = s.stdin.Close()
	s.stdin = nil
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	return nil
}
