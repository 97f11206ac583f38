// Package ffmpeg implements capture sources backed by an ffmpeg child process.
//
// The microphone source asks ffmpeg for mono 32-bit float PCM on stdout. The
// camera source asks for an MJPEG image stream and keeps only the most recent
// complete JPEG, decoding it on demand.
package ffmpeg

import (
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
)

// Config selects the ffmpeg input device. Empty fields fall back to
// platform defaults.
type Config struct {
	// Binary is the ffmpeg executable. Default "ffmpeg".
	Binary string

	// Format is the ffmpeg input format ("pulse", "alsa", "avfoundation",
	// "v4l2", "dshow").
	Format string

	// Device is the ffmpeg input device name.
	Device string

	// SampleRate is the requested microphone rate. Default 16000.
	SampleRate int

	// FrameRate is the camera capture rate requested from ffmpeg. Default 5.
	FrameRate int
}

func (c Config) binary() string {
	if c.Binary == "" {
		return "ffmpeg"
	}
	return c.Binary
}

func lookPath(bin string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("ffmpeg: %s is required for capture: %w", bin, err)
	}
	return nil
}

// MicArgs builds the ffmpeg argument list for microphone capture on goos.
func MicArgs(goos string, cfg Config) ([]string, error) {
	format, device := cfg.Format, cfg.Device
	if format == "" {
		switch goos {
		case "darwin":
			format, device = "avfoundation", defaultString(device, ":0")
		case "linux":
			format, device = "pulse", defaultString(device, "default")
		default:
			return nil, fmt.Errorf("ffmpeg: microphone capture has no default for %s; set a format and device", goos)
		}
	}
	if device == "" {
		return nil, fmt.Errorf("ffmpeg: microphone device is required for format %q", format)
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", device,
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "f32le", "-",
	}, nil
}

// CameraArgs builds the ffmpeg argument list for MJPEG camera capture on goos.
func CameraArgs(goos string, cfg Config) ([]string, error) {
	format, device := cfg.Format, cfg.Device
	if format == "" {
		switch goos {
		case "darwin":
			format, device = "avfoundation", defaultString(device, "0")
		case "linux":
			format, device = "v4l2", defaultString(device, "/dev/video0")
		default:
			return nil, fmt.Errorf("ffmpeg: camera capture has no default for %s; set a format and device", goos)
		}
	}
	if device == "" {
		return nil, fmt.Errorf("ffmpeg: camera device is required for format %q", format)
	}
	fps := cfg.FrameRate
	if fps <= 0 {
		fps = 5
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-framerate", strconv.Itoa(fps), "-i", device,
		"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-",
	}, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func hostOS() string { return runtime.GOOS }
