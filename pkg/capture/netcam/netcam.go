// Package netcam implements a capture.VideoSource that polls a still-image
// HTTP endpoint, such as an ESP32-CAM "/capture" handler.
//
// Each request carries a cache-busting query parameter. A failed poll after
// a successful first fetch yields capture.ErrFrameUnavailable so the caller
// keeps showing the previous frame.
package netcam

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/visionally/pkg/capture"
)

const (
	defaultTimeout = 5 * time.Second
	maxImageSize   = 8 << 20
)

// Option configures a [Camera].
type Option func(*Camera)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cam *Camera) { cam.client = c }
}

// WithTimeout sets the per-request timeout. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(cam *Camera) { cam.timeout = d }
}

// WithClock overrides the time source for the cache-busting parameter.
func WithClock(now func() time.Time) Option {
	return func(cam *Camera) { cam.now = now }
}

// Camera is a polled network camera.
type Camera struct {
	rawURL  string
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	failures int
	first    image.Image
}

// New returns a Camera for the given snapshot URL.
func New(rawURL string, opts ...Option) *Camera {
	c := &Camera{
		rawURL:  rawURL,
		client:  http.DefaultClient,
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open validates the URL and performs one fetch to prove the endpoint is
// reachable. The fetched image is kept as the first frame.
func (c *Camera) Open(ctx context.Context) error {
	u, err := url.Parse(c.rawURL)
	if err != nil {
		return fmt.Errorf("netcam: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("netcam: unsupported url scheme %q", u.Scheme)
	}
	c.base = u
	img, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.first = img
	c.mu.Unlock()
	return nil
}

// FirstFrame returns the image fetched by Open, or nil before Open. It
// implements capture.FirstFramer.
func (c *Camera) FirstFrame() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.first
}

// Frame fetches a fresh image. Fetch failures are reported as
// capture.ErrFrameUnavailable.
func (c *Camera) Frame(ctx context.Context) (image.Image, error) {
	if c.base == nil {
		return nil, fmt.Errorf("netcam: not opened")
	}
	img, err := c.fetch(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures++
		slog.Warn("netcam: fetch failed, keeping previous frame", "url", c.rawURL, "failures", c.failures, "err", err)
		return nil, fmt.Errorf("%w: %v", capture.ErrFrameUnavailable, err)
	}
	c.failures = 0
	return img, nil
}

// Close is a no-op; the camera holds no persistent connection.
func (c *Camera) Close() error { return nil }

// RequestURL returns the URL for one poll, with the cache-busting parameter.
func (c *Camera) RequestURL() string {
	u := *c.base
	q := u.Query()
	q.Set("cache", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Camera) fetch(ctx context.Context) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("netcam: build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netcam: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("netcam: fetch: status %s", resp.Status)
	}
	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("netcam: decode: %w", err)
	}
	return img, nil
}
