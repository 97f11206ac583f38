package capture

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	"image/jpeg"
	"math"
	"sync"
	"time"
)

// ErrNoFrame is returned when the frame buffer has never received a frame.
var ErrNoFrame = errors.New("capture: no frame captured yet")

// FrameBuffer is the shared off-screen raster holding the most recent video
// frame, plus the most recent audio block. Writers redraw into it; readers
// only ever receive copies or encodings. Safe for concurrent use.
type FrameBuffer struct {
	mu      sync.RWMutex
	img     *image.RGBA
	seq     uint64
	updated time.Time
	audio   []float32
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Draw redraws src into the buffer. The buffer is reallocated whenever the
// incoming frame's resolution differs from the current one.
func (b *FrameBuffer) Draw(src image.Image) {
	bounds := src.Bounds()
	size := bounds.Size()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.img == nil || b.img.Bounds().Size() != size {
		b.img = image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	}
	draw.Draw(b.img, b.img.Bounds(), src, bounds.Min, draw.Src)
	b.seq++
	b.updated = time.Now()
}

// Snapshot returns a copy of the current frame.
func (b *FrameBuffer) Snapshot() (*image.RGBA, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return nil, ErrNoFrame
	}
	out := &image.RGBA{
		Pix:    make([]uint8, len(b.img.Pix)),
		Stride: b.img.Stride,
		Rect:   b.img.Rect,
	}
	copy(out.Pix, b.img.Pix)
	return out, nil
}

// JPEG encodes the current frame at quality (1-100).
func (b *FrameBuffer) JPEG(quality int) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return nil, ErrNoFrame
	}
	return EncodeJPEG(b.img, quality)
}

// Size returns the current raster size, or the zero point when empty.
func (b *FrameBuffer) Size() image.Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.img == nil {
		return image.Point{}
	}
	return b.img.Bounds().Size()
}

// Seq returns how many frames have been drawn, and when the last one was.
func (b *FrameBuffer) Seq() (uint64, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq, b.updated
}

// StoreAudio keeps a copy of the latest audio block.
func (b *FrameBuffer) StoreAudio(block []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audio = append(b.audio[:0], block...)
}

// AudioLevel returns the RMS level of the latest audio block in [0, 1].
func (b *FrameBuffer) AudioLevel() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.audio) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.audio {
		sum += float64(s) * float64(s)
	}
	return math.Min(1, math.Sqrt(sum/float64(len(b.audio))))
}

// EncodeJPEG compresses img at quality, clamped to [1, 100].
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	quality = max(1, min(100, quality))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
