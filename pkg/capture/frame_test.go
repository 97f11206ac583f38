package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFrameBuffer_EmptySnapshot(t *testing.T) {
	t.Parallel()
	b := NewFrameBuffer()
	if _, err := b.Snapshot(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("Snapshot err = %v, want ErrNoFrame", err)
	}
	if _, err := b.JPEG(50); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("JPEG err = %v, want ErrNoFrame", err)
	}
	if got := b.Size(); got != (image.Point{}) {
		t.Fatalf("Size = %v, want zero", got)
	}
}

func TestFrameBuffer_ResizesToIncomingFrame(t *testing.T) {
	t.Parallel()
	b := NewFrameBuffer()
	b.Draw(solid(4, 3, color.White))
	if got := b.Size(); got != image.Pt(4, 3) {
		t.Fatalf("Size = %v, want 4x3", got)
	}
	b.Draw(solid(8, 6, color.Black))
	if got := b.Size(); got != image.Pt(8, 6) {
		t.Fatalf("Size after resize = %v, want 8x6", got)
	}
	seq, _ := b.Seq()
	if seq != 2 {
		t.Fatalf("Seq = %d, want 2", seq)
	}
}

func TestFrameBuffer_SnapshotIsCopy(t *testing.T) {
	t.Parallel()
	b := NewFrameBuffer()
	b.Draw(solid(2, 2, color.RGBA{R: 255, A: 255}))

	snap, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap.Set(0, 0, color.RGBA{B: 255, A: 255})

	again, _ := b.Snapshot()
	if r, _, _, _ := again.At(0, 0).RGBA(); r>>8 != 255 {
		t.Fatal("mutating a snapshot changed the buffer")
	}
}

func TestFrameBuffer_DrawNonZeroOrigin(t *testing.T) {
	t.Parallel()
	src := image.NewRGBA(image.Rect(10, 10, 13, 12))
	src.Set(10, 10, color.RGBA{G: 200, A: 255})

	b := NewFrameBuffer()
	b.Draw(src)
	snap, _ := b.Snapshot()
	if snap.Bounds().Min != (image.Point{}) {
		t.Fatalf("snapshot origin = %v, want 0,0", snap.Bounds().Min)
	}
	if _, g, _, _ := snap.At(0, 0).RGBA(); g>>8 != 200 {
		t.Fatalf("pixel (0,0) green = %d, want 200", g>>8)
	}
}

func TestFrameBuffer_JPEGQuality(t *testing.T) {
	t.Parallel()
	b := NewFrameBuffer()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8((x + y) * 2), A: 255})
		}
	}
	b.Draw(img)

	low, err := b.JPEG(50)
	if err != nil {
		t.Fatalf("JPEG(50): %v", err)
	}
	high, err := b.JPEG(80)
	if err != nil {
		t.Fatalf("JPEG(80): %v", err)
	}
	if len(high) <= len(low) {
		t.Errorf("quality 80 (%d bytes) not larger than quality 50 (%d bytes)", len(high), len(low))
	}
	decoded, err := jpeg.Decode(bytes.NewReader(low))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Size() != image.Pt(64, 64) {
		t.Fatalf("decoded size = %v", decoded.Bounds().Size())
	}
}

func TestFrameBuffer_AudioLevel(t *testing.T) {
	t.Parallel()
	b := NewFrameBuffer()
	if got := b.AudioLevel(); got != 0 {
		t.Fatalf("empty level = %v, want 0", got)
	}
	b.StoreAudio([]float32{0.5, -0.5, 0.5, -0.5})
	if got := b.AudioLevel(); got < 0.499 || got > 0.501 {
		t.Fatalf("level = %v, want 0.5", got)
	}
}

func TestEncodeJPEG_ClampsQuality(t *testing.T) {
	t.Parallel()
	img := solid(8, 8, color.White)
	for _, q := range []int{-5, 0, 101, 500} {
		if _, err := EncodeJPEG(img, q); err != nil {
			t.Errorf("EncodeJPEG(q=%d): %v", q, err)
		}
	}
}
