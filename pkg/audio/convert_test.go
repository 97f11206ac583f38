package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/visionally/pkg/audio"
)

func TestFloatToInt16_Saturates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full positive", 1.0, 32767},
		{"full negative", -1.0, -32768},
		{"half", 0.5, 16384},
		{"over range", 3.7, 32767},
		{"under range", -12, -32768},
		{"positive infinity", float32(math.Inf(1)), 32767},
		{"negative infinity", float32(math.Inf(-1)), -32768},
		{"nan", float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.FloatToInt16(tt.in); got != tt.want {
				t.Errorf("FloatToInt16(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestPCM16LE_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []int16{0, 1, -1, 32767, -32768, 1234}
	pcm := audio.PCM16LE(in)
	if len(pcm) != len(in)*2 {
		t.Fatalf("len(pcm) = %d, want %d", len(pcm), len(in)*2)
	}
	if pcm[0] != 0 || pcm[2] != 1 || pcm[3] != 0 {
		t.Errorf("unexpected little-endian layout: % x", pcm[:4])
	}
	got := audio.ParsePCM16LE(pcm)
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestResampleMono_SameRate(t *testing.T) {
	t.Parallel()
	in := []int16{100, 200, 300}
	out := audio.ResampleMono(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
}

func TestResampleMono_Downsample(t *testing.T) {
	t.Parallel()
	in := make([]int16, 480) // 10ms at 48kHz
	for i := range in {
		in[i] = 1000
	}
	out := audio.ResampleMono(in, 48000, 16000)
	if len(out) != 160 {
		t.Fatalf("len = %d, want 160", len(out))
	}
	for i, s := range out {
		if s != 1000 {
			t.Fatalf("sample %d = %d, want 1000 for constant input", i, s)
		}
	}
}

func TestResampleMono_Upsample(t *testing.T) {
	t.Parallel()
	out := audio.ResampleMono([]int16{0, 100}, 16000, 32000)
	want := []int16{0, 50, 100, 100}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestResampleMono_InvalidRates(t *testing.T) {
	t.Parallel()
	in := []int16{1, 2, 3}
	if out := audio.ResampleMono(in, 0, 16000); len(out) != len(in) {
		t.Errorf("zero src rate should return input unchanged")
	}
	if out := audio.ResampleMono(in, 16000, -1); len(out) != len(in) {
		t.Errorf("negative dst rate should return input unchanged")
	}
}

func TestSamplesToDuration(t *testing.T) {
	t.Parallel()
	if got := audio.SamplesToDuration(24000, 24000); got.Seconds() != 1 {
		t.Errorf("SamplesToDuration(24000, 24000) = %v, want 1s", got)
	}
	if got := audio.SamplesToDuration(10, 0); got != 0 {
		t.Errorf("zero rate should yield 0, got %v", got)
	}
	if got := audio.DurationToSamples(audio.SamplesToDuration(4800, 24000), 24000); got != 4800 {
		t.Errorf("DurationToSamples round trip = %d, want 4800", got)
	}
}
