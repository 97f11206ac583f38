package audio

import (
	"encoding/binary"
	"math"
)

// FloatToInt16 maps a float amplitude in [-1, 1] to a signed 16-bit sample.
// Out-of-range input saturates at the int16 limits instead of wrapping.
func FloatToInt16(f float32) int16 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	v := f * 32768
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	}
	return int16(v)
}

// Int16ToFloat maps a signed 16-bit sample to a float amplitude in [-1, 1).
func Int16ToFloat(s int16) float32 {
	return float32(s) / 32768
}

// FloatsToInt16 converts a float block using [FloatToInt16].
func FloatsToInt16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, f := range in {
		out[i] = FloatToInt16(f)
	}
	return out
}

// PCM16LE serialises samples as little-endian PCM16.
func PCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// ParsePCM16LE decodes little-endian PCM16 bytes. A trailing odd byte is
// ignored; callers that must reject misaligned input check len(pcm) first.
func ParsePCM16LE(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/bytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
	}
	return out
}

// ResampleMono resamples mono samples from srcRate to dstRate using linear
// interpolation. If the rates match (or either is invalid) the input is
// returned unchanged.
func ResampleMono(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}
