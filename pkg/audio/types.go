// Package audio holds the PCM primitives shared by the capture and playback
// paths: sample-format conversion, resampling, and the wire codec used by
// the live inference stream.
//
// Everything in this package is pure and safe for concurrent use.
package audio

import (
	"fmt"
	"time"
)

const (
	// InputSampleRate is the rate the live endpoint expects for microphone
	// audio (16 kHz mono PCM16LE).
	InputSampleRate = 16000

	// OutputSampleRate is the rate of audio the live endpoint streams back
	// (24 kHz mono PCM16LE).
	OutputSampleRate = 24000

	// bytesPerSample is the width of one PCM16 sample.
	bytesPerSample = 2
)

// InputMIMEType is the MIME hint attached to outbound microphone blocks.
var InputMIMEType = fmt.Sprintf("audio/pcm;rate=%d", InputSampleRate)

// SamplesToDuration returns the playback duration of n mono samples at rate.
func SamplesToDuration(n int64, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// DurationToSamples returns the number of mono samples covering d at rate,
// rounded down.
func DurationToSamples(d time.Duration, rate int) int64 {
	if rate <= 0 || d <= 0 {
		return 0
	}
	return int64(d) * int64(rate) / int64(time.Second)
}
