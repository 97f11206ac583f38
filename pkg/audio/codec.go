package audio

import (
	"encoding/base64"
	"fmt"
)

// DecodeError reports an inbound audio payload that could not be turned into
// PCM samples. It never indicates a broken session; callers log and drop.
type DecodeError struct {
	// Reason is a short description of what was wrong with the payload.
	Reason string
	// Size is the length of the offending payload in bytes.
	Size int
	// Err is the underlying decoder error, if any.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode %d-byte payload: %s: %v", e.Size, e.Reason, e.Err)
	}
	return fmt.Sprintf("audio: decode %d-byte payload: %s", e.Size, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeOutbound converts a block of float amplitudes captured at rate into
// the payload the live endpoint accepts: mono PCM16LE at [InputSampleRate],
// base64 encoded. Amplitudes outside [-1, 1] saturate.
func EncodeOutbound(samples []float32, rate int) []byte {
	pcm := ResampleMono(FloatsToInt16(samples), rate, InputSampleRate)
	return EncodeBytes(PCM16LE(pcm))
}

// EncodeBytes base64-encodes an arbitrary binary payload (e.g. a JPEG frame)
// for transport.
func EncodeBytes(b []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out
}

// DecodeInbound turns a base64 PCM16LE payload from the live endpoint into
// mono samples at [OutputSampleRate].
func DecodeInbound(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	pcm := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(pcm, payload)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Size: len(payload), Err: err}
	}
	pcm = pcm[:n]
	if len(pcm) == 0 {
		return nil, &DecodeError{Reason: "no audio data", Size: len(payload)}
	}
	if len(pcm)%bytesPerSample != 0 {
		return nil, &DecodeError{Reason: "odd byte count for PCM16", Size: len(payload)}
	}
	return ParsePCM16LE(pcm), nil
}
