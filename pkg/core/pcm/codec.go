package pcm

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedAudio is matched by every *MalformedAudioError.
var ErrMalformedAudio = errors.New("malformed audio")

// MalformedAudioError reports a PCM buffer whose length does not divide into
// whole interleaved frames.
type MalformedAudioError struct {
	Length   int
	Channels int
}

func (e *MalformedAudioError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("malformed audio: %d bytes is not a multiple of %d (channels=%d)", e.Length, 2*e.Channels, e.Channels)
}

func (e *MalformedAudioError) Is(target error) bool {
	return target == ErrMalformedAudio
}

// EncodeFloatToPCM16 converts samples in [-1, 1] to signed 16-bit little-endian
// PCM. Out-of-range samples are clamped before scaling; positive values scale
// by 32767 and negative values by 32768 so both rails are reachable.
func EncodeFloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := floatToInt16(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// DecodePCM16ToFloat de-interleaves 16-bit little-endian PCM into one float
// buffer per channel, each sample divided by 32768. The sample rate belongs
// to the caller's chunk and does not affect decoding.
func DecodePCM16ToFloat(data []byte, _, channels int) ([][]float32, error) {
	if channels < 1 {
		return nil, &MalformedAudioError{Length: len(data), Channels: channels}
	}
	frameBytes := 2 * channels
	if len(data)%frameBytes != 0 {
		return nil, &MalformedAudioError{Length: len(data), Channels: channels}
	}
	frames := len(data) / frameBytes
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sample := int16(data[off]) | int16(data[off+1])<<8
			out[ch][i] = float32(sample) / 32768.0
		}
	}
	return out, nil
}

// EncodeBase64 frames raw bytes for JSON transports.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return data, nil
}

// PCM16ToInt16 reinterprets little-endian PCM bytes as samples. A trailing odd
// byte is ignored.
func PCM16ToInt16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}

// Int16ToPCM16 is the inverse of PCM16ToInt16.
func Int16ToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}
