// Package audio normalizes client recordings into the canonical PCM form
// handed to speech-to-text backends.
//
// Browsers and devices submit whatever their recorder produces; transcription
// wants one predictable shape. Every supported container is decoded,
// downmixed to mono and resampled to 16 kHz signed 16-bit little-endian PCM.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Canonical output format.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	bytesPerSample      = 2
)

// ErrDecode is the root of every normalization failure. Callers classify
// with errors.Is(err, ErrDecode).
var ErrDecode = errors.New("audio: decode failed")

var (
	// ErrEmpty is returned for zero-length payloads.
	ErrEmpty = fmt.Errorf("%w: empty payload", ErrDecode)

	// ErrUnsupported is returned for containers or codecs that cannot be decoded.
	ErrUnsupported = fmt.Errorf("%w: unsupported container", ErrDecode)
)

// PCMBuffer holds interleaved signed 16-bit little-endian PCM samples.
type PCMBuffer struct {
	Data       []byte
	SampleRate int
	Channels   int

	// Source is the container the buffer was decoded from.
	Source Container
}

// Frames returns the number of sample frames in the buffer.
func (b *PCMBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / (bytesPerSample * b.Channels)
}

// Duration returns the playback length of the buffer.
func (b *PCMBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// WAV wraps the buffer in a RIFF/WAVE container.
func (b *PCMBuffer) WAV() []byte {
	return EncodeWAV(b.Data, b.SampleRate, b.Channels, bytesPerSample)
}

// EncodeWAV wraps raw PCM data in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)
	fileLen := 36 + dataLen // 44-byte header minus 8 bytes for RIFF header = 36

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	// RIFF header
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	// fmt subchunk
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	// data subchunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}

// samplesToBytes serializes int16 samples as little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// bytesToSamples parses little-endian PCM16; a trailing odd byte is dropped.
func bytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/bytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
