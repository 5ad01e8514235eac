package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Normalizer converts recordings to the canonical PCM format.
// The zero value is not usable; construct with NewNormalizer.
type Normalizer struct {
	sampleRate int
	pcmRate    int
	ffmpeg     string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithSampleRate overrides the output sample rate.
func WithSampleRate(hz int) Option {
	return func(n *Normalizer) { n.sampleRate = hz }
}

// WithRawPCMRate sets the assumed rate of headerless pcm_s16le submissions.
func WithRawPCMRate(hz int) Option {
	return func(n *Normalizer) { n.pcmRate = hz }
}

// WithFFmpeg sets the ffmpeg binary used for WebM, Ogg and FLAC. An empty
// path disables those containers.
func WithFFmpeg(path string) Option {
	return func(n *Normalizer) { n.ffmpeg = path }
}

// NewNormalizer returns a Normalizer producing 16 kHz mono PCM16.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		sampleRate: CanonicalSampleRate,
		pcmRate:    CanonicalSampleRate,
		ffmpeg:     DefaultFFmpeg,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// SampleRate reports the output rate.
func (n *Normalizer) SampleRate() int { return n.sampleRate }

// Normalize decodes raw into mono PCM16 at the normalizer's rate.
// hint is an optional container name or MIME type used when the payload
// has no recognizable header. Failures wrap ErrDecode.
func (n *Normalizer) Normalize(raw []byte, hint string) (*PCMBuffer, error) {
	return n.NormalizeContext(context.Background(), raw, hint)
}

// NormalizeContext is Normalize with ctx bounding any external transcoder.
func (n *Normalizer) NormalizeContext(ctx context.Context, raw []byte, hint string) (*PCMBuffer, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}

	container := Sniff(raw, hint)

	var (
		samples  []int16
		rate     int
		channels int
		err      error
	)
	switch container {
	case ContainerWAV:
		samples, rate, channels, err = decodeWAV(raw)
	case ContainerMP3:
		samples, rate, channels, err = decodeMP3(raw)
	case ContainerPCM:
		if len(raw)%bytesPerSample != 0 {
			return nil, fmt.Errorf("%w: odd-length pcm_s16le payload", ErrDecode)
		}
		samples, rate, channels = bytesToSamples(raw), n.pcmRate, 1
	case ContainerWebM, ContainerOgg, ContainerFLAC:
		if n.ffmpeg == "" {
			return nil, fmt.Errorf("%w: %s (ffmpeg disabled)", ErrUnsupported, container)
		}
		samples, err = transcode(ctx, n.ffmpeg, raw, container, n.sampleRate)
		rate, channels = n.sampleRate, 1
	case ContainerUnknown:
		return nil, fmt.Errorf("%w: unrecognized audio payload", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, container)
	}
	if err != nil {
		return nil, err
	}

	mono := downmix(samples, channels)
	if len(mono) == 0 {
		return nil, fmt.Errorf("%w: %s contains no samples", ErrDecode, container)
	}

	if rate != n.sampleRate {
		mono, err = resample(mono, rate, n.sampleRate)
		if err != nil {
			return nil, err
		}
		if len(mono) == 0 {
			return nil, fmt.Errorf("%w: recording too short to resample", ErrDecode)
		}
	}

	return &PCMBuffer{
		Data:       samplesToBytes(mono),
		SampleRate: n.sampleRate,
		Channels:   CanonicalChannels,
		Source:     container,
	}, nil
}

func decodeWAV(raw []byte) ([]int16, int, int, error) {
	d := wav.NewDecoder(bytes.NewReader(raw))
	if !d.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: invalid wav header", ErrDecode)
	}
	if d.WavAudioFormat != 1 {
		return nil, 0, 0, fmt.Errorf("%w: wav audio format %d", ErrUnsupported, d.WavAudioFormat)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: reading wav samples: %v", ErrDecode, err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, 0, fmt.Errorf("%w: wav has no data chunk", ErrDecode)
	}

	depth := int(d.BitDepth)
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch depth {
		case 8:
			out[i] = int16((v - 128) << 8)
		case 16:
			out[i] = int16(v)
		case 24:
			out[i] = int16(v >> 8)
		case 32:
			out[i] = int16(v >> 16)
		default:
			return nil, 0, 0, fmt.Errorf("%w: %d-bit wav", ErrUnsupported, depth)
		}
	}
	return out, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

func decodeMP3(raw []byte) ([]int16, int, int, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: opening mp3 stream: %v", ErrDecode, err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: decoding mp3 frames: %v", ErrDecode, err)
	}
	// go-mp3 always emits interleaved 16-bit stereo.
	return bytesToSamples(pcm), d.SampleRate(), 2, nil
}

func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

func resample(samples []int16, from, to int) ([]int16, error) {
	if from <= 0 {
		return nil, fmt.Errorf("%w: invalid source sample rate %d", ErrDecode, from)
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating resampler: %v", ErrDecode, err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s) / 32768.0
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("%w: resampling %d->%d: %v", ErrDecode, from, to, err)
	}

	out := make([]int16, len(output))
	for i, s := range output {
		switch {
		case s > 1.0:
			out[i] = 32767
		case s < -1.0:
			out[i] = -32768
		default:
			out[i] = int16(s * 32767.0)
		}
	}
	return out, nil
}
