package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os/exec"
	"testing"
)

func sine(n, rate int, freq float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestSniff(t *testing.T) {
	wavHeader := EncodeWAV(nil, 16000, 1, 2)

	tests := []struct {
		name string
		raw  []byte
		hint string
		want Container
	}{
		{"wav magic", wavHeader, "", ContainerWAV},
		{"wav magic beats hint", wavHeader, "mp3", ContainerWAV},
		{"id3 tag", []byte("ID3\x04\x00\x00"), "", ContainerMP3},
		{"mpeg frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "", ContainerMP3},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}, "", ContainerWebM},
		{"ogg", []byte("OggS\x00\x02"), "", ContainerOgg},
		{"flac", []byte("fLaC\x00"), "", ContainerFLAC},
		{"pcm hint", []byte{0x01, 0x02}, "pcm_s16le", ContainerPCM},
		{"mime hint", []byte{0x01, 0x02}, "audio/L16; rate=16000", ContainerPCM},
		{"unknown", []byte{0x01, 0x02}, "", ContainerUnknown},
		{"pcm hint beats frame sync", []byte{0xFF, 0xFF, 0x78, 0x00}, "pcm_s16le", ContainerPCM},
		{"layer I sync is not mp3", []byte{0xFF, 0xFF, 0x78, 0x00}, "", ContainerUnknown},
		{"reserved version is not mp3", []byte{0xFF, 0xEB, 0x90, 0x00}, "", ContainerUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.raw, tt.hint); got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	pcm := samplesToBytes([]int16{1, -1, 2, -2})
	out := EncodeWAV(pcm, 22050, 1, 2)

	if len(out) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(out), 44+len(pcm))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE magic: %q", out[:12])
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 22050 {
		t.Errorf("sample rate = %d, want 22050", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := NewNormalizer().Normalize(nil, "wav")
	if !errors.Is(err, ErrEmpty) || !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrEmpty wrapping ErrDecode", err)
	}
}

func TestNormalizeCanonicalWAVPassesThrough(t *testing.T) {
	in := sine(1600, 16000, 440)
	raw := EncodeWAV(samplesToBytes(in), 16000, 1, 2)

	buf, err := NewNormalizer().Normalize(raw, "")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if buf.SampleRate != CanonicalSampleRate || buf.Channels != CanonicalChannels {
		t.Fatalf("format = %d Hz/%d ch", buf.SampleRate, buf.Channels)
	}
	if buf.Source != ContainerWAV {
		t.Errorf("Source = %q, want wav", buf.Source)
	}
	got := bytesToSamples(buf.Data)
	if len(got) != len(in) {
		t.Fatalf("samples = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Fatalf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
	if d := buf.Duration(); d.Milliseconds() != 100 {
		t.Errorf("Duration = %v, want 100ms", d)
	}
}

func TestNormalizeStereoDownmix(t *testing.T) {
	interleaved := []int16{100, 300, -200, 0, 1000, 1000}
	raw := EncodeWAV(samplesToBytes(interleaved), 16000, 2, 2)

	buf, err := NewNormalizer().Normalize(raw, "")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	got := bytesToSamples(buf.Data)
	want := []int16{200, -100, 1000}
	if len(got) != len(want) {
		t.Fatalf("samples = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestNormalizeResamples(t *testing.T) {
	in := sine(8000, 8000, 300)
	raw := EncodeWAV(samplesToBytes(in), 8000, 1, 2)

	buf, err := NewNormalizer().Normalize(raw, "wav")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if buf.SampleRate != 16000 {
		t.Fatalf("SampleRate = %d, want 16000", buf.SampleRate)
	}
	if buf.Frames() == 0 || buf.Frames() > 2*len(in) {
		t.Errorf("Frames = %d, want (0, %d]", buf.Frames(), 2*len(in))
	}
}

func TestNormalizeRawPCM(t *testing.T) {
	in := sine(320, 16000, 200)

	buf, err := NewNormalizer().Normalize(samplesToBytes(in), "pcm_s16le")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if buf.Frames() != len(in) {
		t.Errorf("Frames = %d, want %d", buf.Frames(), len(in))
	}

	_, err = NewNormalizer().Normalize([]byte{1, 2, 3}, "pcm")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("odd-length pcm err = %v, want ErrDecode", err)
	}
}

func TestNormalizeRawPCMStartingNegative(t *testing.T) {
	in := []int16{-1, 120, -300, 450, -2000, 8}
	for i := 0; i < 314; i++ {
		in = append(in, int16(-i))
	}

	buf, err := NewNormalizer().Normalize(samplesToBytes(in), "pcm_s16le")
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if buf.Source != ContainerPCM || buf.Frames() != len(in) {
		t.Errorf("source = %q, frames = %d, want pcm_s16le, %d", buf.Source, buf.Frames(), len(in))
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name        string
		raw         []byte
		hint        string
		unsupported bool
	}{
		{"corrupt webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42}, "", false},
		{"corrupt ogg", []byte("OggS\x00\x02\x00\x00"), "audio/ogg", false},
		{"garbage", []byte("definitely not audio"), "", true},
		{"truncated wav", []byte("RIFF\x24\x00\x00\x00WAVEfmt "), "", false},
		{"bad mp3", []byte{0xFF, 0xFB, 0x00, 0x00, 0x00}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer().Normalize(tt.raw, tt.hint)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
			if tt.unsupported && !errors.Is(err, ErrUnsupported) {
				t.Errorf("err = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestNormalizeWithoutFFmpeg(t *testing.T) {
	webm := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F, 0x42}

	_, err := NewNormalizer(WithFFmpeg("")).Normalize(webm, "")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("disabled: err = %v, want ErrUnsupported", err)
	}
	_, err = NewNormalizer(WithFFmpeg("/nonexistent/ffmpeg")).Normalize(webm, "")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("missing binary: err = %v, want ErrUnsupported", err)
	}
}

// encodeWithFFmpeg encodes PCM16 at 16 kHz mono into the given ffmpeg output format.
func encodeWithFFmpeg(t *testing.T, pcm []byte, args ...string) []byte {
	t.Helper()
	cmdArgs := append([]string{"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", "16000", "-ac", "1", "-i", "pipe:0"}, args...)
	cmdArgs = append(cmdArgs, "pipe:1")
	cmd := exec.Command("ffmpeg", cmdArgs...)
	cmd.Stdin = bytes.NewReader(pcm)
	out, err := cmd.Output()
	if err != nil || len(out) == 0 {
		t.Skipf("ffmpeg cannot encode %v: %v", args, err)
	}
	return out
}

func TestNormalizeTranscodesWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	pcm := samplesToBytes(sine(16000, 16000, 440))

	tests := []struct {
		name string
		args []string
		want Container
	}{
		{"flac", []string{"-f", "flac"}, ContainerFLAC},
		{"ogg", []string{"-c:a", "flac", "-f", "ogg"}, ContainerOgg},
		{"webm", []string{"-c:a", "libopus", "-f", "webm"}, ContainerWebM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := encodeWithFFmpeg(t, pcm, tt.args...)
			if got := Sniff(encoded, ""); got != tt.want {
				t.Fatalf("Sniff() = %q, want %q", got, tt.want)
			}

			buf, err := NewNormalizer().Normalize(encoded, "")
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			if buf.SampleRate != CanonicalSampleRate || buf.Channels != 1 {
				t.Errorf("format = %d Hz x %d", buf.SampleRate, buf.Channels)
			}
			// One second of audio, allowing for codec priming and padding.
			if f := buf.Frames(); f < 14000 || f > 18000 {
				t.Errorf("Frames = %d, want about 16000", f)
			}
		})
	}
}
