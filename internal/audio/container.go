package audio

import (
	"bytes"
	"strings"
)

// Container identifies the encoding of a submitted recording.
type Container string

const (
	ContainerUnknown Container = ""
	ContainerWAV     Container = "wav"
	ContainerMP3     Container = "mp3"
	ContainerPCM     Container = "pcm_s16le"
	ContainerWebM    Container = "webm"
	ContainerOgg     Container = "ogg"
	ContainerFLAC    Container = "flac"
)

var (
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicID3  = []byte("ID3")
	magicEBML = []byte{0x1A, 0x45, 0xDF, 0xA3}
	magicOgg  = []byte("OggS")
	magicFLAC = []byte("fLaC")
)

// Sniff determines the container. Unambiguous magic bytes win; otherwise a
// recognized client hint is trusted before the weak MPEG frame-sync check,
// since headerless PCM16 often starts with 0xFF bytes.
func Sniff(raw []byte, hint string) Container {
	switch {
	case len(raw) >= 12 && bytes.Equal(raw[0:4], magicRIFF) && bytes.Equal(raw[8:12], magicWAVE):
		return ContainerWAV
	case bytes.HasPrefix(raw, magicID3):
		return ContainerMP3
	case bytes.HasPrefix(raw, magicEBML):
		return ContainerWebM
	case bytes.HasPrefix(raw, magicOgg):
		return ContainerOgg
	case bytes.HasPrefix(raw, magicFLAC):
		return ContainerFLAC
	}
	if c := containerFromHint(hint); c != ContainerUnknown {
		return c
	}
	if isMP3FrameHeader(raw) {
		return ContainerMP3
	}
	return ContainerUnknown
}

// isMP3FrameHeader reports whether raw starts with an MPEG layer III frame
// header with no reserved version, bitrate or sample-rate fields.
func isMP3FrameHeader(raw []byte) bool {
	if len(raw) < 4 || raw[0] != 0xFF || raw[1]&0xE0 != 0xE0 {
		return false
	}
	version := (raw[1] >> 3) & 0x03
	layer := (raw[1] >> 1) & 0x03
	bitrate := raw[2] >> 4
	sampleRate := (raw[2] >> 2) & 0x03
	return version != 0x01 && layer == 0x01 && bitrate != 0x0F && sampleRate != 0x03
}

func containerFromHint(hint string) Container {
	h := strings.ToLower(strings.TrimSpace(hint))
	h = strings.TrimPrefix(h, "audio/")
	if i := strings.IndexByte(h, ';'); i >= 0 {
		h = h[:i]
	}
	switch h {
	case "wav", "wave", "x-wav", "vnd.wave":
		return ContainerWAV
	case "mp3", "mpeg", "mpeg3", "x-mpeg-3":
		return ContainerMP3
	case "pcm", "pcm_s16le", "l16", "raw", "s16le":
		return ContainerPCM
	case "webm":
		return ContainerWebM
	case "ogg", "opus":
		return ContainerOgg
	case "flac", "x-flac":
		return ContainerFLAC
	default:
		return ContainerUnknown
	}
}
