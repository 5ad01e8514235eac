// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200. This package
// implements a client for that protocol to synthesize speech.
package piper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/voicegate/internal/audio"
	"github.com/nadzzz/voicegate/internal/config"
	"github.com/nadzzz/voicegate/internal/tts"
)

// defaultVoices maps OpenAI-style voice aliases and ISO-639-1 language codes
// to Piper voice model names.
var defaultVoices = map[string]string{
	"nova":    "en_US-amy-medium",
	"shimmer": "en_US-kristin-medium",
	"alloy":   "en_US-lessac-medium",
	"echo":    "en_US-ryan-medium",
	"fable":   "en_GB-alan-medium",
	"onyx":    "en_US-joe-medium",

	"en": "en_US-lessac-medium",
	"fr": "fr_FR-siwis-medium",
	"es": "es_ES-mls_10246-low",
	"de": "de_DE-thorsten-medium",
	"it": "it_IT-riccardo-x_low",
	"pt": "pt_BR-faber-medium",
	"ja": "ja_JP-amitaro-medium",
	"zh": "zh_CN-huayan-medium",
}

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint    string            // default host:port of the Piper Wyoming server
	endpoints   map[string]string // voice -> host:port for dedicated Piper instances
	voices      map[string]string // alias -> Piper voice model
	dialTimeout time.Duration
}

// New creates a new Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	voices := make(map[string]string, len(defaultVoices)+len(cfg.Voices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for voice, ep := range cfg.Endpoints {
		endpoints[voice] = cleanEndpoint(ep)
	}

	return &Synthesizer{
		endpoint:    cleanEndpoint(cfg.Endpoint),
		endpoints:   endpoints,
		voices:      voices,
		dialTimeout: 10 * time.Second,
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")
	return ep
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "piper" }

// Synthesize sends text to the Piper server and returns the clip as WAV
// (or raw PCM when opts.Format is "pcm").
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "wav"
	}
	if format != "wav" && format != "pcm" {
		return nil, fmt.Errorf("%w: piper produces wav or pcm, not %q", tts.ErrUnsupportedFormat, opts.Format)
	}

	voice, endpoint := s.resolve(opts)
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for voice %q", opts.Voice)
	}

	slog.Debug("piper synthesize", "text_length", len(text), "voice", voice, "endpoint", endpoint)

	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	pcm, sampleRate, channels, width, err := synthesize(conn, text, voice)
	if err != nil {
		return nil, err
	}

	if format == "pcm" {
		return &tts.SynthesizeResult{
			Audio:       pcm,
			Format:      "pcm",
			ContentType: tts.ContentType("pcm"),
			Backend:     "piper",
		}, nil
	}
	return &tts.SynthesizeResult{
		Audio:       audio.EncodeWAV(pcm, sampleRate, channels, width),
		Format:      "wav",
		ContentType: "audio/wav",
		Backend:     "piper",
	}, nil
}

// resolve picks the Piper voice model and endpoint for the request. An
// explicit voice wins over the language hint; unknown voices are passed
// through as model names.
func (s *Synthesizer) resolve(opts tts.SynthesizeOpts) (voice, endpoint string) {
	key := opts.Voice
	if key == "" {
		key = opts.Language
	}
	voice = s.voices[key]
	if voice == "" {
		voice = key
	}
	if voice == "" {
		voice = s.voices["en"]
	}

	endpoint = s.endpoints[opts.Voice]
	if endpoint == "" {
		endpoint = s.endpoints[voice]
	}
	if endpoint == "" {
		endpoint = s.endpoint
	}
	return voice, endpoint
}

// synthesize runs one request/response exchange over an open connection:
// synthesize → audio-start → audio-chunk* → audio-stop.
func synthesize(conn net.Conn, text, voice string) (pcm []byte, sampleRate, channels, width int, err error) {
	synthEvent := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": voice},
		},
	}
	if err := writeEvent(conn, synthEvent, nil); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("sending synthesize event: %w", err)
	}

	var pcmBuf bytes.Buffer
	sampleRate, channels, width = 22050, 1, 2

	r := bufio.NewReader(conn)
	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, 0, 0, 0, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				sampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				channels = int(ch)
			}
			if w, ok := evt.Data["width"].(float64); ok {
				width = int(w)
			}

		case "audio-chunk":
			pcmBuf.Write(payload)

		case "audio-stop":
			if pcmBuf.Len() == 0 {
				return nil, 0, 0, 0, fmt.Errorf("piper returned no audio")
			}
			slog.Debug("piper audio-stop", "pcm_bytes", pcmBuf.Len(), "rate", sampleRate)
			return pcmBuf.Bytes(), sampleRate, channels, width, nil

		case "error":
			msg := "unknown error"
			if t, ok := evt.Data["text"].(string); ok {
				msg = t
			}
			return nil, 0, 0, 0, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
