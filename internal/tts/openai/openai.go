// Package openai implements the TTS Synthesizer using OpenAI's speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nadzzz/voicegate/internal/config"
	"github.com/nadzzz/voicegate/internal/tts"
)

// maxClipBytes bounds a single synthesized clip.
const maxClipBytes = 32 << 20

var formats = map[string]bool{
	"wav": true, "mp3": true, "opus": true, "aac": true, "flac": true, "pcm": true,
}

// Synthesizer calls the OpenAI /audio/speech endpoint.
type Synthesizer struct {
	client *openai.Client
	model  string
}

// New creates a new OpenAI synthesizer from config.
func New(cfg config.OpenAIConfig, opts ...option.RequestOption) *Synthesizer {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(append(base, opts...)...)
	return &Synthesizer{client: &client, model: cfg.SpeechModel}
}

// Name returns the backend identifier.
func (s *Synthesizer) Name() string { return "openai" }

// Synthesize generates speech for text in the requested voice and format.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "wav"
	}
	if !formats[format] {
		return nil, fmt.Errorf("%w: %q", tts.ErrUnsupportedFormat, opts.Format)
	}
	voice := opts.Voice
	if voice == "" {
		voice = "nova"
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(format),
	})
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("speech failed (status %d): %s", resp.StatusCode, body)
	}

	clip, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("reading speech audio: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("speech API returned no audio")
	}

	slog.Debug("speech complete", "voice", voice, "format", format, "bytes", len(clip))
	return &tts.SynthesizeResult{
		Audio:       clip,
		Format:      format,
		ContentType: tts.ContentType(format),
		Backend:     "openai",
	}, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
