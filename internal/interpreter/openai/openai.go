// Package openai implements the Transcriber and Replier interfaces using
// OpenAI's APIs.
//
// It uses the Audio Transcription API (Whisper) for speech-to-text and the
// Chat Completions API for generating conversational replies.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nadzzz/voicegate/internal/audio"
	"github.com/nadzzz/voicegate/internal/config"
	"github.com/nadzzz/voicegate/internal/history"
	"github.com/nadzzz/voicegate/internal/interpreter"
)

// Interpreter uses OpenAI APIs for transcription and reply generation.
type Interpreter struct {
	client             *openai.Client
	transcriptionModel string
	completionModel    string
	maxTokens          int
}

// New creates a new OpenAI interpreter from config. Extra request options
// are appended after the configured ones.
func New(cfg config.OpenAIConfig, opts ...option.RequestOption) *Interpreter {
	return &Interpreter{
		client:             NewClient(cfg, opts...),
		transcriptionModel: cfg.TranscriptionModel,
		completionModel:    cfg.CompletionModel,
		maxTokens:          cfg.MaxTokens,
	}
}

// NewClient builds an SDK client from config.
func NewClient(cfg config.OpenAIConfig, opts ...option.RequestOption) *openai.Client {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(append(base, opts...)...)
	return &client
}

// Name returns the backend identifier.
func (i *Interpreter) Name() string { return "openai" }

// Transcribe sends the recording to the OpenAI Transcription API as WAV.
func (i *Interpreter) Transcribe(ctx context.Context, pcm *audio.PCMBuffer, opts interpreter.TranscribeOpts) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(pcm.WAV()), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(i.transcriptionModel),
	}
	if opts.Language != "" {
		params.Language = openai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = openai.String(opts.Prompt)
	}

	resp, err := i.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	slog.Debug("transcription complete", "text_length", len(text), "audio_ms", pcm.Duration().Milliseconds())
	return text, nil
}

// Reply sends the persona, the rolling context and the new utterance to the
// Chat Completions API.
func (i *Interpreter) Reply(ctx context.Context, req interpreter.ReplyRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    i.completionModel,
		Messages: buildMessages(req),
	}
	if i.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(i.maxTokens))
	}

	resp, err := i.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from chat API")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", interpreter.ErrEmptyReply
	}

	slog.Debug("reply complete",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

func buildMessages(req interpreter.ReplyRequest) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.Persona != "" {
		msgs = append(msgs, openai.SystemMessage(req.Persona))
	}
	for _, e := range req.History {
		switch e.Role {
		case history.RoleUser:
			msgs = append(msgs, openai.UserMessage(e.Text))
		case history.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(e.Text))
		}
	}
	return append(msgs, openai.UserMessage(req.Utterance))
}
