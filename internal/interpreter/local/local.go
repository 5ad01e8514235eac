// Package local implements the Transcriber and Replier interfaces using
// self-hosted models.
//
// It supports any Whisper-compatible transcription endpoint (e.g., whisper.cpp
// server, faster-whisper) and either Ollama's /api/generate or an
// OpenAI-compatible chat endpoint (e.g., Ollama, vLLM, llama.cpp server).
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/nadzzz/voicegate/internal/audio"
	"github.com/nadzzz/voicegate/internal/config"
	"github.com/nadzzz/voicegate/internal/history"
	"github.com/nadzzz/voicegate/internal/interpreter"
)

// Interpreter uses self-hosted models for transcription and reply generation.
type Interpreter struct {
	whisperEndpoint string
	whisperType     string // "openai" or "asr"
	llmEndpoint     string
	llmModel        string
	defaultLanguage string
	client          *http.Client
}

// New creates a new local interpreter from config.
func New(cfg config.LocalConfig) *Interpreter {
	wt := cfg.WhisperType
	if wt == "" {
		wt = "openai"
	}
	model := cfg.LLMModel
	if model == "" {
		model = "llama3"
	}
	return &Interpreter{
		whisperEndpoint: cfg.WhisperEndpoint,
		whisperType:     wt,
		llmEndpoint:     cfg.LLMEndpoint,
		llmModel:        model,
		defaultLanguage: cfg.Language,
		client:          &http.Client{},
	}
}

// Name returns the backend identifier.
func (i *Interpreter) Name() string { return "local" }

// Transcribe sends the recording as WAV to the local Whisper-compatible
// endpoint. Supports two flavors:
//   - "openai": OpenAI-compatible API (whisper.cpp server, faster-whisper)
//   - "asr":    ahmetoner/whisper-asr-webservice (POST /asr with query params)
func (i *Interpreter) Transcribe(ctx context.Context, pcm *audio.PCMBuffer, opts interpreter.TranscribeOpts) (string, error) {
	lang := opts.Language
	if lang == "" {
		lang = i.defaultLanguage
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	field := "file"
	if i.whisperType == "asr" {
		field = "audio_file"
	}
	part, err := writer.CreateFormFile(field, "audio.wav")
	if err != nil {
		return "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(pcm.WAV()); err != nil {
		return "", fmt.Errorf("writing audio: %w", err)
	}

	endpoint := i.whisperEndpoint
	if i.whisperType == "asr" {
		q := make(url.Values)
		q.Set("task", "transcribe")
		q.Set("output", "json")
		q.Set("encode", "true")
		if lang != "" {
			q.Set("language", lang)
		}
		if opts.Prompt != "" {
			q.Set("initial_prompt", opts.Prompt)
		}
		endpoint += "?" + q.Encode()
	} else {
		if lang != "" {
			_ = writer.WriteField("language", lang)
		}
		if opts.Prompt != "" {
			_ = writer.WriteField("prompt", opts.Prompt)
		}
		_ = writer.WriteField("response_format", "json")
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("local transcription failed (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding transcription: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	slog.Debug("local transcription complete", "flavor", i.whisperType, "text_length", len(text), "language", result.Language)
	return text, nil
}

// Reply sends the conversation to the local LLM endpoint. An endpoint ending
// in /api/generate gets Ollama's prompt format; anything else is treated as
// an OpenAI-compatible chat completions endpoint.
func (i *Interpreter) Reply(ctx context.Context, r interpreter.ReplyRequest) (string, error) {
	var reqBody map[string]any
	if strings.HasSuffix(i.llmEndpoint, "/api/generate") {
		reqBody = map[string]any{
			"model":  i.llmModel,
			"system": r.Persona,
			"prompt": flattenPrompt(r.History, r.Utterance),
			"stream": false,
		}
	} else {
		reqBody = map[string]any{
			"model":    i.llmModel,
			"messages": chatMessages(r),
			"stream":   false,
		}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.llmEndpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local LLM request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("local LLM failed (status %d): %s", resp.StatusCode, respBody)
	}

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading LLM response: %w", err)
	}

	content := strings.TrimSpace(extractContent(respData))
	if content == "" {
		return "", interpreter.ErrEmptyReply
	}

	slog.Debug("local reply complete", "model", i.llmModel, "reply_length", len(content))
	return content, nil
}

// --- Internal helpers ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(r interpreter.ReplyRequest) []chatMessage {
	msgs := make([]chatMessage, 0, len(r.History)+2)
	if r.Persona != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: r.Persona})
	}
	for _, e := range r.History {
		msgs = append(msgs, chatMessage{Role: string(e.Role), Content: e.Text})
	}
	return append(msgs, chatMessage{Role: "user", Content: r.Utterance})
}

// flattenPrompt renders the rolling context as a transcript for
// completion-style endpoints that take a single prompt string.
func flattenPrompt(entries []history.Entry, utterance string) string {
	var sb strings.Builder
	for _, e := range entries {
		switch e.Role {
		case history.RoleUser:
			sb.WriteString("User: ")
		case history.RoleAssistant:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(e.Text)
		sb.WriteByte('\n')
	}
	sb.WriteString("User: ")
	sb.WriteString(utterance)
	sb.WriteString("\nAssistant:")
	return sb.String()
}

func extractContent(data []byte) string {
	// OpenAI-compatible format: {"choices": [{"message": {"content": "..."}}]}
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	// Ollama format: {"response": "..."}
	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}

	return ""
}
