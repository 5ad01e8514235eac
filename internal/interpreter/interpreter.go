// Package interpreter defines the speech-to-text and reply-generation
// capabilities used by the utterance pipeline.
//
// voicegate ships with two real backends: OpenAI (cloud) and Local
// (self-hosted via whisper.cpp / Ollama), plus a scripted Mock for tests and
// offline runs.
package interpreter

import (
	"context"
	"errors"

	"github.com/nadzzz/voicegate/internal/audio"
	"github.com/nadzzz/voicegate/internal/history"
)

// ErrEmptyReply is returned when a model produced no text.
var ErrEmptyReply = errors.New("interpreter: empty reply")

// TranscribeOpts controls transcription behavior.
type TranscribeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "fr") to guide transcription.
	Language string

	// Prompt provides context to improve recognition of domain-specific terms.
	Prompt string
}

// Transcriber converts normalized speech to text.
type Transcriber interface {
	// Name returns the backend identifier (e.g., "openai", "local").
	Name() string

	// Transcribe returns the text spoken in pcm. An empty string means no
	// speech was recognized.
	Transcribe(ctx context.Context, pcm *audio.PCMBuffer, opts TranscribeOpts) (string, error)
}

// ReplyRequest is the input to a reply generator.
type ReplyRequest struct {
	// Persona is the fixed system instruction.
	Persona string

	// History holds prior exchanges, oldest first.
	History []history.Entry

	// Utterance is the user's latest transcribed speech.
	Utterance string
}

// Replier generates the assistant's next response.
type Replier interface {
	Name() string
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}
