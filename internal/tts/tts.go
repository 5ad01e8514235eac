// Package tts defines the interface for text-to-speech synthesis.
//
// voicegate uses TTS to voice every reply, apology and greeting. Backends
// return a complete encoded clip (WAV by default) that is forwarded to the
// client as-is.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure conditions.
var (
	// ErrEmptyText is returned when asked to voice an empty string.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrUnsupportedFormat is returned for output formats a backend cannot produce.
	ErrUnsupportedFormat = errors.New("tts: unsupported output format")

	// ErrNoBackends is returned when a chain is built without backends.
	ErrNoBackends = errors.New("tts: no backends configured")
)

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Voice names the speaker (e.g., "nova"). Backends map it to their own voices.
	Voice string

	// Format is the requested output encoding (e.g., "wav", "mp3").
	Format string

	// Language is an optional ISO-639-1 hint for voice selection.
	Language string
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Name returns the backend identifier (e.g., "openai", "piper").
	Name() string

	// Synthesize generates a complete audio clip for text.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the encoded clip.
	Audio []byte

	// Format is the encoding of Audio (e.g., "wav").
	Format string

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// Backend names the synthesizer that produced the clip.
	Backend string
}

// ContentType returns the MIME type for an output format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "pcm":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}

// BackendError wraps an error with backend context.
type BackendError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("tts [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Err: err}
}
