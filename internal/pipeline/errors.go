package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies where a turn failed.
type Kind int

const (
	KindDecode Kind = iota + 1
	KindTranscription
	KindReply
	KindSynthesis
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindTranscription:
		return "transcription"
	case KindReply:
		return "reply"
	case KindSynthesis:
		return "synthesis"
	case KindTransport:
		return "transport"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNoSpeech is reported as a transcription failure when the recording
// contained no recognizable words.
var ErrNoSpeech = errors.New("no speech recognized")

// Error is a classified stage failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// Result is either a value or a classified failure.
type Result[T any] struct {
	Value T
	Err   *Error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps a classified failure.
func Fail[T any](kind Kind, err error) Result[T] {
	return Result[T]{Err: &Error{Kind: kind, Err: err}}
}

// OK reports whether the result holds a value.
func (r Result[T]) OK() bool { return r.Err == nil }
