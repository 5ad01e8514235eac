package interpreter

import (
	"context"
	"sync"
	"time"

	"github.com/nadzzz/voicegate/internal/audio"
)

// Mock is a scripted Transcriber and Replier. It backs the "mock" backend
// and is used by tests throughout the module.
type Mock struct {
	mu sync.Mutex

	// TranscribeFunc overrides Transcribe when set.
	TranscribeFunc func(ctx context.Context, pcm *audio.PCMBuffer) (string, error)

	// ReplyFunc overrides Reply when set.
	ReplyFunc func(ctx context.Context, req ReplyRequest) (string, error)

	// Transcript is returned by Transcribe when TranscribeFunc is nil.
	Transcript string

	// Latency delays every call, honoring context cancellation.
	Latency time.Duration

	transcribeCalls int
	replyRequests   []ReplyRequest
}

// NewMock returns a Mock that transcribes every recording as transcript and
// replies by echoing the utterance.
func NewMock(transcript string) *Mock {
	return &Mock{Transcript: transcript}
}

// Name returns the backend identifier.
func (m *Mock) Name() string { return "mock" }

// Transcribe implements Transcriber.
func (m *Mock) Transcribe(ctx context.Context, pcm *audio.PCMBuffer, _ TranscribeOpts) (string, error) {
	m.mu.Lock()
	m.transcribeCalls++
	fn, text := m.TranscribeFunc, m.Transcript
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return "", err
	}
	if fn != nil {
		return fn(ctx, pcm)
	}
	return text, nil
}

// Reply implements Replier.
func (m *Mock) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	m.mu.Lock()
	m.replyRequests = append(m.replyRequests, req)
	fn := m.ReplyFunc
	m.mu.Unlock()

	if err := m.wait(ctx); err != nil {
		return "", err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	return "You said: " + req.Utterance, nil
}

// TranscribeCalls returns how many times Transcribe was called.
func (m *Mock) TranscribeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transcribeCalls
}

// ReplyRequests returns a copy of every request passed to Reply.
func (m *Mock) ReplyRequests() []ReplyRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReplyRequest, len(m.replyRequests))
	copy(out, m.replyRequests)
	return out
}

func (m *Mock) wait(ctx context.Context) error {
	if m.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
