package tts

import (
	"context"
	"sync"
	"time"

	"github.com/nadzzz/voicegate/internal/audio"
)

// Mock implements Synthesizer for tests and the "mock" backend.
// Synthesis can be customized via SynthesizeFunc.
type Mock struct {
	// SynthesizeFunc overrides the default silent-clip behavior when set.
	SynthesizeFunc func(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Latency delays every call, honoring context cancellation.
	Latency time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Synthesize invocation for verification.
type MockCall struct {
	Text  string
	Voice string
	Time  time.Time
}

// NewMock creates a mock that returns silent WAV clips, roughly 20ms of
// 16 kHz audio per character.
func NewMock() *Mock {
	return &Mock{}
}

// Name returns the backend identifier.
func (m *Mock) Name() string { return "mock" }

// Synthesize records the call and returns a clip.
func (m *Mock) Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Text: text, Voice: opts.Voice, Time: time.Now()})
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if m.Latency > 0 {
		t := time.NewTimer(m.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if fn != nil {
		return fn(ctx, text, opts)
	}
	if text == "" {
		return nil, ErrEmptyText
	}
	if opts.Format != "" && opts.Format != "wav" {
		return nil, WrapError("mock", ErrUnsupportedFormat)
	}

	const bytesPerChar = 640 // 20ms at 16kHz * 2 bytes per sample
	silence := make([]byte, len(text)*bytesPerChar)
	return &SynthesizeResult{
		Audio:       audio.EncodeWAV(silence, 16000, 1, 2),
		Format:      "wav",
		ContentType: "audio/wav",
		Backend:     "mock",
	}, nil
}

// Calls returns a copy of all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Texts returns the text of every recorded call, in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Synthesizer = (*Mock)(nil)
