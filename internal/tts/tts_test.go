package tts

import (
	"context"
	"errors"
	"testing"
)

var errBoom = errors.New("boom")

func failing() *Mock {
	m := NewMock()
	m.SynthesizeFunc = func(context.Context, string, SynthesizeOpts) (*SynthesizeResult, error) {
		return nil, errBoom
	}
	return m
}

func TestChainFallsBack(t *testing.T) {
	first := failing()
	second := NewMock()

	c, err := NewChain(first, second)
	if err != nil {
		t.Fatalf("NewChain() error: %v", err)
	}
	res, err := c.Synthesize(t.Context(), "hello", SynthesizeOpts{Format: "wav"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if res.Backend != "mock" || string(res.Audio[:4]) != "RIFF" {
		t.Errorf("result = %+v", res)
	}
	if len(first.Calls()) != 1 || len(second.Calls()) != 1 {
		t.Errorf("calls = %d/%d, want 1/1", len(first.Calls()), len(second.Calls()))
	}
}

func TestChainAllFail(t *testing.T) {
	c, _ := NewChain(failing(), failing())

	_, err := c.Synthesize(t.Context(), "hello", SynthesizeOpts{})
	var chainErr *ChainError
	if !errors.As(err, &chainErr) || len(chainErr.Errors) != 2 {
		t.Fatalf("err = %v, want ChainError with 2 errors", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("errors.Is(err, errBoom) = false")
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Backend != "mock" {
		t.Errorf("last error not wrapped with backend: %v", err)
	}
}

func TestChainRequiresBackends(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrNoBackends) {
		t.Fatalf("err = %v, want ErrNoBackends", err)
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	first := NewMock()
	first.SynthesizeFunc = func(context.Context, string, SynthesizeOpts) (*SynthesizeResult, error) {
		cancel()
		return nil, errBoom
	}
	second := NewMock()

	c, _ := NewChain(first, second)
	if _, err := c.Synthesize(ctx, "hello", SynthesizeOpts{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(second.Calls()) != 0 {
		t.Error("second backend called after cancellation")
	}
}

func TestMockDefaults(t *testing.T) {
	m := NewMock()
	if _, err := m.Synthesize(t.Context(), "", SynthesizeOpts{}); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty text err = %v", err)
	}
	if _, err := m.Synthesize(t.Context(), "x", SynthesizeOpts{Format: "mp3"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("mp3 err = %v", err)
	}
	res, err := m.Synthesize(t.Context(), "abc", SynthesizeOpts{Voice: "nova"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if len(res.Audio) != 44+3*640 {
		t.Errorf("audio len = %d", len(res.Audio))
	}
	if got := m.Texts(); len(got) != 3 || got[2] != "abc" {
		t.Errorf("Texts() = %v", got)
	}
}

func TestContentType(t *testing.T) {
	for format, want := range map[string]string{
		"wav": "audio/wav", "MP3": "audio/mpeg", "pcm": "audio/L16", "xyz": "application/octet-stream",
	} {
		if got := ContentType(format); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", format, got, want)
		}
	}
}
