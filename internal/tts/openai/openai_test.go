package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/nadzzz/voicegate/internal/config"
	"github.com/nadzzz/voicegate/internal/tts"
)

func TestSynthesize(t *testing.T) {
	var got struct {
		Model          string `json:"model"`
		Input          string `json:"input"`
		Voice          string `json:"voice"`
		ResponseFormat string `json:"response_format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF....WAVEfake"))
	}))
	defer srv.Close()

	s := New(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", SpeechModel: "tts-1"}, option.WithMaxRetries(0))
	res, err := s.Synthesize(t.Context(), "Hi! I am Alice.", tts.SynthesizeOpts{Voice: "nova", Format: "wav"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if string(res.Audio) != "RIFF....WAVEfake" || res.ContentType != "audio/wav" {
		t.Errorf("result = %q (%s)", res.Audio, res.ContentType)
	}
	if got.Model != "tts-1" || got.Voice != "nova" || got.ResponseFormat != "wav" || got.Input != "Hi! I am Alice." {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid voice"}}`))
	}))
	defer srv.Close()

	s := New(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", SpeechModel: "tts-1"}, option.WithMaxRetries(0))
	if _, err := s.Synthesize(t.Context(), "hi", tts.SynthesizeOpts{Voice: "bogus"}); err == nil {
		t.Fatal("Synthesize() error = nil, want API error")
	}
}

func TestSynthesizeRejectsUnknownFormat(t *testing.T) {
	s := New(config.OpenAIConfig{APIKey: "k"})
	_, err := s.Synthesize(t.Context(), "hi", tts.SynthesizeOpts{Format: "midi"})
	if !errors.Is(err, tts.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}
