package piper

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/nadzzz/voicegate/internal/config"
	"github.com/nadzzz/voicegate/internal/tts"
)

// fakePiper accepts one connection, records the synthesize event and
// replies with the given events.
func fakePiper(t *testing.T, reply func(w *bufio.Writer)) (addr string, got <-chan wyomingEvent) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	events := make(chan wyomingEvent, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		evt, _, err := readEvent(bufio.NewReader(conn))
		if err != nil {
			return
		}
		events <- *evt

		w := bufio.NewWriter(conn)
		reply(w)
		w.Flush()
	}()
	return ln.Addr().String(), events
}

func TestSynthesizeWAV(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x00}, 100)
	addr, got := fakePiper(t, func(w *bufio.Writer) {
		_ = writeEvent(w, wyomingEvent{Type: "audio-start", Data: map[string]any{"rate": 16000, "width": 2, "channels": 1}}, nil)
		_ = writeEvent(w, wyomingEvent{Type: "audio-chunk"}, pcm[:120])
		_ = writeEvent(w, wyomingEvent{Type: "audio-chunk"}, pcm[120:])
		_ = writeEvent(w, wyomingEvent{Type: "audio-stop"}, nil)
	})

	s := New(config.PiperConfig{Endpoint: "tcp://" + addr})
	res, err := s.Synthesize(t.Context(), "hello", tts.SynthesizeOpts{Voice: "nova", Format: "wav"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	evt := <-got
	if evt.Type != "synthesize" || evt.Data["text"] != "hello" {
		t.Errorf("request event = %+v", evt)
	}
	voice, _ := evt.Data["voice"].(map[string]any)
	if voice["name"] != "en_US-amy-medium" {
		t.Errorf("voice = %v, want alias resolved", voice["name"])
	}

	if res.Format != "wav" || res.Backend != "piper" {
		t.Errorf("result = %s from %s", res.Format, res.Backend)
	}
	if len(res.Audio) != 44+len(pcm) || string(res.Audio[:4]) != "RIFF" {
		t.Fatalf("audio len = %d, want WAV of %d PCM bytes", len(res.Audio), len(pcm))
	}
	if !bytes.Equal(res.Audio[44:], pcm) {
		t.Error("PCM payload not preserved")
	}
}

func TestSynthesizeServerError(t *testing.T) {
	addr, _ := fakePiper(t, func(w *bufio.Writer) {
		_ = writeEvent(w, wyomingEvent{Type: "error", Data: map[string]any{"text": "voice not found"}}, nil)
	})

	s := New(config.PiperConfig{Endpoint: addr})
	_, err := s.Synthesize(t.Context(), "hello", tts.SynthesizeOpts{Voice: "unknown-voice"})
	if err == nil || err.Error() != "piper error: voice not found" {
		t.Fatalf("err = %v, want piper error", err)
	}
}

func TestSynthesizeRejectsInput(t *testing.T) {
	s := New(config.PiperConfig{Endpoint: "127.0.0.1:1"})

	if _, err := s.Synthesize(t.Context(), "", tts.SynthesizeOpts{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("empty text err = %v", err)
	}
	if _, err := s.Synthesize(t.Context(), "hi", tts.SynthesizeOpts{Format: "mp3"}); !errors.Is(err, tts.ErrUnsupportedFormat) {
		t.Errorf("mp3 err = %v", err)
	}
}

func TestResolveVoiceAndEndpoint(t *testing.T) {
	s := New(config.PiperConfig{
		Endpoint:  "default:10200",
		Endpoints: map[string]string{"fr_FR-siwis-medium": "tcp://french:10200"},
		Voices:    map[string]string{"nova": "custom-nova"},
	})

	tests := []struct {
		opts         tts.SynthesizeOpts
		wantVoice    string
		wantEndpoint string
	}{
		{tts.SynthesizeOpts{Voice: "nova"}, "custom-nova", "default:10200"},
		{tts.SynthesizeOpts{Language: "fr"}, "fr_FR-siwis-medium", "french:10200"},
		{tts.SynthesizeOpts{}, "en_US-lessac-medium", "default:10200"},
		{tts.SynthesizeOpts{Voice: "my-model"}, "my-model", "default:10200"},
	}
	for _, tt := range tests {
		voice, ep := s.resolve(tt.opts)
		if voice != tt.wantVoice || ep != tt.wantEndpoint {
			t.Errorf("resolve(%+v) = %s@%s, want %s@%s", tt.opts, voice, ep, tt.wantVoice, tt.wantEndpoint)
		}
	}
}
