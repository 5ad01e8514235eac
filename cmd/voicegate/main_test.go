package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nadzzz/voicegate/internal/config"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "voicegate ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestBackendSelection(t *testing.T) {
	cfg := &config.Config{
		Transcription: config.TranscriptionConfig{Backend: "mock"},
		Reply:         config.ReplyConfig{Backend: "local"},
		Synthesis:     config.SynthesisConfig{Backend: "piper", Fallback: []string{"mock"}},
	}

	tr, err := newTranscriber(cfg)
	if err != nil || tr.Name() != "mock" {
		t.Fatalf("transcriber = %v, %v", tr, err)
	}
	rp, err := newReplier(cfg)
	if err != nil || rp.Name() != "local" {
		t.Fatalf("replier = %v, %v", rp, err)
	}
	sy, err := newSynthesizer(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sy.Name() != "piper+mock" {
		t.Errorf("synthesizer = %q, want piper+mock chain", sy.Name())
	}

	cfg.Synthesis = config.SynthesisConfig{Backend: "mock"}
	if sy, _ := newSynthesizer(cfg); sy.Name() != "mock" {
		t.Errorf("single backend = %q", sy.Name())
	}

	cfg.Transcription.Backend = "carrier-pigeon"
	if _, err := newTranscriber(cfg); err == nil {
		t.Error("unknown transcription backend accepted")
	}
}
