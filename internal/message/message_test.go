package message

import (
	"encoding/json"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantType  Type
		wantAudio string
		wantErr   bool
		audioErr  bool
	}{
		{"audio blob", `{"type":"audio_blob","data":"aGVsbG8="}`, TypeAudioBlob, "hello", false, false},
		{"with format", `{"type":"audio_blob","data":"aGk=","format":"wav"}`, TypeAudioBlob, "hi", false, false},
		{"unknown type", `{"type":"ping"}`, Type("ping"), "", false, false},
		{"missing data", `{"type":"audio_blob"}`, TypeAudioBlob, "", false, false},
		{"bad base64", `{"type":"audio_blob","data":"***"}`, TypeAudioBlob, "", false, true},
		{"not json", `hello`, "", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInbound([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("DecodeInbound() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeInbound() error: %v", err)
			}
			if in.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", in.Type, tt.wantType)
			}
			audio, err := in.Audio()
			if tt.audioErr != (err != nil) {
				t.Fatalf("Audio() error = %v, want error %v", err, tt.audioErr)
			}
			if string(audio) != tt.wantAudio {
				t.Errorf("Audio() = %q, want %q", audio, tt.wantAudio)
			}
		})
	}
}

func TestOutboundFrames(t *testing.T) {
	b, _ := json.Marshal(NewAudioResponse([]byte("hello"), "wav"))
	if string(b) != `{"type":"audio_response","data":"aGVsbG8=","format":"wav"}` {
		t.Errorf("audio_response = %s", b)
	}

	b, _ = json.Marshal(NewError("TTS generation failed: boom"))
	if string(b) != `{"type":"error","message":"TTS generation failed: boom"}` {
		t.Errorf("error = %s", b)
	}
}
