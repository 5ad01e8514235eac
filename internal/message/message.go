// Package message defines the JSON frames exchanged over the voicegate WebSocket.
package message

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Type tags every frame on the wire.
type Type string

const (
	// TypeAudioBlob is a client submission of one recorded utterance.
	TypeAudioBlob Type = "audio_blob"

	// TypeAudioResponse carries synthesized speech back to the client.
	TypeAudioResponse Type = "audio_response"

	// TypeError reports a turn that produced no audio.
	TypeError Type = "error"
)

// Inbound is a frame received from the client.
type Inbound struct {
	// Type selects how the frame is handled. Unknown types are ignored.
	Type Type `json:"type"`

	// Data is the base64-encoded audio payload for audio_blob frames.
	Data string `json:"data,omitempty"`

	// Format is an optional encoding hint (e.g. "wav", "mp3", "pcm_s16le").
	Format string `json:"format,omitempty"`
}

// DecodeInbound parses a text frame from the client.
func DecodeInbound(data []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decoding inbound frame: %w", err)
	}
	return &in, nil
}

// Audio returns the decoded audio payload.
func (m *Inbound) Audio() ([]byte, error) {
	if m.Data == "" {
		return nil, nil
	}
	audio, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 audio: %w", err)
	}
	return audio, nil
}

// AudioResponse is sent for every turn that produced speech.
type AudioResponse struct {
	Type   Type   `json:"type"`
	Data   string `json:"data"`
	Format string `json:"format"`
}

// NewAudioResponse base64-encodes raw audio bytes into an audio_response frame.
func NewAudioResponse(audio []byte, format string) AudioResponse {
	return AudioResponse{
		Type:   TypeAudioResponse,
		Data:   base64.StdEncoding.EncodeToString(audio),
		Format: format,
	}
}

// Error is sent when a turn fails without speech to deliver.
type Error struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// NewError builds an error frame.
func NewError(msg string) Error {
	return Error{Type: TypeError, Message: msg}
}

// Status is the body of the liveness endpoint.
type Status struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}
