package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MessageType defines the type of a structured control message
type MessageType string

// Supported message types. Client to server: start, stop, ping, pong.
// Server to client: status, partial_transcript, final_transcript,
// response_delta, response_final, audio_chunk, error, plus ping/pong.
const (
	MessageTypeStart             MessageType = "start"
	MessageTypeStop              MessageType = "stop"
	MessageTypePing              MessageType = "ping"
	MessageTypePong              MessageType = "pong"
	MessageTypeStatus            MessageType = "status"
	MessageTypePartialTranscript MessageType = "partial_transcript"
	MessageTypeFinalTranscript   MessageType = "final_transcript"
	MessageTypeResponseDelta     MessageType = "response_delta"
	MessageTypeResponseFinal     MessageType = "response_final"
	MessageTypeAudioChunk        MessageType = "audio_chunk"
	MessageTypeError             MessageType = "error"
)

var knownTypes = map[MessageType]bool{
	MessageTypeStart:             true,
	MessageTypeStop:              true,
	MessageTypePing:              true,
	MessageTypePong:              true,
	MessageTypeStatus:            true,
	MessageTypePartialTranscript: true,
	MessageTypeFinalTranscript:   true,
	MessageTypeResponseDelta:     true,
	MessageTypeResponseFinal:     true,
	MessageTypeAudioChunk:        true,
	MessageTypeError:             true,
}

// Message is the single structured frame exchanged on a voice connection.
// Only the fields relevant to Type are populated; the rest are omitted on
// the wire. Microphone audio travels as raw binary frames and never
// through this struct, but synthesized audio is delivered as an
// audio_chunk message with a base64 payload.
type Message struct {
	Type MessageType `json:"type"`

	// start
	SessionID string `json:"session_id,omitempty"`
	Language  string `json:"language,omitempty"`

	// status
	Value string `json:"value,omitempty"`

	// partial_transcript, final_transcript, response_delta, response_final
	Text string `json:"text,omitempty"`

	// audio_chunk
	Format        string `json:"format,omitempty"`
	Payload       string `json:"payload,omitempty"`
	SequenceIndex int    `json:"sequence_index,omitempty"`

	// error
	ErrorMessage string `json:"message,omitempty"`
}

// Known reports whether the message type is part of the wire contract.
// Unknown types are ignored by both sides, never treated as fatal.
func (m Message) Known() bool {
	return knownTypes[m.Type]
}

// Encode serializes the message to its JSON wire form
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	return data, nil
}

// AudioPayload decodes the base64 payload of an audio_chunk message
func (m Message) AudioPayload() ([]byte, error) {
	if m.Type != MessageTypeAudioChunk {
		return nil, fmt.Errorf("message type %s carries no audio payload", m.Type)
	}
	data, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid audio payload: %w", err)
	}
	return data, nil
}

// Decode parses a JSON control message from the wire
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("invalid control message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("control message missing type field")
	}
	return msg, nil
}

// NewStartMessage creates the start message that opens a conversation
func NewStartMessage(sessionID, language string) Message {
	return Message{Type: MessageTypeStart, SessionID: sessionID, Language: language}
}

// NewStopMessage creates a stop message
func NewStopMessage() Message {
	return Message{Type: MessageTypeStop}
}

// NewPingMessage creates a keepalive ping
func NewPingMessage() Message {
	return Message{Type: MessageTypePing}
}

// NewPongMessage creates the reply to a ping
func NewPongMessage() Message {
	return Message{Type: MessageTypePong}
}

// NewStatusMessage creates a session status update
func NewStatusMessage(value string) Message {
	return Message{Type: MessageTypeStatus, Value: value}
}

// NewFinalTranscriptMessage creates a final transcript event
func NewFinalTranscriptMessage(text string) Message {
	return Message{Type: MessageTypeFinalTranscript, Text: text}
}

// NewResponseDeltaMessage creates a streamed response fragment event
func NewResponseDeltaMessage(text string) Message {
	return Message{Type: MessageTypeResponseDelta, Text: text}
}

// NewResponseFinalMessage creates the completed response text event
func NewResponseFinalMessage(text string) Message {
	return Message{Type: MessageTypeResponseFinal, Text: text}
}

// NewAudioChunkMessage creates an audio_chunk message, base64-encoding the
// raw audio bytes for transport inside a JSON frame
func NewAudioChunkMessage(format string, payload []byte, sequenceIndex int) Message {
	return Message{
		Type:          MessageTypeAudioChunk,
		Format:        format,
		Payload:       base64.StdEncoding.EncodeToString(payload),
		SequenceIndex: sequenceIndex,
	}
}

// NewErrorMessage creates an error event
func NewErrorMessage(message string) Message {
	return Message{Type: MessageTypeError, ErrorMessage: message}
}
