package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

// MockSpeechToText is a canned-response recognizer for development and
// tests
type MockSpeechToText struct {
	// Transcript is returned for every non-empty buffer. Empty means the
	// mock heard nothing.
	Transcript string
	// Err, when set, is returned instead of a transcript.
	Err error

	logger *zap.Logger

	calls int
}

// Ensure MockSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a mock that recognizes a fixed phrase
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{
		Transcript: "hello, how are you today",
		logger:     logger,
	}
}

// Transcribe implements repositories.SpeechToText
func (m *MockSpeechToText) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	m.calls++
	if m.Err != nil {
		return "", m.Err
	}
	if len(audio) == 0 {
		return "", nil
	}
	m.logger.Debug("Mock transcription",
		zap.Int("call", m.calls),
		zap.Int("audioBytes", len(audio)),
		zap.String("language", language))
	return m.Transcript, nil
}

// Calls returns how many times Transcribe ran
func (m *MockSpeechToText) Calls() int {
	return m.calls
}
