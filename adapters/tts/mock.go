package tts

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

// MockTextToSpeech emits deterministic PCM-shaped chunks for development
// and tests
type MockTextToSpeech struct {
	// Chunks, when set, are streamed instead of the generated payload.
	Chunks [][]byte
	// Err, when set, fails the call before any audio streams.
	Err error

	logger *zap.Logger
}

// Ensure MockTextToSpeech implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a mock synthesizer
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// Synthesize implements repositories.TextToSpeech
func (m *MockTextToSpeech) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	chunks := m.Chunks
	if chunks == nil {
		// One chunk per word keeps the stream shape realistic.
		for i, word := range strings.Fields(text) {
			chunk := make([]byte, 320)
			for j := range chunk {
				chunk[j] = byte((i + len(word) + j) % 251)
			}
			chunks = append(chunks, chunk)
		}
	}

	audioChan := make(chan []byte, len(chunks))
	go func() {
		defer close(audioChan)
		for _, chunk := range chunks {
			select {
			case audioChan <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	m.logger.Debug("Mock synthesis", zap.Int("chunks", len(chunks)))
	return audioChan, nil
}
