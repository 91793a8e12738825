package llm

import (
	"context"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

// MockGenerator is a scriptable ResponseGenerator for development and
// tests
type MockGenerator struct {
	// Deltas are streamed to consume one by one.
	Deltas []string
	// Err is returned after the deltas have been consumed.
	Err error
	// FailAfter, when positive, stops the stream with Err after that many
	// deltas.
	FailAfter int

	// LastHistory records the history passed to the most recent call.
	LastHistory []repositories.ChatMessage
	// LastPrompt records the prompt of the most recent call.
	LastPrompt string
}

// Ensure MockGenerator implements the ResponseGenerator interface
var _ repositories.ResponseGenerator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock that streams a fixed two-part reply
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Deltas: []string{"I'm doing well, ", "thank you for asking!"},
	}
}

// Generate implements repositories.ResponseGenerator
func (m *MockGenerator) Generate(ctx context.Context, history []repositories.ChatMessage, prompt string, consume func(delta string) error) error {
	m.LastHistory = history
	m.LastPrompt = prompt

	for i, delta := range m.Deltas {
		if m.FailAfter > 0 && i >= m.FailAfter {
			return m.Err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := consume(delta); err != nil {
			return err
		}
	}
	return m.Err
}
