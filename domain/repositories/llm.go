package repositories

import "context"

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// ResponseGenerator abstracts any chat/LLM provider.
type ResponseGenerator interface {
	// Generate streams response fragments to consume as they are
	// produced. A non-nil error after one or more consume calls means the
	// stream failed mid-way; the fragments already consumed are still
	// valid partial output.
	Generate(ctx context.Context, history []ChatMessage, prompt string, consume func(delta string) error) error
}
