package repositories

import (
	"context"

	"github.com/jarvas-labs/voice-server/domain/entities"
)

// ConversationRepository persists conversation history across turns
type ConversationRepository interface {
	// Create stores a new conversation and assigns its ID
	Create(ctx context.Context, conversation *entities.Conversation) error
	// AppendExchange records one completed turn on an existing conversation
	AppendExchange(ctx context.Context, conversationID, userText, assistantText string) error
	// History returns the messages of a conversation in chronological order
	History(ctx context.Context, conversationID string) ([]entities.ConversationMessage, error)
}
