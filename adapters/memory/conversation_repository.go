package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jarvas-labs/voice-server/domain/entities"
	"github.com/jarvas-labs/voice-server/domain/repositories"
)

// ConversationRepository is an in-memory conversation store used in
// development and tests when no MongoDB is configured
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation
}

// NewConversationRepository creates an empty in-memory repository
func NewConversationRepository() repositories.ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[string]*entities.Conversation),
	}
}

// Create implements repositories.ConversationRepository
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if err := conversation.Validate(); err != nil {
		return err
	}
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *conversation
	stored.Messages = append([]entities.ConversationMessage(nil), conversation.Messages...)
	r.conversations[conversation.ID] = &stored
	return nil
}

// AppendExchange implements repositories.ConversationRepository
func (r *ConversationRepository) AppendExchange(ctx context.Context, conversationID, userText, assistantText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation with ID %s not found", conversationID)
	}
	conversation.AddExchange(userText, assistantText)
	conversation.UpdatedAt = time.Now()
	return nil
}

// History implements repositories.ConversationRepository
func (r *ConversationRepository) History(ctx context.Context, conversationID string) ([]entities.ConversationMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, ok := r.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	return append([]entities.ConversationMessage(nil), conversation.Messages...), nil
}
