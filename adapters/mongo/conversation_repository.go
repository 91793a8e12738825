package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jarvas-labs/voice-server/domain/entities"
	"github.com/jarvas-labs/voice-server/domain/repositories"
)

type ConversationRepository struct {
	collection *mongo.Collection
}

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database) repositories.ConversationRepository {
	return &ConversationRepository{
		collection: db.Collection("conversations"),
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

	now := time.Now()
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = now
	}
	if conversation.UpdatedAt.IsZero() {
		conversation.UpdatedAt = now
	}

	doc := bson.M{
		"user_id":    conversation.UserID,
		"title":      conversation.Title,
		"language":   conversation.Language,
		"created_at": conversation.CreatedAt,
		"updated_at": conversation.UpdatedAt,
		"messages":   conversation.Messages,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	// Set the generated ID back to the conversation
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		conversation.ID = oid.Hex()
	}

	return nil
}

// AppendExchange implements repositories.ConversationRepository. It pushes
// one user/assistant pair and updates the title from the first user
// message.
func (r *ConversationRepository) AppendExchange(ctx context.Context, conversationID, userText, assistantText string) error {
	if conversationID == "" {
		return errors.New("conversation ID cannot be empty")
	}

	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation ID format: %w", err)
	}

	now := time.Now()
	exchange := []entities.ConversationMessage{
		{Timestamp: now, Role: entities.MessageRoleUser, Content: userText},
		{Timestamp: now, Role: entities.MessageRoleAssistant, Content: assistantText},
	}

	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": exchange}},
		"$set":  bson.M{"updated_at": now},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to append exchange: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("conversation with ID %s not found", conversationID)
	}

	// The title is derived from the first user message.
	title := entities.TitleFromText(userText)
	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "title": ""},
		bson.M{"$set": bson.M{"title": title}},
	)
	if err != nil {
		return fmt.Errorf("failed to set conversation title: %w", err)
	}

	return nil
}

// History implements repositories.ConversationRepository
func (r *ConversationRepository) History(ctx context.Context, conversationID string) ([]entities.ConversationMessage, error) {
	if conversationID == "" {
		return nil, errors.New("conversation ID cannot be empty")
	}

	objectID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation ID format: %w", err)
	}

	var conversation entities.Conversation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	return conversation.Messages, nil
}
