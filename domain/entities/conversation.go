package entities

import (
	"errors"
	"time"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ConversationMessage represents one utterance or reply within a conversation
type ConversationMessage struct {
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
}

// Conversation represents the message history of one voice session. It is
// the context collaborator for response generation: every completed turn
// appends a user/assistant exchange, and the generator receives the
// accumulated messages as history.
type Conversation struct {
	ID        string                `json:"id" bson:"_id,omitempty"`
	UserID    string                `json:"user_id" bson:"user_id"`
	Title     string                `json:"title" bson:"title"`
	Language  string                `json:"language" bson:"language"`
	CreatedAt time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time             `json:"updated_at" bson:"updated_at"`
	Messages  []ConversationMessage `json:"messages" bson:"messages"`
}

const titleMaxLen = 100

// NewConversation creates an empty conversation for a user. The title
// stays empty until the first exchange supplies the user's opening words.
func NewConversation(userID, language string) *Conversation {
	now := time.Now()
	return &Conversation{
		UserID:    userID,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]ConversationMessage, 0),
	}
}

// TitleFromText derives a conversation title from the user's opening words
func TitleFromText(s string) string {
	return truncate(s, titleMaxLen)
}

// AddExchange appends one completed turn (user transcript plus assistant
// reply). The first user message also becomes the conversation title.
func (c *Conversation) AddExchange(userText, assistantText string) {
	now := time.Now()
	if c.Title == "" && userText != "" {
		c.Title = TitleFromText(userText)
	}
	c.Messages = append(c.Messages,
		ConversationMessage{Timestamp: now, Role: MessageRoleUser, Content: userText},
		ConversationMessage{Timestamp: now, Role: MessageRoleAssistant, Content: assistantText},
	)
	c.UpdatedAt = now
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
