package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

// OllamaGenerator implements ResponseGenerator against a local Ollama
// server's chat endpoint, streaming deltas line by line
type OllamaGenerator struct {
	endpoint     string
	model        string
	systemPrompt string
	client       *http.Client
	logger       *zap.Logger
}

// Ensure OllamaGenerator implements the ResponseGenerator interface
var _ repositories.ResponseGenerator = (*OllamaGenerator)(nil)

// NewOllamaGenerator creates an Ollama adapter
func NewOllamaGenerator(endpoint, model, systemPrompt string, logger *zap.Logger) *OllamaGenerator {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaGenerator{
		endpoint:     endpoint,
		model:        model,
		systemPrompt: systemPrompt,
		client:       http.DefaultClient,
		logger:       logger,
	}
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Generate streams the model's reply, invoking consume once per delta.
// The conversation history precedes the prompt in the request messages.
func (g *OllamaGenerator) Generate(ctx context.Context, history []repositories.ChatMessage, prompt string, consume func(delta string) error) error {
	messages := make([]ollamaChatMessage, 0, len(history)+2)
	if g.systemPrompt != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: g.systemPrompt})
	}
	for _, msg := range history {
		messages = append(messages, ollamaChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ollama returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("failed to parse stream line: %w", err)
		}
		if chunk.Message.Content != "" {
			if err := consume(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}
	return scanner.Err()
}
