package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

const (
	defaultGeminiModel       = "gemini-2.0-flash"
	defaultGeminiTemperature = float32(0.7)
	defaultGeminiMaxTokens   = 1024
)

// GeminiGenerator implements ResponseGenerator using Google's Gemini API.
// Gemini replies arrive in one piece, so consume receives a single delta
// carrying the whole response.
type GeminiGenerator struct {
	client       *genai.Client
	model        string
	systemPrompt string
	logger       *zap.Logger
}

// Ensure GeminiGenerator implements the ResponseGenerator interface
var _ repositories.ResponseGenerator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a Gemini adapter. The API key comes from the
// GEMINI_API_KEY environment variable.
func NewGeminiGenerator(model, systemPrompt string, logger *zap.Logger) (*GeminiGenerator, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiGenerator{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
		logger:       logger,
	}, nil
}

// Generate implements repositories.ResponseGenerator
func (g *GeminiGenerator) Generate(ctx context.Context, history []repositories.ChatMessage, prompt string, consume func(delta string) error) error {
	var contents []*genai.Content
	if g.systemPrompt != "" {
		contents = append(contents, genai.NewContentFromText(g.systemPrompt, genai.RoleUser))
	}
	for _, msg := range history {
		role := genai.Role(genai.RoleUser)
		if msg.Role == repositories.AssistantRole {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(defaultGeminiTemperature),
		MaxOutputTokens: int32(defaultGeminiMaxTokens),
	}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < 2 {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	if err != nil {
		return fmt.Errorf("gemini generation failed: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return fmt.Errorf("gemini returned no candidates")
	}

	var text string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	if text == "" {
		return fmt.Errorf("gemini returned empty response")
	}

	return consume(text)
}
