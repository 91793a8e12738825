package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultElevenLabsVoiceID = "21m00Tcm4TlvDq8ikWAM" // Rachel
	defaultElevenLabsModelID = "eleven_multilingual_v2"
	defaultElevenLabsFormat  = "pcm_24000"
	defaultStability         = 0.5
	defaultClarity           = 0.75
)

// ElevenLabsConfig configures the Eleven Labs adapter. APIKey is required.
type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
	Timeout      time.Duration
}

// ElevenLabsTTS implements TextToSpeech using the Eleven Labs streaming API
type ElevenLabsTTS struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

// NewElevenLabsTTS creates an Eleven Labs adapter
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability < 0 || config.Stability > 1 {
		return nil, fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity < 0 || config.Clarity > 1 {
		return nil, fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultElevenLabsBaseURL
	}
	if config.VoiceID == "" {
		config.VoiceID = defaultElevenLabsVoiceID
	}
	if config.ModelID == "" {
		config.ModelID = defaultElevenLabsModelID
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultElevenLabsFormat
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultPiperChunkSize
	}
	if config.Stability == 0 {
		config.Stability = defaultStability
	}
	if config.Clarity == 0 {
		config.Clarity = defaultClarity
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultPiperTimeout
	}

	return &ElevenLabsTTS{
		cfg:    config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

// Synthesize converts text to speech, streaming the response body in
// fixed-size chunks over the returned channel
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	requestBody, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.cfg.ModelID,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       e.cfg.Stability,
			SimilarityBoost: e.cfg.Clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.cfg.BaseURL, e.cfg.VoiceID, e.cfg.OutputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// PCM output needs an audio/pcm accept header.
	acceptHeader := "audio/mpeg"
	if strings.HasPrefix(e.cfg.OutputFormat, "pcm") {
		acceptHeader = "audio/pcm"
	}
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.cfg.APIKey)

	audioChan := make(chan []byte, 10)

	go func() {
		defer close(audioChan)

		resp, err := e.client.Do(httpReq)
		if err != nil {
			e.logger.Error("Failed to execute synthesis request", zap.Error(err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errorBody, _ := io.ReadAll(resp.Body)
			e.logger.Error("Eleven Labs API returned error",
				zap.Int("statusCode", resp.StatusCode),
				zap.String("response", string(errorBody)))
			return
		}

		buffer := make([]byte, e.cfg.ChunkSize)
		totalBytes := 0
		chunkCount := 0

		for {
			select {
			case <-ctx.Done():
				e.logger.Warn("Context cancelled while streaming audio data")
				return
			default:
				n, err := resp.Body.Read(buffer)
				if n > 0 {
					totalBytes += n
					chunkCount++

					chunk := make([]byte, n)
					copy(chunk, buffer[:n])

					select {
					case audioChan <- chunk:
					case <-ctx.Done():
						e.logger.Warn("Context cancelled while sending audio chunk")
						return
					}
				}

				if err == io.EOF {
					e.logger.Debug("Finished streaming audio data",
						zap.Int("totalChunks", chunkCount),
						zap.Int("totalBytes", totalBytes))
					return
				}
				if err != nil {
					e.logger.Error("Error reading response body", zap.Error(err))
					return
				}
			}
		}
	}()

	return audioChan, nil
}
