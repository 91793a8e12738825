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
	defaultPiperChunkSize = 1024
	defaultPiperTimeout   = 60 * time.Second
)

// PiperTTS implements TextToSpeech against a Piper-compatible HTTP
// synthesis endpoint that returns raw PCM audio
type PiperTTS struct {
	url       string
	voice     string
	chunkSize int
	client    *http.Client
	logger    *zap.Logger
}

// Ensure PiperTTS implements the TextToSpeech interface
var _ repositories.TextToSpeech = (*PiperTTS)(nil)

// PiperConfig configures the Piper adapter. URL is required.
type PiperConfig struct {
	URL       string
	Voice     string
	ChunkSize int
	Timeout   time.Duration
}

// NewPiperTTS creates a Piper HTTP adapter
func NewPiperTTS(config PiperConfig, logger *zap.Logger) (*PiperTTS, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("piper endpoint URL is required")
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaultPiperChunkSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultPiperTimeout
	}

	return &PiperTTS{
		url:       config.URL,
		voice:     config.Voice,
		chunkSize: config.ChunkSize,
		client:    &http.Client{Timeout: config.Timeout},
		logger:    logger,
	}, nil
}

type piperRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize converts text to speech, streaming the response body in
// fixed-size chunks over the returned channel
func (p *PiperTTS) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	requestBody, err := json.Marshal(piperRequest{Text: text, Voice: p.voice})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/pcm")

	audioChan := make(chan []byte, 10)

	go func() {
		defer close(audioChan)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			p.logger.Error("Failed to execute synthesis request", zap.Error(err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errorBody, _ := io.ReadAll(resp.Body)
			p.logger.Error("Synthesis endpoint returned error",
				zap.Int("statusCode", resp.StatusCode),
				zap.String("response", string(errorBody)))
			return
		}

		buffer := make([]byte, p.chunkSize)
		totalBytes := 0
		chunkCount := 0

		for {
			select {
			case <-ctx.Done():
				p.logger.Warn("Context cancelled while streaming audio data")
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
						p.logger.Warn("Context cancelled while sending audio chunk")
						return
					}
				}

				if err == io.EOF {
					p.logger.Debug("Finished streaming audio data",
						zap.Int("totalChunks", chunkCount),
						zap.Int("totalBytes", totalBytes))
					return
				}
				if err != nil {
					p.logger.Error("Error reading response body", zap.Error(err))
					return
				}
			}
		}
	}()

	return audioChan, nil
}
