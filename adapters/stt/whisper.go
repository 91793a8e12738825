package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

const (
	defaultWhisperTimeout    = 30 * time.Second
	defaultWhisperSampleRate = 24000
	defaultWhisperChannels   = 1
)

// WhisperSpeechToText implements SpeechToText against a Whisper-compatible
// HTTP transcription endpoint. The sealed PCM buffer is wrapped in a WAV
// header and posted as a multipart file.
type WhisperSpeechToText struct {
	url        string
	apiKey     string
	model      string
	sampleRate int
	channels   int
	client     *http.Client
	logger     *zap.Logger
}

// Ensure WhisperSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*WhisperSpeechToText)(nil)

// WhisperConfig configures the Whisper adapter. URL is required; the rest
// default to a local PCM mono stream at 24 kHz.
type WhisperConfig struct {
	URL        string
	APIKey     string
	Model      string
	SampleRate int
	Channels   int
	Timeout    time.Duration
}

// NewWhisperSpeechToText creates a Whisper HTTP adapter
func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("whisper endpoint URL is required")
	}
	if config.Model == "" {
		config.Model = "whisper-1"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = defaultWhisperSampleRate
	}
	if config.Channels <= 0 {
		config.Channels = defaultWhisperChannels
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultWhisperTimeout
	}

	return &WhisperSpeechToText{
		url:        config.URL,
		apiKey:     config.APIKey,
		model:      config.Model,
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		client:     &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Transcribe posts the audio buffer and returns the recognized text. An
// empty transcript with a nil error means the service heard no speech.
func (w *WhisperSpeechToText) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wrapWAV(audio, w.sampleRate, w.channels)); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return "", fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", w.url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if w.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		w.logger.Error("Whisper endpoint returned error",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(body)))
		return "", fmt.Errorf("transcription endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse transcription response: %w", err)
	}

	w.logger.Debug("Transcription complete",
		zap.Int("audioBytes", len(audio)),
		zap.Int("textLength", len(result.Text)))
	return result.Text, nil
}

// wrapWAV prefixes raw 16-bit PCM with a RIFF header so the endpoint can
// identify the stream parameters
func wrapWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	return append(header, pcm...)
}
