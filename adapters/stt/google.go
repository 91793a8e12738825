package stt

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText using Google Cloud
// Speech-to-Text batch recognition. Sealed utterances are short enough
// for synchronous Recognize, so no streaming session is kept.
type GoogleSpeechToText struct {
	client     *speech.Client
	sampleRate int
	logger     *zap.Logger
}

// Ensure GoogleSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates the Google Cloud adapter. Credentials come
// from the standard GOOGLE_APPLICATION_CREDENTIALS environment.
func NewGoogleSpeechToText(ctx context.Context, sampleRate int, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &GoogleSpeechToText{
		client:     client,
		sampleRate: sampleRate,
		logger:     logger,
	}, nil
}

// Transcribe converts one sealed utterance to text. No recognized speech
// yields an empty transcript with a nil error.
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	if language == "" {
		language = "en-US"
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(g.sampleRate),
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognize request failed: %w", err)
	}

	var transcript string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			transcript += result.Alternatives[0].Transcript
		}
	}

	g.logger.Debug("Recognition complete",
		zap.Int("audioBytes", len(audio)),
		zap.Int("results", len(resp.Results)))
	return transcript, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}
