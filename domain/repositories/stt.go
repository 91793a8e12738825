package repositories

import "context"

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// Transcribe converts a complete utterance to text. An empty string
	// with a nil error means the provider recognized no speech; that is a
	// legitimate outcome, not a failure.
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}
