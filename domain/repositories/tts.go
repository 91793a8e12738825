package repositories

import "context"

// TextToSpeech abstracts speech synthesis services. The returned channel
// streams synthesized audio and is closed when the provider is done. A
// failed or empty synthesis means no audio is available; callers must not
// treat that as a pipeline failure.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}
