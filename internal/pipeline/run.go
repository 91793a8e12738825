package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/entities"
	"github.com/jarvas-labs/voice-server/domain/repositories"
)

// EventType identifies one kind of pipeline progress event
type EventType string

const (
	EventFinalTranscript EventType = "final_transcript"
	EventResponseDelta   EventType = "response_delta"
	EventResponseFinal   EventType = "response_final"
	EventAudioChunk      EventType = "audio_chunk"
	EventError           EventType = "error"
)

// Event is one progress event of a pipeline run. Events are emitted in
// pipeline order: final_transcript, then response_delta*, then
// response_final, then audio_chunk*. An error event terminates the run.
type Event struct {
	Type          EventType
	Text          string
	Audio         []byte
	Format        string
	SequenceIndex int
}

// Status tracks how far a run has progressed
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusGenerating   Status = "generating"
	StatusSynthesizing Status = "synthesizing"
	StatusDone         Status = "done"
	StatusError        Status = "error"
)

// Request describes one sealed utterance to process
type Request struct {
	RunID          string
	SessionID      string
	ConversationID string
	UserID         string
	Language       string
	Audio          []byte
}

// Config carries the per-stage timeouts and output format of a run
type Config struct {
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration

	// AudioFormat identifies the synthesis output codec on the wire,
	// e.g. "audio/pcm;rate=24000".
	AudioFormat string

	// NoSpeechMessage is the error text emitted when transcription
	// produces no text for a sealed utterance.
	NoSpeechMessage string
}

const (
	defaultTranscribeTimeout = 30 * time.Second
	defaultGenerateTimeout   = 60 * time.Second
	defaultSynthesizeTimeout = 10 * time.Second
	defaultAudioFormat       = "audio/pcm;rate=24000"
	defaultNoSpeechMessage   = "no speech detected"
)

func (c Config) withDefaults() Config {
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = defaultTranscribeTimeout
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = defaultGenerateTimeout
	}
	if c.SynthesizeTimeout <= 0 {
		c.SynthesizeTimeout = defaultSynthesizeTimeout
	}
	if c.AudioFormat == "" {
		c.AudioFormat = defaultAudioFormat
	}
	if c.NoSpeechMessage == "" {
		c.NoSpeechMessage = defaultNoSpeechMessage
	}
	return c
}

// Orchestrator drives transcription, response generation and speech
// synthesis for sealed utterances. It assumes single-caller discipline:
// the session state machine guarantees at most one run in flight per
// session, so the orchestrator carries no per-session locking.
type Orchestrator struct {
	stt           repositories.SpeechToText
	llm           repositories.ResponseGenerator
	tts           repositories.TextToSpeech
	conversations repositories.ConversationRepository
	cfg           Config
	logger        *zap.Logger
}

// NewOrchestrator creates an orchestrator over the three providers and
// the conversation history collaborator
func NewOrchestrator(
	stt repositories.SpeechToText,
	llm repositories.ResponseGenerator,
	tts repositories.TextToSpeech,
	conversations repositories.ConversationRepository,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		stt:           stt,
		llm:           llm,
		tts:           tts,
		conversations: conversations,
		cfg:           cfg.withDefaults(),
		logger:        logger,
	}
}

// Run processes one sealed utterance and streams progress events. The
// returned channel is closed when the run terminates, successfully or
// not. Cancelling ctx stops the run at the next stage boundary; results
// of an in-flight stage are discarded, not emitted.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- Event) {
	logger := o.logger.With(
		zap.String("runID", req.RunID),
		zap.String("sessionID", req.SessionID))

	logger.Debug("Run stage", zap.String("status", string(StatusTranscribing)))
	transcript, err := o.transcribe(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("Run cancelled during transcription")
			return
		}
		logger.Error("Transcription failed", zap.Error(err))
		o.emit(ctx, events, Event{Type: EventError, Text: "transcription failed"})
		return
	}
	if transcript == "" {
		logger.Warn("No transcript from speech recognition, skipping turn")
		o.emit(ctx, events, Event{Type: EventError, Text: o.cfg.NoSpeechMessage})
		return
	}
	if !o.emit(ctx, events, Event{Type: EventFinalTranscript, Text: transcript}) {
		return
	}

	logger.Debug("Run stage", zap.String("status", string(StatusGenerating)))
	response, genErr := o.generate(ctx, req, transcript, events)
	if genErr != nil && response == "" {
		if ctx.Err() != nil {
			logger.Info("Run cancelled during generation")
			return
		}
		logger.Error("Generation failed before producing any text", zap.Error(genErr))
		o.emit(ctx, events, Event{Type: EventError, Text: "failed to generate response"})
		return
	}
	// Mid-stream generation failure: deliver whatever accumulated as the
	// final response and skip synthesis.
	if !o.emit(ctx, events, Event{Type: EventResponseFinal, Text: response}) {
		return
	}

	o.saveExchange(req, transcript, response)

	if genErr != nil {
		logger.Warn("Generation failed mid-stream, delivering partial text without audio",
			zap.Error(genErr))
		return
	}

	logger.Debug("Run stage", zap.String("status", string(StatusSynthesizing)))
	o.synthesize(ctx, req, response, events, logger)

	logger.Info("Pipeline run complete",
		zap.String("status", string(StatusDone)),
		zap.String("transcript", transcript),
		zap.Int("responseLength", len(response)))
}

func (o *Orchestrator) transcribe(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TranscribeTimeout)
	defer cancel()

	transcript, err := o.stt.Transcribe(ctx, req.Audio, req.Language)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(transcript), nil
}

func (o *Orchestrator) generate(ctx context.Context, req Request, transcript string, events chan<- Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	defer cancel()

	history := o.history(ctx, req.ConversationID)

	var accumulated strings.Builder
	err := o.llm.Generate(ctx, history, transcript, func(delta string) error {
		if delta == "" {
			return nil
		}
		accumulated.WriteString(delta)
		if !o.emit(ctx, events, Event{Type: EventResponseDelta, Text: delta}) {
			return ctx.Err()
		}
		return nil
	})
	return accumulated.String(), err
}

func (o *Orchestrator) synthesize(ctx context.Context, req Request, text string, events chan<- Event, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SynthesizeTimeout)
	defer cancel()

	chunks, err := o.tts.Synthesize(ctx, text)
	if err != nil {
		// No audio available; the textual response already went out.
		logger.Warn("Speech synthesis unavailable", zap.Error(err))
		return
	}

	seq := 0
	for chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		if !o.emit(ctx, events, Event{
			Type:          EventAudioChunk,
			Audio:         chunk,
			Format:        o.cfg.AudioFormat,
			SequenceIndex: seq,
		}) {
			return
		}
		seq++
	}
}

func (o *Orchestrator) history(ctx context.Context, conversationID string) []repositories.ChatMessage {
	if o.conversations == nil || conversationID == "" {
		return nil
	}
	messages, err := o.conversations.History(ctx, conversationID)
	if err != nil {
		o.logger.Warn("Failed to load conversation history, using empty context",
			zap.String("conversationID", conversationID),
			zap.Error(err))
		return nil
	}
	history := make([]repositories.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		role := repositories.UserRole
		if msg.Role == entities.MessageRoleAssistant {
			role = repositories.AssistantRole
		}
		history = append(history, repositories.ChatMessage{Role: role, Content: msg.Content})
	}
	return history
}

func (o *Orchestrator) saveExchange(req Request, transcript, response string) {
	if o.conversations == nil || req.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.conversations.AppendExchange(ctx, req.ConversationID, transcript, response); err != nil {
		o.logger.Error("Failed to save conversation exchange",
			zap.String("conversationID", req.ConversationID),
			zap.Error(err))
	}
}

// emit delivers an event unless the run has been cancelled. It reports
// whether the event was delivered.
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
