package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/domain/entities"
	"github.com/jarvas-labs/voice-server/domain/repositories"
	"github.com/jarvas-labs/voice-server/internal/pipeline"
	"github.com/jarvas-labs/voice-server/internal/protocol"
)

// Sender delivers control messages to the connected client. The websocket
// client implements it.
type Sender interface {
	SendControl(msg protocol.Message) error
}

// Runner starts pipeline runs. *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) <-chan pipeline.Event
}

// Config carries the per-session tunables
type Config struct {
	// SealChunks is the turn-detection threshold: the utterance seals
	// once this many chunks arrived since the last seal.
	SealChunks int
	// MinUtteranceBytes discards sealed buffers smaller than this without
	// a pipeline run.
	MinUtteranceBytes int
	// DefaultLanguage applies when the start message names none.
	DefaultLanguage string
}

const (
	defaultSealChunks        = 5
	defaultMinUtteranceBytes = 50 * 1024
	defaultLanguage          = "pt"
)

func (c Config) withDefaults() Config {
	if c.SealChunks <= 0 {
		c.SealChunks = defaultSealChunks
	}
	if c.MinUtteranceBytes < 0 {
		c.MinUtteranceBytes = defaultMinUtteranceBytes
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = defaultLanguage
	}
	return c
}

// Session owns the state of one voice conversation connection. It is the
// single owner of the turn detector and the only starter of pipeline
// runs; at most one run is in flight at any time because the machine
// leaves StateListening while a run is active.
type Session struct {
	ID        string
	UserID    string
	Language  string
	CreatedAt time.Time

	machine       *Machine
	detector      *TurnDetector
	runner        Runner
	conversations repositories.ConversationRepository
	sender        Sender
	cfg           Config
	logger        *zap.Logger

	mu        sync.Mutex
	convID    string
	runCancel context.CancelFunc
	runActive bool
	audioSeq  int
}

// New creates a session for a freshly accepted connection. The machine
// starts in StateConnected; the caller should invoke Announce to push the
// initial status to the client.
func New(
	userID string,
	runner Runner,
	conversations repositories.ConversationRepository,
	sender Sender,
	cfg Config,
	logger *zap.Logger,
) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		UserID:    userID,
		CreatedAt: time.Now(),
		machine:   NewMachine(),
		detector: NewTurnDetector(
			ChunkCountStrategy{Threshold: cfg.SealChunks},
			cfg.MinUtteranceBytes,
			logger,
		),
		runner:        runner,
		conversations: conversations,
		sender:        sender,
		cfg:           cfg,
		logger:        logger,
	}
}

// State returns the current session state
func (s *Session) State() State {
	return s.machine.Current()
}

// Announce pushes the current state to the client, used right after the
// connection is accepted
func (s *Session) Announce() {
	s.sendStatus(s.machine.Current())
}

// HandleControl processes one inbound control message. Messages that have
// no defined transition in the current state are logged and ignored, never
// treated as protocol errors.
func (s *Session) HandleControl(msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeStart:
		s.handleStart(msg)
	case protocol.MessageTypeStop:
		s.handleStop()
	case protocol.MessageTypePing:
		s.send(protocol.NewPongMessage())
	case protocol.MessageTypePong:
		// Keepalive reply; nothing to do beyond the transport-level
		// deadline reset done by the connection.
	default:
		s.logger.Warn("Ignoring control message",
			zap.String("type", string(msg.Type)),
			zap.String("state", string(s.machine.Current())))
	}
}

func (s *Session) handleStart(msg protocol.Message) {
	if err := s.machine.Transition(StateListening); err != nil {
		s.logger.Warn("Ignoring start message",
			zap.String("state", string(s.machine.Current())),
			zap.Error(err))
		return
	}

	s.ID = msg.SessionID
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Language = msg.Language
	if s.Language == "" {
		s.Language = s.cfg.DefaultLanguage
	}

	s.createConversation()

	s.logger.Info("Voice conversation started",
		zap.String("sessionID", s.ID),
		zap.String("userID", s.UserID),
		zap.String("language", s.Language))

	s.sendStatus(StateListening)
}

func (s *Session) handleStop() {
	current := s.machine.Current()
	if current == StateStopped {
		return
	}

	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if dropped := s.detector.Discard(); dropped > 0 {
		s.logger.Debug("Discarded pending utterance on stop", zap.Int("chunks", dropped))
	}

	if err := s.machine.Transition(StateStopped); err != nil {
		s.logger.Warn("Stop transition rejected", zap.Error(err))
		return
	}

	s.logger.Info("Voice conversation stopped", zap.String("sessionID", s.ID))
	s.sendStatus(StateStopped)
}

// HandleAudio processes one inbound binary audio chunk. Chunks arriving
// outside StateListening are dropped: the session never seals a new
// utterance while a pipeline run is active.
func (s *Session) HandleAudio(chunk []byte) {
	if !s.machine.Is(StateListening) {
		s.logger.Debug("Dropping audio chunk outside listening state",
			zap.String("state", string(s.machine.Current())),
			zap.Int("size", len(chunk)))
		return
	}

	sealed, ok := s.detector.Ingest(chunk)
	if !ok {
		return
	}
	s.startRun(sealed)
}

// Close releases the session on disconnect, cancelling any in-flight run
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.detector.Discard()
	if err := s.machine.Transition(StateDisconnected); err == nil {
		s.logger.Info("Session disconnected", zap.String("sessionID", s.ID))
	}
}

func (s *Session) startRun(audio []byte) {
	s.mu.Lock()
	if s.runActive {
		s.mu.Unlock()
		s.logger.Warn("Rejecting pipeline run, one is already active",
			zap.String("sessionID", s.ID))
		return
	}
	s.runActive = true
	ctx, cancel := context.WithCancel(context.Background())
	s.runCancel = cancel
	s.mu.Unlock()

	if err := s.machine.Transition(StateThinking); err != nil {
		s.logger.Warn("Cannot enter thinking state", zap.Error(err))
		s.finishRun()
		cancel()
		return
	}
	s.sendStatus(StateThinking)

	req := pipeline.Request{
		RunID:          uuid.NewString(),
		SessionID:      s.ID,
		ConversationID: s.conversationID(),
		UserID:         s.UserID,
		Language:       s.Language,
		Audio:          audio,
	}
	events := s.runner.Run(ctx, req)
	go s.consumeRun(events)
}

// consumeRun forwards pipeline events to the client and drives the
// THINKING -> SPEAKING -> LISTENING leg of the state machine. Events
// arriving after a stop are dropped rather than sent.
func (s *Session) consumeRun(events <-chan pipeline.Event) {
	sentAudio := false
	failed := false

	for ev := range events {
		if s.machine.Is(StateStopped) || s.machine.Is(StateDisconnected) {
			// Discard in-flight results after stop; nothing further
			// reaches the client.
			continue
		}

		switch ev.Type {
		case pipeline.EventFinalTranscript:
			s.send(protocol.NewFinalTranscriptMessage(ev.Text))
		case pipeline.EventResponseDelta:
			s.send(protocol.NewResponseDeltaMessage(ev.Text))
		case pipeline.EventResponseFinal:
			s.send(protocol.NewResponseFinalMessage(ev.Text))
		case pipeline.EventAudioChunk:
			if !sentAudio {
				sentAudio = true
				if err := s.machine.Transition(StateSpeaking); err != nil {
					s.logger.Warn("Cannot enter speaking state", zap.Error(err))
					continue
				}
				s.sendStatus(StateSpeaking)
			}
			s.send(protocol.NewAudioChunkMessage(ev.Format, ev.Audio, s.nextAudioSeq()))
		case pipeline.EventError:
			failed = true
			s.send(protocol.NewErrorMessage(ev.Text))
		}
	}

	s.finishRun()

	// Return to listening unless the session ended meanwhile. A failed
	// run is non-fatal: the session stays usable for the next turn.
	current := s.machine.Current()
	if current == StateStopped || current == StateDisconnected {
		return
	}
	if err := s.machine.Transition(StateListening); err != nil {
		s.logger.Warn("Cannot return to listening state",
			zap.String("state", string(current)),
			zap.Bool("failed", failed),
			zap.Error(err))
		return
	}
	s.sendStatus(StateListening)
}

func (s *Session) finishRun() {
	s.mu.Lock()
	s.runActive = false
	s.runCancel = nil
	s.mu.Unlock()
}

func (s *Session) nextAudioSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.audioSeq
	s.audioSeq++
	return seq
}

func (s *Session) createConversation() {
	if s.conversations == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conv := entities.NewConversation(s.UserID, s.Language)
	if err := s.conversations.Create(ctx, conv); err != nil {
		s.logger.Error("Failed to create conversation, continuing without history",
			zap.String("sessionID", s.ID),
			zap.Error(err))
		return
	}
	s.mu.Lock()
	s.convID = conv.ID
	s.mu.Unlock()
}

func (s *Session) conversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

func (s *Session) sendStatus(state State) {
	s.send(protocol.NewStatusMessage(string(state)))
}

func (s *Session) send(msg protocol.Message) {
	if err := s.sender.SendControl(msg); err != nil {
		s.logger.Error("Failed to send control message",
			zap.String("type", string(msg.Type)),
			zap.Error(err))
	}
}
