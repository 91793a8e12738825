package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/adapters/llm"
	"github.com/jarvas-labs/voice-server/adapters/memory"
	mongoadapter "github.com/jarvas-labs/voice-server/adapters/mongo"
	"github.com/jarvas-labs/voice-server/adapters/stt"
	"github.com/jarvas-labs/voice-server/adapters/tts"
	"github.com/jarvas-labs/voice-server/domain/repositories"
	"github.com/jarvas-labs/voice-server/internal/api"
	"github.com/jarvas-labs/voice-server/internal/auth"
	"github.com/jarvas-labs/voice-server/internal/config"
	"github.com/jarvas-labs/voice-server/internal/pipeline"
	"github.com/jarvas-labs/voice-server/internal/session"
	"github.com/jarvas-labs/voice-server/internal/ws"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Conversation persistence: MongoDB when configured, in-memory otherwise.
	conversations, mongoClient := newConversationRepository(cfg, logger)

	speechToText := newSpeechToText(cfg, logger)
	responseGenerator := newResponseGenerator(cfg, logger)
	textToSpeech := newTextToSpeech(cfg, logger)

	orchestrator := pipeline.NewOrchestrator(
		speechToText,
		responseGenerator,
		textToSpeech,
		conversations,
		pipeline.Config{
			TranscribeTimeout: cfg.Pipeline.TranscribeTimeout,
			GenerateTimeout:   cfg.Pipeline.GenerateTimeout,
			SynthesizeTimeout: cfg.Pipeline.SynthesizeTimeout,
			AudioFormat:       cfg.Audio.Format,
		},
		logger,
	)

	sessionConfig := session.Config{
		SealChunks:        cfg.Turn.SealChunks,
		MinUtteranceBytes: cfg.Turn.MinUtteranceBytes,
	}
	newSession := func(userID string, sender session.Sender) *session.Session {
		return session.New(userID, orchestrator, conversations, sender, sessionConfig, logger)
	}

	hub := ws.NewHub(newSession, logger)
	go hub.Run()

	authenticator := auth.NewAuthenticator([]byte(cfg.JWTSecret), cfg.TokenTTL)

	// Initialize API routes
	api.InitRoutes(e, hub, authenticator, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Voice server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if mongoClient != nil {
		mongoClient.Close(ctx)
	}

	logger.Info("Server exited")
}

func newConversationRepository(cfg *config.Config, logger *zap.Logger) (repositories.ConversationRepository, *mongoadapter.Client) {
	if cfg.Mongo.URI == "" {
		logger.Info("No MongoDB configured, using in-memory conversation store")
		return memory.NewConversationRepository(), nil
	}
	client, err := mongoadapter.NewClient(cfg.Mongo.URI, cfg.Mongo.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	return mongoadapter.NewConversationRepository(client.Database), client
}

func newSpeechToText(cfg *config.Config, logger *zap.Logger) repositories.SpeechToText {
	switch cfg.STT.Mode {
	case "whisper":
		adapter, err := stt.NewWhisperSpeechToText(stt.WhisperConfig{
			URL:        cfg.STT.URL,
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			Timeout:    cfg.Pipeline.TranscribeTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Whisper adapter", zap.Error(err))
		}
		return adapter
	case "google":
		adapter, err := stt.NewGoogleSpeechToText(context.Background(), cfg.Audio.SampleRate, logger)
		if err != nil {
			logger.Fatal("Failed to create Google Speech adapter", zap.Error(err))
		}
		return adapter
	default:
		return stt.NewMockSpeechToText(logger)
	}
}

func newResponseGenerator(cfg *config.Config, logger *zap.Logger) repositories.ResponseGenerator {
	switch cfg.LLM.Mode {
	case "ollama":
		return llm.NewOllamaGenerator(cfg.LLM.Endpoint, cfg.LLM.Model, cfg.LLM.SystemPrompt, logger)
	case "gemini":
		adapter, err := llm.NewGeminiGenerator(cfg.LLM.Model, cfg.LLM.SystemPrompt, logger)
		if err != nil {
			logger.Fatal("Failed to create Gemini adapter", zap.Error(err))
		}
		return adapter
	default:
		return llm.NewMockGenerator()
	}
}

func newTextToSpeech(cfg *config.Config, logger *zap.Logger) repositories.TextToSpeech {
	switch cfg.TTS.Mode {
	case "piper":
		adapter, err := tts.NewPiperTTS(tts.PiperConfig{
			URL:     cfg.TTS.URL,
			Timeout: cfg.Pipeline.SynthesizeTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Piper adapter", zap.Error(err))
		}
		return adapter
	case "elevenlabs":
		adapter, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:  cfg.TTS.APIKey,
			VoiceID: cfg.TTS.VoiceID,
			Timeout: cfg.Pipeline.SynthesizeTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create Eleven Labs adapter", zap.Error(err))
		}
		return adapter
	default:
		return tts.NewMockTextToSpeech(logger)
	}
}
