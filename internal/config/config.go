package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full server configuration, loaded from the environment.
// A .env file loaded by the entrypoint feeds the same variables in
// development.
type Config struct {
	Port      string
	JWTSecret string
	TokenTTL  time.Duration

	Turn     TurnConfig
	Pipeline PipelineConfig
	Audio    AudioConfig
	STT      STTConfig
	LLM      LLMConfig
	TTS      TTSConfig
	Mongo    MongoConfig
}

// TurnConfig tunes utterance boundary detection
type TurnConfig struct {
	// SealChunks is how many capture-interval chunks accumulate before the
	// utterance is sealed.
	SealChunks int
	// MinUtteranceBytes discards sealed utterances smaller than this.
	MinUtteranceBytes int
}

// PipelineConfig carries the per-stage deadlines
type PipelineConfig struct {
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
}

// AudioConfig describes the PCM stream both directions of the connection use
type AudioConfig struct {
	Format          string
	SampleRate      int
	Channels        int
	BytesPerSample  int
	CaptureInterval time.Duration
}

// BytesPerSecond returns the PCM byte rate implied by the stream parameters
func (a AudioConfig) BytesPerSecond() int {
	return a.SampleRate * a.Channels * a.BytesPerSample
}

// STTConfig selects and configures the speech-to-text provider.
// Mode is one of "mock", "whisper" or "google".
type STTConfig struct {
	Mode string
	URL  string
}

// LLMConfig selects and configures the response generator.
// Mode is one of "mock", "ollama" or "gemini".
type LLMConfig struct {
	Mode         string
	Endpoint     string
	Model        string
	SystemPrompt string
}

// TTSConfig selects and configures the speech synthesizer.
// Mode is one of "mock", "piper" or "elevenlabs".
type TTSConfig struct {
	Mode    string
	URL     string
	APIKey  string
	VoiceID string
}

// MongoConfig configures conversation persistence. An empty URI selects
// the in-memory repository.
type MongoConfig struct {
	URI      string
	Database string
}

// FromEnv builds the configuration from environment variables, applying
// defaults for everything except the JWT secret.
func FromEnv() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:      envString("PORT", "8080"),
		JWTSecret: secret,
		TokenTTL:  envDuration("TOKEN_TTL", 24*time.Hour),
		Turn: TurnConfig{
			SealChunks:        envInt("TURN_SEAL_CHUNKS", 5),
			MinUtteranceBytes: envInt("TURN_MIN_UTTERANCE_BYTES", 50*1024),
		},
		Pipeline: PipelineConfig{
			TranscribeTimeout: envDuration("PIPELINE_TRANSCRIBE_TIMEOUT", 30*time.Second),
			GenerateTimeout:   envDuration("PIPELINE_GENERATE_TIMEOUT", 60*time.Second),
			SynthesizeTimeout: envDuration("PIPELINE_SYNTHESIZE_TIMEOUT", 10*time.Second),
		},
		Audio: AudioConfig{
			Format:          envString("AUDIO_FORMAT", "audio/pcm;rate=24000"),
			SampleRate:      envInt("AUDIO_SAMPLE_RATE", 24000),
			Channels:        envInt("AUDIO_CHANNELS", 1),
			BytesPerSample:  envInt("AUDIO_BYTES_PER_SAMPLE", 2),
			CaptureInterval: envDuration("AUDIO_CAPTURE_INTERVAL", 500*time.Millisecond),
		},
		STT: STTConfig{
			Mode: envString("STT_MODE", "mock"),
			URL:  os.Getenv("STT_URL"),
		},
		LLM: LLMConfig{
			Mode:         envString("LLM_MODE", "mock"),
			Endpoint:     envString("LLM_ENDPOINT", "http://localhost:11434"),
			Model:        envString("LLM_MODEL", "llama3.2"),
			SystemPrompt: os.Getenv("LLM_SYSTEM_PROMPT"),
		},
		TTS: TTSConfig{
			Mode:    envString("TTS_MODE", "mock"),
			URL:     os.Getenv("TTS_URL"),
			APIKey:  os.Getenv("TTS_API_KEY"),
			VoiceID: os.Getenv("TTS_VOICE_ID"),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGO_URI"),
			Database: envString("MONGO_DATABASE", "voice"),
		},
	}

	if cfg.Turn.SealChunks <= 0 {
		return nil, fmt.Errorf("TURN_SEAL_CHUNKS must be positive, got %d", cfg.Turn.SealChunks)
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
