package config

import (
	"testing"
	"time"
)

func TestFromEnvRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := FromEnv(); err == nil {
		t.Error("Expected error without JWT_SECRET, got nil")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Turn.SealChunks != 5 {
		t.Errorf("Expected default seal chunks 5, got %d", cfg.Turn.SealChunks)
	}
	if cfg.Turn.MinUtteranceBytes != 50*1024 {
		t.Errorf("Expected default min utterance 50KiB, got %d", cfg.Turn.MinUtteranceBytes)
	}
	if cfg.Pipeline.TranscribeTimeout != 30*time.Second {
		t.Errorf("Expected 30s transcribe timeout, got %v", cfg.Pipeline.TranscribeTimeout)
	}
	if cfg.Pipeline.GenerateTimeout != 60*time.Second {
		t.Errorf("Expected 60s generate timeout, got %v", cfg.Pipeline.GenerateTimeout)
	}
	if cfg.Pipeline.SynthesizeTimeout != 10*time.Second {
		t.Errorf("Expected 10s synthesize timeout, got %v", cfg.Pipeline.SynthesizeTimeout)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("Expected 24000 Hz, got %d", cfg.Audio.SampleRate)
	}
	if cfg.STT.Mode != "mock" || cfg.LLM.Mode != "mock" || cfg.TTS.Mode != "mock" {
		t.Errorf("Expected mock providers by default, got %s/%s/%s",
			cfg.STT.Mode, cfg.LLM.Mode, cfg.TTS.Mode)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("TURN_SEAL_CHUNKS", "8")
	t.Setenv("PIPELINE_GENERATE_TIMEOUT", "90s")
	t.Setenv("LLM_MODE", "ollama")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if cfg.Turn.SealChunks != 8 {
		t.Errorf("Expected 8 seal chunks, got %d", cfg.Turn.SealChunks)
	}
	if cfg.Pipeline.GenerateTimeout != 90*time.Second {
		t.Errorf("Expected 90s generate timeout, got %v", cfg.Pipeline.GenerateTimeout)
	}
	if cfg.LLM.Mode != "ollama" {
		t.Errorf("Expected ollama mode, got %s", cfg.LLM.Mode)
	}
}

func TestFromEnvInvalidNumberFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TURN_SEAL_CHUNKS", "not-a-number")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Turn.SealChunks != 5 {
		t.Errorf("Expected fallback to 5, got %d", cfg.Turn.SealChunks)
	}
}

func TestAudioBytesPerSecond(t *testing.T) {
	a := AudioConfig{SampleRate: 24000, Channels: 1, BytesPerSample: 2}
	if got := a.BytesPerSecond(); got != 48000 {
		t.Errorf("Expected 48000 bytes per second, got %d", got)
	}
}
