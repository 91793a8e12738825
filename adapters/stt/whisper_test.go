package stt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestWhisperTranscribe(t *testing.T) {
	var gotLanguage string
	var gotFileSize int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Expected multipart form, got %v", err)
		}
		gotLanguage = r.FormValue("language")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Expected file part, got %v", err)
		} else {
			data, _ := io.ReadAll(file)
			gotFileSize = len(data)
			file.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer server.Close()

	adapter, err := NewWhisperSpeechToText(WhisperConfig{URL: server.URL}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	text, err := adapter.Transcribe(context.Background(), make([]byte, 1000), "en")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "hello world" {
		t.Errorf("Expected hello world, got %q", text)
	}
	if gotLanguage != "en" {
		t.Errorf("Expected language en, got %q", gotLanguage)
	}
	if gotFileSize != 1044 { // 1000 PCM bytes + 44-byte WAV header
		t.Errorf("Expected 1044 uploaded bytes, got %d", gotFileSize)
	}
}

func TestWhisperEmptyResultIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": ""})
	}))
	defer server.Close()

	adapter, _ := NewWhisperSpeechToText(WhisperConfig{URL: server.URL}, zap.NewNop())
	text, err := adapter.Transcribe(context.Background(), make([]byte, 100), "")
	if err != nil {
		t.Fatalf("Expected no error for empty result, got %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty transcript, got %q", text)
	}
}

func TestWhisperServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter, _ := NewWhisperSpeechToText(WhisperConfig{URL: server.URL}, zap.NewNop())
	if _, err := adapter.Transcribe(context.Background(), make([]byte, 100), ""); err == nil {
		t.Error("Expected error for 503 response, got nil")
	}
}

func TestWhisperEmptyAudioShortCircuits(t *testing.T) {
	adapter, _ := NewWhisperSpeechToText(WhisperConfig{URL: "http://unused"}, zap.NewNop())
	text, err := adapter.Transcribe(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty transcript for empty audio, got %q", text)
	}
}

func TestWhisperRequiresURL(t *testing.T) {
	if _, err := NewWhisperSpeechToText(WhisperConfig{}, zap.NewNop()); err == nil {
		t.Error("Expected error without URL, got nil")
	}
}
