package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/adapters/llm"
	"github.com/jarvas-labs/voice-server/adapters/memory"
	"github.com/jarvas-labs/voice-server/adapters/stt"
	"github.com/jarvas-labs/voice-server/adapters/tts"
	"github.com/jarvas-labs/voice-server/domain/entities"
)

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *stt.MockSpeechToText, *llm.MockGenerator, *tts.MockTextToSpeech) {
	t.Helper()
	logger := zap.NewNop()
	speechToText := stt.NewMockSpeechToText(logger)
	generator := llm.NewMockGenerator()
	textToSpeech := tts.NewMockTextToSpeech(logger)
	o := NewOrchestrator(speechToText, generator, textToSpeech, nil, Config{}, logger)
	return o, speechToText, generator, textToSpeech
}

func TestRunHappyPath(t *testing.T) {
	o, speechToText, generator, textToSpeech := newTestOrchestrator(t)
	speechToText.Transcript = "what is the weather"
	generator.Deltas = []string{"It is ", "sunny."}
	textToSpeech.Chunks = [][]byte{{1, 2}, {3, 4}, {5, 6}}

	events := collect(o.Run(context.Background(), Request{
		RunID: "run-1",
		Audio: make([]byte, 1024),
	}))

	if len(events) == 0 {
		t.Fatal("Expected events, got none")
	}
	if events[0].Type != EventFinalTranscript || events[0].Text != "what is the weather" {
		t.Errorf("Expected final transcript first, got %+v", events[0])
	}

	var deltas, audio int
	var finalText string
	for _, ev := range events {
		switch ev.Type {
		case EventResponseDelta:
			deltas++
		case EventResponseFinal:
			finalText = ev.Text
		case EventAudioChunk:
			if ev.SequenceIndex != audio {
				t.Errorf("Expected audio sequence %d, got %d", audio, ev.SequenceIndex)
			}
			audio++
		case EventError:
			t.Errorf("Expected no error event, got %q", ev.Text)
		}
	}
	if deltas != 2 {
		t.Errorf("Expected 2 response deltas, got %d", deltas)
	}
	if finalText != "It is sunny." {
		t.Errorf("Expected accumulated final response, got %q", finalText)
	}
	if audio != 3 {
		t.Errorf("Expected 3 audio chunks, got %d", audio)
	}
}

func TestRunEmptyTranscript(t *testing.T) {
	o, speechToText, _, _ := newTestOrchestrator(t)
	speechToText.Transcript = "   "

	events := collect(o.Run(context.Background(), Request{Audio: make([]byte, 1024)}))

	if len(events) != 1 {
		t.Fatalf("Expected exactly one event, got %d", len(events))
	}
	if events[0].Type != EventError {
		t.Errorf("Expected error event, got %s", events[0].Type)
	}
	if events[0].Text != "no speech detected" {
		t.Errorf("Expected no speech detected, got %q", events[0].Text)
	}
}

func TestRunTranscriptionError(t *testing.T) {
	o, speechToText, _, _ := newTestOrchestrator(t)
	speechToText.Err = errors.New("service unavailable")

	events := collect(o.Run(context.Background(), Request{Audio: make([]byte, 1024)}))

	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("Expected a single error event, got %+v", events)
	}
	if events[0].Text != "transcription failed" {
		t.Errorf("Expected transcription failed, got %q", events[0].Text)
	}
}

func TestRunGenerationFailsBeforeText(t *testing.T) {
	o, _, generator, _ := newTestOrchestrator(t)
	generator.Deltas = nil
	generator.Err = errors.New("model offline")

	events := collect(o.Run(context.Background(), Request{Audio: make([]byte, 1024)}))

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("Expected trailing error event, got %s", last.Type)
	}
	if last.Text != "failed to generate response" {
		t.Errorf("Expected generation failure message, got %q", last.Text)
	}
}

func TestRunGenerationFailsMidStream(t *testing.T) {
	o, _, generator, _ := newTestOrchestrator(t)
	generator.Deltas = []string{"partial ", "never sent"}
	generator.FailAfter = 1
	generator.Err = errors.New("stream broken")

	events := collect(o.Run(context.Background(), Request{Audio: make([]byte, 1024)}))

	var finalText string
	var sawAudio, sawError bool
	for _, ev := range events {
		switch ev.Type {
		case EventResponseFinal:
			finalText = ev.Text
		case EventAudioChunk:
			sawAudio = true
		case EventError:
			sawError = true
		}
	}
	if finalText != "partial " {
		t.Errorf("Expected partial text as final response, got %q", finalText)
	}
	if sawAudio {
		t.Error("Expected synthesis to be skipped after mid-stream failure")
	}
	if sawError {
		t.Error("Expected no error event for a partial delivery")
	}
}

func TestRunSynthesisFailureIsSilent(t *testing.T) {
	o, _, _, textToSpeech := newTestOrchestrator(t)
	textToSpeech.Err = errors.New("synthesizer down")

	events := collect(o.Run(context.Background(), Request{Audio: make([]byte, 1024)}))

	var sawFinal bool
	for _, ev := range events {
		if ev.Type == EventAudioChunk {
			t.Error("Expected no audio after synthesis failure")
		}
		if ev.Type == EventError {
			t.Errorf("Expected no error event for synthesis failure, got %q", ev.Text)
		}
		if ev.Type == EventResponseFinal {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Error("Expected the textual response to be delivered despite synthesis failure")
	}
}

func TestRunPersistsExchangeAndLoadsHistory(t *testing.T) {
	logger := zap.NewNop()
	speechToText := stt.NewMockSpeechToText(logger)
	generator := llm.NewMockGenerator()
	textToSpeech := tts.NewMockTextToSpeech(logger)
	conversations := memory.NewConversationRepository()

	conv := entities.NewConversation("user-1", "en")
	if err := conversations.Create(context.Background(), conv); err != nil {
		t.Fatalf("Expected conversation create to succeed, got %v", err)
	}

	o := NewOrchestrator(speechToText, generator, textToSpeech, conversations, Config{}, logger)
	collect(o.Run(context.Background(), Request{
		ConversationID: conv.ID,
		UserID:         "user-1",
		Audio:          make([]byte, 1024),
	}))

	messages, err := conversations.History(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("Expected history load to succeed, got %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected one saved exchange (2 messages), got %d", len(messages))
	}
	if messages[0].Role != entities.MessageRoleUser {
		t.Errorf("Expected first message from user, got %s", messages[0].Role)
	}
	if messages[1].Role != entities.MessageRoleAssistant {
		t.Errorf("Expected second message from assistant, got %s", messages[1].Role)
	}

	// A second run sees the first exchange as history.
	collect(o.Run(context.Background(), Request{
		ConversationID: conv.ID,
		UserID:         "user-1",
		Audio:          make([]byte, 1024),
	}))
	if len(generator.LastHistory) != 2 {
		t.Errorf("Expected 2 history messages on second run, got %d", len(generator.LastHistory))
	}
}

func TestRunCancelledContext(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(o.Run(ctx, Request{Audio: make([]byte, 1024)}))
	for _, ev := range events {
		if ev.Type == EventError {
			t.Errorf("Expected no error event for cancelled run, got %q", ev.Text)
		}
	}
}
