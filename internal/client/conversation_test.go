package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/internal/protocol"
)

type fakeRecorder struct {
	mu       sync.Mutex
	started  bool
	closed   bool
	startErr error
	chunks   chan []byte
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{chunks: make(chan []byte, 8)}
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	return nil
}

func (r *fakeRecorder) Chunks() <-chan []byte { return r.chunks }

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.chunks)
	}
	return nil
}

func (r *fakeRecorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// scriptedServer records inbound frames and lets the test push responses
type scriptedServer struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	text     []protocol.Message
	binary   int
	ready    chan struct{}
	gotToken string
}

func newScriptedServer(t *testing.T) (*httptest.Server, *scriptedServer) {
	t.Helper()
	s := &scriptedServer{ready: make(chan struct{})}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.gotToken = r.Header.Get("Authorization")
		s.mu.Unlock()
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Expected upgrade to succeed, got %v", err)
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		close(s.ready)
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			if messageType == websocket.TextMessage {
				if msg, err := protocol.Decode(data); err == nil {
					s.text = append(s.text, msg)
				}
			} else if messageType == websocket.BinaryMessage {
				s.binary++
			}
			s.mu.Unlock()
		}
	}))
	t.Cleanup(server.Close)
	return server, s
}

func (s *scriptedServer) send(t *testing.T, msg protocol.Message) {
	t.Helper()
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Expected encodable message, got %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("Expected server write to succeed, got %v", err)
	}
}

func (s *scriptedServer) waitForText(t *testing.T, msgType protocol.MessageType) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, msg := range s.text {
			if msg.Type == msgType {
				s.mu.Unlock()
				return msg
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected a %s message from the client", msgType)
	return protocol.Message{}
}

func (s *scriptedServer) binaryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binary
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestScheduler() (*Scheduler, *recordingSink) {
	sink := newRecordingSink()
	sched := newScheduler(testConfig, newFakeClock(), sink, nil, zap.NewNop())
	return sched, sink
}

func TestDialSendsStartWithToken(t *testing.T) {
	server, script := newScriptedServer(t)
	recorder := newFakeRecorder()
	sched, _ := newTestScheduler()
	defer sched.Close()

	conv, err := Dial(context.Background(), Config{
		ServerURL: wsURL(server),
		Token:     "tok-123",
		SessionID: "sess-1",
		Language:  "en",
	}, recorder, sched, Callbacks{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected dial to succeed, got %v", err)
	}
	defer conv.Close()

	<-script.ready
	start := script.waitForText(t, protocol.MessageTypeStart)
	if start.SessionID != "sess-1" || start.Language != "en" {
		t.Errorf("Unexpected start message: %+v", start)
	}

	script.mu.Lock()
	token := script.gotToken
	script.mu.Unlock()
	if token != "Bearer tok-123" {
		t.Errorf("Expected bearer token header, got %q", token)
	}
}

func TestDialReleasesMicOnConnectFailure(t *testing.T) {
	recorder := newFakeRecorder()
	sched, _ := newTestScheduler()
	defer sched.Close()

	_, err := Dial(context.Background(), Config{
		ServerURL: "ws://127.0.0.1:1/ws", // nothing listens here
	}, recorder, sched, Callbacks{}, zap.NewNop())
	if err == nil {
		t.Fatal("Expected dial to fail, got nil")
	}
	if !recorder.isClosed() {
		t.Error("Expected the microphone to be released after a failed dial")
	}
}

func TestDialFailsWhenMicUnavailable(t *testing.T) {
	server, _ := newScriptedServer(t)
	recorder := newFakeRecorder()
	recorder.startErr = errors.New("device busy")
	sched, _ := newTestScheduler()
	defer sched.Close()

	_, err := Dial(context.Background(), Config{ServerURL: wsURL(server)},
		recorder, sched, Callbacks{}, zap.NewNop())
	if err == nil {
		t.Fatal("Expected dial to fail when the microphone is unavailable")
	}
}

func TestCaptureChunksReachServer(t *testing.T) {
	server, script := newScriptedServer(t)
	recorder := newFakeRecorder()
	sched, _ := newTestScheduler()
	defer sched.Close()

	conv, err := Dial(context.Background(), Config{ServerURL: wsURL(server)},
		recorder, sched, Callbacks{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected dial to succeed, got %v", err)
	}
	defer conv.Close()
	<-script.ready

	recorder.chunks <- make([]byte, 128)
	recorder.chunks <- make([]byte, 128)

	deadline := time.Now().Add(2 * time.Second)
	for script.binaryCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := script.binaryCount(); got != 2 {
		t.Errorf("Expected 2 binary frames at the server, got %d", got)
	}
}

func TestServerEventsInvokeCallbacksAndPlayback(t *testing.T) {
	server, script := newScriptedServer(t)
	recorder := newFakeRecorder()
	sched, sink := newTestScheduler()
	defer sched.Close()

	var mu sync.Mutex
	var statuses, transcripts, finals, errdetail []string
	callbacks := Callbacks{
		OnStatus: func(v string) {
			mu.Lock()
			statuses = append(statuses, v)
			mu.Unlock()
		},
		OnFinalTranscript: func(v string) {
			mu.Lock()
			transcripts = append(transcripts, v)
			mu.Unlock()
		},
		OnResponseFinal: func(v string) {
			mu.Lock()
			finals = append(finals, v)
			mu.Unlock()
		},
		OnError: func(v string) {
			mu.Lock()
			errdetail = append(errdetail, v)
			mu.Unlock()
		},
	}

	conv, err := Dial(context.Background(), Config{ServerURL: wsURL(server)},
		recorder, sched, callbacks, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected dial to succeed, got %v", err)
	}
	defer conv.Close()
	<-script.ready

	script.send(t, protocol.NewStatusMessage("listening"))
	script.send(t, protocol.NewFinalTranscriptMessage("hello"))
	script.send(t, protocol.NewResponseFinalMessage("hi there"))
	script.send(t, protocol.NewAudioChunkMessage("audio/pcm;rate=24000", []byte{9, 9, 9, 9}, 0))
	script.send(t, protocol.NewErrorMessage("no speech detected"))

	played := sink.waitForPlays(t, 1)
	if len(played[0].pcm) != 4 {
		t.Errorf("Expected 4 decoded PCM bytes, got %d", len(played[0].pcm))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(statuses) == 1 && len(transcripts) == 1 && len(finals) == 1 && len(errdetail) == 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 1 || statuses[0] != "listening" {
		t.Errorf("Expected one listening status, got %v", statuses)
	}
	if len(transcripts) != 1 || transcripts[0] != "hello" {
		t.Errorf("Expected transcript hello, got %v", transcripts)
	}
	if len(finals) != 1 || finals[0] != "hi there" {
		t.Errorf("Expected final hi there, got %v", finals)
	}
	if len(errdetail) != 1 || errdetail[0] != "no speech detected" {
		t.Errorf("Expected error callback, got %v", errdetail)
	}
}

func TestServerPingGetsPong(t *testing.T) {
	server, script := newScriptedServer(t)
	recorder := newFakeRecorder()
	sched, _ := newTestScheduler()
	defer sched.Close()

	conv, err := Dial(context.Background(), Config{ServerURL: wsURL(server)},
		recorder, sched, Callbacks{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected dial to succeed, got %v", err)
	}
	defer conv.Close()
	<-script.ready

	script.send(t, protocol.NewPingMessage())
	script.waitForText(t, protocol.MessageTypePong)
}

func TestStopSendsStopAndHaltsPlayback(t *testing.T) {
	server, script := newScriptedServer(t)
	recorder := newFakeRecorder()
	sched, sink := newTestScheduler()
	defer sched.Close()

	conv, err := Dial(context.Background(), Config{ServerURL: wsURL(server)},
		recorder, sched, Callbacks{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected dial to succeed, got %v", err)
	}
	defer conv.Close()
	<-script.ready

	if err := conv.Stop(); err != nil {
		t.Fatalf("Expected stop to succeed, got %v", err)
	}
	script.waitForText(t, protocol.MessageTypeStop)
	if sink.haltCount() == 0 {
		t.Error("Expected playback halted on stop")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	server, script := newScriptedServer(t)
	recorder := newFakeRecorder()
	sched, _ := newTestScheduler()
	defer sched.Close()

	conv, err := Dial(context.Background(), Config{ServerURL: wsURL(server)},
		recorder, sched, Callbacks{}, zap.NewNop())
	if err != nil {
		t.Fatalf("Expected dial to succeed, got %v", err)
	}
	<-script.ready

	conv.Close()

	if !recorder.isClosed() {
		t.Error("Expected recorder closed")
	}
	select {
	case <-conv.Done():
	case <-time.After(time.Second):
		t.Error("Expected Done to be closed")
	}

	// Close is idempotent.
	conv.Close()
}
