package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/internal/protocol"
)

const (
	defaultPingInterval = 30 * time.Second
	sendWait            = 10 * time.Second
)

// Callbacks receive the server's events. Nil callbacks are skipped.
type Callbacks struct {
	OnStatus          func(value string)
	OnFinalTranscript func(text string)
	OnResponseDelta   func(text string)
	OnResponseFinal   func(text string)
	OnError           func(message string)
}

// Config configures one client connection
type Config struct {
	// ServerURL is the websocket endpoint, e.g. "ws://localhost:8080/ws".
	ServerURL string
	// Token is the bearer token presented during the handshake.
	Token string
	// SessionID, when empty, lets the server assign one.
	SessionID string
	Language  string
	// PingInterval paces the application-level keepalive.
	PingInterval time.Duration
}

// Conversation owns the lifecycle of one client connection: the capture
// device, the websocket, the keepalive and the playback scheduler. The
// ordering rule is device first, network second; a failed dial never
// leaves the microphone held open.
type Conversation struct {
	cfg       Config
	recorder  Recorder
	scheduler *Scheduler
	callbacks Callbacks
	logger    *zap.Logger

	conn   *websocket.Conn
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial acquires the microphone, connects to the server and starts the
// conversation. On any failure the microphone is released before the
// error returns.
func Dial(ctx context.Context, cfg Config, recorder Recorder, scheduler *Scheduler, callbacks Callbacks, logger *zap.Logger) (*Conversation, error) {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}

	// The capture device opens first: if the microphone is unavailable
	// there is no point holding a connection.
	captureCtx, cancel := context.WithCancel(context.Background())
	if err := recorder.Start(captureCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start audio capture: %w", err)
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.ServerURL, header)
	if err != nil {
		cancel()
		recorder.Close()
		if resp != nil {
			return nil, fmt.Errorf("failed to connect (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Conversation{
		cfg:       cfg,
		recorder:  recorder,
		scheduler: scheduler,
		callbacks: callbacks,
		logger:    logger,
		conn:      conn,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if err := c.sendControl(protocol.NewStartMessage(cfg.SessionID, cfg.Language)); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to send start message: %w", err)
	}

	go c.readLoop()
	go c.captureLoop()
	go c.pingLoop()

	logger.Info("Conversation connected", zap.String("server", cfg.ServerURL))
	return c, nil
}

// Done is closed when the connection ends for any reason
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

// Stop is the user-facing stop: it tells the server to end the
// conversation and silences local playback immediately
func (c *Conversation) Stop() error {
	c.scheduler.Stop()
	return c.sendControl(protocol.NewStopMessage())
}

// Close tears the conversation down: capture, socket and playback
func (c *Conversation) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.recorder.Close()

		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()

		c.scheduler.Stop()
		close(c.done)
		c.logger.Info("Conversation closed")
	})
}

// captureLoop streams microphone chunks to the server as binary frames.
// Writes are best-effort: a send failure ends the conversation, but
// capture never blocks on playback.
func (c *Conversation) captureLoop() {
	for chunk := range c.recorder.Chunks() {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(sendWait))
		err := c.conn.WriteMessage(websocket.BinaryMessage, chunk)
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Error("Failed to send audio chunk", zap.Error(err))
			c.Close()
			return
		}
	}
}

// pingLoop keeps the session alive with application-level pings
func (c *Conversation) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.sendControl(protocol.NewPingMessage()); err != nil {
				c.logger.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Conversation) readLoop() {
	defer c.Close()
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("Connection lost", zap.Error(err))
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			msg, err := protocol.Decode(data)
			if err != nil {
				c.logger.Warn("Dropping malformed server message", zap.Error(err))
				continue
			}
			c.handleMessage(msg)
		case websocket.BinaryMessage:
			// Servers may also stream synthesized audio as raw frames.
			c.scheduler.Enqueue(Chunk{Payload: data})
		}
	}
}

func (c *Conversation) handleMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypePing:
		if err := c.sendControl(protocol.NewPongMessage()); err != nil {
			c.logger.Warn("Failed to send pong", zap.Error(err))
		}
	case protocol.MessageTypePong:
		// Keepalive acknowledged.
	case protocol.MessageTypeStatus:
		if c.callbacks.OnStatus != nil {
			c.callbacks.OnStatus(msg.Value)
		}
	case protocol.MessageTypeFinalTranscript:
		if c.callbacks.OnFinalTranscript != nil {
			c.callbacks.OnFinalTranscript(msg.Text)
		}
	case protocol.MessageTypeResponseDelta:
		if c.callbacks.OnResponseDelta != nil {
			c.callbacks.OnResponseDelta(msg.Text)
		}
	case protocol.MessageTypeResponseFinal:
		if c.callbacks.OnResponseFinal != nil {
			c.callbacks.OnResponseFinal(msg.Text)
		}
	case protocol.MessageTypeAudioChunk:
		audio, err := msg.AudioPayload()
		if err != nil {
			c.logger.Warn("Dropping audio chunk with bad payload", zap.Error(err))
			return
		}
		c.scheduler.Enqueue(Chunk{SequenceIndex: msg.SequenceIndex, Payload: audio})
	case protocol.MessageTypeError:
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(msg.ErrorMessage)
		}
	default:
		c.logger.Debug("Ignoring server message", zap.String("type", string(msg.Type)))
	}
}

func (c *Conversation) sendControl(msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(sendWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
