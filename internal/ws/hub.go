package ws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jarvas-labs/voice-server/internal/protocol"
	"github.com/jarvas-labs/voice-server/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionFactory builds the session bound to a freshly accepted client.
// The sender is the client itself.
type SessionFactory func(userID string, sender session.Sender) *session.Session

// Hub maintains the set of active clients.
type Hub struct {
	// Registered clients, keyed by connection ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	newSession SessionFactory

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(newSession SessionFactory, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		newSession: newSession,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.logger.Info("Client registered",
				zap.String("clientID", client.id),
				zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				// The send channel is never closed: the session may still
				// be draining a pipeline run through SendControl. Closing
				// the done channel makes those sends fail instead.
				client.markClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered",
				zap.String("clientID", client.id),
				zap.String("userID", client.userID))
		}
	}
}

// ClientCount returns the number of currently registered clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type WriteData struct {
	// Type is the websocket message type.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and its session.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; done signals
	// the end of the connection instead.
	send chan WriteData

	// Closed when the client unregisters.
	done      chan struct{}
	closeOnce sync.Once

	// Connection ID, unique per socket.
	id string

	// Authenticated user this connection belongs to.
	userID string

	session *session.Session

	logger *zap.Logger
}

func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.done) })
}

// SendControl implements session.Sender: it serializes a control message
// and queues it on the outbound channel. A full channel means the client
// cannot keep up; the message is dropped and an error returned rather
// than blocking the session. Sending after the client unregistered is an
// error, never a panic.
func (c *Client) SendControl(msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.New("client connection closed")
	default:
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: data}:
		return nil
	default:
		return errors.New("client send buffer full")
	}
}

// ServeClient upgrades the request and runs the connection for a
// pre-authenticated user.
func ServeClient(hub *Hub, c echo.Context, userID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan WriteData, 256),
		done:   make(chan struct{}),
		id:     uuid.NewString(),
		userID: userID,
		logger: logger.With(zap.String("userID", userID)),
	}
	client.session = hub.newSession(userID, client)

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	client.session.Announce()

	return nil
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.session.Close()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			msg, err := protocol.Decode(message)
			if err != nil {
				c.logger.Warn("Dropping malformed control message", zap.Error(err))
				continue
			}
			c.session.HandleControl(msg)
		case websocket.BinaryMessage:
			c.session.HandleAudio(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
