package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnConfig holds per-connection websocket tuning.
type ConnConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnConfig returns the standard websocket tuning.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			// Origin policy is enforced by the CORS layer in front.
			return true
		},
	}
}

// Conn is one client's websocket connection, scoped to a single room for its
// whole lifetime. Room switches arrive as brand-new connections.
type Conn struct {
	ID   string
	Room string

	sock *websocket.Conn
	send chan []byte
	// done signals the write pump and in-flight broadcasts that the
	// connection was unregistered.
	done chan struct{}
	once sync.Once
	hub  *Hub

	connectedAt time.Time
	lastPing    time.Time
}

func newConn(hub *Hub, room string, sock *websocket.Conn) *Conn {
	now := time.Now()
	return &Conn{
		ID:          uuid.New().String(),
		Room:        room,
		sock:        sock,
		send:        make(chan []byte, hub.cfg.Connection.SendBuffer),
		done:        make(chan struct{}),
		hub:         hub,
		connectedAt: now,
		lastPing:    now,
	}
}

func (c *Conn) stop() {
	c.once.Do(func() { close(c.done) })
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.hub.cfg.Connection.PingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.cfg.Connection.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}

		case <-c.done:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.cfg.Connection.WriteTimeout))
			c.sock.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.hub.cfg.Connection.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.lastPing = time.Now()
		}
	}
}

// readPump feeds inbound messages to the hub until the socket closes.
func (c *Conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.sock.Close()
	}()

	c.sock.SetReadLimit(c.hub.cfg.Connection.MaxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.Connection.ReadTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.Connection.ReadTimeout))
		c.lastPing = time.Now()
		return nil
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		c.hub.handleInbound(c, data)
		c.sock.SetReadDeadline(time.Now().Add(c.hub.cfg.Connection.ReadTimeout))
	}
}
