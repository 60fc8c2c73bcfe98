// Package transport wraps a single bidirectional connection to the huddle
// server. It owns connect/reconnect/backoff and the outbound queue for
// messages sent before the connection is ready; everything above it observes
// connection state through events and never touches the connection directly.
package transport

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the connection lifecycle state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// EventKind discriminates channel notifications.
type EventKind int

const (
	// EventConnected fires after a connection opens and the outbound queue
	// has flushed, so subscribers can request a fresh snapshot.
	EventConnected EventKind = iota
	// EventDisconnected fires on an unexpected close, before any reconnect
	// attempt is scheduled.
	EventDisconnected
	// EventReconnectFailed fires exactly once per Open after the reconnect
	// budget is exhausted.
	EventReconnectFailed
	// EventMessage delivers a parsed inbound message.
	EventMessage
)

// Event is a channel notification. Message is set for EventMessage; Room is
// the room the underlying connection was opened for.
type Event struct {
	Kind    EventKind
	Room    string
	Message *models.Message
}

// Config tunes the channel's reconnect behavior.
type Config struct {
	// BaseRetryDelay is the first reconnect delay; each subsequent attempt
	// multiplies it by BackoffFactor.
	BaseRetryDelay time.Duration
	BackoffFactor  float64
	// MaxRetries caps reconnect attempts per Open; after that the channel
	// stays closed until a new Open re-arms it.
	MaxRetries  int
	EventBuffer int
}

// DefaultConfig returns the standard reconnect tuning.
func DefaultConfig() Config {
	return Config{
		BaseRetryDelay: 500 * time.Millisecond,
		BackoffFactor:  1.5,
		MaxRetries:     5,
		EventBuffer:    64,
	}
}

// Channel manages one logical room connection. Each Open tears down whatever
// came before and starts a brand-new connection; the outbound queue and retry
// budget belong to the current Open and are never carried across room
// switches.
type Channel struct {
	endpoint string
	dialer   Dialer
	clock    clockwork.Clock
	cfg      Config
	events   chan Event

	mu       sync.Mutex
	state    State
	conn     Conn
	room     string
	queue    [][]byte
	retries  int
	terminal bool
	// gen invalidates in-flight dials, read loops and reconnect timers that
	// belong to a superseded connection.
	gen int
}

// New returns an idle channel. Events must be drained by a single consumer.
func New(endpoint string, dialer Dialer, clock clockwork.Clock, cfg Config) *Channel {
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = DefaultConfig().BaseRetryDelay
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = DefaultConfig().BackoffFactor
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	return &Channel{
		endpoint: endpoint,
		dialer:   dialer,
		clock:    clock,
		cfg:      cfg,
		events:   make(chan Event, cfg.EventBuffer),
	}
}

// Events is the channel's notification stream.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room returns the room the channel was last opened for.
func (c *Channel) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Open establishes a new connection scoped to the given room. It returns
// immediately; failure surfaces asynchronously as a disconnect followed by
// backoff reconnects. Any previous connection is discarded along with its
// queue and retry budget.
func (c *Channel) Open(ctx context.Context, room string) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateConnecting
	c.room = room
	c.queue = nil
	c.retries = 0
	c.terminal = false
	c.mu.Unlock()

	log.Info().Str("room", room).Msg("opening channel")
	go c.dial(ctx, gen, room)
}

// Close tears the connection down intentionally. No reconnect is scheduled
// and no disconnect event is emitted.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.conn != nil {
		c.state = StateClosing
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateClosed
	c.queue = nil
}

// Send serializes and transmits a message. While connecting, the message is
// appended to the outbound queue and flushed in FIFO order when the
// connection opens. While closing or closed the message is dropped with a
// log line; delivery confirmation is not this layer's contract.
func (c *Channel) Send(msg models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to encode outbound message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateOpen:
		if err := c.conn.WriteMessage(data); err != nil {
			log.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to write message")
		}
	case StateConnecting:
		c.queue = append(c.queue, data)
	default:
		log.Warn().
			Str("type", string(msg.Type)).
			Str("state", c.state.String()).
			Msg("dropping message sent on closed channel")
	}
}

func (c *Channel) dial(ctx context.Context, gen int, room string) {
	conn, err := c.dialer.Dial(ctx, RoomEndpoint(c.endpoint, room))

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		log.Warn().Err(err).Msg("channel dial failed")
		c.handleClose(ctx, gen)
		return
	}

	c.conn = conn
	c.state = StateOpen
	c.retries = 0

	// Flush the outbound queue in FIFO order, exactly once.
	queued := c.queue
	c.queue = nil
	for _, data := range queued {
		if werr := conn.WriteMessage(data); werr != nil {
			log.Error().Err(werr).Msg("failed to flush queued message")
		}
	}
	c.mu.Unlock()

	log.Info().Str("room", room).Int("flushed", len(queued)).Msg("channel open")
	c.events <- Event{Kind: EventConnected, Room: room}

	go c.readLoop(ctx, gen, conn, room)
}

func (c *Channel) readLoop(ctx context.Context, gen int, conn Conn, room string) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg models.Message
		if uerr := json.Unmarshal(data, &msg); uerr != nil {
			// Parse failures are per-message; the channel stays healthy.
			log.Error().Err(uerr).Msg("discarding unparseable message")
			continue
		}
		c.events <- Event{Kind: EventMessage, Room: room, Message: &msg}
	}
	c.handleClose(ctx, gen)
}

// handleClose funnels every unexpected close, dial failures included, into
// the same reconnect path.
func (c *Channel) handleClose(ctx context.Context, gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	room := c.room

	if c.retries >= c.cfg.MaxRetries {
		alreadyTerminal := c.terminal
		c.terminal = true
		c.mu.Unlock()
		c.events <- Event{Kind: EventDisconnected, Room: room}
		if !alreadyTerminal {
			log.Error().Str("room", room).Int("attempts", c.cfg.MaxRetries).Msg("reconnect attempts exhausted")
			c.events <- Event{Kind: EventReconnectFailed, Room: room}
		}
		return
	}

	attempt := c.retries
	c.retries++
	delay := time.Duration(float64(c.cfg.BaseRetryDelay) * math.Pow(c.cfg.BackoffFactor, float64(attempt)))
	// Queue messages sent during the backoff window for the next flush.
	c.state = StateConnecting
	c.mu.Unlock()

	c.events <- Event{Kind: EventDisconnected, Room: room}
	log.Warn().
		Str("room", room).
		Int("attempt", attempt+1).
		Dur("delay", delay).
		Msg("scheduling reconnect")

	go func() {
		select {
		case <-c.clock.After(delay):
			c.dial(ctx, gen, room)
		case <-ctx.Done():
		}
	}()
}
