package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
)

// scriptConn is a scripted in-memory connection.
type scriptConn struct {
	mu     sync.Mutex
	writes [][]byte

	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newScriptConn() *scriptConn {
	return &scriptConn{
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *scriptConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *scriptConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// gateDialer blocks each Dial until the test provides an outcome.
type gateDialer struct {
	results chan dialResult

	mu    sync.Mutex
	dials int
}

type dialResult struct {
	conn Conn
	err  error
}

func newGateDialer() *gateDialer {
	return &gateDialer{results: make(chan dialResult, 8)}
}

func (d *gateDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	select {
	case r := <-d.results:
		return r.conn, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *gateDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func nextEvent(t *testing.T, ch *Channel) Event {
	t.Helper()
	select {
	case ev := <-ch.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel event")
		return Event{}
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueuedMessagesFlushInOrderExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newGateDialer()
	ch := New("ws://test/ws", dialer, clockwork.NewRealClock(), Config{})
	ch.Open(ctx, "lobby")

	// While the dial is blocked the channel is connecting and must queue.
	ch.Send(models.Message{Type: models.MessageGetRooms})
	ch.Send(models.MustMessage(models.MessageReloadStateRequest, "lobby", models.RoomRefPayload{Room: "lobby"}))

	conn := newScriptConn()
	dialer.results <- dialResult{conn: conn}

	ev := nextEvent(t, ch)
	if ev.Kind != EventConnected || ev.Room != "lobby" {
		t.Fatalf("expected connected event for lobby, got %+v", ev)
	}

	if got := conn.writeCount(); got != 2 {
		t.Fatalf("flushed %d messages, want 2", got)
	}
	conn.mu.Lock()
	first, second := string(conn.writes[0]), string(conn.writes[1])
	conn.mu.Unlock()
	if !strings.Contains(first, `"get_rooms"`) {
		t.Errorf("first flushed message = %s, want the get_rooms message first", first)
	}
	if !strings.Contains(second, `"reload_state_request"`) {
		t.Errorf("second flushed message = %s, want reload_state_request second", second)
	}

	// Post-flush sends write directly and must not replay the queue.
	ch.Send(models.Message{Type: models.MessageGetRooms})
	waitFor(t, func() bool { return conn.writeCount() == 3 }, "direct write")
}

func TestSendOnClosedChannelIsDropped(t *testing.T) {
	dialer := newGateDialer()
	ch := New("ws://test/ws", dialer, clockwork.NewRealClock(), Config{})

	ch.Send(models.Message{Type: models.MessageGetRooms})

	if got := ch.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
	if dialer.dialCount() != 0 {
		t.Error("send on closed channel must not dial")
	}
}

func TestReconnectExhaustionEmitsSingleTerminalEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newGateDialer()
	cfg := Config{BaseRetryDelay: time.Millisecond, BackoffFactor: 1.5, MaxRetries: 3, EventBuffer: 32}
	ch := New("ws://test/ws", dialer, clockwork.NewRealClock(), cfg)

	// Initial dial plus three retries, all failing.
	for i := 0; i < 4; i++ {
		dialer.results <- dialResult{err: errors.New("refused")}
	}
	ch.Open(ctx, "lobby")

	var disconnects, terminals int
	for terminals == 0 {
		ev := nextEvent(t, ch)
		switch ev.Kind {
		case EventDisconnected:
			disconnects++
		case EventReconnectFailed:
			terminals++
		default:
			t.Fatalf("unexpected event %+v", ev)
		}
	}

	if disconnects != 4 {
		t.Errorf("disconnect events = %d, want 4 (initial failure plus 3 retries)", disconnects)
	}
	if dialer.dialCount() != 4 {
		t.Errorf("dial attempts = %d, want 4", dialer.dialCount())
	}

	// No further events once terminal; the channel stays down until re-armed.
	select {
	case ev := <-ch.Events():
		t.Fatalf("event after terminal failure: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if got := ch.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestReconnectBackoffDelaysGrowBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newGateDialer()
	clock := clockwork.NewFakeClock()
	cfg := Config{BaseRetryDelay: time.Second, BackoffFactor: 2, MaxRetries: 3, EventBuffer: 32}
	ch := New("ws://test/ws", dialer, clock, cfg)

	dialer.results <- dialResult{err: errors.New("refused")}
	ch.Open(ctx, "lobby")
	nextEvent(t, ch) // disconnected after the initial failure

	// Each retry waits base * factor^n; no dial may happen before its
	// boundary elapses.
	for attempt, delay := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		// The reconnect goroutine is parked on the backoff timer.
		clock.BlockUntil(1)
		before := dialer.dialCount()

		clock.Advance(delay - time.Millisecond)
		if got := dialer.dialCount(); got != before {
			t.Fatalf("attempt %d dialed before its %v backoff elapsed", attempt+1, delay)
		}

		dialer.results <- dialResult{err: errors.New("refused")}
		clock.Advance(time.Millisecond)
		waitFor(t, func() bool { return dialer.dialCount() == before+1 }, "backoff dial")
		nextEvent(t, ch) // disconnected
	}

	if ev := nextEvent(t, ch); ev.Kind != EventReconnectFailed {
		t.Fatalf("expected terminal reconnect failure, got %+v", ev)
	}
	if got := dialer.dialCount(); got != 4 {
		t.Errorf("dial attempts = %d, want 4 (initial plus 3 retries)", got)
	}
}

func TestReopenAfterExhaustionRearmsRetryBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newGateDialer()
	cfg := Config{BaseRetryDelay: time.Millisecond, BackoffFactor: 1.5, MaxRetries: 2, EventBuffer: 32}
	ch := New("ws://test/ws", dialer, clockwork.NewRealClock(), cfg)

	for i := 0; i < 3; i++ {
		dialer.results <- dialResult{err: errors.New("refused")}
	}
	ch.Open(ctx, "lobby")
	for {
		if ev := nextEvent(t, ch); ev.Kind == EventReconnectFailed {
			break
		}
	}

	// A fresh Open gets a fresh budget and can succeed.
	dialer.results <- dialResult{conn: newScriptConn()}
	ch.Open(ctx, "war-room")
	ev := nextEvent(t, ch)
	if ev.Kind != EventConnected || ev.Room != "war-room" {
		t.Fatalf("expected connected event for war-room, got %+v", ev)
	}
}

func TestCloseIsIntentionalNoReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newGateDialer()
	ch := New("ws://test/ws", dialer, clockwork.NewRealClock(), Config{})
	conn := newScriptConn()
	dialer.results <- dialResult{conn: conn}
	ch.Open(ctx, "lobby")
	nextEvent(t, ch) // connected

	ch.Close()

	// The read loop exits on the closed conn; no disconnect or reconnect may
	// follow an intentional close.
	select {
	case ev := <-ch.Events():
		t.Fatalf("event after intentional close: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if dialer.dialCount() != 1 {
		t.Errorf("dial attempts = %d, want 1", dialer.dialCount())
	}
}

func TestInboundMessagesSurfaceAsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := newGateDialer()
	ch := New("ws://test/ws", dialer, clockwork.NewRealClock(), Config{})
	conn := newScriptConn()
	dialer.results <- dialResult{conn: conn}
	ch.Open(ctx, "lobby")
	nextEvent(t, ch) // connected

	conn.inbox <- []byte(`not json`)
	conn.inbox <- []byte(`{"type":"rooms","data":{"rooms":["lobby"]}}`)

	// The unparseable message is discarded; the channel stays healthy and the
	// next message still arrives.
	ev := nextEvent(t, ch)
	if ev.Kind != EventMessage || ev.Message.Type != models.MessageRooms {
		t.Fatalf("expected rooms message event, got %+v", ev)
	}
}

func TestRoomEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		room     string
		want     string
	}{
		{"ws://localhost:8080/ws", "lobby", "ws://localhost:8080/ws?room=lobby"},
		{"ws://localhost:8080/ws?token=x", "war room", "ws://localhost:8080/ws?room=war+room&token=x"},
	}
	for _, tt := range tests {
		if got := RoomEndpoint(tt.endpoint, tt.room); got != tt.want {
			t.Errorf("RoomEndpoint(%q, %q) = %q, want %q", tt.endpoint, tt.room, got, tt.want)
		}
	}
}
