// Package hub is the authoritative server side of the room protocol: it owns
// per-room connection pools, applies and rebroadcasts widget updates,
// arbitrates rock-paper-scissors claims, and answers snapshot requests. Each
// websocket connection is scoped to one room; room switches arrive as new
// connections.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huddlekit/huddle/internal/hub/store"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config holds hub configuration.
type Config struct {
	// DefaultRoom always exists and can never be deleted.
	DefaultRoom string
	// AutoCreateRooms creates a room the first time a client joins it.
	AutoCreateRooms bool
	// RPSResetDelay is how long after a reveal the match returns to
	// slots-open.
	RPSResetDelay time.Duration
	Connection    ConnConfig
}

// DefaultConfig returns the standard hub configuration.
func DefaultConfig() Config {
	return Config{
		DefaultRoom:     "lobby",
		AutoCreateRooms: true,
		RPSResetDelay:   3 * time.Second,
		Connection:      DefaultConnConfig(),
	}
}

type roomPool struct {
	name  string
	conns map[*Conn]bool
	state *RoomState
}

// broadcastMsg is one queued fan-out. only restricts delivery to a single
// connection; exclude skips one (the sender, unless force-sync).
type broadcastMsg struct {
	room    string
	msg     models.Message
	only    *Conn
	exclude *Conn
}

// Hub routes room traffic between connections and the authoritative state.
type Hub struct {
	cfg      Config
	clock    clockwork.Clock
	store    store.Store
	relay    *Relay
	upgrader websocket.Upgrader
	badges   *badgeRegistry

	mu    sync.RWMutex
	rooms map[string]*roomPool

	broadcastCh chan broadcastMsg
}

// New creates a hub with the default room present. relay may be nil for
// single-instance deployments.
func New(cfg Config, st store.Store, clock clockwork.Clock, relay *Relay) *Hub {
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = DefaultConfig().DefaultRoom
	}
	if cfg.RPSResetDelay <= 0 {
		cfg.RPSResetDelay = DefaultConfig().RPSResetDelay
	}
	h := &Hub{
		cfg:   cfg,
		clock: clock,
		store: st,
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.Connection.ReadBufferSize,
			WriteBufferSize: cfg.Connection.WriteBufferSize,
			CheckOrigin:     cfg.Connection.CheckOrigin,
		},
		badges:      newBadgeRegistry(),
		rooms:       make(map[string]*roomPool),
		broadcastCh: make(chan broadcastMsg, 1024),
	}
	h.ensureRoom(context.Background(), cfg.DefaultRoom)
	return h
}

// Start processes broadcasts and relay traffic until the context ends.
func (h *Hub) Start(ctx context.Context) error {
	log.Info().Str("default_room", h.cfg.DefaultRoom).Msg("hub started")
	if h.relay != nil {
		if err := h.relay.Start(ctx, h.applyRemote); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("hub shutting down")
			return nil
		case b := <-h.broadcastCh:
			h.deliver(b)
		}
	}
}

// RoomNames returns the known rooms, sorted, default room first.
func (h *Hub) RoomNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.rooms))
	for name := range h.rooms {
		if name != h.cfg.DefaultRoom {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return append([]string{h.cfg.DefaultRoom}, names...)
}

// Stats reports connection counts per room.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms))
	for name, pool := range h.rooms {
		out[name] = len(pool.conns)
	}
	return out
}

// ensureRoom returns the pool for a room, creating and loading it if needed.
func (h *Hub) ensureRoom(ctx context.Context, name string) *roomPool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pool, ok := h.rooms[name]; ok {
		return pool
	}
	pool := &roomPool{
		name:  name,
		conns: make(map[*Conn]bool),
		state: newRoomState(h.clock),
	}
	if data, err := h.store.Load(ctx, name); err != nil {
		log.Error().Err(err).Str("room", name).Msg("failed to load room state")
	} else if len(data) > 0 {
		if err := pool.state.UnmarshalState(data); err != nil {
			log.Error().Err(err).Str("room", name).Msg("stored room state unreadable, starting fresh")
		}
	}
	h.rooms[name] = pool
	log.Info().Str("room", name).Msg("room ready")
	return pool
}

func (h *Hub) pool(name string) *roomPool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[name]
}

func (h *Hub) register(ctx context.Context, c *Conn) {
	pool := h.ensureRoom(ctx, c.Room)
	h.mu.Lock()
	pool.conns[c] = true
	total := len(pool.conns)
	h.mu.Unlock()
	log.Info().Str("connection_id", c.ID).Str("room", c.Room).Int("members", total).Msg("connection joined")
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	pool, ok := h.rooms[c.Room]
	member := ok && pool.conns[c]
	if member {
		delete(pool.conns, c)
	}
	h.mu.Unlock()
	c.stop()
	// Not a member anymore: already unregistered, or evicted by a room
	// deletion.
	if !member {
		return
	}

	// Free any rock-paper-scissors slot the departing player held.
	if changed, positions := pool.state.ReleaseOwner(c.ID); changed {
		h.queueBroadcast(broadcastMsg{room: c.Room, msg: rpsMessage(c.Room, models.RPSPayload{
			Event:     models.RPSEventPositionUpdate,
			Positions: &positions,
		})})
	}
	log.Info().Str("connection_id", c.ID).Str("room", c.Room).Msg("connection left")
}

// handleInbound routes one raw client message. Parse failures are logged
// per-message and never affect the connection.
func (h *Hub) handleInbound(c *Conn, data []byte) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("discarding unparseable message")
		return
	}
	// Strict partitioning server-side too: a connection only speaks for the
	// room it joined.
	if msg.Room != "" && msg.Room != c.Room {
		log.Warn().Str("connection_id", c.ID).Str("room", msg.Room).Msg("dropping message tagged for another room")
		return
	}

	payload, err := models.DecodePayload(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("discarding undecodable payload")
		return
	}

	switch p := payload.(type) {
	case nil: // get_rooms
		if msg.Type == models.MessageGetRooms {
			h.sendRooms(c)
		}

	case models.RoomRefPayload:
		switch msg.Type {
		case models.MessageReloadStateRequest:
			h.sendSnapshot(c)
		case models.MessageDeleteRoomRequest:
			h.deleteRoom(p.Room)
		}

	case models.BoardDelta:
		pool := h.pool(c.Room)
		if err := pool.state.ApplyBoardDelta(p); err != nil {
			// Authoritative rejection: re-sync the sender instead of
			// letting its optimistic state diverge.
			log.Warn().Err(err).Str("room", c.Room).Msg("board delta rejected")
			h.sendSnapshot(c)
			return
		}
		h.fanOut(c, msg)
		h.persist(c.Room, pool)

	case models.TimerState:
		pool := h.pool(c.Room)
		pool.state.ApplyTimer(p)
		h.fanOut(c, msg)
		h.persist(c.Room, pool)

	case models.WorkflowUpdatePayload:
		pool := h.pool(c.Room)
		pool.state.ApplyWorkflow(p)
		h.fanOut(c, msg)
		h.persist(c.Room, pool)

	case models.RPSClaimPayload:
		h.handleClaim(c, p)

	case models.RPSChoicePayload:
		h.handleChoice(c, p)

	case models.BadgeUpdatePayload:
		h.sendTo(c, h.badges.handle(p))

	default:
		log.Debug().Str("type", string(msg.Type)).Msg("ignoring client message")
	}
}

// fanOut rebroadcasts an applied update. Force-sync reaches every member
// including the sender; otherwise the sender is excluded since it already
// applied the change optimistically. Local-origin changes are also relayed
// to peer hub instances.
func (h *Hub) fanOut(sender *Conn, msg models.Message) {
	b := broadcastMsg{room: sender.Room, msg: msg}
	if !msg.ForceSync {
		b.exclude = sender
	}
	h.queueBroadcast(b)
	if h.relay != nil {
		h.relay.Publish(sender.Room, msg)
	}
}

func (h *Hub) handleClaim(c *Conn, p models.RPSClaimPayload) {
	pool := h.pool(c.Room)
	granted, positions, bothClaimed := pool.state.ClaimPosition(c.ID, p.Position)
	h.sendTo(c, rpsMessage(c.Room, models.RPSPayload{
		Event:     models.RPSEventPositionUpdate,
		Position:  p.Position,
		Granted:   granted,
		Positions: &positions,
	}))
	h.queueBroadcast(broadcastMsg{room: c.Room, exclude: c, msg: rpsMessage(c.Room, models.RPSPayload{
		Event:     models.RPSEventPositionUpdate,
		Positions: &positions,
	})})
	if bothClaimed && granted {
		h.queueBroadcast(broadcastMsg{room: c.Room, msg: rpsMessage(c.Room, models.RPSPayload{
			Event: models.RPSEventGameStart,
		})})
	} else if granted {
		h.sendTo(c, rpsMessage(c.Room, models.RPSPayload{
			Event:   models.RPSEventWaiting,
			Message: "waiting for an opponent",
		}))
	}
}

func (h *Hub) handleChoice(c *Conn, p models.RPSChoicePayload) {
	pool := h.pool(c.Room)
	ok, bothChosen := pool.state.Choose(c.ID, p.Position, p.Choice)
	if !ok {
		h.sendTo(c, rpsMessage(c.Room, models.RPSPayload{
			Event:   models.RPSEventError,
			Message: "choice rejected",
		}))
		return
	}
	h.queueBroadcast(broadcastMsg{room: c.Room, exclude: c, msg: rpsMessage(c.Room, models.RPSPayload{
		Event:    models.RPSEventOpponentChosen,
		Position: p.Position,
	})})
	if !bothChosen {
		return
	}
	choices, winner := pool.state.Reveal()
	h.queueBroadcast(broadcastMsg{room: c.Room, msg: rpsMessage(c.Room, models.RPSPayload{
		Event:   models.RPSEventReveal,
		Choices: &choices,
		Winner:  winner,
	})})
	room := c.Room
	h.clock.AfterFunc(h.cfg.RPSResetDelay, func() {
		pool.state.ResetMatch()
		h.queueBroadcast(broadcastMsg{room: room, msg: rpsMessage(room, models.RPSPayload{
			Event: models.RPSEventReset,
		})})
	})
}

// deleteRoom removes a room, notifies its members, and refreshes everyone's
// room list. The default room is refused.
func (h *Hub) deleteRoom(name string) {
	if name == h.cfg.DefaultRoom {
		log.Warn().Str("room", name).Msg("refusing to delete default room")
		return
	}
	h.mu.Lock()
	pool, ok := h.rooms[name]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, name)
	members := make([]*Conn, 0, len(pool.conns))
	for c := range pool.conns {
		members = append(members, c)
	}
	pool.conns = make(map[*Conn]bool)
	h.mu.Unlock()

	if err := h.store.Delete(context.Background(), name); err != nil {
		log.Error().Err(err).Str("room", name).Msg("failed to delete stored room state")
	}

	deleted := models.MustMessage(models.MessageRoomDeleted, "", models.RoomRefPayload{Room: name})
	for _, c := range members {
		h.sendTo(c, deleted)
	}
	h.broadcastRoomList()
	if h.relay != nil {
		h.relay.Publish(name, deleted)
	}
	log.Info().Str("room", name).Int("evicted", len(members)).Msg("room deleted")
}

// applyRemote folds a relayed update from a peer hub instance into local
// state and fans it out to local members only.
func (h *Hub) applyRemote(room string, msg models.Message) {
	if msg.Type == models.MessageRoomDeleted {
		h.deleteRoom(room)
		return
	}

	pool := h.pool(room)
	if pool == nil {
		return
	}
	payload, err := models.DecodePayload(msg)
	if err != nil {
		log.Error().Err(err).Str("type", string(msg.Type)).Msg("undecodable relayed message")
		return
	}
	switch p := payload.(type) {
	case models.BoardDelta:
		if err := pool.state.ApplyBoardDelta(p); err != nil {
			log.Warn().Err(err).Str("room", room).Msg("relayed board delta rejected")
			return
		}
	case models.TimerState:
		pool.state.ApplyTimer(p)
	case models.WorkflowUpdatePayload:
		pool.state.ApplyWorkflow(p)
	default:
		return
	}
	h.queueBroadcast(broadcastMsg{room: room, msg: msg})
}

func (h *Hub) sendRooms(c *Conn) {
	h.sendTo(c, models.MustMessage(models.MessageRooms, "", models.RoomsPayload{Rooms: h.RoomNames()}))
}

func (h *Hub) broadcastRoomList() {
	msg := models.MustMessage(models.MessageRooms, "", models.RoomsPayload{Rooms: h.RoomNames()})
	h.mu.RLock()
	names := make([]string, 0, len(h.rooms))
	for name := range h.rooms {
		names = append(names, name)
	}
	h.mu.RUnlock()
	for _, name := range names {
		h.queueBroadcast(broadcastMsg{room: name, msg: msg})
	}
}

func (h *Hub) sendSnapshot(c *Conn) {
	pool := h.pool(c.Room)
	if pool == nil {
		return
	}
	msg := models.MustMessage(models.MessageFullUpdate, c.Room, pool.state.FullUpdate())
	h.sendTo(c, msg)
}

func (h *Hub) sendTo(c *Conn, msg models.Message) {
	h.queueBroadcast(broadcastMsg{room: c.Room, only: c, msg: msg})
}

func (h *Hub) queueBroadcast(b broadcastMsg) {
	select {
	case h.broadcastCh <- b:
	default:
		log.Warn().Str("room", b.room).Msg("broadcast channel full, dropping message")
	}
}

// deliver fans one queued message out to its targets, evicting connections
// whose send buffers are full.
func (h *Hub) deliver(b broadcastMsg) {
	data, err := json.Marshal(b.msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal broadcast")
		return
	}

	h.mu.RLock()
	pool, ok := h.rooms[b.room]
	var targets []*Conn
	if ok {
		for c := range pool.conns {
			if b.only != nil && c != b.only {
				continue
			}
			if c == b.exclude {
				continue
			}
			targets = append(targets, c)
		}
	} else if b.only != nil {
		// Deleted-room notifications go to members already removed from
		// the pool.
		targets = append(targets, b.only)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			log.Warn().Str("connection_id", c.ID).Msg("send buffer full, closing connection")
			h.unregister(c)
			c.sock.Close()
		}
	}
}

// persist saves a room's state snapshot, best effort.
func (h *Hub) persist(room string, pool *roomPool) {
	data, err := pool.state.MarshalState()
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("failed to marshal room state")
		return
	}
	if err := h.store.Save(context.Background(), room, data); err != nil {
		log.Error().Err(err).Str("room", room).Msg("failed to persist room state")
	}
}

func rpsMessage(room string, p models.RPSPayload) models.Message {
	return models.MustMessage(models.MessageRPSUpdate, room, p)
}
