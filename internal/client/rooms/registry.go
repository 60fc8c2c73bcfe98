// Package rooms tracks the set of known rooms and the one the client is
// joined to. A room switch is a hard cutover: the old connection is torn
// down and a brand-new one opened, with widget state re-bootstrapped from the
// new room's snapshot, never merged in place.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultRoom is the well-known room every client can fall back to. It can
// never be deleted.
const DefaultRoom = "lobby"

// ErrDefaultRoomDelete rejects deletion of the default room locally, before
// any message is sent.
var ErrDefaultRoomDelete = errors.New("default room cannot be deleted")

// Channel is the subset of the transport channel the registry drives.
type Channel interface {
	Open(ctx context.Context, room string)
	Close()
	Send(models.Message)
}

// Registry owns the room set and the active room. Not safe for concurrent
// use; the owning session serializes access.
type Registry struct {
	channel Channel
	known   []string
	active  string
}

// New returns a registry with only the default room known and active.
func New(channel Channel) *Registry {
	return &Registry{
		channel: channel,
		known:   []string{DefaultRoom},
		active:  DefaultRoom,
	}
}

// Active returns the currently joined room.
func (r *Registry) Active() string {
	return r.active
}

// Known returns a copy of the known room list.
func (r *Registry) Known() []string {
	return slices.Clone(r.known)
}

// SwitchRoom performs a hard cutover to another room. Switching to the
// active room is a no-op. The server handshake on the new connection yields
// the full snapshot bootstrap; no widget state survives the switch. The known
// set is left alone: only a server room list vouches for a room's existence,
// so a typoed room id never enters the selector.
func (r *Registry) SwitchRoom(ctx context.Context, room string) {
	if room == r.active {
		return
	}
	log.Info().Str("from", r.active).Str("to", room).Msg("switching room")
	r.channel.Close()
	r.active = room
	r.channel.Open(ctx, room)
}

// UpdateAvailable replaces the known room set from a server room list. If
// the active room vanished from the list, the registry falls back to the
// default room rather than leaving the selector pointing at nothing.
func (r *Registry) UpdateAvailable(ctx context.Context, list []string) {
	if !slices.Contains(list, DefaultRoom) {
		list = append([]string{DefaultRoom}, list...)
	}
	r.known = slices.Clone(list)
	if !slices.Contains(r.known, r.active) {
		log.Warn().Str("room", r.active).Msg("active room no longer exists, falling back to default")
		r.SwitchRoom(ctx, DefaultRoom)
	}
}

// RequestDelete asks the server to delete a room. Deleting the default room
// is known-invalid and rejected without a network round-trip.
func (r *Registry) RequestDelete(room string) error {
	if room == DefaultRoom {
		return ErrDefaultRoomDelete
	}
	if !slices.Contains(r.known, room) {
		return fmt.Errorf("unknown room %q", room)
	}
	r.channel.Send(models.MustMessage(models.MessageDeleteRoomRequest, r.active, models.RoomRefPayload{Room: room}))
	return nil
}
