package models

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates every message exchanged over a room channel.
type MessageType string

const (
	MessageGetRooms            MessageType = "get_rooms"
	MessageRooms               MessageType = "rooms"
	MessageReloadStateRequest  MessageType = "reload_state_request"
	MessageFullUpdate          MessageType = "full_update"
	MessageUpdate              MessageType = "update"
	MessageTimer               MessageType = "timer"
	MessageWorkflowUpdate      MessageType = "workflow_update"
	MessageRPSUpdate           MessageType = "rps_update"
	MessageRPSClaim            MessageType = "rps_claim"
	MessageRPSChoice           MessageType = "rps_choice"
	MessageDeleteRoomRequest   MessageType = "delete_room_request"
	MessageRoomDeleted         MessageType = "room_deleted"
	MessageRedirectToDefault   MessageType = "redirect_to_default"
	MessageBadgeUpdate         MessageType = "badge_update"
	MessageBadgeUpdateResponse MessageType = "badge_update_response"
)

// Message is the wire envelope for all room traffic. Room tags the message with
// the namespace it belongs to; receivers must drop messages tagged for a room
// other than their active one. ForceSync asks the server to rebroadcast the
// resulting state to every room member, sender included.
type Message struct {
	Type      MessageType     `json:"type"`
	Room      string          `json:"room,omitempty"`
	ForceSync bool            `json:"forceSync,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Payload is the closed set of message payloads. Every MessageType that
// carries data maps to exactly one Payload implementation via DecodePayload.
type Payload interface {
	isPayload()
}

// RoomsPayload lists every room known to the server.
type RoomsPayload struct {
	Rooms []string `json:"rooms"`
}

// RoomRefPayload names a single room (reload_state_request,
// delete_room_request, room_deleted).
type RoomRefPayload struct {
	Room string `json:"room"`
}

// RedirectPayload carries the user-visible reason for a forced room switch.
type RedirectPayload struct {
	Message string `json:"message"`
}

// FullUpdatePayload is a complete snapshot bootstrap. Each widget section is
// optional; a present section replaces that widget's state wholesale.
type FullUpdatePayload struct {
	Board     *BoardState    `json:"board,omitempty"`
	Timer     *TimerState    `json:"timer,omitempty"`
	Workflow  *WorkflowGraph `json:"workflow,omitempty"`
	WorkItems []WorkItem     `json:"workItems,omitempty"`
}

// WorkflowUpdatePayload is a workflow snapshot push; graph and items travel
// together so the referential invariants can be checked as a unit.
type WorkflowUpdatePayload struct {
	Workflow  WorkflowGraph `json:"workflow"`
	WorkItems []WorkItem    `json:"workItems"`
}

func (RoomsPayload) isPayload()          {}
func (RoomRefPayload) isPayload()        {}
func (RedirectPayload) isPayload()       {}
func (FullUpdatePayload) isPayload()     {}
func (WorkflowUpdatePayload) isPayload() {}
func (BoardDelta) isPayload()            {}
func (TimerState) isPayload()            {}
func (RPSPayload) isPayload()            {}
func (RPSClaimPayload) isPayload()       {}
func (RPSChoicePayload) isPayload()      {}
func (BadgeUpdatePayload) isPayload()    {}
func (BadgeResponsePayload) isPayload()  {}

// ErrUnknownMessageType is returned by DecodePayload for types outside the
// closed set above.
type ErrUnknownMessageType struct {
	Type MessageType
}

func (e ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// DecodePayload parses a message's data into its typed payload. Types that
// carry no payload (get_rooms) return (nil, nil). The switch is the single
// place the wire protocol's type tags are interpreted.
func DecodePayload(m Message) (Payload, error) {
	switch m.Type {
	case MessageGetRooms:
		return nil, nil

	case MessageRooms:
		var p RoomsPayload
		return p, unmarshalData(m, &p)

	case MessageReloadStateRequest, MessageDeleteRoomRequest, MessageRoomDeleted:
		var p RoomRefPayload
		return p, unmarshalData(m, &p)

	case MessageRedirectToDefault:
		var p RedirectPayload
		return p, unmarshalData(m, &p)

	case MessageFullUpdate:
		var p FullUpdatePayload
		return p, unmarshalData(m, &p)

	case MessageUpdate:
		var p BoardDelta
		return p, unmarshalData(m, &p)

	case MessageTimer:
		var p TimerState
		return p, unmarshalData(m, &p)

	case MessageWorkflowUpdate:
		var p WorkflowUpdatePayload
		return p, unmarshalData(m, &p)

	case MessageRPSUpdate:
		var p RPSPayload
		return p, unmarshalData(m, &p)

	case MessageRPSClaim:
		var p RPSClaimPayload
		return p, unmarshalData(m, &p)

	case MessageRPSChoice:
		var p RPSChoicePayload
		return p, unmarshalData(m, &p)

	case MessageBadgeUpdate:
		var p BadgeUpdatePayload
		return p, unmarshalData(m, &p)

	case MessageBadgeUpdateResponse:
		var p BadgeResponsePayload
		return p, unmarshalData(m, &p)

	default:
		return nil, ErrUnknownMessageType{Type: m.Type}
	}
}

func unmarshalData(m Message, v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// NewMessage builds an envelope around a payload. A nil payload produces an
// envelope with no data section.
func NewMessage(t MessageType, room string, payload any) (Message, error) {
	m := Message{Type: t, Room: room}
	if payload == nil {
		return m, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	m.Data = data
	return m, nil
}

// MustMessage is NewMessage for payloads built from in-memory state, where a
// marshal failure would be a programming error.
func MustMessage(t MessageType, room string, payload any) Message {
	m, err := NewMessage(t, room, payload)
	if err != nil {
		panic(err)
	}
	return m
}
