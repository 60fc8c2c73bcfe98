// Package rps owns the rock-paper-scissors widget state on the client side.
// The server arbitrates claims; the local match state is a mirror driven by
// rps_update events plus the pending-claim bookkeeping needed to keep the UI
// honest while a claim is unresolved.
package rps

import (
	"errors"
	"fmt"
	"sync"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrPositionTaken rejects claiming a slot the local state already shows
	// as claimed.
	ErrPositionTaken = errors.New("position already claimed")

	// ErrAlreadyChosen enforces write-once choices per round.
	ErrAlreadyChosen = errors.New("choice already committed this round")

	// ErrNoPosition rejects choosing before holding a claimed position.
	ErrNoPosition = errors.New("no position claimed")

	// ErrGameInactive rejects choices outside an active round.
	ErrGameInactive = errors.New("game not active")

	// ErrBadPosition rejects positions outside 1..2.
	ErrBadPosition = errors.New("position must be 1 or 2")

	// ErrBadChoice rejects choices outside rock/paper/scissors.
	ErrBadChoice = errors.New("invalid choice")
)

// Sender transmits a message toward the server. Delivery confirmation is not
// part of the contract; the transport queues or drops per its own rules.
type Sender interface {
	Send(models.Message)
}

// Match mirrors one room's rock-paper-scissors state. Safe for concurrent
// use.
type Match struct {
	mu    sync.Mutex
	state models.MatchState

	// mine is the position we hold (0 = none); pendingClaim is a claim sent
	// but not yet answered by a position_update.
	mine         int
	pendingClaim int
	chosen       bool

	sender Sender
	room   func() string
}

// New returns a match bound to a sender and an active-room accessor for
// tagging outbound messages.
func New(sender Sender, room func() string) *Match {
	return &Match{sender: sender, room: room}
}

// Claim requests a player position. The claim is not applied optimistically:
// the server's position_update decides, so two racing claimants converge on
// one winner and the loser's UI stays unlocked.
func (m *Match) Claim(position int) error {
	if position < 1 || position > 2 {
		return fmt.Errorf("%w: %d", ErrBadPosition, position)
	}
	m.mu.Lock()
	if m.state.Slots[position-1].Claimed {
		m.mu.Unlock()
		return ErrPositionTaken
	}
	m.pendingClaim = position
	m.mu.Unlock()
	m.sender.Send(models.MustMessage(models.MessageRPSClaim, m.room(), models.RPSClaimPayload{Position: position}))
	return nil
}

// Choose commits this player's choice for the round. Choices are write-once
// until reveal or reset clears them.
func (m *Match) Choose(choice string) error {
	switch choice {
	case models.RPSRock, models.RPSPaper, models.RPSScissors:
	default:
		return fmt.Errorf("%w: %q", ErrBadChoice, choice)
	}
	m.mu.Lock()
	if m.mine == 0 {
		m.mu.Unlock()
		return ErrNoPosition
	}
	if !m.state.GameActive {
		m.mu.Unlock()
		return ErrGameInactive
	}
	if m.chosen {
		m.mu.Unlock()
		return ErrAlreadyChosen
	}
	m.chosen = true
	m.state.Slots[m.mine-1].Chosen = true
	position := m.mine
	m.mu.Unlock()
	m.sender.Send(models.MustMessage(models.MessageRPSChoice, m.room(), models.RPSChoicePayload{Position: position, Choice: choice}))
	return nil
}

// Apply folds a server rps_update event into the local mirror.
func (m *Match) Apply(p models.RPSPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch p.Event {
	case models.RPSEventPositionUpdate:
		if p.Positions != nil {
			for i, claimed := range p.Positions {
				m.state.Slots[i].Claimed = claimed
			}
		}
		// A position_update answering our claim either grants the slot or
		// shows it still contested/taken; either way the claim is resolved
		// and the UI must not stay locked.
		if m.pendingClaim != 0 && p.Position == m.pendingClaim {
			if p.Granted {
				m.mine = p.Position
			}
			m.pendingClaim = 0
		}

	case models.RPSEventGameStart:
		m.state.GameActive = true
		m.chosen = false
		for i := range m.state.Slots {
			m.state.Slots[i].Chosen = false
			m.state.Slots[i].Choice = ""
		}

	case models.RPSEventOpponentChosen:
		if p.Position >= 1 && p.Position <= 2 {
			m.state.Slots[p.Position-1].Chosen = true
		}

	case models.RPSEventReveal:
		if p.Choices != nil {
			for i, c := range p.Choices {
				m.state.Slots[i].Choice = c
			}
		}
		m.state.GameActive = false

	case models.RPSEventReset:
		m.state = models.MatchState{}
		m.mine = 0
		m.pendingClaim = 0
		m.chosen = false

	case models.RPSEventWaiting, models.RPSEventError:
		log.Debug().Str("event", string(p.Event)).Str("message", p.Message).Msg("rps status event")

	default:
		log.Warn().Str("event", string(p.Event)).Msg("unknown rps event")
	}
}

// Position returns the slot this client holds, 0 if none.
func (m *Match) Position() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mine
}

// ClaimPending reports whether a claim is awaiting the server's answer.
func (m *Match) ClaimPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingClaim != 0
}

// State returns a copy of the local match mirror.
func (m *Match) State() models.MatchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
