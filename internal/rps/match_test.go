package rps

import (
	"errors"
	"testing"

	"github.com/huddlekit/huddle/internal/models"
)

type captureSender struct {
	sent []models.Message
}

func (s *captureSender) Send(msg models.Message) {
	s.sent = append(s.sent, msg)
}

func testRoom() string { return "lobby" }

func TestClaimIsNotOptimistic(t *testing.T) {
	sender := &captureSender{}
	m := New(sender, testRoom)

	if err := m.Claim(1); err != nil {
		t.Fatal(err)
	}
	if !m.ClaimPending() {
		t.Error("claim should be pending until the server answers")
	}
	if m.Position() != 0 {
		t.Error("position must not be held before the grant arrives")
	}
	if len(sender.sent) != 1 || sender.sent[0].Type != models.MessageRPSClaim {
		t.Fatalf("expected one rps_claim message, got %+v", sender.sent)
	}
}

func TestClaimDenialUnlocksPendingState(t *testing.T) {
	m := New(&captureSender{}, testRoom)
	if err := m.Claim(1); err != nil {
		t.Fatal(err)
	}

	m.Apply(models.RPSPayload{
		Event:     models.RPSEventPositionUpdate,
		Position:  1,
		Granted:   false,
		Positions: &[2]bool{true, false},
	})

	if m.ClaimPending() {
		t.Error("denied claim left pending state locked")
	}
	if m.Position() != 0 {
		t.Error("denied claim granted a position")
	}

	// The slot now shows taken, so a re-claim is rejected locally.
	if err := m.Claim(1); !errors.Is(err, ErrPositionTaken) {
		t.Errorf("expected ErrPositionTaken, got %v", err)
	}
}

func TestClaimGrantAssignsPosition(t *testing.T) {
	m := New(&captureSender{}, testRoom)
	if err := m.Claim(2); err != nil {
		t.Fatal(err)
	}
	m.Apply(models.RPSPayload{
		Event:     models.RPSEventPositionUpdate,
		Position:  2,
		Granted:   true,
		Positions: &[2]bool{false, true},
	})
	if m.Position() != 2 {
		t.Errorf("position = %d, want 2", m.Position())
	}
}

func TestChooseIsWriteOncePerRound(t *testing.T) {
	sender := &captureSender{}
	m := New(sender, testRoom)
	if err := m.Claim(1); err != nil {
		t.Fatal(err)
	}
	m.Apply(models.RPSPayload{Event: models.RPSEventPositionUpdate, Position: 1, Granted: true, Positions: &[2]bool{true, true}})
	m.Apply(models.RPSPayload{Event: models.RPSEventGameStart})

	if err := m.Choose(models.RPSRock); err != nil {
		t.Fatalf("first choice rejected: %v", err)
	}
	if err := m.Choose(models.RPSPaper); !errors.Is(err, ErrAlreadyChosen) {
		t.Fatalf("expected ErrAlreadyChosen, got %v", err)
	}

	// A new round unlocks choosing again.
	m.Apply(models.RPSPayload{Event: models.RPSEventReveal, Choices: &[2]string{models.RPSRock, models.RPSScissors}, Winner: 1})
	m.Apply(models.RPSPayload{Event: models.RPSEventGameStart})
	if err := m.Choose(models.RPSScissors); err != nil {
		t.Fatalf("choice after new round rejected: %v", err)
	}
}

func TestChoosePreconditions(t *testing.T) {
	m := New(&captureSender{}, testRoom)

	if err := m.Choose("lizard"); !errors.Is(err, ErrBadChoice) {
		t.Errorf("expected ErrBadChoice, got %v", err)
	}
	if err := m.Choose(models.RPSRock); !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}

	if err := m.Claim(1); err != nil {
		t.Fatal(err)
	}
	m.Apply(models.RPSPayload{Event: models.RPSEventPositionUpdate, Position: 1, Granted: true, Positions: &[2]bool{true, false}})
	if err := m.Choose(models.RPSRock); !errors.Is(err, ErrGameInactive) {
		t.Errorf("expected ErrGameInactive, got %v", err)
	}
}

func TestResetClearsEverything(t *testing.T) {
	m := New(&captureSender{}, testRoom)
	if err := m.Claim(1); err != nil {
		t.Fatal(err)
	}
	m.Apply(models.RPSPayload{Event: models.RPSEventPositionUpdate, Position: 1, Granted: true, Positions: &[2]bool{true, true}})
	m.Apply(models.RPSPayload{Event: models.RPSEventGameStart})

	m.Apply(models.RPSPayload{Event: models.RPSEventReset})

	if m.Position() != 0 || m.ClaimPending() {
		t.Error("reset did not clear position state")
	}
	state := m.State()
	if state.GameActive || state.Slots[0].Claimed || state.Slots[1].Claimed {
		t.Errorf("reset left residual state: %+v", state)
	}
}
