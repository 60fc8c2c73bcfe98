package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/huddlekit/huddle/internal/board"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/huddlekit/huddle/internal/workflow"
	"github.com/jonboulle/clockwork"
)

// RoomState is the authoritative state of one room. The hub is the
// cross-client arbiter: board moves, timer updates and workflow pushes are
// validated and applied here before being rebroadcast, and rock-paper-
// scissors claims are resolved first-wins.
type RoomState struct {
	mu    sync.Mutex
	board *board.Board
	flow  *workflow.Workflow
	timer models.TimerState

	slots      [2]rpsSlot
	gameActive bool
}

type rpsSlot struct {
	owner  string
	choice string
}

// persistedState is the JSON shape stored per room.
type persistedState struct {
	Board     models.BoardState    `json:"board"`
	Timer     models.TimerState    `json:"timer"`
	Workflow  models.WorkflowGraph `json:"workflow"`
	WorkItems []models.WorkItem    `json:"workItems"`
}

func newRoomState(clock clockwork.Clock) *RoomState {
	return &RoomState{
		board: board.New(),
		flow:  workflow.New(clock),
	}
}

// FullUpdate builds the snapshot bootstrap payload for this room.
func (s *RoomState) FullUpdate() models.FullUpdatePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.board.Snapshot()
	graph, items := s.flow.Snapshot()
	t := s.timer
	return models.FullUpdatePayload{
		Board:     &b,
		Timer:     &t,
		Workflow:  &graph,
		WorkItems: items,
	}
}

// ApplyBoardDelta validates and applies an incremental board change. The
// at-most-one in-progress invariant is enforced here authoritatively as well
// as optimistically on clients.
func (s *RoomState) ApplyBoardDelta(d models.BoardDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.ApplyDelta(d)
}

// ApplyTimer installs a client timer broadcast as the room's timer state.
func (s *RoomState) ApplyTimer(t models.TimerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.IsRunning {
		t.EndTime = nil
	}
	s.timer = t
}

// ApplyWorkflow replaces the workflow snapshot.
func (s *RoomState) ApplyWorkflow(p models.WorkflowUpdatePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flow.Replace(p.Workflow, p.WorkItems)
}

// ClaimPosition arbitrates a position claim. Exactly one of two racing
// claimants wins; the loser sees granted=false and the true claim map.
func (s *RoomState) ClaimPosition(connID string, position int) (granted bool, positions [2]bool, bothClaimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := position - 1
	if idx >= 0 && idx < 2 {
		if s.slots[idx].owner == "" || s.slots[idx].owner == connID {
			s.slots[idx].owner = connID
			granted = true
		}
	}
	positions = s.positionsLocked()
	bothClaimed = positions[0] && positions[1]
	if bothClaimed && granted {
		s.gameActive = true
	}
	return granted, positions, bothClaimed
}

// ReleaseOwner frees any slot held by a departing connection.
func (s *RoomState) ReleaseOwner(connID string) (changed bool, positions [2]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.slots[i].owner == connID {
			s.slots[i] = rpsSlot{}
			s.gameActive = false
			changed = true
		}
	}
	return changed, s.positionsLocked()
}

// Choose records a claimed player's choice. Write-once per round: a second
// choice from the same position is rejected until the round resets.
func (s *RoomState) Choose(connID string, position int, choice string) (ok bool, bothChosen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := position - 1
	if idx < 0 || idx >= 2 || !s.gameActive {
		return false, false
	}
	if s.slots[idx].owner != connID || s.slots[idx].choice != "" {
		return false, false
	}
	s.slots[idx].choice = choice
	return true, s.slots[0].choice != "" && s.slots[1].choice != ""
}

// Reveal returns both choices and the winning position (0 for a draw) and
// ends the active round.
func (s *RoomState) Reveal() (choices [2]string, winner int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	choices = [2]string{s.slots[0].choice, s.slots[1].choice}
	s.gameActive = false
	return choices, rpsWinner(choices[0], choices[1])
}

// ResetMatch returns the match to slots-open.
func (s *RoomState) ResetMatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = [2]rpsSlot{}
	s.gameActive = false
}

// MarshalState serializes the persistable widget state.
func (s *RoomState) MarshalState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	graph, items := s.flow.Snapshot()
	p := persistedState{
		Board:     s.board.Snapshot(),
		Timer:     s.timer,
		Workflow:  graph,
		WorkItems: items,
	}
	return json.Marshal(p)
}

// UnmarshalState restores widget state from a stored snapshot.
func (s *RoomState) UnmarshalState(data []byte) error {
	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode room state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.Replace(p.Board)
	s.timer = p.Timer
	s.flow.Replace(p.Workflow, p.WorkItems)
	return nil
}

func (s *RoomState) positionsLocked() [2]bool {
	return [2]bool{s.slots[0].owner != "", s.slots[1].owner != ""}
}

// rpsWinner resolves a round: 1 or 2 for the winning position, 0 for a draw.
func rpsWinner(a, b string) int {
	if a == b {
		return 0
	}
	beats := map[string]string{
		models.RPSRock:     models.RPSScissors,
		models.RPSPaper:    models.RPSRock,
		models.RPSScissors: models.RPSPaper,
	}
	if beats[a] == b {
		return 1
	}
	return 2
}
