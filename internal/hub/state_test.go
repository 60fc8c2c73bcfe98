package hub

import (
	"errors"
	"testing"

	"github.com/huddlekit/huddle/internal/board"
	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
)

func TestClaimPositionFirstWins(t *testing.T) {
	s := newRoomState(clockwork.NewFakeClock())

	granted, _, _ := s.ClaimPosition("conn-a", 1)
	if !granted {
		t.Fatal("first claim denied")
	}
	granted, positions, _ := s.ClaimPosition("conn-b", 1)
	if granted {
		t.Fatal("second claim for the same slot granted")
	}
	if !positions[0] || positions[1] {
		t.Errorf("positions = %v, want only slot 1 claimed", positions)
	}

	// Re-claiming your own slot is idempotent, not a denial.
	granted, _, _ = s.ClaimPosition("conn-a", 1)
	if !granted {
		t.Error("owner re-claim denied")
	}
}

func TestBothClaimsActivateGame(t *testing.T) {
	s := newRoomState(clockwork.NewFakeClock())

	if _, _, both := s.ClaimPosition("conn-a", 1); both {
		t.Error("game active with one claim")
	}
	granted, positions, both := s.ClaimPosition("conn-b", 2)
	if !granted || !both {
		t.Fatalf("granted=%v both=%v, want both true", granted, both)
	}
	if !positions[0] || !positions[1] {
		t.Errorf("positions = %v, want both claimed", positions)
	}
}

func TestChooseIsOwnerBoundAndWriteOnce(t *testing.T) {
	s := newRoomState(clockwork.NewFakeClock())
	s.ClaimPosition("conn-a", 1)
	s.ClaimPosition("conn-b", 2)

	if ok, _ := s.Choose("conn-b", 1, models.RPSRock); ok {
		t.Error("choice accepted from a non-owner")
	}
	ok, both := s.Choose("conn-a", 1, models.RPSRock)
	if !ok || both {
		t.Fatalf("first choice ok=%v both=%v", ok, both)
	}
	if ok, _ := s.Choose("conn-a", 1, models.RPSPaper); ok {
		t.Error("second choice from the same position accepted")
	}
	ok, both = s.Choose("conn-b", 2, models.RPSScissors)
	if !ok || !both {
		t.Fatalf("second player choice ok=%v both=%v, want both true", ok, both)
	}

	choices, winner := s.Reveal()
	if choices != [2]string{models.RPSRock, models.RPSScissors} {
		t.Errorf("choices = %v", choices)
	}
	if winner != 1 {
		t.Errorf("winner = %d, want 1 (rock beats scissors)", winner)
	}

	// The round ended; no further choices until reset re-opens slots.
	if ok, _ := s.Choose("conn-a", 1, models.RPSRock); ok {
		t.Error("choice accepted after reveal")
	}
}

func TestReleaseOwnerFreesSlotAndDeactivates(t *testing.T) {
	s := newRoomState(clockwork.NewFakeClock())
	s.ClaimPosition("conn-a", 1)
	s.ClaimPosition("conn-b", 2)

	changed, positions := s.ReleaseOwner("conn-a")
	if !changed {
		t.Fatal("release reported no change")
	}
	if positions[0] || !positions[1] {
		t.Errorf("positions = %v, want only slot 2 claimed", positions)
	}
	if ok, _ := s.Choose("conn-b", 2, models.RPSRock); ok {
		t.Error("game still active after a player left")
	}

	if changed, _ := s.ReleaseOwner("conn-x"); changed {
		t.Error("release for a stranger reported a change")
	}
}

func TestRPSWinner(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{models.RPSRock, models.RPSScissors, 1},
		{models.RPSScissors, models.RPSRock, 2},
		{models.RPSPaper, models.RPSRock, 1},
		{models.RPSRock, models.RPSPaper, 2},
		{models.RPSScissors, models.RPSPaper, 1},
		{models.RPSPaper, models.RPSPaper, 0},
	}
	for _, tt := range tests {
		if got := rpsWinner(tt.a, tt.b); got != tt.want {
			t.Errorf("rpsWinner(%s, %s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestApplyBoardDeltaEnforcesInvariants(t *testing.T) {
	s := newRoomState(clockwork.NewFakeClock())
	first := models.Task{ID: 1, Title: "a", Column: models.ColumnTodo}
	second := models.Task{ID: 2, Title: "b", Column: models.ColumnTodo}
	for _, task := range []models.Task{first, second} {
		task := task
		if err := s.ApplyBoardDelta(models.BoardDelta{Op: models.BoardOpAdd, Task: &task}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.ApplyBoardDelta(models.BoardDelta{Op: models.BoardOpMove, TaskID: 1, Column: models.ColumnInProgress}); err != nil {
		t.Fatal(err)
	}

	err := s.ApplyBoardDelta(models.BoardDelta{Op: models.BoardOpMove, TaskID: 2, Column: models.ColumnInProgress})
	if !errors.Is(err, board.ErrInProgressOccupied) {
		t.Fatalf("expected ErrInProgressOccupied, got %v", err)
	}
}

func TestStatePersistenceRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newRoomState(clock)
	task := models.Task{ID: 1, Title: "persisted", Column: models.ColumnDone}
	if err := s.ApplyBoardDelta(models.BoardDelta{Op: models.BoardOpAdd, Task: &task}); err != nil {
		t.Fatal(err)
	}
	end := clock.Now().Unix() + 600
	s.ApplyTimer(models.TimerState{IsRunning: true, EndTime: &end, TotalTime: 600})
	s.ApplyWorkflow(models.WorkflowUpdatePayload{
		Workflow:  models.WorkflowGraph{States: []models.FlowState{{ID: "open", Name: "Open"}}},
		WorkItems: []models.WorkItem{{ID: 1, Title: "item", StateID: "open"}},
	})

	data, err := s.MarshalState()
	if err != nil {
		t.Fatal(err)
	}

	restored := newRoomState(clock)
	if err := restored.UnmarshalState(data); err != nil {
		t.Fatal(err)
	}

	full := restored.FullUpdate()
	if len(full.Board.Tasks) != 1 || full.Board.Tasks[0].Title != "persisted" {
		t.Errorf("restored board = %+v", full.Board)
	}
	if full.Timer.EndTime == nil || *full.Timer.EndTime != end {
		t.Errorf("restored timer = %+v", full.Timer)
	}
	if len(full.WorkItems) != 1 {
		t.Errorf("restored work items = %+v", full.WorkItems)
	}
}

func TestApplyTimerClearsEndTimeWhenStopped(t *testing.T) {
	s := newRoomState(clockwork.NewFakeClock())
	end := int64(12345)
	s.ApplyTimer(models.TimerState{IsRunning: false, EndTime: &end, TotalTime: 600})

	if got := s.FullUpdate().Timer.EndTime; got != nil {
		t.Errorf("stopped timer kept end time %v", *got)
	}
}
