package workflow

import (
	"errors"
	"testing"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
)

func newTestWorkflow(t *testing.T) *Workflow {
	t.Helper()
	w := New(clockwork.NewFakeClock())
	for _, s := range []models.FlowState{
		{ID: "open", Name: "Open"},
		{ID: "review", Name: "In Review"},
		{ID: "closed", Name: "Closed"},
	} {
		if err := w.AddState(s); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range [][2]string{{"open", "review"}, {"review", "closed"}} {
		if err := w.AddTransition(e[0], e[1]); err != nil {
			t.Fatal(err)
		}
	}
	return w
}

func TestTransitionFollowsEdges(t *testing.T) {
	w := newTestWorkflow(t)
	item, err := w.AddItem("ticket", "", "open")
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Transition(item.ID, "review"); err != nil {
		t.Fatalf("valid transition rejected: %v", err)
	}
	if got := w.Item(item.ID).StateID; got != "review" {
		t.Errorf("state = %q, want review", got)
	}
}

func TestTransitionRejectionLeavesItemUntouched(t *testing.T) {
	w := newTestWorkflow(t)
	item, err := w.AddItem("ticket", "", "open")
	if err != nil {
		t.Fatal(err)
	}
	journalBefore := len(w.JournalNewestFirst(item.ID))

	// No open -> closed edge exists.
	err = w.Transition(item.ID, "closed")
	if !errors.Is(err, ErrNoSuchTransition) {
		t.Fatalf("expected ErrNoSuchTransition, got %v", err)
	}

	got := w.Item(item.ID)
	if got.StateID != "open" {
		t.Errorf("state changed on rejected transition: %q", got.StateID)
	}
	if len(w.JournalNewestFirst(item.ID)) != journalBefore {
		t.Error("journal grew on rejected transition")
	}
}

func TestDeleteStateCascadesTransitions(t *testing.T) {
	w := newTestWorkflow(t)
	if err := w.DeleteState("review"); err != nil {
		t.Fatal(err)
	}

	graph, _ := w.Snapshot()
	if graph.HasState("review") {
		t.Error("deleted state still in graph")
	}
	for _, tr := range graph.Transitions {
		if tr.From == "review" || tr.To == "review" {
			t.Errorf("dangling transition survived: %+v", tr)
		}
	}
}

func TestDeletedStateTombstonesItems(t *testing.T) {
	w := newTestWorkflow(t)
	item, err := w.AddItem("stranded", "", "review")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.DeleteState("review"); err != nil {
		t.Fatal(err)
	}

	// The item keeps its dangling id but displays as Unknown.
	if got := w.Item(item.ID).StateID; got != "review" {
		t.Errorf("tombstone state id = %q, want review", got)
	}
	if got := w.StateName("review"); got != UnknownStateName {
		t.Errorf("StateName = %q, want %q", got, UnknownStateName)
	}

	// Transitions out of the tombstone are rejected until reassignment.
	if err := w.Transition(item.ID, "closed"); !errors.Is(err, ErrDanglingState) {
		t.Fatalf("expected ErrDanglingState, got %v", err)
	}
	if err := w.ReassignState(item.ID, "open"); err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	if err := w.Transition(item.ID, "review"); !errors.Is(err, ErrUnknownState) {
		t.Fatalf("expected ErrUnknownState after reassign, got %v", err)
	}
}

func TestJournalNewestFirst(t *testing.T) {
	w := newTestWorkflow(t)
	item, err := w.AddItem("ticket", "", "open")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.AddJournalEntry(item.ID, "first note"); err != nil {
		t.Fatal(err)
	}
	if err := w.AddJournalEntry(item.ID, "second note"); err != nil {
		t.Fatal(err)
	}

	journal := w.JournalNewestFirst(item.ID)
	if len(journal) != 3 {
		t.Fatalf("journal length = %d, want 3 (creation + two notes)", len(journal))
	}
	if journal[0].Text != "second note" {
		t.Errorf("newest entry = %q, want second note", journal[0].Text)
	}
	if journal[2].Text != "created in Open" {
		t.Errorf("oldest entry = %q, want creation entry", journal[2].Text)
	}
}

func TestReplaceResetsItemCounter(t *testing.T) {
	w := newTestWorkflow(t)
	graph, _ := w.Snapshot()
	w.Replace(graph, []models.WorkItem{{ID: 10, Title: "imported", StateID: "open"}})

	item, err := w.AddItem("next", "", "open")
	if err != nil {
		t.Fatal(err)
	}
	if item.ID != 11 {
		t.Errorf("next item id = %d, want 11", item.ID)
	}
}
