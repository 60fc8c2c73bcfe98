// Package workflow owns the workflow-tracker widget state: a directed graph
// of states, the work items moving through it, and each item's append-only
// journal.
package workflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrUnknownState rejects references to a state id not in the graph.
	ErrUnknownState = errors.New("unknown workflow state")

	// ErrUnknownItem rejects operations naming a missing work item.
	ErrUnknownItem = errors.New("unknown work item")

	// ErrNoSuchTransition rejects moving an item along an edge the graph
	// does not define.
	ErrNoSuchTransition = errors.New("no transition between states")

	// ErrDanglingState rejects transitions out of a tombstoned item whose
	// state was deleted; the item must be reassigned first.
	ErrDanglingState = errors.New("item references a deleted state")
)

// UnknownStateName is what displays show for a tombstoned item's state.
const UnknownStateName = "Unknown"

// Workflow holds one room's workflow graph and items. Safe for concurrent
// use.
type Workflow struct {
	mu         sync.Mutex
	graph      models.WorkflowGraph
	items      []models.WorkItem
	nextItemID int
	clock      clockwork.Clock
}

// New returns an empty workflow. The clock stamps journal entries.
func New(clock clockwork.Clock) *Workflow {
	return &Workflow{nextItemID: 1, clock: clock}
}

// AddState adds a state node to the graph.
func (w *Workflow) AddState(s models.FlowState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.graph.HasState(s.ID) {
		return fmt.Errorf("state %q already exists", s.ID)
	}
	w.graph.States = append(w.graph.States, s)
	return nil
}

// AddTransition adds a directed edge. Both endpoints must exist.
func (w *Workflow) AddTransition(from, to string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.graph.HasState(from) {
		return fmt.Errorf("%w: %q", ErrUnknownState, from)
	}
	if !w.graph.HasState(to) {
		return fmt.Errorf("%w: %q", ErrUnknownState, to)
	}
	if w.graph.HasTransition(from, to) {
		return nil
	}
	w.graph.Transitions = append(w.graph.Transitions, models.FlowTransition{From: from, To: to})
	return nil
}

// DeleteState removes a state and cascades to every transition referencing
// it. Work items already in the state keep their now-dangling id as a
// tombstone; StateName resolves it to "Unknown" and Transition rejects moves
// out of it until ReassignState is called.
func (w *Workflow) DeleteState(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.graph.HasState(id) {
		return fmt.Errorf("%w: %q", ErrUnknownState, id)
	}
	states := w.graph.States[:0]
	for _, s := range w.graph.States {
		if s.ID != id {
			states = append(states, s)
		}
	}
	w.graph.States = states

	transitions := w.graph.Transitions[:0]
	for _, t := range w.graph.Transitions {
		if t.From != id && t.To != id {
			transitions = append(transitions, t)
		}
	}
	w.graph.Transitions = transitions
	return nil
}

// AddItem creates a work item in the given state.
func (w *Workflow) AddItem(title, notes, stateID string) (models.WorkItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.graph.HasState(stateID) {
		return models.WorkItem{}, fmt.Errorf("%w: %q", ErrUnknownState, stateID)
	}
	item := models.WorkItem{
		ID:      w.nextItemID,
		Title:   title,
		Notes:   notes,
		StateID: stateID,
	}
	w.nextItemID++
	w.appendJournal(&item, fmt.Sprintf("created in %s", w.stateNameLocked(stateID)))
	w.items = append(w.items, item)
	return item, nil
}

// Transition moves an item along an existing edge. On any failure the item's
// state and journal are left untouched.
func (w *Workflow) Transition(itemID int, toStateID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOf(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	item := &w.items[idx]
	if !w.graph.HasState(item.StateID) {
		return fmt.Errorf("%w: %q", ErrDanglingState, item.StateID)
	}
	if !w.graph.HasState(toStateID) {
		return fmt.Errorf("%w: %q", ErrUnknownState, toStateID)
	}
	if !w.graph.HasTransition(item.StateID, toStateID) {
		return fmt.Errorf("%w: %s -> %s", ErrNoSuchTransition, item.StateID, toStateID)
	}
	from := item.StateID
	item.StateID = toStateID
	w.appendJournal(item, fmt.Sprintf("moved from %s to %s", w.stateNameLocked(from), w.stateNameLocked(toStateID)))
	return nil
}

// ReassignState places an item directly into an existing state without
// requiring an edge. This is the recovery edit for tombstoned items.
func (w *Workflow) ReassignState(itemID int, stateID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOf(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	if !w.graph.HasState(stateID) {
		return fmt.Errorf("%w: %q", ErrUnknownState, stateID)
	}
	item := &w.items[idx]
	item.StateID = stateID
	w.appendJournal(item, fmt.Sprintf("reassigned to %s", w.stateNameLocked(stateID)))
	return nil
}

// AddJournalEntry appends a free-text note to an item's journal.
func (w *Workflow) AddJournalEntry(itemID int, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOf(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownItem, itemID)
	}
	w.appendJournal(&w.items[idx], text)
	return nil
}

// StateName resolves a state id for display, falling back to "Unknown" for
// tombstoned references.
func (w *Workflow) StateName(id string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateNameLocked(id)
}

func (w *Workflow) stateNameLocked(id string) string {
	for _, s := range w.graph.States {
		if s.ID == id {
			return s.Name
		}
	}
	return UnknownStateName
}

// Item returns a copy of the work item with the given id, or nil.
func (w *Workflow) Item(id int) *models.WorkItem {
	w.mu.Lock()
	defer w.mu.Unlock()
	if idx := w.indexOf(id); idx >= 0 {
		c := copyItem(w.items[idx])
		return &c
	}
	return nil
}

// JournalNewestFirst returns a display-ordered copy of an item's journal.
// Storage order is insertion order; display reverses it.
func (w *Workflow) JournalNewestFirst(itemID int) []models.JournalEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOf(itemID)
	if idx < 0 {
		return nil
	}
	journal := w.items[idx].Journal
	out := make([]models.JournalEntry, len(journal))
	for i, e := range journal {
		out[len(journal)-1-i] = e
	}
	return out
}

// Snapshot returns deep copies of the graph and items.
func (w *Workflow) Snapshot() (models.WorkflowGraph, []models.WorkItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyGraph(w.graph), copyItems(w.items)
}

// Replace installs an authoritative workflow snapshot wholesale.
func (w *Workflow) Replace(graph models.WorkflowGraph, items []models.WorkItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.graph = copyGraph(graph)
	w.items = copyItems(items)
	next := 1
	for _, it := range w.items {
		if it.ID >= next {
			next = it.ID + 1
		}
	}
	w.nextItemID = next
}

func (w *Workflow) appendJournal(item *models.WorkItem, text string) {
	item.Journal = append(item.Journal, models.JournalEntry{At: w.clock.Now(), Text: text})
}

func (w *Workflow) indexOf(id int) int {
	for i, it := range w.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func copyGraph(g models.WorkflowGraph) models.WorkflowGraph {
	out := models.WorkflowGraph{}
	if len(g.States) > 0 {
		out.States = make([]models.FlowState, len(g.States))
		copy(out.States, g.States)
	}
	if len(g.Transitions) > 0 {
		out.Transitions = make([]models.FlowTransition, len(g.Transitions))
		copy(out.Transitions, g.Transitions)
	}
	return out
}

func copyItem(it models.WorkItem) models.WorkItem {
	c := it
	if len(it.Journal) > 0 {
		c.Journal = make([]models.JournalEntry, len(it.Journal))
		copy(c.Journal, it.Journal)
	}
	return c
}

func copyItems(items []models.WorkItem) []models.WorkItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]models.WorkItem, len(items))
	for i, it := range items {
		out[i] = copyItem(it)
	}
	return out
}
