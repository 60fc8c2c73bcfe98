package models

import "time"

// FlowState is a named node in the workflow graph.
type FlowState struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// FlowTransition is a directed edge between two workflow states.
type FlowTransition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WorkflowGraph is the directed graph of states and transitions for one room.
type WorkflowGraph struct {
	States      []FlowState      `json:"states"`
	Transitions []FlowTransition `json:"transitions"`
}

// HasState reports whether the graph contains a state with the given id.
func (g WorkflowGraph) HasState(id string) bool {
	for _, s := range g.States {
		if s.ID == id {
			return true
		}
	}
	return false
}

// HasTransition reports whether a directed edge from -> to exists.
func (g WorkflowGraph) HasTransition(from, to string) bool {
	for _, t := range g.Transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// JournalEntry is one timestamped note in a work item's history. Entries are
// stored in insertion order; display reverses to newest-first.
type JournalEntry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// WorkItem is a tracked item moving through the workflow graph. StateID may
// reference a state that has since been deleted; such items are tombstones
// until explicitly reassigned.
type WorkItem struct {
	ID      int            `json:"id"`
	Title   string         `json:"title"`
	Notes   string         `json:"notes,omitempty"`
	StateID string         `json:"stateId"`
	Journal []JournalEntry `json:"journal,omitempty"`
}
