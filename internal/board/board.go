// Package board owns the kanban widget state for the active room. The board
// is the exclusive owner of its state: the reconciler replaces or patches it
// under the snapshot rules, the timer completes the in-progress task, and
// everything else reads copies.
package board

import (
	"errors"
	"fmt"
	"sync"

	"github.com/huddlekit/huddle/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInProgressOccupied rejects moving a second task into the
	// in-progress column while another task already occupies it.
	ErrInProgressOccupied = errors.New("in-progress column already occupied")

	// ErrUnknownTask rejects operations naming a task id the board does not
	// hold.
	ErrUnknownTask = errors.New("unknown task")

	// ErrUnknownColumn rejects moves to a column outside the fixed set.
	ErrUnknownColumn = errors.New("unknown column")
)

// Board holds one room's kanban state. Safe for concurrent use.
type Board struct {
	mu    sync.Mutex
	state models.BoardState
}

// New returns an empty board with the task counter at 1.
func New() *Board {
	return &Board{state: models.BoardState{NextTaskID: 1}}
}

// AddTask creates a task in the todo column and returns a copy of it.
func (b *Board) AddTask(title, detail string) models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	task := models.Task{
		ID:     b.state.NextTaskID,
		Title:  title,
		Detail: detail,
		Column: models.ColumnTodo,
	}
	b.state.NextTaskID++
	b.state.Tasks = append(b.state.Tasks, task)
	return task
}

// MoveTask reassigns a task's column. Moving into in-progress is rejected
// while a different task occupies it; the prior occupant is untouched.
func (b *Board) MoveTask(id int, column models.ColumnID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(id, column)
}

// EditTask updates a task's title and detail.
func (b *Board) EditTask(id int, title, detail string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.editLocked(id, title, detail)
}

// DeleteTask removes a task from the board entirely. Drag-to-trash moves the
// task to trash-pending first; confirming the trash calls this.
func (b *Board) DeleteTask(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteLocked(id)
}

// TaskInProgress returns a copy of the task occupying the in-progress column,
// or nil. The at-most-one invariant makes the first match the only match.
func (b *Board) TaskInProgress() *models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.inProgressLocked(); idx >= 0 {
		c := b.state.Tasks[idx]
		return &c
	}
	return nil
}

// Task returns a copy of the task with the given id, or nil.
func (b *Board) Task(id int) *models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.indexLocked(id); idx >= 0 {
		c := b.state.Tasks[idx]
		return &c
	}
	return nil
}

// CompleteInProgress moves the in-progress task to done and returns a copy of
// it, or nil if no task is in progress. Used by timer completion.
func (b *Board) CompleteInProgress() *models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.inProgressLocked(); idx >= 0 {
		b.state.Tasks[idx].Column = models.ColumnDone
		c := b.state.Tasks[idx]
		return &c
	}
	return nil
}

// Snapshot returns a deep copy of the board state.
func (b *Board) Snapshot() models.BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyState(b.state)
}

// Replace installs an authoritative snapshot wholesale.
func (b *Board) Replace(state models.BoardState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = copyState(state)
	if b.state.NextTaskID < 1 {
		b.state.NextTaskID = 1
	}
}

// ApplyDelta applies an incremental board change from the server.
func (b *Board) ApplyDelta(d models.BoardDelta) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch d.Op {
	case models.BoardOpAdd:
		if d.Task == nil {
			return fmt.Errorf("add delta without task")
		}
		if b.indexLocked(d.Task.ID) >= 0 {
			// Duplicate delivery; adding again would duplicate the card.
			log.Debug().Int("task_id", d.Task.ID).Msg("ignoring duplicate add delta")
			return nil
		}
		b.state.Tasks = append(b.state.Tasks, *d.Task)
		if d.Task.ID >= b.state.NextTaskID {
			b.state.NextTaskID = d.Task.ID + 1
		}
		return nil

	case models.BoardOpMove:
		return b.moveLocked(d.TaskID, d.Column)

	case models.BoardOpEdit:
		if d.Task == nil {
			return fmt.Errorf("edit delta without task")
		}
		return b.editLocked(d.Task.ID, d.Task.Title, d.Task.Detail)

	case models.BoardOpRemove:
		return b.deleteLocked(d.TaskID)

	default:
		return fmt.Errorf("unknown board op %q", d.Op)
	}
}

func (b *Board) moveLocked(id int, column models.ColumnID) error {
	if !models.KnownColumn(column) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	idx := b.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	if column == models.ColumnInProgress {
		if cur := b.inProgressLocked(); cur >= 0 && b.state.Tasks[cur].ID != id {
			return ErrInProgressOccupied
		}
	}
	b.state.Tasks[idx].Column = column
	return nil
}

func (b *Board) editLocked(id int, title, detail string) error {
	idx := b.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	b.state.Tasks[idx].Title = title
	b.state.Tasks[idx].Detail = detail
	return nil
}

func (b *Board) deleteLocked(id int) error {
	idx := b.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownTask, id)
	}
	b.state.Tasks = append(b.state.Tasks[:idx], b.state.Tasks[idx+1:]...)
	return nil
}

func (b *Board) inProgressLocked() int {
	for i, t := range b.state.Tasks {
		if t.Column == models.ColumnInProgress {
			return i
		}
	}
	return -1
}

func (b *Board) indexLocked(id int) int {
	for i, t := range b.state.Tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func copyState(s models.BoardState) models.BoardState {
	out := models.BoardState{NextTaskID: s.NextTaskID}
	if len(s.Tasks) > 0 {
		out.Tasks = make([]models.Task, len(s.Tasks))
		copy(out.Tasks, s.Tasks)
	}
	return out
}
