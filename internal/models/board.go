package models

// ColumnID names a board column. Columns are fixed; tasks move between them.
type ColumnID string

const (
	ColumnTodo       ColumnID = "todo"
	ColumnInProgress ColumnID = "in-progress"
	ColumnDone       ColumnID = "done"
	ColumnTrash      ColumnID = "trash-pending"
)

// KnownColumn reports whether id is one of the fixed board columns.
func KnownColumn(id ColumnID) bool {
	switch id {
	case ColumnTodo, ColumnInProgress, ColumnDone, ColumnTrash:
		return true
	}
	return false
}

// Task is one card on the board. IDs are unique within a room and assigned
// monotonically from the board's counter.
type Task struct {
	ID     int      `json:"id"`
	Title  string   `json:"title"`
	Detail string   `json:"detail,omitempty"`
	Column ColumnID `json:"column"`
}

// BoardState is the complete kanban widget state for one room. Tasks keeps
// insertion order; NextTaskID is the per-room monotonic counter.
type BoardState struct {
	Tasks      []Task `json:"tasks"`
	NextTaskID int    `json:"nextTaskId"`
}

// BoardOp discriminates incremental board changes.
type BoardOp string

const (
	BoardOpAdd    BoardOp = "add"
	BoardOpMove   BoardOp = "move"
	BoardOpEdit   BoardOp = "edit"
	BoardOpRemove BoardOp = "remove"
)

// BoardDelta is an incremental board change. Add and Edit carry the full
// task; Move carries the task id and destination column; Remove carries only
// the task id.
type BoardDelta struct {
	Op     BoardOp  `json:"op"`
	Task   *Task    `json:"task,omitempty"`
	TaskID int      `json:"taskId,omitempty"`
	Column ColumnID `json:"column,omitempty"`
}
