package domain

const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskMoved   = "task-moved"
	TaskDeleted = "task-deleted"
)

// Event describes a committed change to a user's board.
type Event struct {
	EntityID string `json:"EntityId"`
	Type     string `json:"Type"`
	UserID   string `json:"UserId"`
	Task     *Task  `json:"Task,omitempty"`
	// Timestamp is the commit time in unix nanoseconds.
	Timestamp int64 `json:"Timestamp"`
}
