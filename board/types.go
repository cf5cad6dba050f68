package board

import (
	"context"
	"time"

	"studyboard/domain"
)

// Storage abstracts persistence of task rows. Every call is scoped to one owner;
// ordering of returned slices is not significant.
type Storage interface {
	// ListTasks returns all tasks of the owner.
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	// ListColumn returns the owner's tasks with the given status.
	ListColumn(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error)
	// GetTask returns nil, nil when the task does not exist for the owner.
	GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) error
	// UpdateTask writes task if its row still carries task.Version, otherwise it
	// returns domain.ErrConflict. domain.ErrNotFound is returned for missing rows.
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	// ApplyMove persists moved (version checked like UpdateTask) together with the
	// re-keyed siblings of a compaction pass as a single atomic write.
	ApplyMove(ctx context.Context, moved domain.Task, renumbered []domain.Task) error
}

// Publisher is notified after every committed change so subscribers can refresh.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// CreateInput carries the fields of a new task.
type CreateInput struct {
	Title       string
	Description string
	Status      domain.Status
	Priority    domain.Priority
	DueDate     *time.Time
}

// UpdateInput carries an edit. Nil fields are left unchanged; ClearDescription and
// ClearDueDate remove the optional values.
type UpdateInput struct {
	Title            *string
	Description      *string
	Priority         *domain.Priority
	DueDate          *time.Time
	ClearDescription bool
	ClearDueDate     bool
}

// MoveRequest asks for a task to occupy Index in the destination column.
type MoveRequest struct {
	TaskID   string
	ToStatus domain.Status
	ToIndex  int
}
