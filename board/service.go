package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"studyboard/domain"
)

// DefaultMaxAttempts bounds how often a write is recomputed after a version conflict.
const DefaultMaxAttempts = 3

// Service implements the board operations of a single owner at a time.
type Service struct {
	st          Storage
	pub         Publisher
	now         func() time.Time
	newID       func() string
	maxAttempts int
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the task id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithMaxAttempts sets the number of tries for a conflicting write. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// NewService builds a Service. pub may be nil when nobody listens for changes.
func NewService(st Storage, pub Publisher, opts ...Option) *Service {
	s := &Service{
		st:          st,
		pub:         pub,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GetBoard returns the owner's tasks grouped into the three columns.
func (s *Service) GetBoard(ctx context.Context, ownerID string) (domain.Board, error) {
	tasks, err := s.st.ListTasks(ctx, ownerID)
	if err != nil {
		return domain.Board{}, fmt.Errorf("list tasks: %w", err)
	}
	return domain.Project(tasks), nil
}

// CreateTask appends a new task to the end of its column.
func (s *Service) CreateTask(ctx context.Context, ownerID string, in CreateInput) (domain.Task, error) {
	title, err := domain.NormalizeTitle(in.Title)
	if err != nil {
		return domain.Task{}, err
	}
	desc, err := domain.NormalizeDescription(in.Description)
	if err != nil {
		return domain.Task{}, err
	}
	status := in.Status
	if status == "" {
		status = domain.StatusBacklog
	}
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, status)
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidArgument, priority)
	}

	column, err := s.st.ListColumn(ctx, ownerID, status)
	if err != nil {
		return domain.Task{}, fmt.Errorf("list column: %w", err)
	}
	key, ok := domain.AppendKey(maxKey(column))
	if !ok {
		key, err = s.compactForAppend(ctx, column)
		if err != nil {
			return domain.Task{}, err
		}
	}

	now := s.now()
	task := domain.Task{
		ID:          s.newID(),
		Title:       title,
		Description: desc,
		Status:      status,
		Priority:    priority,
		Order:       key,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.DueDate != nil {
		d := in.DueDate.UTC()
		task.DueDate = &d
	}
	if err := s.st.InsertTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	s.publish(ctx, domain.TaskCreated, task.ID, ownerID, &task)
	return task, nil
}

// compactForAppend renumbers a column whose tail has no headroom and returns the
// key following the renumbered tail.
func (s *Service) compactForAppend(ctx context.Context, column []domain.Task) (int64, error) {
	siblings := make([]domain.Task, len(column))
	copy(siblings, column)
	domain.SortColumn(siblings)
	renumbered := compact(siblings)
	if len(renumbered) > 0 {
		if err := s.st.ApplyMove(ctx, renumbered[0], renumbered[1:]); err != nil {
			return 0, fmt.Errorf("compact column: %w", err)
		}
	}
	key, ok := domain.AppendKey(maxKey(siblings))
	if !ok {
		return 0, errors.New("no order key available after compaction")
	}
	return key, nil
}

// UpdateTask applies an edit to the editable fields of a task. Status and order are
// only changed through MoveTask.
func (s *Service) UpdateTask(ctx context.Context, ownerID, taskID string, in UpdateInput) (domain.Task, error) {
	var title, desc *string
	if in.Title != nil {
		v, err := domain.NormalizeTitle(*in.Title)
		if err != nil {
			return domain.Task{}, err
		}
		title = &v
	}
	if in.Description != nil {
		v, err := domain.NormalizeDescription(*in.Description)
		if err != nil {
			return domain.Task{}, err
		}
		desc = &v
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidArgument, *in.Priority)
	}

	for attempt := 1; ; attempt++ {
		cur, err := s.owned(ctx, ownerID, taskID)
		if err != nil {
			return domain.Task{}, err
		}
		upd := cur.Clone()
		if title != nil {
			upd.Title = *title
		}
		switch {
		case in.ClearDescription:
			upd.Description = ""
		case desc != nil:
			upd.Description = *desc
		}
		if in.Priority != nil {
			upd.Priority = *in.Priority
		}
		switch {
		case in.ClearDueDate:
			upd.DueDate = nil
		case in.DueDate != nil:
			d := in.DueDate.UTC()
			upd.DueDate = &d
		}
		upd.UpdatedAt = s.now()

		err = s.st.UpdateTask(ctx, upd)
		if errors.Is(err, domain.ErrConflict) && attempt < s.maxAttempts {
			log.WithFields(log.Fields{"task": taskID, "attempt": attempt}).Info("task update conflicted, retrying")
			continue
		}
		if err != nil {
			return domain.Task{}, fmt.Errorf("update task: %w", err)
		}
		s.publish(ctx, domain.TaskUpdated, taskID, ownerID, &upd)
		return upd, nil
	}
}

// MoveTask places a task at req.ToIndex of the req.ToStatus column. An index past the
// end of the column appends the task.
func (s *Service) MoveTask(ctx context.Context, ownerID string, req MoveRequest) (domain.Task, error) {
	if !req.ToStatus.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, req.ToStatus)
	}
	if req.ToIndex < 0 {
		return domain.Task{}, fmt.Errorf("%w: toIndex must not be negative", domain.ErrInvalidArgument)
	}

	for attempt := 1; ; attempt++ {
		cur, err := s.owned(ctx, ownerID, req.TaskID)
		if err != nil {
			return domain.Task{}, err
		}
		column, err := s.st.ListColumn(ctx, ownerID, req.ToStatus)
		if err != nil {
			return domain.Task{}, fmt.Errorf("list column: %w", err)
		}
		p, err := place(column, cur.ID, req.ToIndex)
		if err != nil {
			return domain.Task{}, err
		}

		moved := cur.Clone()
		moved.Status = req.ToStatus
		moved.Order = p.key
		moved.UpdatedAt = s.now()

		err = s.st.ApplyMove(ctx, moved, p.renumbered)
		if errors.Is(err, domain.ErrConflict) && attempt < s.maxAttempts {
			log.WithFields(log.Fields{"task": req.TaskID, "attempt": attempt}).Info("task move conflicted, retrying")
			continue
		}
		if err != nil {
			return domain.Task{}, fmt.Errorf("apply move: %w", err)
		}
		if len(p.renumbered) > 0 {
			log.WithFields(log.Fields{"owner": ownerID, "status": req.ToStatus, "renumbered": len(p.renumbered)}).Debug("column compacted")
		}
		s.publish(ctx, domain.TaskMoved, moved.ID, ownerID, &moved)
		return moved, nil
	}
}

// DeleteTask removes a task. Siblings keep their keys.
func (s *Service) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if _, err := s.owned(ctx, ownerID, taskID); err != nil {
		return err
	}
	if err := s.st.DeleteTask(ctx, ownerID, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	s.publish(ctx, domain.TaskDeleted, taskID, ownerID, nil)
	return nil
}

// owned loads a task of ownerID. Missing tasks and tasks of other owners both yield
// domain.ErrNotFound.
func (s *Service) owned(ctx context.Context, ownerID, taskID string) (domain.Task, error) {
	if taskID == "" {
		return domain.Task{}, fmt.Errorf("%w: task id is required", domain.ErrInvalidArgument)
	}
	t, err := s.st.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	if t == nil || t.OwnerID != ownerID {
		return domain.Task{}, domain.ErrNotFound
	}
	return *t, nil
}

// publish reports a committed change. Failures are logged only; the write already happened.
func (s *Service) publish(ctx context.Context, typ, taskID, ownerID string, task *domain.Task) {
	if s.pub == nil {
		return
	}
	ev := domain.Event{
		EntityID:  taskID,
		Type:      typ,
		UserID:    ownerID,
		Task:      task,
		Timestamp: s.now().UnixNano(),
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{"task": taskID, "type": typ}).Warn("failed to publish board change")
	}
}
