package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"studyboard/board"
	"studyboard/domain"
)

// Messages shown to the user after board actions.
const (
	MsgMoveFailed   = "Drag failed. We've restored the previous order."
	MsgSaveFailed   = "We couldn't save that task. Please try again."
	MsgDeleteFailed = "Failed to delete task"
	MsgTitleMissing = "Please give the task a title."
	MsgCreated      = "Task created"
	MsgUpdated      = "Task updated"
	MsgRemoved      = "Task removed"
)

// Remote is the server side of the board as seen by one signed-in user.
type Remote interface {
	GetBoard(ctx context.Context) (domain.Board, error)
	CreateTask(ctx context.Context, in board.CreateInput) (domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, in board.UpdateInput) (domain.Task, error)
	MoveTask(ctx context.Context, taskID string, toStatus domain.Status, toIndex int) (domain.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
}

// Subscriber opens live board streams.
type Subscriber interface {
	Subscribe(ctx context.Context) (*Stream, error)
}

// Notifier surfaces non-fatal feedback to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// logNotifier is the default Notifier.
type logNotifier struct{ logger log.FieldLogger }

func (n logNotifier) Success(msg string) { n.logger.Info(msg) }
func (n logNotifier) Error(msg string)   { n.logger.Warn(msg) }

// MoveState is the outcome of a drag gesture.
type MoveState int

const (
	MoveIdle MoveState = iota
	MoveOptimistic
	MoveConfirmed
	MoveRolledBack
)

func (s MoveState) String() string {
	switch s {
	case MoveIdle:
		return "idle"
	case MoveOptimistic:
		return "optimistic"
	case MoveConfirmed:
		return "confirmed"
	case MoveRolledBack:
		return "rolled-back"
	}
	return fmt.Sprintf("MoveState(%d)", int(s))
}

// Session binds a Model to a Remote and runs user gestures against both.
type Session struct {
	model      *Model
	remote     Remote
	notifier   Notifier
	logger     log.FieldLogger
	retryDelay time.Duration
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithNotifier replaces the logging notifier.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) { s.notifier = n }
}

// WithRetryDelay sets how long Follow waits before reopening a lost stream.
func WithRetryDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.retryDelay = d }
}

// NewSession returns a session working on model.
func NewSession(model *Model, remote Remote, opts ...SessionOption) *Session {
	if model == nil {
		model = NewModel()
	}
	logger := log.WithField("component", "board-client")
	s := &Session{
		model:      model,
		remote:     remote,
		notifier:   logNotifier{logger: logger},
		logger:     logger,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the board model driven by the session.
func (s *Session) Model() *Model { return s.model }

// Load fetches the current projection from the server.
func (s *Session) Load(ctx context.Context) error {
	b, err := s.remote.GetBoard(ctx)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	s.model.LoadFromProjection(b)
	return nil
}

// Run applies every projection from updates until the channel closes or ctx ends.
// A closed channel returns nil; Follow also reports why a Stream ended.
func (s *Session) Run(ctx context.Context, updates <-chan domain.Board) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-updates:
			if !ok {
				return nil
			}
			s.model.LoadFromProjection(b)
		}
	}
}

// Follow keeps the model reconciled with the server's board stream until ctx
// ends. A stream lost to a transient failure is reopened after the retry delay,
// and the board is re-fetched while it is down. Any other failure, such as a
// rejected token, is returned.
func (s *Session) Follow(ctx context.Context, sub Subscriber) error {
	for {
		st, err := sub.Subscribe(ctx)
		if err == nil {
			if err := s.Run(ctx, st.Updates()); err != nil {
				return err
			}
			err = st.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, domain.ErrTransient) {
			return err
		}
		s.logger.WithError(err).Warn("board stream lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
		if err := s.Load(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Warn("re-fetch board")
		}
	}
}

// Move applies a drop locally and asks the server to persist it. A negative
// index drops at the end of the column. When the server rejects the move the
// pre-gesture board is restored before Move returns.
func (s *Session) Move(ctx context.Context, taskID string, toStatus domain.Status, toIndex int) (MoveState, error) {
	if toIndex < 0 {
		toIndex = s.model.columnLen(toStatus)
	}
	snap := s.model.Snapshot()
	if err := s.model.ApplyLocalMove(taskID, toStatus, toIndex); err != nil {
		return MoveIdle, err
	}
	if _, err := s.remote.MoveTask(ctx, taskID, toStatus, toIndex); err != nil {
		s.model.RestoreSnapshot(snap)
		s.notifier.Error(MsgMoveFailed)
		log.WithFields(log.Fields{"task": taskID, "status": toStatus, "index": toIndex}).
			WithError(err).Debug("move rolled back")
		return MoveRolledBack, err
	}
	return MoveConfirmed, nil
}

// Create submits a new task. The model only changes once the server accepted it.
func (s *Session) Create(ctx context.Context, in board.CreateInput) (domain.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		s.notifier.Error(MsgTitleMissing)
		return domain.Task{}, fmt.Errorf("%w: title must not be empty", domain.ErrInvalidArgument)
	}
	task, err := s.remote.CreateTask(ctx, in)
	if err != nil {
		s.notifier.Error(MsgSaveFailed)
		return domain.Task{}, err
	}
	s.model.upsert(task)
	s.notifier.Success(MsgCreated)
	return task, nil
}

// Update changes the editable fields of a task.
func (s *Session) Update(ctx context.Context, taskID string, in board.UpdateInput) (domain.Task, error) {
	task, err := s.update(ctx, taskID, in)
	if err != nil {
		s.notifier.Error(MsgSaveFailed)
		return domain.Task{}, err
	}
	s.notifier.Success(MsgUpdated)
	return task, nil
}

// Edit saves the edit form: the fields first, then a move to the top of the new
// column when the status changed.
func (s *Session) Edit(ctx context.Context, taskID string, in board.UpdateInput, status domain.Status) (domain.Task, error) {
	task, err := s.update(ctx, taskID, in)
	if err != nil {
		s.notifier.Error(MsgSaveFailed)
		return domain.Task{}, err
	}
	if current, ok := s.model.statusOf(taskID); ok && current != status {
		snap := s.model.Snapshot()
		if err := s.model.ApplyLocalMove(taskID, status, 0); err != nil {
			s.notifier.Error(MsgSaveFailed)
			return task, err
		}
		moved, err := s.remote.MoveTask(ctx, taskID, status, 0)
		if err != nil {
			s.model.RestoreSnapshot(snap)
			s.notifier.Error(MsgSaveFailed)
			return task, err
		}
		task = moved
		s.model.upsert(task)
	}
	s.notifier.Success(MsgUpdated)
	return task, nil
}

func (s *Session) update(ctx context.Context, taskID string, in board.UpdateInput) (domain.Task, error) {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return domain.Task{}, fmt.Errorf("%w: title must not be empty", domain.ErrInvalidArgument)
	}
	task, err := s.remote.UpdateTask(ctx, taskID, in)
	if err != nil {
		return domain.Task{}, err
	}
	s.model.upsert(task)
	return task, nil
}

// Delete removes a task on the server, then locally.
func (s *Session) Delete(ctx context.Context, taskID string) error {
	if err := s.remote.DeleteTask(ctx, taskID); err != nil {
		s.notifier.Error(MsgDeleteFailed)
		return err
	}
	s.model.remove(taskID)
	s.notifier.Success(MsgRemoved)
	return nil
}
