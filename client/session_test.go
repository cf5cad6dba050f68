package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyboard/board"
	"studyboard/domain"
)

type moveCall struct {
	id     string
	status domain.Status
	index  int
}

type fakeRemote struct {
	board   domain.Board
	moveErr error
	saveErr error
	moves   []moveCall
	creates int
	updates int
}

func (f *fakeRemote) GetBoard(context.Context) (domain.Board, error) { return f.board, nil }

func (f *fakeRemote) CreateTask(_ context.Context, in board.CreateInput) (domain.Task, error) {
	f.creates++
	if f.saveErr != nil {
		return domain.Task{}, f.saveErr
	}
	status := in.Status
	if status == "" {
		status = domain.StatusBacklog
	}
	return domain.Task{ID: fmt.Sprintf("new%d", f.creates), Title: in.Title, Status: status, Priority: domain.PriorityMedium}, nil
}

func (f *fakeRemote) UpdateTask(_ context.Context, id string, in board.UpdateInput) (domain.Task, error) {
	f.updates++
	if f.saveErr != nil {
		return domain.Task{}, f.saveErr
	}
	s, idx, ok := f.board.Find(id)
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	t := (*f.board.Column(s))[idx]
	if in.Title != nil {
		t.Title = *in.Title
	}
	return t, nil
}

func (f *fakeRemote) MoveTask(_ context.Context, id string, to domain.Status, idx int) (domain.Task, error) {
	f.moves = append(f.moves, moveCall{id, to, idx})
	if f.moveErr != nil {
		return domain.Task{}, f.moveErr
	}
	return domain.Task{ID: id, Title: id, Status: to, Priority: domain.PriorityMedium, Order: 500}, nil
}

func (f *fakeRemote) DeleteTask(context.Context, string) error { return f.saveErr }

type recordingNotifier struct {
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) { n.successes = append(n.successes, msg) }
func (n *recordingNotifier) Error(msg string)   { n.errors = append(n.errors, msg) }

func newTestSession(t *testing.T, remote *fakeRemote) (*Session, *recordingNotifier) {
	t.Helper()
	remote.board = sampleBoard()
	n := &recordingNotifier{}
	s := NewSession(NewModel(), remote, WithNotifier(n))
	require.NoError(t, s.Load(context.Background()))
	return s, n
}

func TestMoveConfirmed(t *testing.T) {
	remote := &fakeRemote{}
	s, n := newTestSession(t, remote)

	state, err := s.Move(context.Background(), "c", domain.StatusBacklog, 0)
	require.NoError(t, err)
	assert.Equal(t, MoveConfirmed, state)
	assert.Equal(t, []string{"c", "a", "b"}, ids(s.Model().Board().Columns.Backlog))
	assert.Equal(t, []moveCall{{"c", domain.StatusBacklog, 0}}, remote.moves)
	assert.Empty(t, n.errors)
}

// A rejected move restores the exact pre-gesture board and tells the user.
func TestMoveRollsBackOnFailure(t *testing.T) {
	remote := &fakeRemote{moveErr: fmt.Errorf("%w: connection reset", domain.ErrTransient)}
	s, n := newTestSession(t, remote)
	before := s.Model().Snapshot()

	state, err := s.Move(context.Background(), "a", domain.StatusDone, 1)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, MoveRolledBack, state)
	assert.Equal(t, before, s.Model().Board())
	assert.Equal(t, []string{MsgMoveFailed}, n.errors)
}

func TestMoveNegativeIndexAppends(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestSession(t, remote)

	_, err := s.Move(context.Background(), "a", domain.StatusDone, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a"}, ids(s.Model().Board().Columns.Done))
	assert.Equal(t, 1, remote.moves[0].index)
}

func TestMoveUnknownTaskStaysIdle(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestSession(t, remote)

	state, err := s.Move(context.Background(), "ghost", domain.StatusDone, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, MoveIdle, state)
	assert.Empty(t, remote.moves)
}

func TestCreateRequiresTitle(t *testing.T) {
	remote := &fakeRemote{}
	s, n := newTestSession(t, remote)

	_, err := s.Create(context.Background(), board.CreateInput{Title: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Zero(t, remote.creates)
	assert.Equal(t, []string{MsgTitleMissing}, n.errors)
}

func TestCreateFailureLeavesModel(t *testing.T) {
	remote := &fakeRemote{}
	s, n := newTestSession(t, remote)
	remote.saveErr = domain.ErrTransient
	before := s.Model().Snapshot()

	_, err := s.Create(context.Background(), board.CreateInput{Title: "Essay"})
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, before, s.Model().Board())
	assert.Equal(t, []string{MsgSaveFailed}, n.errors)
}

func TestCreateAppendsAcceptedTask(t *testing.T) {
	remote := &fakeRemote{}
	s, n := newTestSession(t, remote)

	created, err := s.Create(context.Background(), board.CreateInput{Title: "Essay", Status: domain.StatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", created.ID}, ids(s.Model().Board().Columns.InProgress))
	assert.Equal(t, 6, s.Model().Board().Totals.All)
	assert.Equal(t, []string{MsgCreated}, n.successes)
}

func TestEditMovesToTopOfNewColumn(t *testing.T) {
	remote := &fakeRemote{}
	s, n := newTestSession(t, remote)
	title := "Renamed"

	task, err := s.Edit(context.Background(), "b", board.UpdateInput{Title: &title}, domain.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, task.Status)
	assert.Equal(t, []moveCall{{"b", domain.StatusDone, 0}}, remote.moves)
	assert.Equal(t, []string{"b", "d"}, ids(s.Model().Board().Columns.Done))
	assert.Equal(t, []string{MsgUpdated}, n.successes)
}

func TestEditSameStatusDoesNotMove(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestSession(t, remote)
	title := "Renamed"

	task, err := s.Edit(context.Background(), "b", board.UpdateInput{Title: &title}, domain.StatusBacklog)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", task.Title)
	assert.Empty(t, remote.moves)
	assert.Equal(t, "Renamed", s.Model().Board().Columns.Backlog[1].Title)
}

func TestEditMoveFailureRestoresColumns(t *testing.T) {
	remote := &fakeRemote{moveErr: domain.ErrTransient}
	s, n := newTestSession(t, remote)

	_, err := s.Edit(context.Background(), "b", board.UpdateInput{}, domain.StatusDone)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, []string{"a", "b", "c"}, ids(s.Model().Board().Columns.Backlog))
	assert.Equal(t, []string{MsgSaveFailed}, n.errors)
}

func TestDelete(t *testing.T) {
	remote := &fakeRemote{}
	s, n := newTestSession(t, remote)

	require.NoError(t, s.Delete(context.Background(), "x"))
	assert.Empty(t, s.Model().Board().Columns.InProgress)
	assert.Equal(t, 4, s.Model().Board().Totals.All)

	remote.saveErr = domain.ErrNotFound
	assert.ErrorIs(t, s.Delete(context.Background(), "a"), domain.ErrNotFound)
	assert.Len(t, s.Model().Board().Columns.Backlog, 3)
	assert.Equal(t, []string{MsgDeleteFailed}, n.errors)
}

func TestRunAppliesProjections(t *testing.T) {
	remote := &fakeRemote{}
	s, _ := newTestSession(t, remote)
	updates := make(chan domain.Board, 2)
	updates <- domain.EmptyBoard()
	final := domain.Project([]domain.Task{task("q", domain.StatusDone, 1)})
	updates <- final
	close(updates)

	require.NoError(t, s.Run(context.Background(), updates))
	assert.Equal(t, final, s.Model().Board())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewSession(nil, &fakeRemote{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, make(chan domain.Board))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMoveStateString(t *testing.T) {
	assert.Equal(t, "rolled-back", MoveRolledBack.String())
	assert.Equal(t, "MoveState(9)", MoveState(9).String())
}
