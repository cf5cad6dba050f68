package client

import (
	"fmt"
	"sync"

	"studyboard/domain"
)

// Model is the local board a client renders. Local moves reorder it
// optimistically; every server projection replaces it wholesale.
type Model struct {
	mu    sync.Mutex
	board domain.Board
}

// NewModel returns a model holding an empty board.
func NewModel() *Model {
	return &Model{board: domain.EmptyBoard()}
}

// LoadFromProjection replaces the local board with a server projection.
func (m *Model) LoadFromProjection(b domain.Board) {
	b = b.Clone()
	m.mu.Lock()
	m.board = b
	m.mu.Unlock()
}

// Snapshot returns a deep copy of the current board.
func (m *Model) Snapshot() domain.Board {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.board.Clone()
}

// RestoreSnapshot puts a previously taken snapshot back.
func (m *Model) RestoreSnapshot(snap domain.Board) {
	snap = snap.Clone()
	m.mu.Lock()
	m.board = snap
	m.mu.Unlock()
}

// Board returns a copy of the board for rendering.
func (m *Model) Board() domain.Board {
	return m.Snapshot()
}

// ApplyLocalMove moves a task to toIndex of the toStatus column. The index is
// clamped to the destination bounds; order keys are left to the server.
func (m *Model) ApplyLocalMove(taskID string, toStatus domain.Status, toIndex int) error {
	if !toStatus.Valid() {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, toStatus)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	from, idx, ok := m.board.Find(taskID)
	if !ok {
		return fmt.Errorf("%w: task %s is not on the board", domain.ErrNotFound, taskID)
	}
	src := m.board.Column(from)
	task := (*src)[idx]
	*src = append((*src)[:idx:idx], (*src)[idx+1:]...)

	dst := m.board.Column(toStatus)
	toIndex = clamp(toIndex, len(*dst))
	task.Status = toStatus
	col := make([]domain.Task, 0, len(*dst)+1)
	col = append(col, (*dst)[:toIndex]...)
	col = append(col, task)
	col = append(col, (*dst)[toIndex:]...)
	*dst = col

	m.board.Recount()
	return nil
}

// upsert replaces a task in place, or appends it to its column when absent.
func (m *Model) upsert(task domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, idx, ok := m.board.Find(task.ID); ok {
		if s == task.Status {
			(*m.board.Column(s))[idx] = task.Clone()
			return
		}
		col := m.board.Column(s)
		*col = append((*col)[:idx:idx], (*col)[idx+1:]...)
	}
	if col := m.board.Column(task.Status); col != nil {
		*col = append(*col, task.Clone())
	}
	m.board.Recount()
}

func (m *Model) remove(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, idx, ok := m.board.Find(taskID)
	if !ok {
		return
	}
	col := m.board.Column(s)
	*col = append((*col)[:idx:idx], (*col)[idx+1:]...)
	m.board.Recount()
}

func (m *Model) columnLen(s domain.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if col := m.board.Column(s); col != nil {
		return len(*col)
	}
	return 0
}

func (m *Model) statusOf(taskID string) (domain.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, _, ok := m.board.Find(taskID)
	return s, ok
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
