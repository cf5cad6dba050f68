package storage

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"studyboard/domain"
)

// Memory keeps tasks in process. It is the default backend for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	tasks   map[string]map[string]domain.Task // owner -> id -> task
	version uint64
}

func NewMemory() *Memory {
	return &Memory{tasks: map[string]map[string]domain.Task{}}
}

func (m *Memory) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Task, 0, len(m.tasks[ownerID]))
	for _, t := range m.tasks[ownerID] {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *Memory) ListColumn(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Task
	for _, t := range m.tasks[ownerID] {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *Memory) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[ownerID][taskID]
	if !ok {
		return nil, nil
	}
	c := t.Clone()
	return &c, nil
}

func (m *Memory) InsertTask(ctx context.Context, task domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := m.tasks[task.OwnerID]
	if owned == nil {
		owned = map[string]domain.Task{}
		m.tasks[task.OwnerID] = owned
	}
	if _, exists := owned[task.ID]; exists {
		return fmt.Errorf("%w: task %s already exists", domain.ErrConflict, task.ID)
	}
	m.put(task)
	return nil
}

func (m *Memory) UpdateTask(ctx context.Context, task domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(task); err != nil {
		return err
	}
	m.put(task)
	return nil
}

func (m *Memory) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[ownerID][taskID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.tasks[ownerID], taskID)
	return nil
}

// ApplyMove validates every version before writing anything.
func (m *Memory) ApplyMove(ctx context.Context, moved domain.Task, renumbered []domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(moved); err != nil {
		return err
	}
	for _, t := range renumbered {
		if err := m.check(t); err != nil {
			return err
		}
	}
	for _, t := range renumbered {
		m.put(t)
	}
	m.put(moved)
	return nil
}

func (m *Memory) check(t domain.Task) error {
	cur, ok := m.tasks[t.OwnerID][t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if t.Version != "" && cur.Version != t.Version {
		return fmt.Errorf("%w: task %s changed", domain.ErrConflict, t.ID)
	}
	return nil
}

// put stores a copy of t under a fresh version. Callers hold the write lock.
func (m *Memory) put(t domain.Task) {
	m.version++
	t = t.Clone()
	t.Version = strconv.FormatUint(m.version, 10)
	m.tasks[t.OwnerID][t.ID] = t
}
