package board

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"studyboard/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	tasks   map[string]domain.Task
	version int

	// conflicts makes the next N version checked writes fail with ErrConflict.
	conflicts int
	// listErr is returned by ListTasks and ListColumn when set.
	listErr error

	moves   int
	updates int
}

func newFakeStore(tasks ...domain.Task) *fakeStore {
	f := &fakeStore{tasks: map[string]domain.Task{}}
	for _, t := range tasks {
		f.version++
		t.Version = strconv.Itoa(f.version)
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeStore) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Task
	for _, t := range f.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (f *fakeStore) ListColumn(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error) {
	all, err := f.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, t := range all {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return nil, nil
	}
	c := t.Clone()
	return &c, nil
}

func (f *fakeStore) InsertTask(ctx context.Context, task domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.tasks[task.ID]; exists {
		return errors.New("duplicate task")
	}
	f.version++
	task.Version = strconv.Itoa(f.version)
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, task domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if err := f.check(task); err != nil {
		return err
	}
	f.write(task)
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.OwnerID != ownerID {
		return domain.ErrNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) ApplyMove(ctx context.Context, moved domain.Task, renumbered []domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves++
	for _, t := range append([]domain.Task{moved}, renumbered...) {
		if err := f.check(t); err != nil {
			return err
		}
	}
	f.write(moved)
	for _, t := range renumbered {
		f.write(t)
	}
	return nil
}

func (f *fakeStore) check(t domain.Task) error {
	cur, ok := f.tasks[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		return domain.ErrConflict
	}
	if cur.Version != t.Version {
		return domain.ErrConflict
	}
	return nil
}

func (f *fakeStore) write(t domain.Task) {
	f.version++
	t.Version = strconv.Itoa(f.version)
	f.tasks[t.ID] = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}
