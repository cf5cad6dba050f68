package storage

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"studyboard/domain"
)

type countingBackend struct {
	*Memory
	listCalls int
	listErr   error
}

func (c *countingBackend) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	c.listCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.Memory.ListTasks(ctx, ownerID)
}

// gatedBackend parks ListTasks after the backend read until release is closed.
type gatedBackend struct {
	*Memory
	listed  chan struct{}
	release chan struct{}
}

func (g *gatedBackend) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	tasks, err := g.Memory.ListTasks(ctx, ownerID)
	if g.listed != nil {
		g.listed <- struct{}{}
		<-g.release
	}
	return tasks, err
}

// boardKey is the key the owner's board is currently cached under.
func boardKey(mr *miniredis.Miniredis, ownerID string) string {
	var gen int64
	if v, err := mr.Get(generationKey(ownerID)); err == nil {
		gen, _ = strconv.ParseInt(v, 10, 64)
	}
	return tasksCacheKey(ownerID, gen)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheListTasksMissThenHit(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &countingBackend{Memory: NewMemory()}
	if err := base.InsertTask(ctx, domain.Task{ID: "t1", OwnerID: "u1", Title: "Write code", Status: domain.StatusBacklog, Order: 1000}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	cache := NewCache(base, client, time.Minute)

	tasks, err := cache.ListTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	if ttl := mr.TTL(boardKey(mr, "u1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.ListTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("list cached tasks: %v", err)
	}
	if len(cached) != 1 || cached[0].Title != "Write code" || cached[0].Order != 1000 {
		t.Fatalf("unexpected cached tasks: %#v", cached)
	}
	if base.listCalls != 1 {
		t.Fatalf("expected cached read to avoid backend, calls=%d", base.listCalls)
	}
}

func TestCacheEvictsOnEveryWrite(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &countingBackend{Memory: NewMemory()}
	cache := NewCache(base, client, time.Minute)

	task := domain.Task{ID: "t1", OwnerID: "u1", Title: "a", Status: domain.StatusBacklog, Order: 1000}
	writes := []struct {
		name string
		fn   func() error
	}{
		{"insert", func() error { return cache.InsertTask(ctx, task) }},
		{"update", func() error {
			cur, _ := cache.GetTask(ctx, "u1", "t1")
			cur.Title = "b"
			return cache.UpdateTask(ctx, *cur)
		}},
		{"move", func() error {
			cur, _ := cache.GetTask(ctx, "u1", "t1")
			cur.Status = domain.StatusDone
			return cache.ApplyMove(ctx, *cur, nil)
		}},
		{"delete", func() error { return cache.DeleteTask(ctx, "u1", "t1") }},
	}
	for _, w := range writes {
		if _, err := cache.ListTasks(ctx, "u1"); err != nil {
			t.Fatalf("%s: warm cache: %v", w.name, err)
		}
		key := boardKey(mr, "u1")
		if !mr.Exists(key) {
			t.Fatalf("%s: expected board to be cached", w.name)
		}
		if err := w.fn(); err != nil {
			t.Fatalf("%s: %v", w.name, err)
		}
		if mr.Exists(key) {
			t.Fatalf("%s: cache key should be evicted", w.name)
		}
		if boardKey(mr, "u1") == key {
			t.Fatalf("%s: generation did not advance", w.name)
		}
	}
}

func TestCacheFallsBackOnCorruptEntry(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	base := &countingBackend{Memory: NewMemory()}
	cache := NewCache(base, client, time.Minute)

	if err := mr.Set(boardKey(mr, "u1"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tasks, err := cache.ListTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 0 || base.listCalls != 1 {
		t.Fatalf("expected backend read, tasks=%v calls=%d", tasks, base.listCalls)
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	mr, client := newRedis(t)
	base := &countingBackend{Memory: NewMemory(), listErr: errors.New("boom")}
	cache := NewCache(base, client, time.Minute)

	if _, err := cache.ListTasks(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
	if mr.Exists(boardKey(mr, "u1")) {
		t.Fatal("error must not be cached")
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	base := &countingBackend{Memory: NewMemory()}
	cache := NewCache(base, nil, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(context.Background(), "u1"); err != nil {
			t.Fatalf("list tasks: %v", err)
		}
	}
	if base.listCalls != 2 {
		t.Fatalf("expected every read to hit backend, calls=%d", base.listCalls)
	}
}

func TestCacheDropsFillRacingAWrite(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	base := &gatedBackend{Memory: NewMemory(), listed: make(chan struct{}), release: make(chan struct{})}
	if err := base.InsertTask(ctx, domain.Task{ID: "a", OwnerID: "u1", Title: "a", Status: domain.StatusBacklog, Order: 1000}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	cache := NewCache(base, client, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := cache.ListTasks(ctx, "u1")
		done <- err
	}()
	<-base.listed

	cur, err := cache.GetTask(ctx, "u1", "a")
	if err != nil || cur == nil {
		t.Fatalf("get task: %v", err)
	}
	cur.Status = domain.StatusDone
	if err := cache.ApplyMove(ctx, *cur, nil); err != nil {
		t.Fatalf("apply move: %v", err)
	}
	close(base.release)
	if err := <-done; err != nil {
		t.Fatalf("racing list: %v", err)
	}
	base.listed = nil

	for i := 0; i < 2; i++ {
		tasks, err := cache.ListTasks(ctx, "u1")
		if err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		if len(tasks) != 1 || tasks[0].Status != domain.StatusDone {
			t.Fatalf("read %d: expected the committed move, got %#v", i, tasks)
		}
	}
}
