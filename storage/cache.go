package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"studyboard/domain"
)

// Backend is the task persistence contract shared by every storage implementation.
type Backend interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	ListColumn(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error)
	GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error)
	InsertTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, task domain.Task) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	ApplyMove(ctx context.Context, moved domain.Task, renumbered []domain.Task) error
}

var (
	_ Backend = (*Memory)(nil)
	_ Backend = (*Tables)(nil)
	_ Backend = (*Postgres)(nil)
	_ Backend = (*Cache)(nil)
)

// Cache wraps a Backend with a Redis read-through cache of whole boards. Only
// ListTasks is served from the cache; reads feeding a write always hit the backend
// so version tokens stay current.
//
// Cached boards are keyed by a per-owner generation that every write bumps. A
// fill that read the backend before a write landed is stored under the old
// generation and never served again.
type Cache struct {
	base  Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	// The generation must be read before the backend.
	gen, cached := c.generation(ctx, ownerID)
	if cached {
		if tasks, ok := c.load(ctx, ownerID, gen); ok {
			return tasks, nil
		}
	}
	tasks, err := c.base.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cached {
		c.store(ctx, ownerID, gen, tasks)
	}
	return tasks, nil
}

func (c *Cache) ListColumn(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error) {
	return c.base.ListColumn(ctx, ownerID, status)
}

func (c *Cache) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	return c.base.GetTask(ctx, ownerID, taskID)
}

func (c *Cache) InsertTask(ctx context.Context, task domain.Task) error {
	defer c.evict(ctx, task.OwnerID)
	return c.base.InsertTask(ctx, task)
}

func (c *Cache) UpdateTask(ctx context.Context, task domain.Task) error {
	defer c.evict(ctx, task.OwnerID)
	return c.base.UpdateTask(ctx, task)
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	defer c.evict(ctx, ownerID)
	return c.base.DeleteTask(ctx, ownerID, taskID)
}

func (c *Cache) ApplyMove(ctx context.Context, moved domain.Task, renumbered []domain.Task) error {
	defer c.evict(ctx, moved.OwnerID)
	return c.base.ApplyMove(ctx, moved, renumbered)
}

// generation returns the owner's current cache generation. A missing counter is
// generation zero. The bool is false when the cache must be bypassed.
func (c *Cache) generation(ctx context.Context, ownerID string) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationKey(ownerID)).Int64()
	switch {
	case err == redis.Nil:
		return 0, true
	case err != nil:
		// On redis errors fall back to the backing storage without failing.
		log.WithError(err).Debug("board cache generation read failed")
		return 0, false
	}
	return gen, true
}

func (c *Cache) load(ctx context.Context, ownerID string, gen int64) ([]domain.Task, bool) {
	key := tasksCacheKey(ownerID, gen)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).Debug("board cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, ownerID string, gen int64, tasks []domain.Task) {
	if c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(ownerID, gen), data, c.ttl).Err()
}

// evict moves the owner to a new generation and drops the board cached under
// the previous one. It also runs after failed writes.
func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	gen, err := c.redis.Incr(ctx, generationKey(ownerID)).Result()
	if err != nil {
		log.WithError(err).WithField("owner", ownerID).Warn("failed to evict cached board")
		return
	}
	_ = c.redis.Del(ctx, tasksCacheKey(ownerID, gen-1)).Err()
}

func generationKey(ownerID string) string {
	return "board-gen:" + ownerID
}

func tasksCacheKey(ownerID string, gen int64) string {
	return "board:" + ownerID + ":" + strconv.FormatInt(gen, 10)
}
