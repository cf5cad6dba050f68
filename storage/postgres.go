package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"studyboard/domain"
)

// PostgresSchema creates the tasks table. It is safe to run repeatedly.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	priority    TEXT NOT NULL,
	due_date    TIMESTAMPTZ,
	sort_key    BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	version     BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS tasks_owner_status_key_idx ON tasks (owner_id, status, sort_key);
`

const taskColumns = `id, owner_id, title, description, status, priority, due_date, sort_key, created_at, updated_at, version`

// Postgres stores tasks in a single PostgreSQL table with a per-row version counter.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a connection pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema applies PostgresSchema.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, PostgresSchema)
	return err
}

// Ping checks that the database answers.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() { p.pool.Close() }

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t        domain.Task
		status   string
		priority string
		version  int64
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &priority,
		&t.DueDate, &t.Order, &t.CreatedAt, &t.UpdatedAt, &version)
	if err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	t.Version = strconv.FormatInt(version, 10)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.DueDate != nil {
		d := t.DueDate.UTC()
		t.DueDate = &d
	}
	return t, nil
}

func (p *Postgres) query(ctx context.Context, sql string, args ...any) ([]domain.Task, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (p *Postgres) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	return p.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner_id = $1`, ownerID)
}

func (p *Postgres) ListColumn(ctx context.Context, ownerID string, status domain.Status) ([]domain.Task, error) {
	return p.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner_id = $1 AND status = $2 ORDER BY sort_key, id`,
		ownerID, string(status))
}

func (p *Postgres) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE owner_id = $1 AND id = $2`, ownerID, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *Postgres) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`,
		t.ID, t.OwnerID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.DueDate, t.Order, t.CreatedAt, t.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: task %s already exists", domain.ErrConflict, t.ID)
	}
	return err
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// update writes t when its row still carries t.Version.
func update(ctx context.Context, db execer, t domain.Task) error {
	args := []any{t.ID, t.OwnerID, t.Title, t.Description, string(t.Status), string(t.Priority),
		t.DueDate, t.Order, t.UpdatedAt}
	sql := `UPDATE tasks SET title = $3, description = $4, status = $5, priority = $6,
		due_date = $7, sort_key = $8, updated_at = $9, version = version + 1
		WHERE id = $1 AND owner_id = $2`
	if t.Version != "" {
		v, err := strconv.ParseInt(t.Version, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad version %q", domain.ErrConflict, t.Version)
		}
		sql += ` AND version = $10`
		args = append(args, v)
	}
	tag, err := db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1 AND owner_id = $2)`, t.ID, t.OwnerID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	log.WithFields(log.Fields{"task": t.ID, "expected_version": t.Version}).Debug("task version conflict")
	return fmt.Errorf("%w: task %s changed", domain.ErrConflict, t.ID)
}

func (p *Postgres) UpdateTask(ctx context.Context, t domain.Task) error {
	return update(ctx, p.pool, t)
}

func (p *Postgres) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM tasks WHERE owner_id = $1 AND id = $2`, ownerID, taskID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyMove runs every version checked update in one transaction.
func (p *Postgres) ApplyMove(ctx context.Context, moved domain.Task, renumbered []domain.Task) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		for _, t := range renumbered {
			if err := update(ctx, tx, t); err != nil {
				return err
			}
		}
		return update(ctx, tx, moved)
	})
}
