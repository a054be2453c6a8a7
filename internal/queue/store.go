package queue

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the dead-letter store is not configured.
var ErrStoreUnavailable = errors.New("queue: store unavailable")

// Store persists dead-lettered tasks so they survive Redis restarts and can
// be inspected and replayed from the admin API.
type Store interface {
	SaveDeadTask(ctx context.Context, task DeadTask) (uuid.UUID, error)
	DeleteDeadTask(ctx context.Context, id uuid.UUID) error
	GetDeadTask(ctx context.Context, id uuid.UUID) (DeadTask, error)
	ListDeadTasks(ctx context.Context, kind string, limit, offset int) ([]DeadTask, error)
	CountDeadTasks(ctx context.Context, kind string) (int64, error)
	DeadTaskCounts(ctx context.Context) (map[string]int64, error)
}

// DeadTask is a task that exhausted its attempts, as stored in Postgres.
type DeadTask struct {
	ID             uuid.UUID
	Kind           string
	IdempotencyKey string
	Payload        []byte
	Attempts       int
	LastError      *string
	CreatedAt      time.Time
}

// NewStore returns a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const deadTaskColumns = `id, kind, idem_key, payload, attempts, last_error, created_at`

func scanDeadTask(row interface{ Scan(...any) error }) (DeadTask, error) {
	var (
		task    DeadTask
		lastErr sql.NullString
	)
	err := row.Scan(&task.ID, &task.Kind, &task.IdempotencyKey, &task.Payload,
		&task.Attempts, &lastErr, &task.CreatedAt)
	if lastErr.Valid {
		task.LastError = &lastErr.String
	}
	return task, err
}

// SaveDeadTask inserts a dead-lettered task and returns its identifier.
func (s *pgStore) SaveDeadTask(ctx context.Context, task DeadTask) (uuid.UUID, error) {
	if s == nil || s.pool == nil {
		return uuid.Nil, ErrStoreUnavailable
	}
	var lastError any
	if task.LastError != nil {
		lastError = *task.LastError
	}
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO queue_dlq (kind, idem_key, payload, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		task.Kind, task.IdempotencyKey, task.Payload, task.Attempts, lastError).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// DeleteDeadTask removes a dead-lettered task, typically after a replay.
func (s *pgStore) DeleteDeadTask(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM queue_dlq WHERE id = $1`, id)
	return err
}

// GetDeadTask loads one dead-lettered task.
func (s *pgStore) GetDeadTask(ctx context.Context, id uuid.UUID) (DeadTask, error) {
	if s == nil || s.pool == nil {
		return DeadTask{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+deadTaskColumns+` FROM queue_dlq WHERE id = $1`, id)
	return scanDeadTask(row)
}

// ListDeadTasks returns dead-lettered tasks newest first, optionally filtered
// by kind.
func (s *pgStore) ListDeadTasks(ctx context.Context, kind string, limit, offset int) ([]DeadTask, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+deadTaskColumns+`
		FROM queue_dlq
		WHERE ($1 = '' OR kind = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		strings.TrimSpace(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tasks := make([]DeadTask, 0, limit)
	for rows.Next() {
		task, err := scanDeadTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CountDeadTasks returns the number of dead-lettered tasks, optionally
// filtered by kind.
func (s *pgStore) CountDeadTasks(ctx context.Context, kind string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM queue_dlq WHERE ($1 = '' OR kind = $1)`,
		strings.TrimSpace(kind)).Scan(&total)
	return total, err
}

// DeadTaskCounts aggregates dead-letter sizes per kind for the gauges.
func (s *pgStore) DeadTaskCounts(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT kind, count(*) FROM queue_dlq GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var (
			kind  string
			total int64
		)
		if err := rows.Scan(&kind, &total); err != nil {
			return nil, err
		}
		counts[kind] = total
	}
	return counts, rows.Err()
}
