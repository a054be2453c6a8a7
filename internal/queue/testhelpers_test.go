package queue_test

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anjiru/duka-pos/internal/queue"
)

// memoryStore is an in-memory queue.Store for worker and admin tests.
type memoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]queue.DeadTask
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tasks: make(map[uuid.UUID]queue.DeadTask)}
}

func (m *memoryStore) SaveDeadTask(_ context.Context, task queue.DeadTask) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	m.tasks[task.ID] = task
	return task.ID, nil
}

func (m *memoryStore) DeleteDeadTask(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memoryStore) GetDeadTask(_ context.Context, id uuid.UUID) (queue.DeadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return queue.DeadTask{}, sql.ErrNoRows
	}
	return task, nil
}

func (m *memoryStore) ListDeadTasks(_ context.Context, kind string, limit, offset int) ([]queue.DeadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = len(m.tasks)
	}
	tasks := make([]queue.DeadTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		if kind != "" && task.Kind != kind {
			continue
		}
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if offset >= len(tasks) {
		return []queue.DeadTask{}, nil
	}
	end := offset + limit
	if end > len(tasks) {
		end = len(tasks)
	}
	out := make([]queue.DeadTask, end-offset)
	copy(out, tasks[offset:end])
	return out, nil
}

func (m *memoryStore) CountDeadTasks(_ context.Context, kind string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, task := range m.tasks {
		if kind != "" && task.Kind != kind {
			continue
		}
		total++
	}
	return total, nil
}

func (m *memoryStore) DeadTaskCounts(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int64)
	for _, task := range m.tasks {
		counts[task.Kind]++
	}
	return counts, nil
}

func (m *memoryStore) snapshot() map[uuid.UUID]queue.DeadTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]queue.DeadTask, len(m.tasks))
	for id, task := range m.tasks {
		out[id] = task
	}
	return out
}
