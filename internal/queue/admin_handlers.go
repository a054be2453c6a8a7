package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/anjiru/duka-pos/internal/common"
)

// AdminHandler exposes the dead-letter inspection and replay API used by
// operators when receipt or notification deliveries pile up.
type AdminHandler struct {
	Store             Store
	Queue             Enqueuer
	PageSize          int
	Logger            zerolog.Logger
	VisibilityTimeout time.Duration
}

type deadTaskView struct {
	ID             uuid.UUID `json:"id"`
	Kind           string    `json:"kind"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Attempts       int32     `json:"attempts"`
	LastError      *string   `json:"lastError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Attempt        int       `json:"attempt"`
	MaxAttempts    int       `json:"maxAttempts"`
	Payload        []byte    `json:"payload"`
}

type replayInput struct {
	IDs   []string `json:"ids"`
	Kind  string   `json:"kind"`
	Limit int      `json:"limit"`
}

// ListDLQ handles GET /admin/queue/dlq with ?kind=, ?page=, ?limit=.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue store unavailable", nil)
		return
	}
	ctx := r.Context()
	kind := requestedKind(r.URL.Query().Get("kind"))
	page, limit := common.ParsePagination(r, h.pageSize())

	tasks, err := h.Store.ListDeadTasks(ctx, kind, limit, (page-1)*limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	total, err := h.Store.CountDeadTasks(ctx, kind)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}

	views := make([]deadTaskView, 0, len(tasks))
	for _, task := range tasks {
		env, err := decodeEnvelope(string(task.Payload))
		if err != nil {
			continue
		}
		v := deadTaskView{
			ID:             task.ID,
			Kind:           task.Kind,
			IdempotencyKey: task.IdempotencyKey,
			Attempts:       int32(task.Attempts),
			LastError:      task.LastError,
			CreatedAt:      task.CreatedAt,
			Attempt:        env.Attempt,
			MaxAttempts:    env.MaxAttempts,
			Payload:        env.Payload,
		}
		views = append(views, v)
	}

	resp := map[string]any{
		"data":       views,
		"pagination": common.Pagination{Page: page, PerPage: limit, TotalItems: int(total)},
	}
	if kind != "" {
		resp["kind"] = kind
	}
	common.JSON(w, http.StatusOK, resp)
}

// ReplayDLQ handles POST /admin/queue/dlq/replay. Tasks are re-enqueued
// either by explicit id list or as a batch of the oldest entries of a kind.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil || h.Queue.R == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue dependencies unavailable", nil)
		return
	}
	var in replayInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	ids := dedupe(in.IDs)
	kind := requestedKind(in.Kind)
	if len(ids) == 0 && kind == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "ids or kind required", nil)
		return
	}

	ctx := r.Context()
	replayed := make([]uuid.UUID, 0, len(ids))
	failed := make(map[string]string)

	if len(ids) > 0 {
		for _, raw := range ids {
			id, err := uuid.Parse(raw)
			if err != nil {
				failed[raw] = "invalid uuid"
				continue
			}
			task, err := h.Store.GetDeadTask(ctx, id)
			if err != nil {
				failed[raw] = err.Error()
				continue
			}
			if err := h.replay(ctx, task); err != nil {
				failed[id.String()] = err.Error()
				continue
			}
			replayed = append(replayed, id)
		}
	} else {
		limit := in.Limit
		if limit <= 0 {
			limit = h.pageSize()
		}
		tasks, err := h.Store.ListDeadTasks(ctx, kind, limit, 0)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
			return
		}
		for _, task := range tasks {
			if err := h.replay(ctx, task); err != nil {
				failed[task.ID.String()] = err.Error()
				continue
			}
			replayed = append(replayed, task.ID)
		}
	}

	resp := map[string]any{"replayed": replayed}
	if len(failed) > 0 {
		resp["failed"] = failed
	}
	common.JSON(w, http.StatusOK, resp)
}

// Stats handles GET /admin/queue/stats?kind=. It reports ready depth, leased
// tasks, dead-letter size and the age of the oldest ready task.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Queue.R == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue dependencies unavailable", nil)
		return
	}
	kind := requestedKind(r.URL.Query().Get("kind"))
	if kind == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind is required", nil)
		return
	}
	ctx := r.Context()
	ks := keys{prefix: h.Queue.Prefix}

	ready, err := h.Queue.R.ZCard(ctx, ks.ready(kind)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	leased, err := h.Queue.R.ZCard(ctx, ks.lease(kind)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	dead, err := h.Store.CountDeadTasks(ctx, kind)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}

	var lagMillis int64
	oldest, err := h.Queue.R.ZRangeWithScores(ctx, ks.ready(kind), 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		ts := time.Unix(0, int64(oldest[0].Score))
		if ts.Before(time.Now()) {
			lagMillis = time.Since(ts).Milliseconds()
		}
	}

	h.refreshDepthGauge(ctx, kind)
	h.refreshDeadGauge(ctx, kind)

	visibility := h.VisibilityTimeout
	if visibility <= 0 {
		visibility = 60 * time.Second
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"kind":              kind,
		"ready":             ready,
		"leased":            leased,
		"dead":              dead,
		"oldestLagMs":       lagMillis,
		"visibilityTimeout": visibility.Seconds(),
	})
}

func (h *AdminHandler) replay(ctx context.Context, task DeadTask) error {
	env, err := decodeEnvelope(string(task.Payload))
	if err != nil {
		return err
	}
	attempt := env.Attempt
	if attempt > 0 {
		attempt--
	}
	if err := h.Queue.Enqueue(ctx, Task{
		Kind:           env.Kind,
		Payload:        env.Payload,
		IdempotencyKey: env.Key,
		MaxAttempts:    env.MaxAttempts,
		Attempt:        attempt,
	}); err != nil {
		return err
	}
	if err := h.Store.DeleteDeadTask(ctx, task.ID); err != nil {
		return err
	}
	h.refreshDeadGauge(ctx, env.Kind)
	h.refreshDepthGauge(ctx, env.Kind)
	return nil
}

func (h *AdminHandler) refreshDeadGauge(ctx context.Context, kind string) {
	if QueueDLQSize == nil || h.Store == nil {
		return
	}
	count, err := h.Store.CountDeadTasks(ctx, kind)
	if err != nil {
		return
	}
	QueueDLQSize.WithLabelValues(queueLabel(kind)).Set(float64(count))
}

func (h *AdminHandler) refreshDepthGauge(ctx context.Context, kind string) {
	if QueueDepth == nil || h.Queue.R == nil {
		return
	}
	depth, err := h.Queue.R.ZCard(ctx, keys{prefix: h.Queue.Prefix}.ready(kind)).Result()
	if err != nil {
		return
	}
	QueueDepth.WithLabelValues(queueLabel(kind)).Set(float64(depth))
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}

// requestedKind trims and validates a caller-supplied kind; a kind with
// unsafe characters is treated as absent.
func requestedKind(kind string) string {
	return cleanKind(strings.TrimSpace(kind))
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
