package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/anjiru/duka-pos/internal/resilience"
)

// Task is one asynchronous job, such as a receipt delivery after checkout.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Attempt        int
	Delay          time.Duration
}

// envelope is the wire form of a task inside Redis.
type envelope struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, err
	}
	return env, nil
}

// keys derives the Redis keyspace for one queue namespace. Ready tasks live
// in a ZSET scored by availability time; leased tasks move to a second ZSET
// scored by their redelivery deadline.
type keys struct {
	prefix string
}

func (k keys) base(kind string) string {
	p := k.prefix
	if p == "" {
		p = "duka"
	}
	return fmt.Sprintf("%s:q:%s", p, kind)
}

func (k keys) ready(kind string) string { return k.base(kind) }

func (k keys) lease(kind string) string { return k.base(kind) + ":lease" }

func (k keys) dead(kind string) string { return k.base(kind) + ":dead" }

func (k keys) once(kind, key string) string { return k.base(kind) + ":once:" + key }

// cleanKind returns kind when it is safe to embed in Redis keys and metric
// labels, empty otherwise.
func cleanKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == ':' || c == '.':
		default:
			return ""
		}
	}
	return kind
}

// Enqueuer publishes tasks onto Redis-backed queues.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue schedules the task. A task carrying an idempotency key is accepted
// at most once per deduplication window; later duplicates are dropped
// silently so callers can enqueue on every domain event without bookkeeping.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := cleanKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}
	env := envelope{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		Attempt:     t.Attempt,
		MaxAttempts: t.MaxAttempts,
	}
	if env.MaxAttempts <= 0 {
		env.MaxAttempts = e.MaxAttempts
	}
	if env.MaxAttempts <= 0 {
		env.MaxAttempts = 10
	}
	env.AvailableAt = time.Now().Add(t.Delay).UnixNano()

	ks := keys{prefix: e.Prefix}
	if env.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, ks.once(kind, env.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, ks.ready(kind), redis.Z{
		Score:  float64(env.AvailableAt),
		Member: raw,
	}).Err()
}

// Worker consumes tasks of a single kind.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
	// SoftDeadline bounds a single handler invocation. The job context is
	// cancelled once it elapses so a stuck handler releases its slot before
	// the visibility timeout re-leases the task.
	SoftDeadline time.Duration
	Logger       *zerolog.Logger
	// Store, when set, mirrors dead-lettered tasks into the database so the
	// admin endpoints can inspect and replay them.
	Store Store
}

// Run drains the queue until the context is cancelled. Each leased task gets
// a redelivery deadline; a reaper loop pushes expired leases back onto the
// ready set so a crashed worker never loses a task.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := cleanKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}

	ks := keys{prefix: w.Prefix}
	readyKey := ks.ready(kind)
	leaseKey := ks.lease(kind)

	slots := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	reaper := time.NewTicker(time.Second)
	defer reaper.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-reaper.C:
			if err := w.reclaimExpired(ctx, leaseKey, readyKey); err != nil {
				return err
			}
		default:
		}

		res, err := w.R.ZPopMin(ctx, readyKey, 1).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}
		if len(res) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		member, ok := res[0].Member.(string)
		if !ok {
			continue
		}
		env, err := decodeEnvelope(member)
		if err != nil {
			continue
		}
		now := time.Now().UnixNano()
		if env.AvailableAt > now {
			// not due yet, push back and wait out the gap
			w.R.ZAdd(ctx, readyKey, redis.Z{Score: float64(env.AvailableAt), Member: member})
			gap := time.Duration(env.AvailableAt - now)
			if gap > time.Second {
				gap = time.Second
			}
			time.Sleep(gap)
			continue
		}

		env.Attempt++
		rawBytes, err := json.Marshal(env)
		if err != nil {
			continue
		}
		raw := string(rawBytes)
		deadline := time.Now().Add(visibility).UnixNano()
		if err := w.R.ZAdd(ctx, leaseKey, redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
			return err
		}

		slots <- struct{}{}
		wg.Add(1)
		go func(raw string, env envelope) {
			defer func() { <-slots }()
			defer wg.Done()
			jobCtx, cancel := context.WithCancel(ctx)
			if w.SoftDeadline > 0 {
				jobCtx, cancel = context.WithTimeout(ctx, w.SoftDeadline)
			}
			err := w.Handler(jobCtx, Task{
				Kind:           kind,
				Payload:        env.Payload,
				IdempotencyKey: env.Key,
				Attempt:        env.Attempt,
			})
			cancel()
			if err != nil {
				// the job context may already be expired; bookkeeping runs
				// against the worker context instead
				w.retryOrBury(ctx, readyKey, leaseKey, raw, env, retryBase, err)
				return
			}
			w.settle(ctx, leaseKey, raw, env)
		}(raw, env)
	}
}

// retryOrBury reschedules a failed task with backoff, or dead-letters it once
// its attempts are exhausted.
func (w Worker) retryOrBury(ctx context.Context, readyKey, leaseKey, raw string, env envelope, base time.Duration, cause error) {
	if raw != "" {
		_ = w.R.ZRem(ctx, leaseKey, raw)
	}
	if w.Logger != nil {
		w.Logger.Warn().Str("kind", env.Kind).Int("attempt", env.Attempt).Err(cause).Msg("task failed")
	}
	ks := keys{prefix: w.Prefix}
	if env.MaxAttempts > 0 && env.Attempt >= env.MaxAttempts {
		if w.Logger != nil {
			w.Logger.Error().Str("kind", env.Kind).Int("attempts", env.Attempt).Err(cause).Msg("task dead-lettered")
		}
		rawBytes, err := json.Marshal(env)
		if err != nil {
			return
		}
		_ = w.R.LPush(ctx, ks.dead(env.Kind), rawBytes).Err()
		if w.Store != nil {
			dead := DeadTask{
				Kind:           env.Kind,
				IdempotencyKey: env.Key,
				Payload:        rawBytes,
				Attempts:       env.Attempt,
			}
			if cause != nil {
				errText := cause.Error()
				dead.LastError = &errText
			}
			_, _ = w.Store.SaveDeadTask(ctx, dead)
		}
		if env.Key != "" {
			_ = w.R.Del(ctx, ks.once(env.Kind, env.Key)).Err()
		}
		if QueueProcessedTotal != nil {
			QueueProcessedTotal.WithLabelValues(queueLabel(env.Kind), "dead").Inc()
		}
		return
	}
	delay := resilience.Backoff(base, env.Attempt, w.RetryJitter)
	env.AvailableAt = time.Now().Add(delay).UnixNano()
	rawBytes, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, readyKey, redis.Z{Score: float64(env.AvailableAt), Member: string(rawBytes)}).Err()
	if QueueProcessedTotal != nil {
		QueueProcessedTotal.WithLabelValues(queueLabel(env.Kind), "retried").Inc()
	}
}

// settle acknowledges a completed task and releases its dedup slot.
func (w Worker) settle(ctx context.Context, leaseKey, raw string, env envelope) {
	if raw != "" {
		_ = w.R.ZRem(ctx, leaseKey, raw)
	}
	if env.Key != "" {
		_ = w.R.Del(ctx, keys{prefix: w.Prefix}.once(env.Kind, env.Key)).Err()
	}
	if QueueProcessedTotal != nil {
		QueueProcessedTotal.WithLabelValues(queueLabel(env.Kind), "completed").Inc()
	}
}

// reclaimExpired moves tasks whose lease deadline passed back onto the ready
// set for redelivery.
func (w Worker) reclaimExpired(ctx context.Context, leaseKey, readyKey string) error {
	now := float64(time.Now().UnixNano())
	due, err := w.R.ZRangeByScore(ctx, leaseKey, &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		env, err := decodeEnvelope(raw)
		if err != nil {
			continue
		}
		_ = w.R.ZRem(ctx, leaseKey, raw).Err()
		env.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(env)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, readyKey, redis.Z{Score: float64(env.AvailableAt), Member: encoded}).Err()
	}
	return nil
}
