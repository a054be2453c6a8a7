package queue_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/queue"
)

func TestTaskIsBuriedAfterMaxAttempts(t *testing.T) {
	client := testClient(t)
	store := newMemoryStore()
	enq := queue.Enqueuer{R: client, Prefix: "dead", MaxAttempts: 2}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := zerolog.New(io.Discard)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "dead",
		Kind:              "receipt-delivery",
		Concurrency:       1,
		VisibilityTimeout: 120 * time.Millisecond,
		RetryBase:         20 * time.Millisecond,
		Store:             store,
		Logger:            &log,
		Handler: func(context.Context, queue.Task) error {
			return errors.New("smtp unavailable")
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{
		Kind:           "receipt-delivery",
		Payload:        []byte("sale-1"),
		IdempotencyKey: "dlq1",
		MaxAttempts:    2,
	}))

	require.Eventually(t, func() bool {
		count, err := store.CountDeadTasks(context.Background(), "receipt-delivery")
		return err == nil && count == 1
	}, 2*time.Second, 20*time.Millisecond)

	snapshot := store.snapshot()
	require.Len(t, snapshot, 1)
	for _, task := range snapshot {
		require.Equal(t, "receipt-delivery", task.Kind)
		require.Equal(t, "dlq1", task.IdempotencyKey)
		require.Equal(t, 2, task.Attempts)
		require.NotEmpty(t, task.Payload)
		require.NotNil(t, task.LastError)
	}

	cancel()
	<-done
}
