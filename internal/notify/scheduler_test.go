package notify

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/events"
	"github.com/anjiru/duka-pos/internal/queue"
)

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestScheduleEnqueuesCompletedSales(t *testing.T) {
	client := testRedis(t)
	s := Scheduler{Queue: queue.Enqueuer{R: client, Prefix: "test"}}

	event := db.DomainEvent{ID: newID(), Topic: events.TopicSaleCompleted, AggregateID: newID()}
	require.NoError(t, s.Schedule(context.Background(), event))

	n, err := client.ZCard(context.Background(), "test:queue:receipt-delivery").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestScheduleDeduplicatesByEventID(t *testing.T) {
	client := testRedis(t)
	s := Scheduler{Queue: queue.Enqueuer{R: client, Prefix: "test"}}

	event := db.DomainEvent{ID: newID(), Topic: events.TopicOrderCompleted, AggregateID: newID()}
	require.NoError(t, s.Schedule(context.Background(), event))
	require.NoError(t, s.Schedule(context.Background(), event))

	n, err := client.ZCard(context.Background(), "test:queue:receipt-delivery").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestScheduleIgnoresOtherTopics(t *testing.T) {
	client := testRedis(t)
	s := Scheduler{Queue: queue.Enqueuer{R: client, Prefix: "test"}}

	for _, topic := range []string{events.TopicOrderCreated, events.TopicStockLow, events.TopicPaymentRecorded} {
		event := db.DomainEvent{ID: newID(), Topic: topic, AggregateID: newID()}
		require.NoError(t, s.Schedule(context.Background(), event))
	}

	n, err := client.ZCard(context.Background(), "test:queue:receipt-delivery").Result()
	require.NoError(t, err)
	require.Zero(t, n)
}
