package queue_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anjiru/duka-pos/internal/queue"
)

func deadReceiptTask(t *testing.T, key string) queue.DeadTask {
	t.Helper()
	raw, err := json.Marshal(struct {
		Kind        string `json:"kind"`
		Key         string `json:"key"`
		Payload     []byte `json:"payload"`
		Attempt     int    `json:"attempt"`
		MaxAttempts int    `json:"max_attempts"`
		AvailableAt int64  `json:"available_at"`
	}{
		Kind:        "receipt-delivery",
		Key:         key,
		Payload:     []byte("sale-1"),
		Attempt:     2,
		MaxAttempts: 3,
		AvailableAt: time.Now().UnixNano(),
	})
	require.NoError(t, err)
	return queue.DeadTask{
		Kind:           "receipt-delivery",
		IdempotencyKey: key,
		Payload:        raw,
		Attempts:       2,
		CreatedAt:      time.Now(),
	}
}

func TestReplayRequeuesDeadTask(t *testing.T) {
	client := testClient(t)
	store := newMemoryStore()
	handler := queue.AdminHandler{
		Store:             store,
		Queue:             queue.Enqueuer{R: client, Prefix: "adm", DedupTTL: time.Minute, MaxAttempts: 5},
		PageSize:          10,
		VisibilityTimeout: 60 * time.Second,
	}

	id, err := store.SaveDeadTask(context.Background(), deadReceiptTask(t, "dlq1"))
	require.NoError(t, err)

	body := bytes.NewBufferString(`{"ids":["` + id.String() + `"]}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/queue/dlq/replay", body)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ReplayDLQ(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Replayed []string          `json:"replayed"`
		Failed   map[string]string `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Contains(t, resp.Replayed, id.String())
	require.Empty(t, resp.Failed)

	depth, err := client.ZCard(context.Background(), "adm:q:receipt-delivery").Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	_, err = store.GetDeadTask(context.Background(), id)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListDLQFiltersByKind(t *testing.T) {
	client := testClient(t)
	store := newMemoryStore()
	handler := queue.AdminHandler{
		Store:    store,
		Queue:    queue.Enqueuer{R: client, Prefix: "adm"},
		PageSize: 10,
	}

	_, err := store.SaveDeadTask(context.Background(), deadReceiptTask(t, "dlq1"))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.ListDLQ(rr, httptest.NewRequest(http.MethodGet, "/admin/queue/dlq?kind=receipt-delivery", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Data []struct {
			Kind           string `json:"kind"`
			IdempotencyKey string `json:"idempotencyKey"`
			Attempts       int    `json:"attempts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "receipt-delivery", resp.Data[0].Kind)
	require.Equal(t, "dlq1", resp.Data[0].IdempotencyKey)
	require.Equal(t, 2, resp.Data[0].Attempts)
}

func TestStatsReportsReadyAndDead(t *testing.T) {
	client := testClient(t)
	store := newMemoryStore()
	enq := queue.Enqueuer{R: client, Prefix: "adm"}
	handler := queue.AdminHandler{Store: store, Queue: enq, PageSize: 10}

	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{
		Kind:    "receipt-delivery",
		Payload: []byte("sale-1"),
	}))
	_, err := store.SaveDeadTask(context.Background(), deadReceiptTask(t, "dlq1"))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.Stats(rr, httptest.NewRequest(http.MethodGet, "/admin/queue/stats?kind=receipt-delivery", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Kind  string `json:"kind"`
		Ready int64  `json:"ready"`
		Dead  int64  `json:"dead"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "receipt-delivery", resp.Kind)
	require.Equal(t, int64(1), resp.Ready)
	require.Equal(t, int64(1), resp.Dead)
}
