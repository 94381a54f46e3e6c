package queue_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
	"github.com/TheMichaelB/possync/internal/queue"
	"github.com/TheMichaelB/possync/internal/store"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return queue.New(st, logger)
}

func TestQueueEnqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	t.Run("assigns stable ids", func(t *testing.T) {
		id, err := q.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
			models.Product{ID: "p1", Name: "Espresso"})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		item, err := q.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, item.ID)
		assert.Equal(t, models.EntityProduct, item.EntityType)
		assert.Equal(t, models.ActionCreate, item.Action)
		assert.Equal(t, 0, item.RetryCount)
		assert.False(t, item.EnqueuedAt.IsZero())
	})

	t.Run("rejects unknown entity type", func(t *testing.T) {
		_, err := q.Enqueue(ctx, "widget", models.ActionCreate, nil)
		assert.Error(t, err)
	})

	t.Run("rejects unknown action", func(t *testing.T) {
		_, err := q.Enqueue(ctx, models.EntityProduct, "merge", nil)
		assert.Error(t, err)
	})

	t.Run("payload survives round trip", func(t *testing.T) {
		want := models.Order{Items: []models.OrderItem{{ProductID: "p1", Qty: 2, UnitPrice: "2.50"}},
			Total: "5.00", PaymentMethod: "cash"}

		id, err := q.Enqueue(ctx, models.EntityOrder, models.ActionCreate, want)
		require.NoError(t, err)

		item, err := q.Get(ctx, id)
		require.NoError(t, err)

		var got models.Order
		require.NoError(t, json.Unmarshal(item.Payload, &got))
		assert.Equal(t, want.Total, got.Total)
		assert.Equal(t, want.Items, got.Items)
	})
}

func TestQueuePendingOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := q.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
			models.Product{ID: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 5)

	for i, item := range items {
		assert.Equal(t, ids[i], item.ID, "pending items must come back in enqueue order")
	}

	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].EnqueuedAt.Before(items[i-1].EnqueuedAt))
	}
}

func TestQueueRetryAccounting(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.EntityCustomer, models.ActionUpdate,
		models.Customer{ID: "c1", Name: "Ada"})
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.BumpRetry(ctx, id))

		item, err := q.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, item.RetryCount)
	}

	// Exhausted items still count toward the pending total.
	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, q.ResetRetry(ctx, id))
	item, err := q.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, item.RetryCount)
}

func TestQueueRemove(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.EntityDiscount, models.ActionDelete,
		map[string]string{"id": "d1"})
	require.NoError(t, err)

	require.NoError(t, q.Remove(ctx, id))

	_, err = q.Get(ctx, id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	n, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestQueueDrainTrigger(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	triggered := 0
	q.SetDrainTrigger(func() { triggered++ })

	_, err := q.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, triggered, "enqueue fires the best-effort drain trigger")
}
