package sync_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
	"github.com/TheMichaelB/possync/internal/netmon"
	"github.com/TheMichaelB/possync/internal/queue"
	syncsvc "github.com/TheMichaelB/possync/internal/services/sync"
	"github.com/TheMichaelB/possync/internal/store"
	"github.com/TheMichaelB/possync/internal/transport"
)

type fixture struct {
	store      *store.SQLiteStore
	queue      *queue.Queue
	transport  *transport.MockTransport
	monitor    *netmon.Manual
	reconciler *syncsvc.Reconciler
	logger     *events.Logger
	logBuf     *bytes.Buffer
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	buf := &bytes.Buffer{}
	logger := events.NewTestLogger(events.DebugLevel, "json", buf)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	q := queue.New(st, logger)
	mock := transport.NewMockTransport()
	monitor := netmon.NewManual(online)

	return &fixture{
		store:      st,
		queue:      q,
		transport:  mock,
		monitor:    monitor,
		reconciler: syncsvc.NewReconciler(q, mock, st, monitor, 3, logger),
		logger:     logger,
		logBuf:     buf,
	}
}

func TestDrainEmptyQueue(t *testing.T) {
	for _, online := range []bool{true, false} {
		t.Run(fmt.Sprintf("online=%v", online), func(t *testing.T) {
			f := newFixture(t, online)
			require.NoError(t, f.reconciler.Drain(context.Background()))
			assert.Empty(t, f.transport.Requests)
		})
	}
}

func TestDrainOfflineIsNoop(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1"})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Drain(ctx))

	assert.Empty(t, f.transport.Requests)
	n, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDrainAppliesInEnqueueOrder(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1", Name: "Espresso"})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, models.EntityCustomer, models.ActionUpdate,
		models.Customer{ID: "c1", Name: "Ada"})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, models.EntityOrder, models.ActionCreate,
		models.Order{Total: "5.00", PaymentMethod: "cash"})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Drain(ctx))

	require.Len(t, f.transport.Requests, 3)
	assert.Equal(t, "POST", f.transport.Requests[0].Method)
	assert.Equal(t, "/products", f.transport.Requests[0].Path)
	assert.Equal(t, "PATCH", f.transport.Requests[1].Method)
	assert.Equal(t, "/customers/c1", f.transport.Requests[1].Path)
	assert.Equal(t, "POST", f.transport.Requests[2].Method)
	assert.Equal(t, "/orders", f.transport.Requests[2].Path)

	n, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "applied items leave the queue")
}

func TestDrainDeleteRoute(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntityDiscount, models.ActionDelete,
		map[string]string{"id": "d9"})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Drain(ctx))

	require.Len(t, f.transport.Requests, 1)
	assert.Equal(t, "DELETE", f.transport.Requests[0].Method)
	assert.Equal(t, "/discounts/d9", f.transport.Requests[0].Path)
	assert.Nil(t, f.transport.Requests[0].Body, "delete replay carries no body")
}

func TestDrainSettingsRoute(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntitySettings, models.ActionUpdate,
		models.Settings{StoreName: "Corner Shop", Currency: "EUR", TaxRate: "0.19"})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Drain(ctx))

	require.Len(t, f.transport.Requests, 1)
	assert.Equal(t, "PATCH", f.transport.Requests[0].Method)
	assert.Equal(t, "/settings", f.transport.Requests[0].Path)
}

func TestDrainContinuesPastFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	failID, err := f.queue.Enqueue(ctx, models.EntityProduct, models.ActionUpdate,
		models.Product{ID: "bad", Name: "Fails"})
	require.NoError(t, err)
	_, err = f.queue.Enqueue(ctx, models.EntityProduct, models.ActionUpdate,
		models.Product{ID: "good", Name: "Succeeds"})
	require.NoError(t, err)

	f.transport.FailWith("PATCH", "/products/bad", transport.RemoteDown())

	require.NoError(t, f.reconciler.Drain(ctx))

	// Both were attempted; the failure did not block the second item.
	assert.Equal(t, 1, f.transport.CallCount("PATCH", "/products/bad"))
	assert.Equal(t, 1, f.transport.CallCount("PATCH", "/products/good"))

	items, err := f.queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, failID, items[0].ID)
	assert.Equal(t, 1, items[0].RetryCount)
}

func TestDrainSkipsExhaustedItems(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	id, err := f.queue.Enqueue(ctx, models.EntityProduct, models.ActionUpdate,
		models.Product{ID: "bad"})
	require.NoError(t, err)

	f.transport.FailWith("PATCH", "/products/bad", transport.RemoteDown())

	// Three failing drains exhaust the item.
	for i := 1; i <= 3; i++ {
		require.NoError(t, f.reconciler.Drain(ctx))

		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, item.RetryCount)
	}

	// The fourth drain does not touch it, but it still counts.
	require.NoError(t, f.reconciler.Drain(ctx))
	assert.Equal(t, 3, f.transport.CallCount("PATCH", "/products/bad"))

	n, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDrainAppliedItemsNotReapplied(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1"})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Drain(ctx))
	require.NoError(t, f.reconciler.Drain(ctx))

	assert.Equal(t, 1, f.transport.CallCount("POST", "/products"),
		"an applied item is removed exactly once and never replayed")
}

func TestDrainRefreshesCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1", Name: "Espresso"})
	require.NoError(t, err)
	f.transport.Respond("POST", "/products",
		models.Product{ID: "p1", Name: "Espresso", Price: "2.50"})

	require.NoError(t, f.reconciler.Drain(ctx))

	raw, err := f.store.Get(store.CollectionProducts, "p1")
	require.NoError(t, err)

	var p models.Product
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, "2.50", p.Price, "server's canonical record lands in the cache")
}

func TestDrainCancellation(t *testing.T) {
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.queue.Enqueue(context.Background(), models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1"})
	require.NoError(t, err)

	err = f.reconciler.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.transport.Requests, "cancellation stops before the next item's remote call")

	n, err := f.queue.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "cancelled drains leave queue state intact")
}

// gatedTransport blocks the first request until released so a test can
// hold a drain mid-flight.
type gatedTransport struct {
	inner   *transport.MockTransport
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedTransport) Request(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.inner.Request(ctx, method, path, body)
}

func (g *gatedTransport) SetToken(token string) {}

func (g *gatedTransport) Close() error { return nil }

func TestDrainConcurrentTriggersCoalesce(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.queue.Enqueue(ctx, models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1"})
	require.NoError(t, err)

	gate := &gatedTransport{
		inner:   f.transport,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := syncsvc.NewReconciler(f.queue, gate, f.store, f.monitor, 3, f.logger)

	done := make(chan error, 1)
	go func() { done <- r.Drain(ctx) }()
	<-gate.started

	// A second trigger while the first drain holds the guard is
	// dropped, not queued: it returns immediately without touching
	// the transport.
	require.NoError(t, r.Drain(ctx))

	// Items enqueued mid-drain wait for the next pass.
	_, err = f.queue.Enqueue(ctx, models.EntityCustomer, models.ActionCreate,
		models.Customer{ID: "c1", Name: "Ada"})
	require.NoError(t, err)

	close(gate.release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, f.transport.CallCount("POST", "/products"),
		"the coalesced trigger must not re-apply the in-flight item")
	assert.Zero(t, f.transport.CallCount("POST", "/customers"))

	n, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the mid-drain enqueue stays queued for the next pass")

	// The next drain picks it up.
	require.NoError(t, r.Drain(ctx))
	assert.Equal(t, 1, f.transport.CallCount("POST", "/customers"))
}

func TestDrainTagsLogsWithRequestID(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.queue.Enqueue(context.Background(), models.EntityProduct, models.ActionCreate,
		models.Product{ID: "p1"})
	require.NoError(t, err)

	ctx := events.WithRequestID(context.Background(), "drain-7f3a")
	require.NoError(t, f.reconciler.Drain(ctx))

	assert.Contains(t, f.logBuf.String(), "drain-7f3a",
		"drain log lines carry the caller's request id")
}
