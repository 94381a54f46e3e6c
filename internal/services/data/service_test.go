package data_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
	"github.com/TheMichaelB/possync/internal/netmon"
	"github.com/TheMichaelB/possync/internal/queue"
	"github.com/TheMichaelB/possync/internal/services/data"
	syncsvc "github.com/TheMichaelB/possync/internal/services/sync"
	"github.com/TheMichaelB/possync/internal/store"
	"github.com/TheMichaelB/possync/internal/transport"
)

type fixture struct {
	store     *store.SQLiteStore
	queue     *queue.Queue
	transport *transport.MockTransport
	monitor   *netmon.Manual
	svc       *data.Service
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()

	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	q := queue.New(st, logger)
	mock := transport.NewMockTransport()
	monitor := netmon.NewManual(online)
	reconciler := syncsvc.NewReconciler(q, mock, st, monitor, 3, logger)

	return &fixture{
		store:     st,
		queue:     q,
		transport: mock,
		monitor:   monitor,
		svc:       data.NewService(mock, st, q, monitor, reconciler, logger),
	}
}

func TestOnlineReadWarmsCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	remote := []models.Product{
		{ID: "p1", Name: "Espresso", Price: "2.50", Active: true},
		{ID: "p2", Name: "Latte", Price: "4.00", Active: true},
	}
	f.transport.Respond("GET", "/products", remote)

	products, err := f.svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, remote, products)

	// Cache round-trip: the local collection now equals the remote set.
	raws, err := f.store.GetAll(store.CollectionProducts)
	require.NoError(t, err)
	assert.Len(t, raws, 2)

	n, err := f.store.Count(store.CollectionProducts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOfflineReadServesCache(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	remote := []models.Product{
		{ID: "p1", Name: "Espresso", Price: "2.50"},
		{ID: "p2", Name: "Latte", Price: "4.00"},
	}
	f.transport.Respond("GET", "/products", remote)

	_, err := f.svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.transport.CallCount("GET", "/products"))

	// Go offline; the read must come from the cache with no remote call.
	f.monitor.SetOnline(false)

	products, err := f.svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, remote, products)
	assert.Equal(t, 1, f.transport.CallCount("GET", "/products"),
		"offline reads must not attempt the network")
}

func TestOnlineReadFailureFallsBack(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.store.Put(store.CollectionCustomers, "c1",
		models.Customer{ID: "c1", Name: "Ada"}))

	// Monitor says online but the network is gone.
	f.transport.Err = transport.RemoteDown()

	customers, err := f.svc.ListCustomers(ctx)
	require.NoError(t, err, "reads never fail visibly")
	require.Len(t, customers, 1)
	assert.Equal(t, "Ada", customers[0].Name)
}

func TestReadDegradesToEmptyWithoutCache(t *testing.T) {
	f := newFixture(t, false)

	products, err := f.svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)

	// Even with the store gone, reads stay quiet.
	require.NoError(t, f.store.Close())
	products, err = f.svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestOnlineWriteCachesCanonicalRecord(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.transport.Respond("POST", "/products",
		models.Product{ID: "srv-1", Name: "Espresso", Price: "2.50"})

	created, err := f.svc.CreateProduct(ctx, models.Product{Name: "Espresso", Price: "2.50"})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", created.ID, "caller gets the server's canonical record")

	raw, err := f.store.Get(store.CollectionProducts, "srv-1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "srv-1")

	n, err := f.svc.SyncQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFailedWriteQueuesAndFails(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.transport.FailWith("POST", "/customers", transport.RemoteDown())

	before, err := f.svc.SyncQueueLength(ctx)
	require.NoError(t, err)

	_, err = f.svc.CreateCustomer(ctx, models.Customer{Name: "Ada"})
	require.Error(t, err, "a queued write must fail the call")
	assert.ErrorIs(t, err, models.ErrWriteQueued)
	assert.ErrorContains(t, err, "remote unavailable, change queued for sync")
	assert.NotContains(t, err.Error(), "offline",
		"the device was online; the message must say the remote failed")

	var queuedErr *models.QueuedWriteError
	require.ErrorAs(t, err, &queuedErr)
	assert.NotEmpty(t, queuedErr.QueueItemID)
	assert.ErrorIs(t, err, models.ErrRemoteUnavailable, "the remote cause stays inspectable")

	after, err := f.svc.SyncQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after, "exactly one item queued per failed write")
}

func TestOfflineOrderCreation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, models.Order{
		Items:         []models.OrderItem{{ProductID: "p1", Qty: 2, UnitPrice: "17.50"}},
		Total:         "35.00",
		PaymentMethod: "cash",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "cannot create order while offline")
	assert.ErrorIs(t, err, models.ErrWriteQueued)

	n, err := f.svc.SyncQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Empty(t, f.transport.Requests, "offline writes never touch the network")
}

func TestOfflineDeleteQueues(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	err := f.svc.DeleteProduct(ctx, "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrWriteQueued)

	items, err := f.svc.PendingItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionDelete, items[0].Action)
	assert.Equal(t, models.EntityProduct, items[0].EntityType)
}

func TestSettingsSingleton(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.transport.Respond("GET", "/settings",
		models.Settings{ID: "s1", StoreName: "Corner Shop", Currency: "EUR", TaxRate: "0.19"})

	settings, err := f.svc.GetSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, settings)
	assert.Equal(t, "Corner Shop", settings.StoreName)

	n, err := f.store.Count(store.CollectionSettings)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "settings stays a single row")

	f.monitor.SetOnline(false)

	cached, err := f.svc.GetSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "EUR", cached.Currency)
}

func TestSettingsUnknownOffline(t *testing.T) {
	f := newFixture(t, false)

	settings, err := f.svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Nil(t, settings)
}

func TestRetryAndDiscardQueueItems(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.CreateCustomer(ctx, models.Customer{Name: "Ada"})
	require.Error(t, err)

	items, err := f.svc.PendingItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	t.Run("discard removes the item", func(t *testing.T) {
		require.NoError(t, f.svc.DiscardQueueItem(ctx, items[0].ID))

		n, err := f.svc.SyncQueueLength(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("discard of unknown item errors", func(t *testing.T) {
		assert.Error(t, f.svc.DiscardQueueItem(ctx, "no-such-item"))
	})
}

func TestRetryQueueItemDrains(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.transport.FailWith("POST", "/customers", transport.RemoteDown())

	_, err := f.svc.CreateCustomer(ctx, models.Customer{ID: "c1", Name: "Ada"})
	require.Error(t, err)

	var queuedErr *models.QueuedWriteError
	require.ErrorAs(t, err, &queuedErr)
	id := queuedErr.QueueItemID

	// Exhaust the item, then bring the route back and retry it.
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.Sync(ctx))
	}
	item, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 3, item.RetryCount)

	delete(f.transport.PathErrs, "POST /customers")

	require.NoError(t, f.svc.RetryQueueItem(ctx, id))

	n, err := f.svc.SyncQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
