package client

import (
	"context"

	"github.com/google/uuid"

	"github.com/TheMichaelB/possync/internal/config"
	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/netmon"
	"github.com/TheMichaelB/possync/internal/queue"
	"github.com/TheMichaelB/possync/internal/services/data"
	syncsvc "github.com/TheMichaelB/possync/internal/services/sync"
	"github.com/TheMichaelB/possync/internal/store"
	"github.com/TheMichaelB/possync/internal/transport"
)

// Client wires the offline sync subsystem: local store, sync queue,
// connectivity monitor, reconciler, and the data façade. Everything is
// constructed once here and passed by reference; there are no package
// singletons.
type Client struct {
	Data       *data.Service
	Queue      *queue.Queue
	Reconciler *syncsvc.Reconciler
	Monitor    netmon.Monitor
	Store      store.Store

	config    *config.Config
	logger    *events.Logger
	transport transport.Transport
	runMon    func(ctx context.Context)
	unsub     func()
}

// New creates a client with the production websocket monitor.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	monitor := netmon.NewWSMonitor(cfg, logger)
	c, err := NewWithMonitor(cfg, monitor, logger)
	if err != nil {
		return nil, err
	}
	c.runMon = monitor.Run
	return c, nil
}

// NewWithMonitor creates a client around an externally controlled
// connectivity monitor. Tests use this with netmon.Manual.
func NewWithMonitor(cfg *config.Config, monitor netmon.Monitor, logger *events.Logger) (*Client, error) {
	transportClient := transport.NewHTTPClient(&cfg.API, logger)

	localStore, err := store.NewSQLiteStore(cfg.Storage.DatabaseFile, logger)
	if err != nil {
		return nil, err
	}

	syncQueue := queue.New(localStore, logger)

	reconciler := syncsvc.NewReconciler(
		syncQueue,
		transportClient,
		localStore,
		monitor,
		cfg.Sync.MaxItemRetries,
		logger,
	)

	dataService := data.NewService(
		transportClient,
		localStore,
		syncQueue,
		monitor,
		reconciler,
		logger,
	)

	c := &Client{
		Data:       dataService,
		Queue:      syncQueue,
		Reconciler: reconciler,
		Monitor:    monitor,
		Store:      localStore,
		config:     cfg,
		logger:     logger,
		transport:  transportClient,
	}

	// Reconnecting drains the queue; each online enqueue tries too.
	// Each triggered drain carries its own request id so its log lines
	// can be correlated.
	c.unsub = monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			ctx := events.WithRequestID(context.Background(), uuid.NewString()[:8])
			if err := reconciler.Drain(ctx); err != nil {
				logger.WithError(err).Warn("Drain after reconnect failed")
			}
		}()
	})

	if cfg.Sync.DrainOnEnqueue {
		syncQueue.SetDrainTrigger(func() {
			if !monitor.IsOnline() {
				return
			}
			go func() {
				ctx := events.WithRequestID(context.Background(), uuid.NewString()[:8])
				if err := reconciler.Drain(ctx); err != nil {
					logger.WithError(err).Warn("Drain after enqueue failed")
				}
			}()
		})
	}

	return c, nil
}

// Run starts the connectivity monitor and blocks until ctx is
// cancelled. Clients built with NewWithMonitor return immediately.
func (c *Client) Run(ctx context.Context) {
	if c.runMon != nil {
		c.runMon(ctx)
	}
}

// Close releases resources.
func (c *Client) Close() error {
	if c.unsub != nil {
		c.unsub()
	}
	_ = c.transport.Close()
	return c.Store.Close()
}
