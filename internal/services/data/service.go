// Package data is the offline data façade: the single entry point the
// application calls for entity CRUD. Each call branches on the current
// connectivity state; callers never see the online/offline split beyond
// the documented error contract.
package data

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
	"github.com/TheMichaelB/possync/internal/netmon"
	"github.com/TheMichaelB/possync/internal/queue"
	syncsvc "github.com/TheMichaelB/possync/internal/services/sync"
	"github.com/TheMichaelB/possync/internal/store"
	"github.com/TheMichaelB/possync/internal/transport"
)

// Service implements the online/offline branching policy uniformly.
//
// Reads: online fetches refresh the local cache and return fresh data;
// remote failure or offline falls back to the cache; a broken cache
// degrades to empty results. Reads never return remote or storage
// errors to the caller.
//
// Writes: online attempts apply remotely and mirror into the cache;
// any failure (or being offline) durably queues the mutation and
// returns *models.QueuedWriteError. A write is never silently queued
// and never lost.
type Service struct {
	transport  transport.Transport
	store      store.Store
	queue      *queue.Queue
	monitor    netmon.Monitor
	reconciler *syncsvc.Reconciler
	logger     *events.Logger
}

// NewService creates the façade.
func NewService(
	t transport.Transport,
	st store.Store,
	q *queue.Queue,
	monitor netmon.Monitor,
	reconciler *syncsvc.Reconciler,
	logger *events.Logger,
) *Service {
	return &Service{
		transport:  t,
		store:      st,
		queue:      q,
		monitor:    monitor,
		reconciler: reconciler,
		logger:     logger.WithField("service", "data"),
	}
}

// IsOnline reports the current connectivity state.
func (s *Service) IsOnline() bool {
	return s.monitor.IsOnline()
}

// SyncQueueLength returns the number of pending deferred mutations,
// exhausted items included.
func (s *Service) SyncQueueLength(ctx context.Context) (int, error) {
	return s.queue.Size(ctx)
}

// PendingItems lists queued mutations in enqueue order.
func (s *Service) PendingItems(ctx context.Context) ([]models.SyncQueueItem, error) {
	return s.queue.Pending(ctx)
}

// RetryQueueItem resets an exhausted item's retry budget and kicks a
// drain. Operator action for items parked past the retry limit.
func (s *Service) RetryQueueItem(ctx context.Context, id string) error {
	if err := s.queue.ResetRetry(ctx, id); err != nil {
		return err
	}
	return s.reconciler.Drain(ctx)
}

// DiscardQueueItem drops a queued mutation without applying it.
func (s *Service) DiscardQueueItem(ctx context.Context, id string) error {
	// Error if the item does not exist, so a typo is not a silent no-op.
	if _, err := s.queue.Get(ctx, id); err != nil {
		return err
	}
	return s.queue.Remove(ctx, id)
}

// Sync runs one reconciliation pass.
func (s *Service) Sync(ctx context.Context) error {
	return s.reconciler.Drain(ctx)
}

// list is the shared read path. keyFn extracts the cache key from a
// decoded record.
func list[T any](ctx context.Context, s *Service, path, collection string, keyFn func(*T) string) ([]T, error) {
	if s.monitor.IsOnline() {
		resp, err := s.transport.Request(ctx, "GET", path, nil)
		if err == nil {
			var fresh []T
			if err := json.Unmarshal(resp, &fresh); err != nil {
				s.logger.WithError(err).WithField("path", path).Error("Malformed list response")
				return cachedList[T](s, collection), nil
			}

			warmCache(s, collection, fresh, keyFn)
			return fresh, nil
		}
		s.logger.WithError(err).WithField("path", path).Warn("Online read failed, serving cache")
	}

	return cachedList[T](s, collection), nil
}

// cachedList serves stale-but-available data, degrading to empty when
// the store itself is unavailable.
func cachedList[T any](s *Service, collection string) []T {
	raws, err := s.store.GetAll(collection)
	if err != nil {
		s.logger.WithError(err).WithField("collection", collection).Warn("Cache unavailable, returning empty")
		return []T{}
	}

	records := make([]T, 0, len(raws))
	for _, raw := range raws {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.WithError(err).Warn("Skipping undecodable cached record")
			continue
		}
		records = append(records, rec)
	}

	return records
}

// warmCache replaces the collection with a fresh remote result.
func warmCache[T any](s *Service, collection string, fresh []T, keyFn func(*T) string) {
	kvs := make([]store.KV, 0, len(fresh))
	for i := range fresh {
		key := keyFn(&fresh[i])
		if key == "" {
			continue
		}
		kvs = append(kvs, store.KV{Key: key, Value: fresh[i]})
	}

	if err := s.store.ClearAndReplace(collection, kvs); err != nil {
		s.logger.WithError(err).WithField("collection", collection).Warn("Failed to warm cache")
	}
}

// write is the shared write path. Returns the server's canonical
// response on success; queues and returns *models.QueuedWriteError on
// remote failure or offline.
func (s *Service) write(ctx context.Context, entityType models.EntityType, action models.Action, method, path string, payload interface{}) (json.RawMessage, error) {
	if s.monitor.IsOnline() {
		resp, err := s.transport.Request(ctx, method, path, payload)
		if err == nil {
			return resp, nil
		}

		s.logger.WithError(err).WithFields(map[string]interface{}{
			"entity_type": entityType,
			"action":      action,
		}).Warn("Online write failed, queueing")
		return nil, s.enqueue(ctx, entityType, action, payload, err)
	}

	return nil, s.enqueue(ctx, entityType, action, payload, nil)
}

// enqueue defers a mutation and builds the caller-visible error. The
// caller must be told the write did not complete synchronously.
func (s *Service) enqueue(ctx context.Context, entityType models.EntityType, action models.Action, payload interface{}, cause error) error {
	id, err := s.queue.Enqueue(ctx, entityType, action, payload)
	if err != nil {
		if cause != nil {
			return errors.Join(cause, err)
		}
		return err
	}

	return &models.QueuedWriteError{
		EntityType:  entityType,
		Action:      action,
		QueueItemID: id,
		Err:         cause,
	}
}

// cachePut mirrors a successful remote write into the local cache.
// Cache failures degrade to remote-only; the write already succeeded.
func (s *Service) cachePut(collection, key string, value interface{}) {
	if err := s.store.Put(collection, key, value); err != nil {
		s.logger.WithError(err).WithField("collection", collection).Warn("Failed to update cache")
	}
}

// cacheDelete removes a record after a successful remote delete.
func (s *Service) cacheDelete(collection, key string) {
	if err := s.store.Delete(collection, key); err != nil {
		s.logger.WithError(err).WithField("collection", collection).Warn("Failed to evict cache entry")
	}
}
