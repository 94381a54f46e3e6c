// Package queue is the durable write-ahead log of mutations that could
// not be applied to the remote API immediately. Items live in the local
// store's sync_queue collection and survive restarts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
	"github.com/TheMichaelB/possync/internal/store"
)

// Queue provides durable FIFO access to pending mutations.
type Queue struct {
	store  store.Store
	logger *events.Logger

	// Optional drain trigger, wired at startup. Called after a
	// successful enqueue; best-effort only, correctness does not
	// depend on it.
	trigger func()
}

// New creates a sync queue over the local store.
func New(st store.Store, logger *events.Logger) *Queue {
	return &Queue{
		store:  st,
		logger: logger.WithField("component", "sync_queue"),
	}
}

// SetDrainTrigger wires the best-effort reconciliation kick that runs
// after each enqueue. The trigger itself decides whether draining is
// possible (connectivity, re-entrancy).
func (q *Queue) SetDrainTrigger(fn func()) {
	q.trigger = fn
}

// Enqueue durably appends a deferred mutation and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, entityType models.EntityType, action models.Action, payload interface{}) (string, error) {
	if !entityType.Valid() {
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
	if !action.Valid() {
		return "", fmt.Errorf("unknown action %q", action)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	now := time.Now().UTC()
	item := models.SyncQueueItem{
		ID:         models.NewQueueItemID(now),
		EntityType: entityType,
		Action:     action,
		Payload:    raw,
		EnqueuedAt: now,
		RetryCount: 0,
		Version:    now,
	}

	if err := q.store.Put(store.CollectionSyncQueue, item.ID, item); err != nil {
		return "", fmt.Errorf("persist queue item: %w", err)
	}

	q.logger.WithFields(map[string]interface{}{
		"item_id":     item.ID,
		"entity_type": entityType,
		"action":      action,
	}).Info("Queued deferred mutation")

	if q.trigger != nil {
		q.trigger()
	}

	return item.ID, nil
}

// Pending returns all queued items sorted ascending by enqueue time.
// This is the reconciler's read path; FIFO order holds for the queue
// as a whole, not per entity.
func (q *Queue) Pending(ctx context.Context) ([]models.SyncQueueItem, error) {
	raws, err := q.store.GetAll(store.CollectionSyncQueue)
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}

	items := make([]models.SyncQueueItem, 0, len(raws))
	for _, raw := range raws {
		var item models.SyncQueueItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode queue item: %w", err)
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].EnqueuedAt.Equal(items[j].EnqueuedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].EnqueuedAt.Before(items[j].EnqueuedAt)
	})

	return items, nil
}

// Get returns a single queue item by ID.
func (q *Queue) Get(ctx context.Context, id string) (*models.SyncQueueItem, error) {
	raw, err := q.store.Get(store.CollectionSyncQueue, id)
	if err != nil {
		return nil, err
	}

	var item models.SyncQueueItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode queue item: %w", err)
	}

	return &item, nil
}

// Remove deletes an item after successful remote application.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.store.Delete(store.CollectionSyncQueue, id); err != nil {
		return fmt.Errorf("remove queue item: %w", err)
	}
	return nil
}

// BumpRetry increments an item's retry counter and persists it.
func (q *Queue) BumpRetry(ctx context.Context, id string) error {
	return q.setRetryCount(ctx, id, func(n int) int { return n + 1 })
}

// ResetRetry zeroes an item's retry counter so the next drain picks it
// up again. Operator action for exhausted items.
func (q *Queue) ResetRetry(ctx context.Context, id string) error {
	return q.setRetryCount(ctx, id, func(int) int { return 0 })
}

func (q *Queue) setRetryCount(ctx context.Context, id string, update func(int) int) error {
	item, err := q.Get(ctx, id)
	if err != nil {
		return err
	}

	item.RetryCount = update(item.RetryCount)

	if err := q.store.Put(store.CollectionSyncQueue, item.ID, item); err != nil {
		return fmt.Errorf("persist queue item: %w", err)
	}

	q.logger.WithFields(map[string]interface{}{
		"item_id":     item.ID,
		"retry_count": item.RetryCount,
	}).Debug("Updated retry count")

	return nil
}

// Size returns the number of pending items, exhausted ones included.
// Surfaced to the UI as "N pending changes".
func (q *Queue) Size(ctx context.Context) (int, error) {
	return q.store.Count(store.CollectionSyncQueue)
}
