// Package sync drains the offline queue against the remote API once
// connectivity is available.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
	"github.com/TheMichaelB/possync/internal/netmon"
	"github.com/TheMichaelB/possync/internal/queue"
	"github.com/TheMichaelB/possync/internal/store"
	"github.com/TheMichaelB/possync/internal/transport"
)

// Event represents one reconciliation event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Item      *models.SyncQueueItem
	Error     error
}

// EventType defines reconciliation event types.
type EventType string

const (
	EventDrainStarted   EventType = "drain_started"
	EventItemApplied    EventType = "item_applied"
	EventItemFailed     EventType = "item_failed"
	EventItemSkipped    EventType = "item_skipped"
	EventDrainCompleted EventType = "drain_completed"
)

// Reconciler applies queued mutations to the remote API in enqueue
// order with at-least-once semantics. A single drain runs at a time;
// concurrent triggers are dropped, not queued.
type Reconciler struct {
	queue     *queue.Queue
	transport transport.Transport
	store     store.Store
	monitor   netmon.Monitor
	logger    *events.Logger

	// Items past this many failures are parked: kept in the queue and
	// counted, but skipped by automatic drains.
	maxItemRetries int

	mu       sync.Mutex
	draining bool

	events chan Event
}

// NewReconciler creates a reconciler.
func NewReconciler(
	q *queue.Queue,
	t transport.Transport,
	st store.Store,
	monitor netmon.Monitor,
	maxItemRetries int,
	logger *events.Logger,
) *Reconciler {
	return &Reconciler{
		queue:          q,
		transport:      t,
		store:          st,
		monitor:        monitor,
		maxItemRetries: maxItemRetries,
		logger:         logger.WithField("component", "reconciler"),
		events:         make(chan Event, 100),
	}
}

// Events returns the reconciliation event stream. Events are dropped
// when no reader keeps up; they are progress reporting, not state.
func (r *Reconciler) Events() <-chan Event {
	return r.events
}

// Drain applies all currently queued items in ascending enqueue order.
// It is a no-op when a drain is already running, when the monitor
// reports offline, or when the queue is empty. A failing item does not
// block subsequent items. Items enqueued mid-drain wait for the next
// pass. Cancelling ctx stops between items; a single item's remote
// call and queue mutation always complete together.
func (r *Reconciler) Drain(ctx context.Context) error {
	log := r.logger
	if id := events.GetRequestID(ctx); id != "" {
		log = log.WithField("request_id", id)
	}

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		log.Debug("Drain already in progress, ignoring trigger")
		return nil
	}
	r.draining = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.draining = false
		r.mu.Unlock()
	}()

	if !r.monitor.IsOnline() {
		log.Debug("Offline, skipping drain")
		return nil
	}

	// Snapshot: items enqueued after this read go to the next pass.
	items, err := r.queue.Pending(ctx)
	if err != nil {
		return fmt.Errorf("read pending items: %w", err)
	}

	if len(items) == 0 {
		return nil
	}

	log.WithField("pending", len(items)).Info("Draining sync queue")
	r.emit(Event{Type: EventDrainStarted, Timestamp: time.Now()})

	applied, failed, skipped := 0, 0, 0

	for i := range items {
		item := &items[i]

		if err := ctx.Err(); err != nil {
			log.WithField("remaining", len(items)-i).Warn("Drain cancelled")
			r.emit(Event{Type: EventDrainCompleted, Timestamp: time.Now(), Error: err})
			return err
		}

		if item.RetryCount >= r.maxItemRetries {
			skipped++
			log.WithFields(map[string]interface{}{
				"item_id":     item.ID,
				"retry_count": item.RetryCount,
			}).Warn("Skipping exhausted queue item")
			r.emit(Event{Type: EventItemSkipped, Timestamp: time.Now(), Item: item, Error: models.ErrQueueItemExhausted})
			continue
		}

		if err := r.applyItem(ctx, item); err != nil {
			failed++
			log.WithError(err).WithField("item_id", item.ID).Warn("Queue item failed")
			r.emit(Event{Type: EventItemFailed, Timestamp: time.Now(), Item: item, Error: err})

			if err := r.queue.BumpRetry(ctx, item.ID); err != nil {
				log.WithError(err).Error("Failed to record retry")
			}
			// Continue with the next item; ordering is best-effort,
			// not strict blocking FIFO.
			continue
		}

		applied++
		r.emit(Event{Type: EventItemApplied, Timestamp: time.Now(), Item: item})

		if err := r.queue.Remove(ctx, item.ID); err != nil {
			log.WithError(err).Error("Failed to remove applied item")
		}
	}

	log.WithFields(map[string]interface{}{
		"applied": applied,
		"failed":  failed,
		"skipped": skipped,
	}).Info("Drain complete")
	r.emit(Event{Type: EventDrainCompleted, Timestamp: time.Now()})

	return nil
}

// applyItem dispatches one mutation to the remote API and refreshes
// the local cache on success.
func (r *Reconciler) applyItem(ctx context.Context, item *models.SyncQueueItem) error {
	method, path, err := routeFor(item)
	if err != nil {
		return err
	}

	var body interface{}
	if item.Action != models.ActionDelete {
		body = item.Payload
	}

	resp, err := r.transport.Request(ctx, method, path, body)
	if err != nil {
		return err
	}

	return r.refreshCache(item, resp)
}

// refreshCache mirrors a successfully applied mutation into the local
// store so offline reads see it without waiting for the next fetch.
func (r *Reconciler) refreshCache(item *models.SyncQueueItem, resp json.RawMessage) error {
	collection, err := collectionFor(item.EntityType)
	if err != nil {
		return err
	}

	switch item.Action {
	case models.ActionDelete:
		id, err := payloadID(item.Payload)
		if err != nil {
			return err
		}
		return r.store.Delete(collection, id)

	default:
		record := resp
		if len(record) == 0 {
			record = item.Payload
		}

		key, err := payloadID(record)
		if err != nil || key == "" {
			if item.EntityType == models.EntitySettings {
				key = store.SettingsKey
			} else {
				// Server assigned no usable id; the next online read
				// repopulates the collection anyway.
				return nil
			}
		}

		return r.store.Put(collection, key, record)
	}
}

// routeFor maps (entityType, action) to a remote endpoint.
func routeFor(item *models.SyncQueueItem) (method, path string, err error) {
	base, err := basePathFor(item.EntityType)
	if err != nil {
		return "", "", err
	}

	// Settings is a singleton; it only ever updates in place.
	if item.EntityType == models.EntitySettings {
		if item.Action != models.ActionUpdate {
			return "", "", fmt.Errorf("unsupported settings action %q", item.Action)
		}
		return "PATCH", base, nil
	}

	switch item.Action {
	case models.ActionCreate:
		return "POST", base, nil
	case models.ActionUpdate:
		id, err := payloadID(item.Payload)
		if err != nil {
			return "", "", err
		}
		return "PATCH", base + "/" + id, nil
	case models.ActionDelete:
		id, err := payloadID(item.Payload)
		if err != nil {
			return "", "", err
		}
		return "DELETE", base + "/" + id, nil
	default:
		return "", "", fmt.Errorf("unknown action %q", item.Action)
	}
}

func basePathFor(entityType models.EntityType) (string, error) {
	switch entityType {
	case models.EntityProduct:
		return "/products", nil
	case models.EntityCustomer:
		return "/customers", nil
	case models.EntityDiscount:
		return "/discounts", nil
	case models.EntityOrder:
		return "/orders", nil
	case models.EntitySettings:
		return "/settings", nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
}

func collectionFor(entityType models.EntityType) (string, error) {
	switch entityType {
	case models.EntityProduct:
		return store.CollectionProducts, nil
	case models.EntityCustomer:
		return store.CollectionCustomers, nil
	case models.EntityDiscount:
		return store.CollectionDiscounts, nil
	case models.EntityOrder:
		return store.CollectionOrders, nil
	case models.EntitySettings:
		return store.CollectionSettings, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
}

// payloadID extracts the entity id from an opaque payload.
func payloadID(payload json.RawMessage) (string, error) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", fmt.Errorf("extract payload id: %w", err)
	}
	if probe.ID == "" {
		return "", fmt.Errorf("payload has no id")
	}
	return probe.ID, nil
}

// emit sends without blocking; slow readers lose events.
func (r *Reconciler) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}
