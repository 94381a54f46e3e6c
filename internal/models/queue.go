package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which remote resource a queued mutation targets.
type EntityType string

const (
	EntityOrder    EntityType = "order"
	EntityProduct  EntityType = "product"
	EntityCustomer EntityType = "customer"
	EntityDiscount EntityType = "discount"
	EntitySettings EntityType = "settings"
)

// Valid reports whether the entity type is known.
func (e EntityType) Valid() bool {
	switch e {
	case EntityOrder, EntityProduct, EntityCustomer, EntityDiscount, EntitySettings:
		return true
	}
	return false
}

// Action is the kind of mutation a queue item carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether the action is known.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// SyncQueueItem is one durable deferred mutation awaiting remote application.
type SyncQueueItem struct {
	ID         string          `json:"id"`
	EntityType EntityType      `json:"entity_type"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	Version    time.Time       `json:"version"`
}

// NewQueueItemID derives a queue item ID from the enqueue time plus a
// random suffix. The millisecond prefix is zero-padded so lexicographic
// ID order approximates enqueue order; ordering proper keys off EnqueuedAt.
func NewQueueItemID(at time.Time) string {
	return fmt.Sprintf("%013d-%s", at.UnixMilli(), uuid.NewString()[:8])
}
