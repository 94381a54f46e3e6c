package store

import "encoding/json"

// Collection names for the local cache database.
const (
	CollectionProducts  = "products"
	CollectionCustomers = "customers"
	CollectionDiscounts = "discounts"
	CollectionOrders    = "orders"
	CollectionSettings  = "settings"
	CollectionSyncQueue = "sync_queue"
)

// SettingsKey is the fixed key of the settings singleton row.
const SettingsKey = "settings"

// KV pairs a record key with its value for bulk operations.
type KV struct {
	Key   string
	Value interface{}
}

// Store persists whole-entity snapshots across process restarts,
// scoped per collection. Records are opaque JSON to the store; the
// cache timestamps it stamps on write never leave this layer.
type Store interface {
	// Put upserts a record, overwriting any existing value at key.
	Put(collection, key string, value interface{}) error

	// Get retrieves a single record, or models.ErrNotFound.
	Get(collection, key string) (json.RawMessage, error)

	// GetAll returns every record in the collection. Order is not
	// guaranteed to reflect insertion order after updates.
	GetAll(collection string) ([]json.RawMessage, error)

	// ClearAndReplace transactionally clears the collection and
	// inserts the given records, stamping each with the current time.
	ClearAndReplace(collection string, records []KV) error

	// Count returns the number of records in the collection.
	Count(collection string) (int, error)

	// Delete removes a record. Deleting a missing key is not an error.
	Delete(collection, key string) error

	// Close releases resources. Operations after Close fail with
	// models.ErrStorageUnavailable.
	Close() error
}
