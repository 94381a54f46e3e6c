package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/possync/internal/events"
	"github.com/TheMichaelB/possync/internal/models"
)

// CurrentSchemaVersion for migrations. Migrations are additive only so
// new collections never destroy existing data.
const CurrentSchemaVersion = 1

// SQLiteStore implements SQLite-based collection storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger

	// Serializes writes to avoid SQLite lock contention.
	mu     sync.Mutex
	closed bool
}

// NewSQLiteStore opens or creates the cache database.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and runs pending migrations.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS entities (
        collection TEXT NOT NULL,
        key TEXT NOT NULL,
        payload TEXT NOT NULL,
        last_modified TIMESTAMP NOT NULL,
        version TIMESTAMP NOT NULL,
        PRIMARY KEY (collection, key)
    );

    CREATE INDEX IF NOT EXISTS idx_entities_collection ON entities(collection);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_info").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d",
			version, CurrentSchemaVersion)
	}

	// Future versions add ALTER TABLE / new tables here, then record
	// the new version. Never drop or rewrite existing rows.

	return nil
}

// Put upserts a record, stamping cache timestamps.
func (s *SQLiteStore) Put(collection, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStorageUnavailable
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
        INSERT INTO entities (collection, key, payload, last_modified, version)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(collection, key) DO UPDATE SET
            payload = excluded.payload,
            last_modified = excluded.last_modified,
            version = excluded.version
    `, collection, key, string(payload), now, now)

	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	return nil
}

// Get retrieves a single record payload.
func (s *SQLiteStore) Get(collection, key string) (json.RawMessage, error) {
	if s.isClosed() {
		return nil, models.ErrStorageUnavailable
	}

	var payload string
	err := s.db.QueryRow(`
        SELECT payload FROM entities
        WHERE collection = ? AND key = ?
    `, collection, key).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query record: %w", err)
	}

	return json.RawMessage(payload), nil
}

// GetAll returns every record payload in the collection. The cache
// timestamps stay behind; callers only see the domain payload.
func (s *SQLiteStore) GetAll(collection string) ([]json.RawMessage, error) {
	if s.isClosed() {
		return nil, models.ErrStorageUnavailable
	}

	rows, err := s.db.Query(`
        SELECT payload FROM entities WHERE collection = ?
    `, collection)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, json.RawMessage(payload))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// Entries returns full cache envelopes, timestamps included. Used for
// cache inspection; the data path goes through GetAll.
func (s *SQLiteStore) Entries(collection string) ([]models.CachedEntity, error) {
	if s.isClosed() {
		return nil, models.ErrStorageUnavailable
	}

	rows, err := s.db.Query(`
        SELECT key, payload, last_modified, version
        FROM entities WHERE collection = ?
    `, collection)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	defer rows.Close()

	var entries []models.CachedEntity
	for rows.Next() {
		var e models.CachedEntity
		var payload string
		if err := rows.Scan(&e.Key, &payload, &e.LastModified, &e.Version); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Payload = []byte(payload)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// ClearAndReplace refreshes a collection wholesale from a trusted
// remote fetch: clear and insert run in one transaction.
func (s *SQLiteStore) ClearAndReplace(collection string, records []KV) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStorageUnavailable
	}

	s.logger.WithFields(map[string]interface{}{
		"collection": collection,
		"records":    len(records),
	}).Debug("Replacing collection")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM entities WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO entities (collection, key, payload, last_modified, version)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		payload, err := json.Marshal(rec.Value)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.Key, err)
		}
		if _, err := stmt.Exec(collection, rec.Key, string(payload), now, now); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.Key, err)
		}
	}

	return tx.Commit()
}

// Count returns the number of records in a collection.
func (s *SQLiteStore) Count(collection string) (int, error) {
	if s.isClosed() {
		return 0, models.ErrStorageUnavailable
	}

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM entities WHERE collection = ?", collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count collection: %w", err)
	}

	return n, nil
}

// Delete removes a record.
func (s *SQLiteStore) Delete(collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrStorageUnavailable
	}

	_, err := s.db.Exec(
		"DELETE FROM entities WHERE collection = ? AND key = ?", collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

func (s *SQLiteStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
