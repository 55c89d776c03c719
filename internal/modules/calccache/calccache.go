// Package calccache is a TTL cache for expensive risk computations
// (correlation matrices, per-symbol assessments). Entries are
// msgpack-encoded and persisted in sqlite so the slow recalibration tier
// survives a restart.
package calccache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores namespaced msgpack blobs with expiry
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time // Injectable clock for tests
}

// New creates a calculation cache
func New(db *sql.DB, logger zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: logger.With().Str("component", "calc_cache").Logger(),
		now: time.Now,
	}
}

// InitSchema creates the calc_cache table if it does not exist
func (c *Cache) InitSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS calc_cache (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			payload BLOB NOT NULL,
			expires_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create calc_cache table: %w", err)
	}
	return nil
}

// Set encodes value with msgpack and stores it under namespace/key with the
// given TTL.
func (c *Cache) Set(namespace, key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	expiresAt := c.now().Add(ttl).Unix()
	_, err = c.db.Exec(`
		INSERT INTO calc_cache (namespace, key, payload, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at`,
		namespace, key, payload, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Get decodes the cached value for namespace/key into dest. Returns false
// when the entry is absent or expired; expired rows are lazily deleted.
func (c *Cache) Get(namespace, key string, dest interface{}) (bool, error) {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRow(`
		SELECT payload, expires_at FROM calc_cache
		WHERE namespace = ? AND key = ?`, namespace, key).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if expiresAt <= c.now().Unix() {
		if _, err := c.db.Exec("DELETE FROM calc_cache WHERE namespace = ? AND key = ?", namespace, key); err != nil {
			c.log.Warn().Err(err).Str("namespace", namespace).Str("key", key).Msg("Failed to evict expired cache entry")
		}
		return false, nil
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache value: %w", err)
	}
	return true, nil
}

// Purge deletes all expired entries, returning how many were removed
func (c *Cache) Purge() (int64, error) {
	res, err := c.db.Exec("DELETE FROM calc_cache WHERE expires_at <= ?", c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purge count: %w", err)
	}
	if removed > 0 {
		c.log.Debug().Int64("removed", removed).Msg("Purged expired cache entries")
	}
	return removed, nil
}
