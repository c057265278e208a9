// Copyright (C) 2025 Dumroo AI (engineering@dumroo.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// conditionCacheTTL is the lifetime of a persisted cache entry. Enforced by
// BadgerDB's native TTL; expired keys read back as cache misses.
const conditionCacheTTL = 7 * 24 * time.Hour

// conditionCacheKeyPrefix versions the storage layout so a future format
// change cannot collide with old entries.
const conditionCacheKeyPrefix = "condcache/v1/"

// ConditionCache memoizes model-resolved conditions for context-free
// questions.
//
// Description:
//
//	Keyed by SHA-256 of the question text, the column set and the model
//	identity: a dataset schema change or a model switch invalidates every
//	entry automatically, with no explicit invalidation API. The in-memory tier is bounded with oldest-entry
//	eviction; the optional BadgerDB tier persists entries across restarts
//	with a 7-day TTL. Persistence is strictly best-effort — open or write
//	failures degrade to memory-only operation, never to request failures.
//
//	Only interpretations made with empty session history are cached: with
//	history present the prompt is no longer a pure function of question and
//	columns, and a memoized answer could leak another conversation's
//	context.
//
// Thread Safety: ConditionCache is safe for concurrent use.
type ConditionCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	maxSize int
	hits    uint64
	misses  uint64

	db *badger.DB
}

type cacheEntry struct {
	cond     Condition
	storedAt time.Time
}

// DefaultCacheSize bounds the in-memory tier when no size is configured.
const DefaultCacheSize = 100

// NewConditionCache creates a memory-only cache. maxSize <= 0 falls back to
// DefaultCacheSize.
func NewConditionCache(maxSize int) *ConditionCache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &ConditionCache{
		entries: make(map[string]cacheEntry),
		maxSize: maxSize,
	}
}

// OpenPersistence attaches a BadgerDB tier at dir.
//
// Outputs:
//   - error: Non-nil when the database cannot be opened; the cache keeps
//     working memory-only and the caller decides whether to log or fail.
func (c *ConditionCache) OpenPersistence(dir string) error {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("cache: opening badger at %s: %w", dir, err)
	}

	c.mu.Lock()
	c.db = db
	c.mu.Unlock()

	slog.Info("Condition cache persistence opened", slog.String("path", dir))
	return nil
}

// Close releases the persistence tier, if any.
func (c *ConditionCache) Close() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}

// cacheKey derives the storage key for a (question, columns, model) triple.
// Model identity is part of the key so persisted entries cannot outlive a
// provider or model switch.
func cacheKey(question string, columns []string, model string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(question))))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(columns, ",")))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up a cached condition for the given model.
func (c *ConditionCache) Get(question string, columns []string, model string) (Condition, bool) {
	key := cacheKey(question, columns, model)

	c.mu.Lock()
	entry, ok := c.entries[key]
	db := c.db
	if ok {
		c.hits++
		c.mu.Unlock()
		conditionCacheTotal.WithLabelValues("hit").Inc()
		return entry.cond, true
	}
	c.mu.Unlock()

	if db != nil {
		if cond, err := loadPersisted(db, key); err == nil {
			c.mu.Lock()
			c.hits++
			c.insertLocked(key, cond)
			c.mu.Unlock()
			conditionCacheTotal.WithLabelValues("hit").Inc()
			return cond, true
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("Condition cache read failed", slog.String("error", err.Error()))
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	conditionCacheTotal.WithLabelValues("miss").Inc()
	return Condition{}, false
}

// Put stores a resolved condition in both tiers.
func (c *ConditionCache) Put(question string, columns []string, model string, cond Condition) {
	key := cacheKey(question, columns, model)

	c.mu.Lock()
	c.insertLocked(key, cond)
	db := c.db
	c.mu.Unlock()

	if db == nil {
		return
	}
	if err := storePersisted(db, key, cond); err != nil {
		// Persistence failure is non-fatal; the entry lives in memory and
		// will be recomputed after a restart.
		slog.Warn("Condition cache write failed", slog.String("error", err.Error()))
	}
}

// insertLocked adds an entry, evicting the oldest when full. Caller holds mu.
func (c *ConditionCache) insertLocked(key string, cond Condition) {
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.storedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.storedAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = cacheEntry{cond: cond, storedAt: time.Now()}
}

// CacheStats is the read-only view served by the cache debug endpoint.
type CacheStats struct {
	Size       int     `json:"size"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
	Persistent bool    `json:"persistent"`
}

// Stats returns a snapshot of cache effectiveness.
func (c *ConditionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	stats := CacheStats{
		Size:       len(c.entries),
		Hits:       c.hits,
		Misses:     c.misses,
		Persistent: c.db != nil,
	}
	if total > 0 {
		stats.HitRate = float64(c.hits) / float64(total) * 100
	}
	return stats
}

// =============================================================================
// Badger tier
// =============================================================================

func loadPersisted(db *badger.DB, key string) (Condition, error) {
	var cond Condition
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(conditionCacheKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cond)
		})
	})
	if err != nil {
		return Condition{}, err
	}
	return cond, nil
}

func storePersisted(db *badger.DB, key string, cond Condition) error {
	payload, err := json.Marshal(cond)
	if err != nil {
		return fmt.Errorf("encoding condition: %w", err)
	}
	return db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(conditionCacheKeyPrefix+key), payload).
			WithTTL(conditionCacheTTL)
		return txn.SetEntry(entry)
	})
}
