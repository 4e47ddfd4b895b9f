// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCache is a disk-backed Cache implementation, used where entries
// must survive a process restart (e.g. extractor capability probes) but
// don't warrant running a separate Redis instance. Values are JSON-encoded,
// so only JSON-serializable types may be stored.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens (creating if necessary) a BadgerDB at dir.
func OpenBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// Get retrieves and JSON-decodes a value from the cache.
func (c *BadgerCache) Get(key string) (any, bool) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) || err != nil {
		return nil, false
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Set JSON-encodes and stores value under key, expiring after ttl. A
// non-positive ttl stores the entry without expiration.
func (c *BadgerCache) Set(key string, value any, ttl time.Duration) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), encoded)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete removes a value from the cache.
func (c *BadgerCache) Delete(key string) {
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Clear drops every key. Badger has no bulk-clear primitive, so this scans
// and deletes one key at a time; intended for tests, not hot paths.
func (c *BadgerCache) Clear() {
	_ = c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats reports the number of live keys; hit/miss/set counters are not
// tracked by the Badger backend.
func (c *BadgerCache) Stats() CacheStats {
	count := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return CacheStats{CurrentSize: count}
}
