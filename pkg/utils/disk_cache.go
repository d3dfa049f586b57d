package utils

import (
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DiskCache keeps downloaded dataset bodies keyed by their source location.
type DiskCache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenDiskCache opens (or creates) a cache directory. A zero ttl keeps
// entries forever.
func OpenDiskCache(path string, ttl time.Duration) (*DiskCache, error) {
	return openDiskCache(badger.DefaultOptions(path), ttl)
}

// OpenMemoryCache opens a cache that lives only as long as the process.
func OpenMemoryCache(ttl time.Duration) (*DiskCache, error) {
	return openDiskCache(badger.DefaultOptions("").WithInMemory(true), ttl)
}

func openDiskCache(opts badger.Options, ttl time.Duration) (*DiskCache, error) {
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &DiskCache{db: db, ttl: ttl}, nil
}

func (c *DiskCache) Close() error {
	return c.db.Close()
}

// Get returns the cached body for key, or nil when absent or expired.
func (c *DiskCache) Get(key string) ([]byte, error) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return val, err
}

func (c *DiskCache) Put(key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (c *DiskCache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Keys lists every live entry.
func (c *DiskCache) Keys() ([]string, error) {
	var keys []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Purge drops every entry.
func (c *DiskCache) Purge() error {
	return c.db.DropAll()
}
