// Package extcache persists a record of which extensions have been loaded
// for which tenant, so a restarted process can re-register the same
// builtins without the caller re-issuing every LoadExtension admin call.
// It does not cache table data — Non-goals (spec §1) still exclude table
// durability — only the (tenant, name) -> path bookkeeping the extension
// manager needs. Grounded on the teacher's pkg/storage/boltdb.go
// bucket-per-entity, JSON-value pattern, narrowed to one bucket.
package extcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketLoaded = []byte("loaded_extensions")

// Entry is one (tenant, name) -> path record.
type Entry struct {
	Tenant uint64 `json:"tenant"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

func key(tenant uint64, name string) []byte {
	return []byte(fmt.Sprintf("%d/%s", tenant, name))
}

// Cache is a bbolt-backed store of Entry records.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the cache file under dataDir.
func Open(dataDir string) (*Cache, error) {
	dbPath := filepath.Join(dataDir, "extensions.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("extcache: open %s: %w", dbPath, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLoaded)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("extcache: create bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Put records that name was loaded from path for tenant.
func (c *Cache) Put(e Entry) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLoaded).Put(key(e.Tenant, e.Name), data)
	})
}

// List returns every recorded entry, for replay at startup.
func (c *Cache) List() ([]Entry, error) {
	var entries []Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLoaded).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}
