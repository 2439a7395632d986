// Package catalog stores label+property index metadata for VanirDB.
//
// The planner's MATCH starting-atom chooser needs to know which indexes
// exist and roughly how many vertices they hold. The catalog persists that
// metadata in BadgerDB so plans stay stable across restarts; an in-memory
// mode backs tests and the CLI's ad hoc runs.
package catalog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Key prefix for index descriptors. Single byte, matching the storage
// engine's key layout convention.
const prefixIndex = byte(0x01)

// IndexDescriptor describes one label+property index.
type IndexDescriptor struct {
	Label       string
	Property    string
	ApproxCount int64
}

// Catalog is the persistent index metadata store. All descriptors are kept
// in memory and written through to badger; the catalog is small, so reads
// never touch disk. Safe for concurrent use.
type Catalog struct {
	db    *badger.DB
	mu    sync.RWMutex
	cache map[string]IndexDescriptor
}

// Open opens the catalog at dir. An empty dir runs fully in memory.
func Open(dir string) (*Catalog, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	c := &Catalog{db: db, cache: make(map[string]IndexDescriptor)}
	if err := c.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying store.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func indexKey(label, property string) []byte {
	key := make([]byte, 0, 1+len(label)+1+len(property))
	key = append(key, prefixIndex)
	key = append(key, label...)
	key = append(key, 0x00)
	key = append(key, property...)
	return key
}

func cacheKey(label, property string) string {
	return label + "\x00" + property
}

func (c *Catalog) load() error {
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixIndex}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var desc IndexDescriptor
				if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&desc); err != nil {
					return fmt.Errorf("decoding index descriptor: %w", err)
				}
				c.cache[cacheKey(desc.Label, desc.Property)] = desc
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Catalog) put(desc IndexDescriptor) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(desc); err != nil {
		return fmt.Errorf("encoding index descriptor: %w", err)
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey(desc.Label, desc.Property), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("storing index descriptor: %w", err)
	}
	c.cache[cacheKey(desc.Label, desc.Property)] = desc
	return nil
}

// CreateIndex registers a label+property index. Creating an existing index
// keeps its count.
func (c *Catalog) CreateIndex(label, property string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if desc, ok := c.cache[cacheKey(label, property)]; ok {
		return c.put(desc)
	}
	return c.put(IndexDescriptor{Label: label, Property: property})
}

// DropIndex removes an index registration.
func (c *Catalog) DropIndex(label, property string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(indexKey(label, property))
	})
	if err != nil {
		return fmt.Errorf("dropping index: %w", err)
	}
	delete(c.cache, cacheKey(label, property))
	return nil
}

// SetApproxVertexCount records the estimated vertex count for an index.
func (c *Catalog) SetApproxVertexCount(label, property string, count int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	desc, ok := c.cache[cacheKey(label, property)]
	if !ok {
		return fmt.Errorf("no index on :%s(%s)", label, property)
	}
	desc.ApproxCount = count
	return c.put(desc)
}

// LabelPropertyIndexExists implements the planner's IndexCatalog.
func (c *Catalog) LabelPropertyIndexExists(label, property string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.cache[cacheKey(label, property)]
	return ok
}

// ApproxVertexCount implements the planner's IndexCatalog.
func (c *Catalog) ApproxVertexCount(label, property string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[cacheKey(label, property)].ApproxCount
}

// Indexes lists all registered indexes.
func (c *Catalog) Indexes() []IndexDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]IndexDescriptor, 0, len(c.cache))
	for _, desc := range c.cache {
		out = append(out, desc)
	}
	return out
}
