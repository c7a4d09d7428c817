// Package storage implements the column-family key-value abstraction (spec
// §2 item 3, §6 "Storage layout"): headers, bodies, per-chain state, height
// index, world-state trie nodes and node-state each have their own bbolt
// bucket. Batch commits several writes in one bbolt transaction; see Batch
// for what goes through it per block.
package storage

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Column names the logical column families enumerated in spec §6.
type Column string

const (
	ColumnHeaders     Column = "headers"
	ColumnBodies      Column = "bodies"
	ColumnChainState  Column = "chain_state"
	ColumnHeightIndex Column = "height_index"
	ColumnWorldState  Column = "world_state_nodes"
	ColumnNodeState   Column = "node_state"
)

// allColumns lists every bucket created at open time; a column not in this
// list cannot be written to, which keeps the schema self-documenting.
var allColumns = []Column{
	ColumnHeaders,
	ColumnBodies,
	ColumnChainState,
	ColumnHeightIndex,
	ColumnWorldState,
	ColumnNodeState,
}

// DB wraps a single bbolt file holding every column family for one node.
// Unlike the teacher's per-chain DB (one bbolt file per chain directory),
// this implementation keeps all G*G chains' data in one file distinguished
// by key prefix, because the world-state is shared by every chain and a
// cross-file transaction would not be atomic.
type DB struct {
	bdb *bolt.DB
}

// Open creates or opens the bbolt file at path and ensures every column
// family bucket exists.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	d := &DB{bdb: bdb}
	if err := d.bdb.Update(func(tx *bolt.Tx) error {
		for _, c := range allColumns {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", c, err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return d, nil
}

// Close releases the underlying bbolt file.
func (d *DB) Close() error {
	if d == nil || d.bdb == nil {
		return nil
	}
	return d.bdb.Close()
}

// Get reads one value from a column family. ok is false when the key is
// absent; a missing key is not an error (mirrors bolt.Bucket.Get).
func (d *DB) Get(col Column, key []byte) (value []byte, ok bool, err error) {
	err = d.bdb.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("storage: unknown column %s", col)
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		value = append([]byte(nil), v...)
		ok = true
		return nil
	})
	return value, ok, err
}

// Put writes one value to a column family in its own transaction. For
// multiple writes that must commit atomically together, use Batch instead.
func (d *DB) Put(col Column, key, value []byte) error {
	return d.bdb.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("storage: unknown column %s", col)
		}
		return b.Put(key, value)
	})
}

// Delete removes one key from a column family, if present.
func (d *DB) Delete(col Column, key []byte) error {
	return d.bdb.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("storage: unknown column %s", col)
		}
		return b.Delete(key)
	})
}

// Write is one key/value mutation queued into a Batch. A nil Value deletes
// the key.
type Write struct {
	Column Column
	Key    []byte
	Value  []byte // nil means delete
}

// Batch commits a set of writes spanning any number of column families in a
// single bbolt transaction: they all land together or not at all.
// BlockFlow commits each accepted block's world-state writes through one
// Batch; the block's header is stored by the block tree in a separate
// transaction before that, and block bodies are not written to storage.
func (d *DB) Batch(writes []Write) error {
	return d.bdb.Update(func(tx *bolt.Tx) error {
		for _, w := range writes {
			b := tx.Bucket([]byte(w.Column))
			if b == nil {
				return fmt.Errorf("storage: unknown column %s", w.Column)
			}
			if w.Value == nil {
				if err := b.Delete(w.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(w.Key, w.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ForEachPrefix iterates every key in col starting with prefix, in key
// order, invoking fn until it returns false or the keys are exhausted. It is
// read-only for the duration of the iteration (a bolt.View cursor).
func (d *DB) ForEachPrefix(col Column, prefix []byte, fn func(key, value []byte) bool) error {
	return d.bdb.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("storage: unknown column %s", col)
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
