package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a Store backed by a bbolt file with one bucket per namespace.
type Bolt struct {
	db *bolt.DB
	staging
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &Bolt{db: db}, nil
}

// Get implements Store.
func (b *Bolt) Get(ns, key string, v any) error {
	if data, ok := b.lookup(ns, key); ok {
		return decode(ns, key, data, v)
	}
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ns))
		if bucket == nil {
			return ErrNotFound
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		// raw is only valid inside the transaction.
		data = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return err
	}
	return decode(ns, key, data, v)
}

// Set implements Store.
func (b *Bolt) Set(ns, key string, v any) error {
	return b.stage(ns, key, v)
}

// Commit writes every staged value in a single transaction. On failure the
// staged values are kept so a later Commit can retry them.
func (b *Bolt) Commit() error {
	order, pending := b.take()
	if len(order) == 0 {
		return nil
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		for _, k := range order {
			bucket, err := tx.CreateBucketIfNotExists([]byte(k.ns))
			if err != nil {
				return fmt.Errorf("bucket %s: %w", k.ns, err)
			}
			if err := bucket.Put([]byte(k.key), pending[k]); err != nil {
				return fmt.Errorf("put %s/%s: %w", k.ns, k.key, err)
			}
		}
		return nil
	})
	if err != nil {
		b.restore(order, pending)
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Close closes the database. Uncommitted writes are discarded.
func (b *Bolt) Close() error {
	return b.db.Close()
}
