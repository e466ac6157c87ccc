// Package store provides the namespaced key/value store that survives power loss.
// Values are JSON encoded. Writes are staged by Set and made durable by Commit.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("store: key not found")

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is a namespaced key/value store.
type Store interface {
	// Get decodes the value at ns/key into v. Staged writes are visible.
	Get(ns, key string, v any) error
	// Set stages v at ns/key. It is not durable until Commit.
	Set(ns, key string, v any) error
	// Commit makes all staged writes durable atomically.
	Commit() error
	Close() error
}

type stagedKey struct {
	ns  string
	key string
}

// staging holds encoded writes that have not been committed yet.
type staging struct {
	mu      sync.Mutex
	pending map[stagedKey][]byte
	order   []stagedKey
}

func (s *staging) stage(ns, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", ns, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[stagedKey][]byte)
	}
	k := stagedKey{ns, key}
	if _, ok := s.pending[k]; !ok {
		s.order = append(s.order, k)
	}
	s.pending[k] = data
	return nil
}

func (s *staging) lookup(ns, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pending[stagedKey{ns, key}]
	return data, ok
}

// take returns the staged writes in insertion order and clears them.
func (s *staging) take() ([]stagedKey, map[stagedKey][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, pending := s.order, s.pending
	s.order, s.pending = nil, nil
	return order, pending
}

// restore puts writes back after a failed commit, keeping newer stages.
func (s *staging) restore(order []stagedKey, pending map[stagedKey][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = make(map[stagedKey][]byte)
	}
	for _, k := range order {
		if _, ok := s.pending[k]; ok {
			continue
		}
		s.pending[k] = pending[k]
		s.order = append(s.order, k)
	}
}

func decode(ns, key string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: decode %s/%s: %w", ns, key, err)
	}
	return nil
}
