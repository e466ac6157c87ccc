package store

import "sync"

// Memory is an in-process Store. Committed values survive Reopen, which
// models a restart in tests.
type Memory struct {
	staging

	mu        sync.Mutex
	committed map[stagedKey][]byte

	// CommitError, if set, is returned by Commit and nothing is committed.
	CommitError error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{committed: make(map[stagedKey][]byte)}
}

// Get implements Store.
func (m *Memory) Get(ns, key string, v any) error {
	if data, ok := m.lookup(ns, key); ok {
		return decode(ns, key, data, v)
	}
	m.mu.Lock()
	data, ok := m.committed[stagedKey{ns, key}]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return decode(ns, key, data, v)
}

// Set implements Store.
func (m *Memory) Set(ns, key string, v any) error {
	return m.stage(ns, key, v)
}

// Commit implements Store.
func (m *Memory) Commit() error {
	order, pending := m.take()
	if m.CommitError != nil {
		m.restore(order, pending)
		return m.CommitError
	}
	m.mu.Lock()
	for _, k := range order {
		m.committed[k] = pending[k]
	}
	m.mu.Unlock()
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

// Reopen returns a new store holding only the committed values, as if the
// process had restarted.
func (m *Memory) Reopen() *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := NewMemory()
	for k, v := range m.committed {
		r.committed[k] = v
	}
	return r
}

var (
	_ Store = (*Bolt)(nil)
	_ Store = (*Memory)(nil)
)
