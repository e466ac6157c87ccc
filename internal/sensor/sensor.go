// Package sensor provides probe drivers and the sampling tasks that keep the
// latest reading of each probe in a shared slot.
package sensor

import (
	"errors"
	"sync"
	"time"
)

// ErrNoData is returned by a driver that has no measurement available yet.
var ErrNoData = errors.New("sensor: no data")

// Driver reads one probe. Read may block on hardware I/O.
type Driver interface {
	Name() string
	Read() (float64, error)
	Close() error
}

// Hibernator is implemented by probes that can be put into a low power state.
type Hibernator interface {
	Hibernate() error
	Wake() error
	Awake() bool
}

// Snapshot is a point-in-time copy of a Reading.
type Snapshot struct {
	Value   float64
	Updated time.Time
	Valid   bool
}

// Age returns how old the snapshot is at now. Invalid snapshots are infinitely old.
func (s Snapshot) Age(now time.Time) time.Duration {
	if !s.Valid {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(s.Updated)
}

// Reading is the latest value of one probe. It has a single writer (its
// Sampler) and any number of readers.
type Reading struct {
	mu   sync.RWMutex
	snap Snapshot
}

// Set stores a new value.
func (r *Reading) Set(v float64, at time.Time) {
	r.mu.Lock()
	r.snap = Snapshot{Value: v, Updated: at, Valid: true}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current value.
func (r *Reading) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}
