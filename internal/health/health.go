// Package health watches process resources and fails hard when the device
// is about to run out of memory, leaving recovery to the supervisor.
package health

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// UsageFunc returns the used memory percentage.
type UsageFunc func() (float64, error)

// SystemMemory reports system-wide memory use.
func SystemMemory() (float64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return v.UsedPercent, nil
}

// Monitor checks memory use against a limit.
type Monitor struct {
	// Limit is the used-memory percentage that counts as exhaustion.
	Limit float64
	// Usage defaults to SystemMemory.
	Usage UsageFunc
	// OnExhausted is called once when the limit is exceeded.
	OnExhausted func(used float64)

	tripped bool
}

// Check samples memory once. It reports whether the limit was exceeded.
func (m *Monitor) Check() (bool, error) {
	usage := m.Usage
	if usage == nil {
		usage = SystemMemory
	}
	used, err := usage()
	if err != nil {
		return false, err
	}
	if m.Limit <= 0 || used < m.Limit {
		return false, nil
	}
	if !m.tripped {
		m.tripped = true
		log.Printf("health: memory use %.1f%% exceeds limit %.1f%%", used, m.Limit)
		if m.OnExhausted != nil {
			m.OnExhausted(used)
		}
	}
	return true, nil
}

// Run checks on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if _, err := m.Check(); err != nil {
				log.Printf("health: %v", err)
			}
		}
	}
}
