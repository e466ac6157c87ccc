package sensor

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Bus is the part of an I2C bus the EZO driver uses.
type Bus interface {
	WriteBytes(addr byte, value []byte) error
	ReadBytes(addr byte, num int) ([]byte, error)
	Close() error
}

// EZO response status codes.
const (
	ezoOK        = 1
	ezoSyntax    = 2
	ezoPending   = 254
	ezoNoData    = 255
	ezoReadBytes = 32
)

var errEZOPending = errors.New("ezo: measurement still pending")

// EZO processing delays after a read command, per circuit type.
const (
	EZOpHDelay = 900 * time.Millisecond
	EZOECDelay = 600 * time.Millisecond
)

// ParseEZOResponse decodes a raw EZO reply: one status byte followed by a NUL
// terminated ASCII payload. Multi-field replies (EC, TDS, salinity) yield the
// first field.
func ParseEZOResponse(raw []byte) (float64, error) {
	if len(raw) == 0 {
		return 0, ErrNoData
	}
	switch raw[0] {
	case ezoOK:
	case ezoSyntax:
		return 0, errors.New("ezo: syntax error")
	case ezoPending:
		return 0, errEZOPending
	case ezoNoData:
		return 0, ErrNoData
	default:
		return 0, fmt.Errorf("ezo: unknown status %d", raw[0])
	}
	payload := raw[1:]
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	if i := bytes.IndexByte(payload, ','); i >= 0 {
		payload = payload[:i]
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return 0, ErrNoData
	}
	v, err := strconv.ParseFloat(string(payload), 64)
	if err != nil {
		return 0, fmt.Errorf("ezo: parse %q: %w", payload, err)
	}
	return v, nil
}

// EZO drives an Atlas Scientific EZO circuit (pH, EC) in I2C mode.
type EZO struct {
	name  string
	bus   Bus
	addr  byte
	delay time.Duration
	sleep func(time.Duration)

	mu    sync.Mutex
	awake bool
}

// NewEZO returns a driver for the circuit at addr. delay is the time the
// circuit needs between a read command and its reply.
func NewEZO(name string, bus Bus, addr byte, delay time.Duration) *EZO {
	return &EZO{name: name, bus: bus, addr: addr, delay: delay, sleep: time.Sleep, awake: true}
}

// Name implements Driver.
func (e *EZO) Name() string { return e.name }

// Read issues a single reading command and decodes the reply.
func (e *EZO) Read() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.bus.WriteBytes(e.addr, []byte("R")); err != nil {
		return 0, fmt.Errorf("ezo %s: write: %w", e.name, err)
	}
	e.sleep(e.delay)
	raw, err := e.bus.ReadBytes(e.addr, ezoReadBytes)
	if err != nil {
		return 0, fmt.Errorf("ezo %s: read: %w", e.name, err)
	}
	v, err := ParseEZOResponse(raw)
	if err == errEZOPending {
		// One retry covers a circuit that was still busy.
		e.sleep(e.delay / 3)
		if raw, err = e.bus.ReadBytes(e.addr, ezoReadBytes); err != nil {
			return 0, fmt.Errorf("ezo %s: read: %w", e.name, err)
		}
		v, err = ParseEZOResponse(raw)
	}
	if err != nil {
		return 0, fmt.Errorf("ezo %s: %w", e.name, err)
	}
	return v, nil
}

// Hibernate puts the circuit to sleep. It wakes on the next command.
func (e *EZO) Hibernate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.bus.WriteBytes(e.addr, []byte("Sleep")); err != nil {
		return fmt.Errorf("ezo %s: sleep: %w", e.name, err)
	}
	e.awake = false
	return nil
}

// Wake brings the circuit out of sleep.
func (e *EZO) Wake() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Any command wakes the circuit; the reply is discarded.
	if err := e.bus.WriteBytes(e.addr, []byte("Status")); err != nil {
		return fmt.Errorf("ezo %s: wake: %w", e.name, err)
	}
	e.sleep(300 * time.Millisecond)
	if _, err := e.bus.ReadBytes(e.addr, ezoReadBytes); err != nil {
		return fmt.Errorf("ezo %s: wake: %w", e.name, err)
	}
	e.awake = true
	return nil
}

// Awake reports whether the circuit is taking readings.
func (e *EZO) Awake() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.awake
}

// Close does not close the shared bus.
func (e *EZO) Close() error { return nil }

var (
	_ Driver     = (*EZO)(nil)
	_ Hibernator = (*EZO)(nil)
)
