package sensor

import (
	"errors"
	"sync"
)

// FakeDriver is a test double that returns scripted values.
type FakeDriver struct {
	mu sync.Mutex

	DriverName string
	// Values are returned in order; the last one repeats.
	Values []float64
	index  int
	// ReadError, if set, is returned by Read.
	ReadError error

	// Hibernation state, for probes that support it.
	Asleep         bool
	HibernateCalls int
	WakeCalls      int
	Reads          int
	Closed         bool
}

// NewFakeDriver creates a FakeDriver with the given values.
func NewFakeDriver(name string, values ...float64) *FakeDriver {
	return &FakeDriver{DriverName: name, Values: values}
}

// Name implements Driver.
func (f *FakeDriver) Name() string { return f.DriverName }

// Read returns the next scripted value.
func (f *FakeDriver) Read() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// SetError changes the scripted read error.
func (f *FakeDriver) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// Hibernate implements Hibernator.
func (f *FakeDriver) Hibernate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Asleep = true
	f.HibernateCalls++
	return nil
}

// Wake implements Hibernator.
func (f *FakeDriver) Wake() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Asleep = false
	f.WakeCalls++
	return nil
}

// Awake implements Hibernator.
func (f *FakeDriver) Awake() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Asleep
}

// Close implements Driver.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeBus is an in-memory I2C bus for EZO tests.
type FakeBus struct {
	mu      sync.Mutex
	Writes  [][]byte
	Replies [][]byte
	Err     error
}

// WriteBytes records the command.
func (b *FakeBus) WriteBytes(addr byte, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.Writes = append(b.Writes, append([]byte(nil), value...))
	return nil
}

// ReadBytes pops the next scripted reply.
func (b *FakeBus) ReadBytes(addr byte, num int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	if len(b.Replies) == 0 {
		return []byte{ezoNoData}, nil
	}
	r := b.Replies[0]
	b.Replies = b.Replies[1:]
	return r, nil
}

// Close implements Bus.
func (b *FakeBus) Close() error { return nil }
