package actuator

import (
	"sync"
	"time"

	"github.com/sweeney/grow-controller/internal/logic"
)

// DoseCall records one Dose invocation.
type DoseCall struct {
	Channel  string
	Action   logic.Action
	Duration time.Duration
}

// Fake is a test double that records commands.
type Fake struct {
	mu sync.Mutex

	Doses      []DoseCall
	Irrigation []bool
	OffCalls   int
	Closed     bool

	// DoseError, if set, is returned by Dose.
	DoseError error
}

// NewFake creates a Fake.
func NewFake() *Fake {
	return &Fake{}
}

// Dose records the call.
func (f *Fake) Dose(channel string, action logic.Action, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DoseError != nil {
		return f.DoseError
	}
	f.Doses = append(f.Doses, DoseCall{channel, action, d})
	return nil
}

// SetIrrigation records the call.
func (f *Fake) SetIrrigation(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Irrigation = append(f.Irrigation, on)
	return nil
}

// Off records the call.
func (f *Fake) Off() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OffCalls++
	return nil
}

// Close marks the fake as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// DoseCalls returns a copy of the recorded doses.
func (f *Fake) DoseCalls() []DoseCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DoseCall(nil), f.Doses...)
}

// Offs returns the number of Off calls.
func (f *Fake) Offs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OffCalls
}

// FakeOutput records the values written to one line.
type FakeOutput struct {
	mu     sync.Mutex
	Values []int
	Closed bool
	Err    error
}

// SetValue records v.
func (o *FakeOutput) SetValue(v int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.Values = append(o.Values, v)
	return nil
}

// Close marks the output closed.
func (o *FakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Closed = true
	return nil
}

// Last returns the most recent value, or -1 if never set.
func (o *FakeOutput) Last() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.Values) == 0 {
		return -1
	}
	return o.Values[len(o.Values)-1]
}

var _ Actuator = (*Fake)(nil)
