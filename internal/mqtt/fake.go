package mqtt

import "sync"

// FakeClient records published messages and lets tests inject inbound ones.
type FakeClient struct {
	mu sync.Mutex

	// Readings contains all readings records that were published.
	Readings []ReadingsRecord

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// PublishError, if set, will be returned by both publish methods.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	onSettings func([]byte)
	onCommand  func(Command)
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{Connected: true}
}

// PublishReadings records the record.
func (f *FakeClient) PublishReadings(rec ReadingsRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Readings = append(f.Readings, rec)
	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// OnSettings registers the settings handler.
func (f *FakeClient) OnSettings(h func([]byte)) {
	f.mu.Lock()
	f.onSettings = h
	f.mu.Unlock()
}

// OnCommand registers the command handler.
func (f *FakeClient) OnCommand(h func(Command)) {
	f.mu.Lock()
	f.onCommand = h
	f.mu.Unlock()
}

// DeliverSettings simulates an inbound settings message.
func (f *FakeClient) DeliverSettings(payload []byte) {
	f.mu.Lock()
	h := f.onSettings
	f.mu.Unlock()
	if h != nil {
		h(payload)
	}
}

// DeliverCommand simulates an inbound grow-cycle command.
func (f *FakeClient) DeliverCommand(cmd Command) {
	f.mu.Lock()
	h := f.onCommand
	f.mu.Unlock()
	if h != nil {
		h(cmd)
	}
}

// Events returns the names of the recorded system events.
func (f *FakeClient) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.SystemEvents {
		out = append(out, e.Event)
	}
	return out
}

// ReadingsCount returns the number of recorded readings records.
func (f *FakeClient) ReadingsCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Readings)
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

var (
	_ Client           = (*FakeClient)(nil)
	_ ConnectionStatus = (*FakeClient)(nil)
)
