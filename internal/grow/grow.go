// Package grow manages the grow-cycle lifecycle: the settings latch, starting
// and stopping the concurrent system, and persisting both across power loss.
package grow

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/grow-controller/internal/actuator"
	"github.com/sweeney/grow-controller/internal/sensor"
	"github.com/sweeney/grow-controller/internal/store"
)

var (
	// ErrPreconditions is returned by Start before any settings were received.
	ErrPreconditions = errors.New("grow: settings not received")
	// ErrPersist wraps a failure to persist lifecycle state. The in-memory
	// transition has still happened.
	ErrPersist = errors.New("grow: persist state")
)

// Store namespace and keys.
const (
	Namespace           = "grow"
	KeySettingsReceived = "settings_received"
	KeyGrowActive       = "grow_active"
)

// State is the lifecycle state. GrowActive implies SettingsReceived.
type State struct {
	SettingsReceived bool
	GrowActive       bool
}

// Tasks is the group of tasks the manager suspends and resumes.
type Tasks interface {
	SuspendAll(drain time.Duration)
	ResumeAll()
}

// Config holds the manager's collaborators.
type Config struct {
	Store    store.Store
	Tasks    Tasks
	Actuator actuator.Actuator
	// Probes are the chemical probes hibernated while the cycle is stopped.
	Probes []sensor.Hibernator
	// Drain bounds how long Stop waits for each task stage to park.
	Drain time.Duration
	// Settle is the pause between suspending the tasks and hibernating probes,
	// letting in-flight probe transactions finish.
	Settle time.Duration
	// OnChange is called after every transition. May be nil.
	OnChange func(State)
}

// Manager serialises lifecycle operations.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	state State
	sleep func(time.Duration)
}

// New creates a manager. Call Boot before use.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, sleep: time.Sleep}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Boot restores the persisted flags and brings the system to the matching
// state: stopped when no settings were ever received, otherwise started or
// stopped as it was before power loss.
func (m *Manager) Boot() error {
	m.mu.Lock()
	var st State
	if err := m.load(&st); err != nil {
		log.Printf("grow: load state: %v (assuming defaults)", err)
	}
	// Repair an impossible stored combination.
	if !st.SettingsReceived {
		st.GrowActive = false
	}
	m.state = st
	m.mu.Unlock()

	log.Printf("grow: boot settings_received=%v grow_active=%v", st.SettingsReceived, st.GrowActive)
	if st.GrowActive {
		return m.Start()
	}
	return m.Stop()
}

func (m *Manager) load(st *State) error {
	if err := m.cfg.Store.Get(Namespace, KeySettingsReceived, &st.SettingsReceived); err != nil && !store.IsNotFound(err) {
		return err
	}
	if err := m.cfg.Store.Get(Namespace, KeyGrowActive, &st.GrowActive); err != nil && !store.IsNotFound(err) {
		return err
	}
	return nil
}

func (m *Manager) persist() error {
	if err := m.cfg.Store.Set(Namespace, KeySettingsReceived, m.state.SettingsReceived); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := m.cfg.Store.Set(Namespace, KeyGrowActive, m.state.GrowActive); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := m.cfg.Store.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Start begins (or resumes) the grow cycle. It fails with ErrPreconditions
// and changes nothing if no settings have been received.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.SettingsReceived {
		return ErrPreconditions
	}
	m.state.GrowActive = true
	perr := m.persist()
	if perr != nil {
		log.Printf("grow: start: %v", perr)
	}

	for _, p := range m.cfg.Probes {
		if !p.Awake() {
			if err := p.Wake(); err != nil {
				log.Printf("grow: wake probe: %v", err)
			}
		}
	}
	m.cfg.Tasks.ResumeAll()
	log.Printf("grow: cycle started")
	m.changed()
	return perr
}

// Stop halts the grow cycle: every task is suspended, every actuator is
// switched off and the chemical probes are hibernated.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.GrowActive = false
	perr := m.persist()
	if perr != nil {
		log.Printf("grow: stop: %v", perr)
	}

	m.cfg.Tasks.SuspendAll(m.cfg.Drain)
	if m.cfg.Actuator != nil {
		if err := m.cfg.Actuator.Off(); err != nil {
			log.Printf("grow: actuators off: %v", err)
		}
	}
	if m.cfg.Settle > 0 {
		m.sleep(m.cfg.Settle)
	}
	for _, p := range m.cfg.Probes {
		if p.Awake() {
			if err := p.Hibernate(); err != nil {
				log.Printf("grow: hibernate probe: %v", err)
			}
		}
	}
	log.Printf("grow: cycle stopped")
	m.changed()
	return perr
}

// SettingsReceived latches that valid settings have arrived. It never
// starts the cycle by itself.
func (m *Manager) SettingsReceived() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.SettingsReceived {
		return nil
	}
	m.state.SettingsReceived = true
	perr := m.persist()
	if perr != nil {
		log.Printf("grow: settings received: %v", perr)
	}
	m.changed()
	return perr
}

func (m *Manager) changed() {
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(m.state)
	}
}
