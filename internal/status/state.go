package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/gravvy/internal/bus"
)

// State is the lifecycle state of the entity store.
type State string

const (
	Closed  State = "CLOSED"
	Opening State = "OPENING"
	Open    State = "OPEN"
	Closing State = "CLOSING"
	Failed  State = "FAILED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Closed:  {Opening},
	Opening: {Open, Failed},
	Open:    {Closing},
	Closing: {Closed, Failed},
	Failed:  {Opening, Closed},
}

// Machine tracks and enforces store lifecycle transitions. Entering Open
// publishes "store available"; leaving an open store publishes "store
// removed".
type Machine struct {
	mu      sync.RWMutex
	current State
	store   bus.StoreInfo
	wasOpen bool
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Closed state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Closed,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Store returns the store the machine is tracking.
func (m *Machine) Store() bus.StoreInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// Begin moves to Opening for the given store.
func (m *Machine) Begin(info bus.StoreInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(Opening); err != nil {
		return err
	}
	m.store = info
	return nil
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(to)
}

func (m *Machine) transition(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus == nil {
		return nil
	}

	m.bus.Emit(bus.StoreStatusChanged, StatusChange{From: from, To: to, Store: m.store})
	switch {
	case to == Open:
		m.wasOpen = true
		m.bus.Emit(bus.StoreAvailable, m.store)
	case (to == Closed || to == Failed) && from == Closing && m.wasOpen:
		m.wasOpen = false
		m.bus.Emit(bus.StoreRemoved, m.store)
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From  State
	To    State
	Store bus.StoreInfo
}
