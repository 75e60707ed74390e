package processor

import (
	"fmt"
	"sync"
)

// Endpoints holds the signals and slots a processor exposes, keyed by name.
// Endpoints are declared while the processor is built; declaring the same
// name twice is a programming error and panics.
type Endpoints struct {
	mu          sync.RWMutex
	owner       string
	signals     map[string]*Signal
	signalOrder []string
	slots       map[string]*Slot
	slotOrder   []string
	primary     string
}

// NewEndpoints returns an empty endpoint set for the named instance.
func NewEndpoints(owner string) *Endpoints {
	return &Endpoints{
		owner:   owner,
		signals: make(map[string]*Signal),
		slots:   make(map[string]*Slot),
	}
}

func (e *Endpoints) Owner() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.owner
}

// SetOwner renames the owning instance on every endpoint. The toolbox calls
// it when a processor is registered under a name.
func (e *Endpoints) SetOwner(owner string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.owner = owner
	for _, s := range e.signals {
		s.setOwner(owner)
	}
	for _, s := range e.slots {
		s.setOwner(owner)
	}
}

// AddSignal declares a signal.
func (e *Endpoints) AddSignal(name string) *Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.signals[name]; ok {
		panic(fmt.Sprintf("processor %q: signal %q declared twice", e.owner, name))
	}
	s := NewSignal(e.owner, name)
	e.signals[name] = s
	e.signalOrder = append(e.signalOrder, name)
	return s
}

// AddSlot declares a slot bound to fn.
func (e *Endpoints) AddSlot(name string, fn SlotFunc, signalsUsed ...string) *Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.slots[name]; ok {
		panic(fmt.Sprintf("processor %q: slot %q declared twice", e.owner, name))
	}
	s := NewSlot(e.owner, name, fn, signalsUsed...)
	e.slots[name] = s
	e.slotOrder = append(e.slotOrder, name)
	return s
}

func (e *Endpoints) Signal(name string) (*Signal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.signals[name]
	if !ok {
		return nil, fmt.Errorf("%w: signal %q on %q", ErrUnknownEndpoint, name, e.owner)
	}
	return s, nil
}

func (e *Endpoints) Slot(name string) (*Slot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.slots[name]
	if !ok {
		return nil, fmt.Errorf("%w: slot %q on %q", ErrUnknownEndpoint, name, e.owner)
	}
	return s, nil
}

// SignalNames returns signal names in declaration order.
func (e *Endpoints) SignalNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.signalOrder...)
}

// SlotNames returns slot names in declaration order.
func (e *Endpoints) SlotNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.slotOrder...)
}

func (e *Endpoints) Signals() []*Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Signal, 0, len(e.signalOrder))
	for _, name := range e.signalOrder {
		out = append(out, e.signals[name])
	}
	return out
}

func (e *Endpoints) Slots() []*Slot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Slot, 0, len(e.slotOrder))
	for _, name := range e.slotOrder {
		out = append(out, e.slots[name])
	}
	return out
}

// SetPrimary marks the signal a run-queue entry emits to start its chain.
func (e *Endpoints) SetPrimary(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.signals[name]; !ok {
		return fmt.Errorf("%w: signal %q on %q", ErrUnknownEndpoint, name, e.owner)
	}
	e.primary = name
	return nil
}

// Primary returns the primary signal, if one was set.
func (e *Endpoints) Primary() (*Signal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.primary == "" {
		return nil, false
	}
	return e.signals[e.primary], true
}
