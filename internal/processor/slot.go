package processor

import (
	"context"
	"sync"

	"github.com/mattjoyce/tessera/internal/frame"
)

// SlotFunc is the callable bound to a slot.
type SlotFunc func(ctx context.Context, f *frame.Frame) error

// Slot is a named entry point on a processor.
type Slot struct {
	name string

	mu          sync.RWMutex
	owner       string
	fn          SlotFunc
	signalsUsed []string
}

// NewSlot returns a slot owned by the named processor instance. signalsUsed
// lists the owner's signals the callable may emit.
func NewSlot(owner, name string, fn SlotFunc, signalsUsed ...string) *Slot {
	return &Slot{
		name:        name,
		owner:       owner,
		fn:          fn,
		signalsUsed: append([]string(nil), signalsUsed...),
	}
}

func (s *Slot) Name() string { return s.name }

func (s *Slot) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Address returns "owner:name".
func (s *Slot) Address() string {
	return Address(s.Owner(), s.name)
}

func (s *Slot) SignalsUsed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.signalsUsed...)
}

// Rebind swaps the callable. The new function is used from the next Invoke.
func (s *Slot) Rebind(fn SlotFunc) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

// Invoke runs the bound callable on f.
func (s *Slot) Invoke(ctx context.Context, f *frame.Frame) error {
	s.mu.RLock()
	fn, owner := s.fn, s.owner
	s.mu.RUnlock()

	if fn == nil {
		return &DispatchError{Processor: owner, Endpoint: s.name, Err: ErrNoCallable}
	}
	if err := fn(ctx, f); err != nil {
		return wrapDispatch(owner, s.name, err)
	}
	return nil
}

func (s *Slot) setOwner(owner string) {
	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()
}
