package processor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/tessera/internal/frame"
)

// Ungrouped marks a connection made without a group. Ungrouped slots run
// after every grouped slot, in the order they were connected.
const Ungrouped = math.MinInt

// Address formats a "processor:endpoint" address.
func Address(processor, endpoint string) string {
	return processor + ":" + endpoint
}

type connection struct {
	slot  *Slot
	group int
	seq   uint64
}

func (c connection) before(o connection) bool {
	cg, og := c.group != Ungrouped, o.group != Ungrouped
	switch {
	case cg && !og:
		return true
	case !cg && og:
		return false
	case cg && c.group != o.group:
		return c.group < o.group
	default:
		return c.seq < o.seq
	}
}

// ConnectionInfo describes one outgoing connection of a signal.
type ConnectionInfo struct {
	Slot  string `json:"slot"`
	Group int    `json:"group"`
}

// Signal is a named emission point. Emitting invokes every connected slot
// synchronously in dispatch order and stops at the first error.
type Signal struct {
	name       string
	breakpoint atomic.Bool

	mu    sync.RWMutex
	owner string
	conns []connection
	seq   uint64
}

// NewSignal returns a signal owned by the named processor instance.
func NewSignal(owner, name string) *Signal {
	return &Signal{name: name, owner: owner}
}

func (s *Signal) Name() string { return s.name }

func (s *Signal) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Address returns "owner:name".
func (s *Signal) Address() string {
	return Address(s.Owner(), s.name)
}

// Connect wires slot to this signal. Lower groups run first; Ungrouped
// connections run last. Within a group, connection order is kept.
func (s *Signal) Connect(slot *Slot, group int) error {
	if slot == nil {
		return fmt.Errorf("connect %s: nil slot", s.Address())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conns {
		if c.slot == slot {
			return fmt.Errorf("%w: %s -> %s", ErrAlreadyConnected, Address(s.owner, s.name), slot.Address())
		}
	}

	s.seq++
	c := connection{slot: slot, group: group, seq: s.seq}
	idx := sort.Search(len(s.conns), func(i int) bool { return c.before(s.conns[i]) })
	s.conns = append(s.conns, connection{})
	copy(s.conns[idx+1:], s.conns[idx:])
	s.conns[idx] = c
	return nil
}

// Disconnect removes the connection to slot.
func (s *Signal) Disconnect(slot *Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.conns {
		if c.slot == slot {
			s.conns = append(s.conns[:i:i], s.conns[i+1:]...)
			return nil
		}
	}
	target := "<nil>"
	if slot != nil {
		target = slot.Address()
	}
	return fmt.Errorf("%w: %s -> %s", ErrNotConnected, Address(s.owner, s.name), target)
}

// DisconnectAll removes every connection.
func (s *Signal) DisconnectAll() {
	s.mu.Lock()
	s.conns = nil
	s.mu.Unlock()
}

// IsConnected reports whether slot is wired to this signal.
func (s *Signal) IsConnected(slot *Slot) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns {
		if c.slot == slot {
			return true
		}
	}
	return false
}

func (s *Signal) NumConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Connections lists connected slots in dispatch order.
func (s *Signal) Connections() []ConnectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConnectionInfo, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, ConnectionInfo{Slot: c.slot.Address(), Group: c.group})
	}
	return out
}

// SetBreakpoint makes every emission park the chain before dispatching.
func (s *Signal) SetBreakpoint(on bool) { s.breakpoint.Store(on) }

func (s *Signal) Breakpoint() bool { return s.breakpoint.Load() }

// Emit delivers f to the connected slots. The slot list is captured when
// the emission starts: a slot disconnected by an earlier slot in the same
// emission is still invoked, and a slot connected mid-emission is not.
func (s *Signal) Emit(ctx context.Context, f *frame.Frame) error {
	if s.breakpoint.Load() {
		if err := ControlFrom(ctx).Break(); err != nil {
			return err
		}
	}

	s.mu.RLock()
	slots := make([]*Slot, len(s.conns))
	for i, c := range s.conns {
		slots[i] = c.slot
	}
	s.mu.RUnlock()

	for _, slot := range slots {
		if err := slot.Invoke(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Signal) setOwner(owner string) {
	s.mu.Lock()
	s.owner = owner
	s.mu.Unlock()
}
