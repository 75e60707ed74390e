package toolbox

import (
	"fmt"
	"strings"

	"github.com/mattjoyce/tessera/internal/processor"
)

// ParseAddress splits "processor:endpoint" at the first colon.
func ParseAddress(addr string) (proc, endpoint string, err error) {
	proc, endpoint, ok := strings.Cut(addr, ":")
	if !ok || proc == "" || endpoint == "" {
		return "", "", fmt.Errorf("%w: %q (expected processor:endpoint)", ErrInvalidAddress, addr)
	}
	return proc, endpoint, nil
}

func (t *Toolbox) lookupLocked(name string) (processor.Processor, error) {
	p, ok := t.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}
	return p, nil
}

func (t *Toolbox) signalLocked(addr string) (*processor.Signal, error) {
	procName, sigName, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	p, err := t.lookupLocked(procName)
	if err != nil {
		return nil, err
	}
	return p.Endpoints().Signal(sigName)
}

func (t *Toolbox) slotLocked(addr string) (*processor.Slot, error) {
	procName, slotName, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	p, err := t.lookupLocked(procName)
	if err != nil {
		return nil, err
	}
	return p.Endpoints().Slot(slotName)
}

// MakeConnection wires a signal to a slot without a group.
func (t *Toolbox) MakeConnection(signalAddr, slotAddr string) error {
	return t.MakeOrderedConnection(signalAddr, slotAddr, processor.Ungrouped)
}

// MakeOrderedConnection wires a signal to a slot in the given group.
// Lower groups are dispatched first.
func (t *Toolbox) MakeOrderedConnection(signalAddr, slotAddr string, group int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}

	sig, err := t.signalLocked(signalAddr)
	if err != nil {
		return fmt.Errorf("connect %s -> %s: %w", signalAddr, slotAddr, err)
	}
	slot, err := t.slotLocked(slotAddr)
	if err != nil {
		return fmt.Errorf("connect %s -> %s: %w", signalAddr, slotAddr, err)
	}
	if err := sig.Connect(slot, group); err != nil {
		return err
	}
	t.links = append(t.links, link{signal: sig, slot: slot, group: group})
	t.logger.Debug("signal connected", "signal", signalAddr, "slot", slotAddr)
	return nil
}

// Disconnect removes the connection between a signal and a slot.
func (t *Toolbox) Disconnect(signalAddr, slotAddr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}

	sig, err := t.signalLocked(signalAddr)
	if err != nil {
		return err
	}
	slot, err := t.slotLocked(slotAddr)
	if err != nil {
		return err
	}
	if err := sig.Disconnect(slot); err != nil {
		return err
	}
	for i, l := range t.links {
		if l.signal == sig && l.slot == slot {
			t.links = append(t.links[:i], t.links[i+1:]...)
			break
		}
	}
	return nil
}

// Connections returns the wiring in the order it was made.
func (t *Toolbox) Connections() []Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Connection, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l.connection())
	}
	return out
}

// SetBreakpoint parks chains each time the signal at addr is emitted.
func (t *Toolbox) SetBreakpoint(signalAddr string) error {
	return t.setBreakpoint(signalAddr, true)
}

func (t *Toolbox) RemoveBreakpoint(signalAddr string) error {
	return t.setBreakpoint(signalAddr, false)
}

func (t *Toolbox) setBreakpoint(signalAddr string, on bool) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	sig, err := t.signalLocked(signalAddr)
	if err != nil {
		return err
	}
	sig.SetBreakpoint(on)
	return nil
}

// Breakpoints lists signals with a breakpoint set, sorted by address.
func (t *Toolbox) Breakpoints() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for _, name := range sortedNames(t.procs) {
		for _, sig := range t.procs[name].Endpoints().Signals() {
			if sig.Breakpoint() {
				out = append(out, sig.Address())
			}
		}
	}
	return out
}
