package toolbox

import (
	"fmt"

	"github.com/mattjoyce/tessera/internal/processor"
)

func (t *Toolbox) checkEntriesLocked(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("run queue group is empty")
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		p, err := t.lookupLocked(name)
		if err != nil {
			return err
		}
		if !processor.IsEntry(p) {
			return fmt.Errorf("%w: %q has no primary signal", ErrNotEntryProcessor, name)
		}
		if seen[name] {
			return fmt.Errorf("processor %q listed twice in one group", name)
		}
		seen[name] = true
	}
	return nil
}

// PushBackToRunQueue appends name as a single entry.
func (t *Toolbox) PushBackToRunQueue(name string) error {
	return t.PushBackGroupToRunQueue(name)
}

// PushBackGroupToRunQueue appends a group of entries. The chains of one group
// run concurrently unless the toolbox is single-threaded.
func (t *Toolbox) PushBackGroupToRunQueue(names ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	if err := t.checkEntriesLocked(names); err != nil {
		return err
	}
	t.queue = append(t.queue, append([]string(nil), names...))
	return nil
}

// PushFrontToRunQueue prepends name as a single entry.
func (t *Toolbox) PushFrontToRunQueue(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	if err := t.checkEntriesLocked([]string{name}); err != nil {
		return err
	}
	t.queue = append([][]string{{name}}, t.queue...)
	return nil
}

// PopBackOfRunQueue removes the last group. It is a no-op on an empty queue.
func (t *Toolbox) PopBackOfRunQueue() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	if len(t.queue) > 0 {
		t.queue = t.queue[:len(t.queue)-1]
	}
	return nil
}

func (t *Toolbox) ClearRunQueue() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	t.queue = nil
	return nil
}

// RunQueue returns a copy of the queue.
func (t *Toolbox) RunQueue() [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][]string, len(t.queue))
	for i, group := range t.queue {
		out[i] = append([]string(nil), group...)
	}
	return out
}

// SetRunSingleThreaded forces queue groups to run one chain at a time.
func (t *Toolbox) SetRunSingleThreaded(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	t.singleThreaded = on
	return nil
}

func (t *Toolbox) RunSingleThreaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.singleThreaded
}
