package toolbox

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mattjoyce/tessera/internal/log"
	"github.com/mattjoyce/tessera/internal/processor"
)

var (
	ErrDuplicateInstanceName = errors.New("duplicate processor instance name")
	ErrUnknownProcessor      = errors.New("unknown processor")
	ErrInvalidAddress        = errors.New("invalid endpoint address")
	ErrNotEntryProcessor     = errors.New("processor cannot start a chain")
	ErrRunInProgress         = errors.New("toolbox is locked by a running controller")
)

// Connection is a wired signal/slot pair. Order is nil for ungrouped connections.
type Connection struct {
	Signal string `json:"signal"`
	Slot   string `json:"slot"`
	Order  *int   `json:"order,omitempty"`
}

type link struct {
	signal *processor.Signal
	slot   *processor.Slot
	group  int
}

func (l link) connection() Connection {
	c := Connection{Signal: l.signal.Address(), Slot: l.slot.Address()}
	if l.group != processor.Ungrouped {
		g := l.group
		c.Order = &g
	}
	return c
}

// Toolbox owns processor instances, the connections between them and the
// run queue. Mutations are refused while a controller is running.
type Toolbox struct {
	factory processor.Factory
	logger  *slog.Logger

	mu             sync.RWMutex
	running        bool
	procs          map[string]processor.Processor
	names          []string
	links          []link
	queue          [][]string
	singleThreaded bool
}

// New creates an empty toolbox that builds processors with factory.
func New(factory processor.Factory) *Toolbox {
	return &Toolbox{
		factory:        factory,
		logger:         log.WithComponent("toolbox"),
		procs:          make(map[string]processor.Processor),
		singleThreaded: true,
	}
}

// BeginRun locks the toolbox against mutation. It fails if already locked.
// It waits for any mutation in progress, so once it returns no mutator can
// touch the wiring until EndRun.
func (t *Toolbox) BeginRun() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrRunInProgress
	}
	t.running = true
	return nil
}

// EndRun releases the lock taken by BeginRun.
func (t *Toolbox) EndRun() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

// checkIdleLocked must be called with t.mu held, for reading or writing.
func (t *Toolbox) checkIdleLocked() error {
	if t.running {
		return ErrRunInProgress
	}
	return nil
}

func (t *Toolbox) checkIdle() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.checkIdleLocked()
}

// CouldBuild reports whether the factory can produce typeName.
func (t *Toolbox) CouldBuild(typeName string) bool {
	return t.factory != nil && t.factory.CanProduce(typeName)
}

// AddProcessor builds a processor of typeName and registers it as name.
func (t *Toolbox) AddProcessor(typeName, name string) error {
	if err := t.checkIdle(); err != nil {
		return err
	}
	if t.HasProcessor(name) {
		return fmt.Errorf("%w: %q", ErrDuplicateInstanceName, name)
	}
	if !t.CouldBuild(typeName) {
		return fmt.Errorf("add %q: %w: %q", name, processor.ErrUnknownType, typeName)
	}
	p, err := t.factory.Produce(typeName, name)
	if err != nil {
		return fmt.Errorf("add %q: %w", name, err)
	}
	return t.AddProcessorInstance(name, p)
}

// AddProcessorInstance registers an already built processor as name.
func (t *Toolbox) AddProcessorInstance(name string, p processor.Processor) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("%w: instance name %q", ErrInvalidAddress, name)
	}
	if p == nil {
		return fmt.Errorf("add %q: nil processor", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	if _, exists := t.procs[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateInstanceName, name)
	}
	p.Endpoints().SetOwner(name)
	t.procs[name] = p
	t.names = append(t.names, name)
	t.logger.Debug("processor added", "processor", name, "type", p.Type())
	return nil
}

func (t *Toolbox) HasProcessor(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.procs[name]
	return ok
}

// Processor returns the instance registered as name.
func (t *Toolbox) Processor(name string) (processor.Processor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[name]
	return p, ok
}

// Processors returns instance names in registration order.
func (t *Toolbox) Processors() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.names...)
}

// ReleaseProcessor unregisters name and hands the instance back to the caller.
// Every connection touching it and every run-queue reference is removed.
func (t *Toolbox) ReleaseProcessor(name string) (processor.Processor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return nil, err
	}
	p, ok := t.procs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}

	kept := t.links[:0]
	for _, l := range t.links {
		if l.signal.Owner() == name || l.slot.Owner() == name {
			_ = l.signal.Disconnect(l.slot)
			continue
		}
		kept = append(kept, l)
	}
	t.links = kept

	t.queue = dropFromQueue(t.queue, name)
	delete(t.procs, name)
	for i, n := range t.names {
		if n == name {
			t.names = append(t.names[:i], t.names[i+1:]...)
			break
		}
	}
	t.logger.Debug("processor released", "processor", name)
	return p, nil
}

// RemoveProcessor unregisters name and discards the instance.
func (t *Toolbox) RemoveProcessor(name string) error {
	_, err := t.ReleaseProcessor(name)
	return err
}

// ClearProcessors removes every processor, connection and queue entry.
func (t *Toolbox) ClearProcessors() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkIdleLocked(); err != nil {
		return err
	}
	for _, l := range t.links {
		_ = l.signal.Disconnect(l.slot)
	}
	t.links = nil
	t.queue = nil
	t.procs = make(map[string]processor.Processor)
	t.names = nil
	return nil
}

func dropFromQueue(queue [][]string, name string) [][]string {
	out := queue[:0]
	for _, group := range queue {
		kept := make([]string, 0, len(group))
		for _, n := range group {
			if n != name {
				kept = append(kept, n)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// sortedNames is used where output must not depend on registration order.
func sortedNames(m map[string]processor.Processor) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
