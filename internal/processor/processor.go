package processor

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/log"
)

// Processor is a unit of work wired into chains through its endpoints.
type Processor interface {
	Name() string
	Type() string
	Endpoints() *Endpoints
	// Configure receives the subtree keyed by the instance name.
	Configure(cfg *config.Node) error
}

// Executor is implemented by entry processors that drive their own loop
// instead of emitting a single frame on their primary signal.
type Executor interface {
	Execute(ctx context.Context) error
}

// IsEntry reports whether p can be placed on a run queue.
func IsEntry(p Processor) bool {
	if _, ok := p.(Executor); ok {
		return true
	}
	_, ok := p.Endpoints().Primary()
	return ok
}

// Base carries the identity and endpoints shared by every processor.
// Embed it and add Configure (and Execute for driving processors).
type Base struct {
	typeName  string
	endpoints *Endpoints
}

// NewBase returns a Base for an instance of typeName.
func NewBase(typeName, name string) Base {
	return Base{typeName: typeName, endpoints: NewEndpoints(name)}
}

func (b Base) Name() string { return b.endpoints.Owner() }

func (b Base) Type() string { return b.typeName }

func (b Base) Endpoints() *Endpoints { return b.endpoints }

// NewSignal declares a signal on the processor.
func (b Base) NewSignal(name string) *Signal {
	return b.endpoints.AddSignal(name)
}

// NewSlot declares a slot on the processor.
func (b Base) NewSlot(name string, fn SlotFunc, signalsUsed ...string) *Slot {
	return b.endpoints.AddSlot(name, fn, signalsUsed...)
}

// NewPrimarySignal declares a signal and marks it as the run-queue entry point.
func (b Base) NewPrimarySignal(name string) *Signal {
	s := b.endpoints.AddSignal(name)
	_ = b.endpoints.SetPrimary(name)
	return s
}

// Logger returns a logger tagged with the instance name.
func (b Base) Logger() *slog.Logger {
	return log.WithProcessor(b.Name()).With("type", b.typeName)
}
