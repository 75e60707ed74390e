package builtin

import (
	"context"
	"fmt"
	"math"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/processor"
)

// Filter forwards frames whose numeric kind lies in [min, max] and ends the
// chain for the rest.
type Filter struct {
	processor.Base
	out *processor.Signal

	kind     string
	min, max float64
}

func NewFilter(name string) *Filter {
	f := &Filter{
		Base: processor.NewBase(TypeFilter, name),
		kind: "count",
		min:  math.Inf(-1),
		max:  math.Inf(1),
	}
	f.out = f.NewSignal("out")
	f.NewSlot("in", f.filter, "out")
	return f
}

func (f *Filter) Configure(node *config.Node) error {
	var err error
	if f.kind, err = node.StringOr("kind", f.kind); err != nil {
		return err
	}
	if f.min, err = node.FloatOr("min", f.min); err != nil {
		return err
	}
	if f.max, err = node.FloatOr("max", f.max); err != nil {
		return err
	}
	if f.min > f.max {
		return fmt.Errorf("%s: min %v exceeds max %v", f.Name(), f.min, f.max)
	}
	return nil
}

func (f *Filter) filter(ctx context.Context, fr *frame.Frame) error {
	v, err := fr.Get(f.kind)
	if err != nil {
		return err
	}
	n, err := numeric(v)
	if err != nil {
		return fmt.Errorf("kind %q: %w", f.kind, err)
	}
	if n < f.min || n > f.max {
		return processor.ErrQuitChain
	}
	return f.out.Emit(ctx, fr)
}
