package builtin

import (
	"context"
	"fmt"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/processor"
)

// Tagger sets a fixed value on every frame it receives and passes it on.
type Tagger struct {
	processor.Base
	out *processor.Signal

	kind  string
	value frame.Value
}

func NewTagger(name string) *Tagger {
	t := &Tagger{
		Base:  processor.NewBase(TypeTagger, name),
		kind:  "tag",
		value: frame.String(name),
	}
	t.out = t.NewSignal("out")
	t.NewSlot("in", t.tag, "out")
	return t
}

func (t *Tagger) Configure(node *config.Node) error {
	var err error
	if t.kind, err = node.StringOr("kind", t.kind); err != nil {
		return err
	}
	if !node.Has("value") {
		return nil
	}
	v, err := node.Sub("value").Value()
	if err != nil {
		return fmt.Errorf("%s: value: %w", t.Name(), err)
	}
	if t.value, err = valueOf(v); err != nil {
		return fmt.Errorf("%s: value: %w", t.Name(), err)
	}
	return nil
}

func (t *Tagger) tag(ctx context.Context, f *frame.Frame) error {
	f.Set(t.kind, t.value)
	return t.out.Emit(ctx, f)
}
