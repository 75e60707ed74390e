package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/processor"
)

// CounterSource emits count frames on "value", each carrying the counter
// under kind. It checkpoints between frames so a run can be cancelled.
type CounterSource struct {
	processor.Base
	value *processor.Signal

	count    int64
	start    int64
	step     int64
	kind     string
	interval time.Duration
}

func NewCounterSource(name string) *CounterSource {
	c := &CounterSource{
		Base:  processor.NewBase(TypeCounterSource, name),
		count: 1,
		step:  1,
		kind:  "count",
	}
	c.value = c.NewPrimarySignal("value")
	return c
}

func (c *CounterSource) Configure(node *config.Node) error {
	var err error
	if c.count, err = node.IntOr("count", c.count); err != nil {
		return err
	}
	if c.count < 0 {
		return fmt.Errorf("%s: count must not be negative", c.Name())
	}
	if c.start, err = node.IntOr("start", c.start); err != nil {
		return err
	}
	if c.step, err = node.IntOr("step", c.step); err != nil {
		return err
	}
	if c.kind, err = node.StringOr("kind", c.kind); err != nil {
		return err
	}
	if c.interval, err = node.DurationOr("interval", c.interval); err != nil {
		return err
	}
	return nil
}

func (c *CounterSource) Execute(ctx context.Context) error {
	n := c.start
	for i := int64(0); i < c.count; i++ {
		if i > 0 && c.interval > 0 {
			if err := processor.Sleep(ctx, c.interval); err != nil {
				return err
			}
		} else if err := processor.Checkpoint(ctx); err != nil {
			return err
		}

		f := frame.Acquire()
		f.Set(c.kind, frame.Int(n))
		err := c.value.Emit(ctx, f)
		frame.Release(f)
		if err != nil {
			return err
		}
		n += c.step
	}
	return nil
}
