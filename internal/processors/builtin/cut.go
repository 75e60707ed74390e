package builtin

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/processor"
)

// CutPrefix namespaces cut results within a frame. A result is stored as a
// bool under CutPrefix+name and is true when the frame failed that cut.
const CutPrefix = "cut."

// CutKind returns the frame kind holding the result of the named cut.
func CutKind(name string) string { return CutPrefix + name }

// Cut records whether a frame's numeric kind lies outside [min, max] and
// always forwards the frame on "out". Unlike Filter it never ends the chain;
// a CutFilter downstream decides what to do with the result.
type Cut struct {
	processor.Base
	out *processor.Signal

	cut      string
	kind     string
	min, max float64
}

func NewCut(name string) *Cut {
	c := &Cut{
		Base: processor.NewBase(TypeCut, name),
		cut:  name,
		kind: "count",
		min:  math.Inf(-1),
		max:  math.Inf(1),
	}
	c.out = c.NewSignal("out")
	c.NewSlot("in", c.apply, "out")
	return c
}

func (c *Cut) Configure(node *config.Node) error {
	var err error
	if c.cut, err = node.StringOr("cut", c.cut); err != nil {
		return err
	}
	if c.cut == "" {
		return fmt.Errorf("%s: cut name is empty", c.Name())
	}
	if c.kind, err = node.StringOr("kind", c.kind); err != nil {
		return err
	}
	if c.min, err = node.FloatOr("min", c.min); err != nil {
		return err
	}
	if c.max, err = node.FloatOr("max", c.max); err != nil {
		return err
	}
	if c.min > c.max {
		return fmt.Errorf("%s: min %v exceeds max %v", c.Name(), c.min, c.max)
	}
	return nil
}

func (c *Cut) apply(ctx context.Context, fr *frame.Frame) error {
	v, err := fr.Get(c.kind)
	if err != nil {
		return err
	}
	n, err := numeric(v)
	if err != nil {
		return fmt.Errorf("kind %q: %w", c.kind, err)
	}
	fr.Set(CutKind(c.cut), frame.Bool(n < c.min || n > c.max))
	return c.out.Emit(ctx, fr)
}

// CutFilter routes frames by the cuts already applied to them. A frame fails
// when any cut in the mask is set; with no mask every cut counts. Cuts in the
// mask that were never applied do not fail the frame. Every frame goes out on
// "all" first, then on "pass" or "fail".
type CutFilter struct {
	processor.Base
	all, pass, fail *processor.Signal

	mask []string
}

func NewCutFilter(name string) *CutFilter {
	c := &CutFilter{Base: processor.NewBase(TypeCutFilter, name)}
	c.all = c.NewSignal("all")
	c.pass = c.NewSignal("pass")
	c.fail = c.NewSignal("fail")
	c.NewSlot("in", c.filter, "all", "pass", "fail")
	return c
}

func (c *CutFilter) Configure(node *config.Node) error {
	if !node.Has("cuts") {
		return nil
	}
	items, err := node.Array("cuts")
	if err != nil {
		return err
	}
	c.mask = make([]string, 0, len(items))
	for _, item := range items {
		name, err := item.String("")
		if err != nil {
			return err
		}
		c.mask = append(c.mask, name)
	}
	return nil
}

// Failed reports whether fr fails the mask.
func (c *CutFilter) Failed(fr *frame.Frame) (bool, error) {
	kinds := fr.Kinds()
	if len(c.mask) > 0 {
		kinds = make([]string, len(c.mask))
		for i, name := range c.mask {
			kinds[i] = CutKind(name)
		}
	}
	for _, kind := range kinds {
		if !strings.HasPrefix(kind, CutPrefix) || !fr.Has(kind) {
			continue
		}
		v, _ := fr.Get(kind)
		cut, err := v.AsBool()
		if err != nil {
			return false, fmt.Errorf("kind %q: %w", kind, err)
		}
		if cut {
			return true, nil
		}
	}
	return false, nil
}

func (c *CutFilter) filter(ctx context.Context, fr *frame.Frame) error {
	failed, err := c.Failed(fr)
	if err != nil {
		return err
	}
	if err := c.all.Emit(ctx, fr); err != nil {
		return err
	}
	if failed {
		return c.fail.Emit(ctx, fr)
	}
	return c.pass.Emit(ctx, fr)
}
