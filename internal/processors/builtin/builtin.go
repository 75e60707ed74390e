// Package builtin provides the processor types that ship with tessera.
package builtin

import (
	"fmt"
	"io"
	"os"

	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/processor"
)

// Type names as used in toolbox configuration.
const (
	TypeCounterSource = "counter-source"
	TypeTagger        = "tagger"
	TypeFilter        = "filter"
	TypeCut           = "cut"
	TypeCutFilter     = "cut-filter"
	TypePrinter       = "printer"
)

// Register adds every builtin type to reg. Printers write to w, or stdout
// when w is nil.
func Register(reg *processor.Registry, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	ctors := map[string]processor.Constructor{
		TypeCounterSource: func(name string) processor.Processor { return NewCounterSource(name) },
		TypeTagger:        func(name string) processor.Processor { return NewTagger(name) },
		TypeFilter:        func(name string) processor.Processor { return NewFilter(name) },
		TypeCut:           func(name string) processor.Processor { return NewCut(name) },
		TypeCutFilter:     func(name string) processor.Processor { return NewCutFilter(name) },
		TypePrinter:       func(name string) processor.Processor { return NewPrinter(name, w) },
	}
	for typeName, ctor := range ctors {
		if err := reg.Register(typeName, ctor); err != nil {
			return fmt.Errorf("register %s: %w", typeName, err)
		}
	}
	return nil
}

// valueOf converts a decoded YAML scalar to a frame value.
func valueOf(v any) (frame.Value, error) {
	switch x := v.(type) {
	case bool:
		return frame.Bool(x), nil
	case int:
		return frame.Int(int64(x)), nil
	case int64:
		return frame.Int(x), nil
	case uint64:
		return frame.Uint(x), nil
	case float64:
		return frame.Float(x), nil
	case string:
		return frame.String(x), nil
	default:
		return frame.Value{}, fmt.Errorf("unsupported value type %T", v)
	}
}

// numeric reads an int, uint or float value as float64.
func numeric(v frame.Value) (float64, error) {
	switch v.Kind() {
	case frame.KindInt:
		i, _ := v.AsInt()
		return float64(i), nil
	case frame.KindUint:
		u, _ := v.AsUint()
		return float64(u), nil
	case frame.KindFloat:
		return v.AsFloat()
	default:
		return 0, fmt.Errorf("%w: %s is not numeric", frame.ErrTypeMismatch, v.Kind())
	}
}
