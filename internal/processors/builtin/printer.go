package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/frame"
	"github.com/mattjoyce/tessera/internal/processor"
)

// Printer writes each frame it receives as one line of text or JSON.
type Printer struct {
	processor.Base

	mu     sync.Mutex
	w      io.Writer
	format string
	prefix string
}

func NewPrinter(name string, w io.Writer) *Printer {
	p := &Printer{
		Base:   processor.NewBase(TypePrinter, name),
		w:      w,
		format: "text",
	}
	p.NewSlot("in", p.print)
	return p
}

func (p *Printer) Configure(node *config.Node) error {
	var err error
	if p.format, err = node.StringOr("format", p.format); err != nil {
		return err
	}
	if p.format != "text" && p.format != "json" {
		return fmt.Errorf("%s: format must be text or json, got %q", p.Name(), p.format)
	}
	p.prefix, err = node.StringOr("prefix", p.prefix)
	return err
}

func (p *Printer) print(_ context.Context, f *frame.Frame) error {
	var line string
	if p.format == "json" {
		fields := make(map[string]any, f.Len())
		for kind, v := range f.Snapshot() {
			fields[kind] = v.Interface()
		}
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		line = string(b)
	} else {
		parts := make([]string, 0, f.Len())
		for _, kind := range f.Kinds() {
			v, _ := f.Get(kind)
			parts = append(parts, kind+"="+v.String())
		}
		line = strings.Join(parts, " ")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, p.prefix+line)
	return err
}
