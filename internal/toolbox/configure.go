package toolbox

import (
	"fmt"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/processor"
)

// Configure builds the toolbox from a config tree:
//
//	run_single_threaded: true
//	processors:  [{type: counter-source, name: source}, ...]
//	connections: [{signal: "source:value", slot: "out:in", order: 1, breakpoint: false}, ...]
//	run_queue:   [source, [a, b]]
//
// Each processor entry is passed to the new instance's Configure. A nested
// list in run_queue is a group of chains that may run concurrently.
func (t *Toolbox) Configure(node *config.Node) error {
	if node == nil {
		t.logger.Warn("no toolbox configuration given")
		return nil
	}

	single, err := node.BoolOr("run_single_threaded", true)
	if err != nil {
		return err
	}
	if err := t.SetRunSingleThreaded(single); err != nil {
		return err
	}

	if node.Has("processors") {
		if err := t.configureProcessorEntries(node); err != nil {
			return err
		}
	} else {
		t.logger.Warn("no processors were specified")
	}

	if node.Has("connections") {
		if err := t.configureConnections(node); err != nil {
			return err
		}
	} else {
		t.logger.Warn("no connections were specified")
	}

	if node.Has("run_queue") {
		if err := t.configureRunQueue(node); err != nil {
			return err
		}
	}
	return nil
}

func (t *Toolbox) configureProcessorEntries(node *config.Node) error {
	entries, err := node.Array("processors")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsMap() {
			return fmt.Errorf("%s: processor entry must be a mapping", entry.Path())
		}
		typeName, err := entry.String("type")
		if err != nil {
			return fmt.Errorf("%s: processor type is required: %w", entry.Path(), err)
		}
		name, err := entry.StringOr("name", "")
		if err != nil {
			return err
		}
		if name == "" {
			t.logger.Info("no name given for processor; using type as name", "type", typeName)
			name = typeName
		}

		if t.HasProcessor(name) {
			return fmt.Errorf("%s: %w: %q", entry.Path(), ErrDuplicateInstanceName, name)
		}
		if !t.CouldBuild(typeName) {
			return fmt.Errorf("%s: %w: %q", entry.Path(), processor.ErrUnknownType, typeName)
		}
		p, err := t.factory.Produce(typeName, name)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Path(), err)
		}
		if err := p.Configure(entry); err != nil {
			return fmt.Errorf("configure processor %q: %w", name, err)
		}
		if err := t.AddProcessorInstance(name, p); err != nil {
			return err
		}
	}
	return nil
}

func (t *Toolbox) configureConnections(node *config.Node) error {
	entries, err := node.Array("connections")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		sig, sigErr := entry.String("signal")
		slot, slotErr := entry.String("slot")
		if sigErr != nil || slotErr != nil {
			return fmt.Errorf("%s: connection needs both signal and slot (signal=%q slot=%q)", entry.Path(), sig, slot)
		}

		group, err := entry.IntOr("order", int64(processor.Ungrouped))
		if err != nil {
			return err
		}
		if err := t.MakeOrderedConnection(sig, slot, int(group)); err != nil {
			return fmt.Errorf("%s: %w", entry.Path(), err)
		}

		brk, err := entry.BoolOr("breakpoint", false)
		if err != nil {
			return err
		}
		if brk {
			if err := t.SetBreakpoint(sig); err != nil {
				return fmt.Errorf("%s: %w", entry.Path(), err)
			}
		}
		t.logger.Info("signal connected to slot", "signal", sig, "slot", slot)
	}
	return nil
}

func (t *Toolbox) configureRunQueue(node *config.Node) error {
	entries, err := node.Array("run_queue")
	if err != nil {
		return err
	}
	for _, entry := range entries {
		switch {
		case entry.IsScalar():
			name, _ := entry.String("")
			if err := t.PushBackToRunQueue(name); err != nil {
				return fmt.Errorf("%s: %w", entry.Path(), err)
			}
		case entry.IsArray():
			members, _ := entry.Array("")
			names := make([]string, 0, len(members))
			for _, m := range members {
				name, err := m.String("")
				if err != nil {
					return fmt.Errorf("%s: run queue group members must be names: %w", m.Path(), err)
				}
				names = append(names, name)
			}
			if err := t.PushBackGroupToRunQueue(names...); err != nil {
				return fmt.Errorf("%s: %w", entry.Path(), err)
			}
		default:
			return fmt.Errorf("%s: run queue entry must be a name or a list of names", entry.Path())
		}
	}
	return nil
}

// ConfigureProcessors hands each registered processor the subtree keyed by
// its instance name. Processors without a subtree are skipped with a warning.
func (t *Toolbox) ConfigureProcessors(node *config.Node) error {
	for _, name := range t.Processors() {
		p, ok := t.Processor(name)
		if !ok {
			continue
		}
		sub := node.Child(name)
		if sub == nil {
			t.logger.Warn("did not find a configuration for processor", "processor", name)
			continue
		}
		if err := p.Configure(sub); err != nil {
			return fmt.Errorf("configure processor %q: %w", name, err)
		}
	}
	return nil
}
