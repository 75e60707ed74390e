package config

import (
	"fmt"
	"strings"
)

// GetPath retrieves a value from the loaded document using a dot-notation path.
// An "instance:key" address reads from the processor_config section, so
// "source:count" is the same as "processor_config.source.count".
func (c *Config) GetPath(path string) (any, error) {
	if instance, rest, ok := strings.Cut(path, ":"); ok {
		if instance == "" {
			return nil, fmt.Errorf("invalid address %q (expected instance:key)", path)
		}
		section, err := c.Root.Get(ProcessorConfigKey)
		if err != nil {
			return nil, err
		}
		sub := section.Child(instance)
		if sub == nil {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, joinPath(section.Path(), instance))
		}
		node, err := sub.Get(rest)
		if err != nil {
			return nil, err
		}
		return node.Value()
	}

	node, err := c.Root.Get(path)
	if err != nil {
		return nil, err
	}
	return node.Value()
}
