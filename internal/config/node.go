package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrKeyNotFound is returned when a path does not resolve to a node.
	ErrKeyNotFound = errors.New("config key not found")
	// ErrTypeMismatch is returned when a node cannot be read as the requested type.
	ErrTypeMismatch = errors.New("config type mismatch")
)

// Node is a read-only view of a YAML subtree. Paths are dot-separated;
// a segment addresses a mapping key, or an index when the current node is
// a sequence ("connections.0.signal"). A nil *Node behaves as an empty map.
type Node struct {
	node *yaml.Node
	path string
}

// ParseNode parses a YAML document into a Node.
func ParseNode(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return wrap(&doc, ""), nil
}

func wrap(n *yaml.Node, path string) *Node {
	for n != nil && (n.Kind == yaml.DocumentNode || n.Kind == yaml.AliasNode) {
		if n.Kind == yaml.DocumentNode {
			if len(n.Content) == 0 {
				return &Node{path: path}
			}
			n = n.Content[0]
		} else {
			n = n.Alias
		}
	}
	return &Node{node: n, path: path}
}

// Path returns the dot path of this node from the document root.
func (n *Node) Path() string {
	if n == nil {
		return ""
	}
	return n.path
}

func (n *Node) IsMap() bool {
	return n != nil && n.node != nil && n.node.Kind == yaml.MappingNode
}

func (n *Node) IsArray() bool {
	return n != nil && n.node != nil && n.node.Kind == yaml.SequenceNode
}

func (n *Node) IsScalar() bool {
	return n != nil && n.node != nil && n.node.Kind == yaml.ScalarNode
}

func (n *Node) child(seg string) (*Node, bool) {
	if n == nil || n.node == nil {
		return nil, false
	}
	childPath := seg
	if n.path != "" {
		childPath = n.path + "." + seg
	}
	switch n.node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.node.Content); i += 2 {
			if n.node.Content[i].Value == seg {
				return wrap(n.node.Content[i+1], childPath), true
			}
		}
	case yaml.SequenceNode:
		idx, err := strconv.Atoi(seg)
		if err == nil && idx >= 0 && idx < len(n.node.Content) {
			return wrap(n.node.Content[idx], childPath), true
		}
	}
	return nil, false
}

// Child returns the value under key taken literally, so keys containing
// dots (instance names such as "reader.v2") resolve as one segment.
func (n *Node) Child(key string) *Node {
	c, ok := n.child(key)
	if !ok {
		return nil
	}
	return c
}

// Get resolves a dot path relative to n. An empty path returns n.
func (n *Node) Get(path string) (*Node, error) {
	current := n
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			continue
		}
		next, ok := current.child(seg)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, joinPath(n.Path(), path))
		}
		current = next
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, joinPath(n.Path(), path))
	}
	return current, nil
}

func joinPath(base, path string) string {
	if base == "" {
		return path
	}
	if path == "" {
		return base
	}
	return base + "." + path
}

// Has reports whether path resolves.
func (n *Node) Has(path string) bool {
	_, err := n.Get(path)
	return err == nil
}

// Sub returns the subtree at path, or nil when it does not exist.
func (n *Node) Sub(path string) *Node {
	sub, err := n.Get(path)
	if err != nil {
		return nil
	}
	return sub
}

// Keys returns the mapping keys in document order.
func (n *Node) Keys() []string {
	if !n.IsMap() {
		return nil
	}
	keys := make([]string, 0, len(n.node.Content)/2)
	for i := 0; i+1 < len(n.node.Content); i += 2 {
		keys = append(keys, n.node.Content[i].Value)
	}
	return keys
}

// Array returns the elements of the sequence at path.
func (n *Node) Array(path string) ([]*Node, error) {
	target, err := n.Get(path)
	if err != nil {
		return nil, err
	}
	if !target.IsArray() {
		return nil, fmt.Errorf("%w: %q is not a sequence", ErrTypeMismatch, target.path)
	}
	out := make([]*Node, 0, len(target.node.Content))
	for i, c := range target.node.Content {
		out = append(out, wrap(c, joinPath(target.path, strconv.Itoa(i))))
	}
	return out, nil
}

func (n *Node) scalar(path string) (*Node, error) {
	target, err := n.Get(path)
	if err != nil {
		return nil, err
	}
	if !target.IsScalar() {
		return nil, fmt.Errorf("%w: %q is not a scalar", ErrTypeMismatch, target.path)
	}
	return target, nil
}

func decodeScalar[T any](n *Node, path, want string) (T, error) {
	var out T
	target, err := n.scalar(path)
	if err != nil {
		return out, err
	}
	if err := target.node.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %q is not a %s: %v", ErrTypeMismatch, target.path, want, err)
	}
	return out, nil
}

func (n *Node) Bool(path string) (bool, error) {
	return decodeScalar[bool](n, path, "bool")
}

func (n *Node) Int(path string) (int64, error) {
	return decodeScalar[int64](n, path, "int")
}

func (n *Node) Uint(path string) (uint64, error) {
	return decodeScalar[uint64](n, path, "uint")
}

func (n *Node) Float(path string) (float64, error) {
	return decodeScalar[float64](n, path, "float")
}

// String returns any scalar as its literal text.
func (n *Node) String(path string) (string, error) {
	target, err := n.scalar(path)
	if err != nil {
		return "", err
	}
	return target.node.Value, nil
}

// Duration parses a Go duration string. A bare integer is read as milliseconds.
func (n *Node) Duration(path string) (time.Duration, error) {
	target, err := n.scalar(path)
	if err != nil {
		return 0, err
	}
	if ms, err := strconv.ParseInt(target.node.Value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(target.node.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a duration: %v", ErrTypeMismatch, target.path, err)
	}
	return d, nil
}

func orDefault[T any](v T, err error, def T) (T, error) {
	if errors.Is(err, ErrKeyNotFound) {
		return def, nil
	}
	return v, err
}

// BoolOr returns def when path is absent. Type errors are still reported.
func (n *Node) BoolOr(path string, def bool) (bool, error) {
	v, err := n.Bool(path)
	return orDefault(v, err, def)
}

func (n *Node) IntOr(path string, def int64) (int64, error) {
	v, err := n.Int(path)
	return orDefault(v, err, def)
}

func (n *Node) UintOr(path string, def uint64) (uint64, error) {
	v, err := n.Uint(path)
	return orDefault(v, err, def)
}

func (n *Node) FloatOr(path string, def float64) (float64, error) {
	v, err := n.Float(path)
	return orDefault(v, err, def)
}

func (n *Node) StringOr(path string, def string) (string, error) {
	v, err := n.String(path)
	return orDefault(v, err, def)
}

func (n *Node) DurationOr(path string, def time.Duration) (time.Duration, error) {
	v, err := n.Duration(path)
	return orDefault(v, err, def)
}

// Decode decodes the subtree into v using yaml.v3 rules.
func (n *Node) Decode(v any) error {
	if n == nil || n.node == nil {
		return nil
	}
	if err := n.node.Decode(v); err != nil {
		return fmt.Errorf("decode %q: %w", n.path, err)
	}
	return nil
}

// Value returns the subtree as plain Go values (maps, slices, scalars).
func (n *Node) Value() (any, error) {
	var out any
	if err := n.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
