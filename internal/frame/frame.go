package frame

import (
	"errors"
	"fmt"
	"sync"
)

// ErrKindAbsent is returned by Get when no value is stored for a data kind.
var ErrKindAbsent = errors.New("data kind absent from frame")

// Frame is the unit of data passed along a chain. It maps data-kind
// identifiers to values. Stages add or overwrite entries and never remove
// them. The zero value is an empty frame ready to use. A Frame is not safe
// for concurrent use; each chain owns its own.
type Frame struct {
	values map[string]Value
	order  []string
}

// New returns an empty frame.
func New() *Frame {
	return &Frame{values: make(map[string]Value)}
}

// Get returns the value stored for kind.
func (f *Frame) Get(kind string) (Value, error) {
	v, ok := f.values[kind]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrKindAbsent, kind)
	}
	return v, nil
}

// Set stores v under kind, overwriting any existing value.
func (f *Frame) Set(kind string, v Value) {
	if f.values == nil {
		f.values = make(map[string]Value)
	}
	if _, ok := f.values[kind]; !ok {
		f.order = append(f.order, kind)
	}
	f.values[kind] = v
}

func (f *Frame) Has(kind string) bool {
	_, ok := f.values[kind]
	return ok
}

// Kinds returns the stored data kinds in insertion order.
func (f *Frame) Kinds() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

func (f *Frame) Len() int { return len(f.values) }

// Snapshot copies the frame contents for observers outside the chain.
func (f *Frame) Snapshot() map[string]Value {
	out := make(map[string]Value, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

func (f *Frame) reset() {
	clear(f.values)
	f.order = f.order[:0]
}

// GetAs returns the blob stored for kind as a T.
func GetAs[T any](f *Frame, kind string) (T, error) {
	var zero T
	v, err := f.Get(kind)
	if err != nil {
		return zero, err
	}
	raw, err := v.AsBlob()
	if err != nil {
		return zero, fmt.Errorf("%q: %w", kind, err)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%q: %w: blob is %T, want %T", kind, ErrTypeMismatch, raw, zero)
	}
	return typed, nil
}

var pool = sync.Pool{
	New: func() any { return New() },
}

// Acquire returns an empty frame from the pool.
func Acquire() *Frame {
	return pool.Get().(*Frame)
}

// Release resets f and returns it to the pool. f must not be used afterwards.
func Release(f *Frame) {
	if f == nil {
		return
	}
	f.reset()
	pool.Put(f)
}
