package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrTypeMismatch is returned when a Value is read as the wrong kind.
var ErrTypeMismatch = errors.New("value type mismatch")

// Kind identifies which member of the Value union is populated.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindRecord
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindRecord:
		return "record"
	case KindBlob:
		return "blob"
	default:
		return "invalid"
	}
}

// Value is a tagged union of the data types a frame can carry.
// Records hold nested values keyed by field name; blobs hold any Go value
// a processor wants to hand downstream untouched.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	rec  map[string]Value
	blob any
}

func Bool(v bool) Value { return Value{kind: KindBool, b: v} }
func Int(v int64) Value { return Value{kind: KindInt, i: v} }
func Uint(v uint64) Value { return Value{kind: KindUint, u: v} }
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func Blob(v any) Value { return Value{kind: KindBlob, blob: v} }

// Record copies fields so later changes to the caller's map do not leak in.
func Record(fields map[string]Value) Value {
	rec := make(map[string]Value, len(fields))
	for k, v := range fields {
		rec[k] = v
	}
	return Value{kind: KindRecord, rec: rec}
}

// Kind reports which member is populated.
func (v Value) Kind() Kind { return v.kind }

// IsValid is false for the zero Value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, v.kind, want)
}

func (v Value) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.b, nil
}

func (v Value) AsInt() (int64, error) {
	if v.kind != KindInt {
		return 0, v.mismatch(KindInt)
	}
	return v.i, nil
}

func (v Value) AsUint() (uint64, error) {
	if v.kind != KindUint {
		return 0, v.mismatch(KindUint)
	}
	return v.u, nil
}

func (v Value) AsFloat() (float64, error) {
	if v.kind != KindFloat {
		return 0, v.mismatch(KindFloat)
	}
	return v.f, nil
}

func (v Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.s, nil
}

// AsRecord returns a copy of the record fields.
func (v Value) AsRecord() (map[string]Value, error) {
	if v.kind != KindRecord {
		return nil, v.mismatch(KindRecord)
	}
	out := make(map[string]Value, len(v.rec))
	for k, f := range v.rec {
		out[k] = f
	}
	return out, nil
}

func (v Value) AsBlob() (any, error) {
	if v.kind != KindBlob {
		return nil, v.mismatch(KindBlob)
	}
	return v.blob, nil
}

// Interface returns the populated member as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindRecord:
		out := make(map[string]any, len(v.rec))
		for k, f := range v.rec {
			out[k] = f.Interface()
		}
		return out
	case KindBlob:
		return v.blob
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindRecord:
		keys := make([]string, 0, len(v.rec))
		for k := range v.rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		s := "{"
		for i, k := range keys {
			if i > 0 {
				s += " "
			}
			s += k + ":" + v.rec[k].String()
		}
		return s + "}"
	case KindBlob:
		return fmt.Sprintf("<%T>", v.blob)
	case KindInvalid:
		return "<invalid>"
	default:
		return fmt.Sprint(v.Interface())
	}
}

type jsonValue struct {
	Kind  string `json:"kind"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value,omitempty"`
}

// MarshalJSON renders the value with its kind. Blobs that cannot be encoded
// are reported by Go type only.
func (v Value) MarshalJSON() ([]byte, error) {
	out := jsonValue{Kind: v.kind.String()}
	switch v.kind {
	case KindRecord:
		out.Value = v.rec
	case KindBlob:
		out.Type = fmt.Sprintf("%T", v.blob)
		if _, err := json.Marshal(v.blob); err == nil {
			out.Value = v.blob
		}
	default:
		out.Value = v.Interface()
	}
	return json.Marshal(out)
}
