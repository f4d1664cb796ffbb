// Package value implements the opaque datapoint value carried by the
// storage and query engine: integers, decimals, strings, and arbitrary
// blobs, with numeric coercion for the aggregation callbacks.
package value

import "fmt"

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindInt Kind = iota
	KindDec
	KindStr
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDec:
		return "dec"
	case KindStr:
		return "str"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over the datapoint value types the store
// accepts. Only Int and Dec coerce to float64 for aggregation.
type Value struct {
	kind Kind
	i    int64
	d    float64
	s    string
	b    []byte
}

func Int(i int64) Value    { return Value{kind: KindInt, i: i} }
func Dec(d float64) Value  { return Value{kind: KindDec, d: d} }
func Str(s string) Value   { return Value{kind: KindStr, s: s} }
func Blob(b []byte) Value  { return Value{kind: KindBlob, b: b} }

func (v Value) Kind() Kind { return v.kind }

// Float64 returns the numeric value and true if Kind is Int or Dec.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindDec:
		return v.d, true
	default:
		return 0, false
	}
}

// Raw returns the value in a form suitable for storage attribute encoding.
func (v Value) Raw() interface{} {
	switch v.kind {
	case KindInt:
		return v.i
	case KindDec:
		return v.d
	case KindStr:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindDec:
		return fmt.Sprintf("%g", v.d)
	case KindStr:
		return v.s
	case KindBlob:
		return fmt.Sprintf("blob(%d bytes)", len(v.b))
	default:
		return ""
	}
}

// ParseKind is the inverse of Kind.String, used to recover the original
// variant from a stored "kind" marker attribute. Unrecognized markers fall
// back to KindStr.
func ParseKind(s string) Kind {
	switch s {
	case "int":
		return KindInt
	case "dec":
		return KindDec
	case "blob":
		return KindBlob
	default:
		return KindStr
	}
}

// FromKind rebuilds a Value of the given Kind from a raw attribute,
// correcting for backends that round-trip integers as float64. Storage
// rows carry their Kind alongside the raw value so readers don't have to
// guess (FromRaw guesses; FromKind doesn't).
func FromKind(k Kind, raw interface{}) Value {
	switch k {
	case KindInt:
		switch t := raw.(type) {
		case int64:
			return Int(t)
		case int:
			return Int(int64(t))
		case float64:
			return Int(int64(t))
		}
	case KindDec:
		switch t := raw.(type) {
		case float64:
			return Dec(t)
		case int64:
			return Dec(float64(t))
		case int:
			return Dec(float64(t))
		}
	case KindBlob:
		if b, ok := raw.([]byte); ok {
			return Blob(b)
		}
	case KindStr:
		if s, ok := raw.(string); ok {
			return Str(s)
		}
	}
	return FromRaw(raw)
}

// FromRaw wraps a raw Go value (as decoded from a KVTable attribute) into
// a Value, inferring the closest Kind.
func FromRaw(raw interface{}) Value {
	switch t := raw.(type) {
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Dec(t)
	case float32:
		return Dec(float64(t))
	case string:
		return Str(t)
	case []byte:
		return Blob(t)
	default:
		return Str(fmt.Sprintf("%v", t))
	}
}
