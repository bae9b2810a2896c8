package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind identifies the shape held by a Value.
type Kind uint8

const (
	// KindAbsent is the zero Value: an undefined or missing field.
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the closed set of parameter shapes the key deriver understands.
// The zero Value is Absent.
type Value struct {
	kind  Kind
	b     bool
	isInt bool
	i     int64
	f     float64
	s     string
	list  []Value
	m     map[string]Value
}

// Valuer is implemented by parameter types that describe themselves as a Value.
type Valuer interface {
	CacheValue() Value
}

// Absent returns the undefined Value.
func Absent() Value { return Value{} }

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindNumber, isInt: true, i: i} }

// Float returns a floating point Value. NaN and infinities are accepted here
// but rejected when the Value is canonicalized.
func Float(f float64) Value { return Value{kind: KindNumber, f: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List returns an ordered list Value.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map returns a map Value. A nil map is an empty map.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// Kind returns the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the undefined Value.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Len returns the number of list items or map fields.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// Keys returns the map field names in canonical order.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the named map field, or Absent.
func (v Value) Field(name string) Value {
	if v.kind != KindMap {
		return Value{}
	}
	return v.m[name]
}

// Index returns the i-th list item, or Absent.
func (v Value) Index(i int) Value {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}
	}
	return v.list[i]
}

// FromAny converts a parameter object into a Value. Only the shapes listed
// below are accepted; anything else returns ErrUnsupportedValue. Structs
// must implement Valuer.
func FromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case Valuer:
		return x.CacheValue(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return fromUint(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: number %q", ErrUnsupportedValue, x.String())
		}
		return Float(f), nil
	case *string:
		if x == nil {
			return Absent(), nil
		}
		return String(*x), nil
	case *int:
		if x == nil {
			return Absent(), nil
		}
		return Int(int64(*x)), nil
	case *int64:
		if x == nil {
			return Absent(), nil
		}
		return Int(*x), nil
	case *bool:
		if x == nil {
			return Absent(), nil
		}
		return Bool(*x), nil
	case *float64:
		if x == nil {
			return Absent(), nil
		}
		return Float(*x), nil
	case []Value:
		return List(x...), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = v
		}
		return List(items...), nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}
		return List(items...), nil
	case []int:
		items := make([]Value, len(x))
		for i, n := range x {
			items[i] = Int(int64(n))
		}
		return List(items...), nil
	case []int64:
		items := make([]Value, len(x))
		for i, n := range x {
			items[i] = Int(n)
		}
		return List(items...), nil
	case []float64:
		items := make([]Value, len(x))
		for i, f := range x {
			items[i] = Float(f)
		}
		return List(items...), nil
	case map[string]Value:
		return Map(x), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = v
		}
		return Map(m), nil
	case map[string]string:
		m := make(map[string]Value, len(x))
		for k, s := range x {
			m[k] = String(s)
		}
		return Map(m), nil
	case map[string]int:
		m := make(map[string]Value, len(x))
		for k, n := range x {
			m[k] = Int(int64(n))
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, in)
	}
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Value{}, fmt.Errorf("%w: integer %d overflows int64", ErrUnsupportedValue, u)
	}
	return Int(int64(u)), nil
}
