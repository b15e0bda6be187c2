package plan

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"
)

// Kind identifies which member of the Value union a node holds.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindList
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is a node in a build plan. It is implemented by Scalar, List and Mapping only.
type Value interface {
	Kind() Kind
	Clone() Value
	Native() any
}

// Scalar holds a string, bool, int, float64 or nil.
type Scalar struct {
	V any
}

// List is an ordered sequence of values.
type List []Value

// Mapping is a set of named values.
type Mapping map[string]Value

var (
	_ Value = Scalar{}
	_ Value = List(nil)
	_ Value = Mapping(nil)
)

// S returns a scalar wrapping v.
func S(v any) Scalar {
	return Scalar{V: v}
}

func (Scalar) Kind() Kind  { return KindScalar }
func (List) Kind() Kind    { return KindList }
func (Mapping) Kind() Kind { return KindMapping }

func (s Scalar) Clone() Value { return s }

func (l List) Clone() Value {
	if l == nil {
		return List(nil)
	}
	out := make(List, len(l))
	for i, v := range l {
		out[i] = v.Clone()
	}
	return out
}

func (m Mapping) Clone() Value {
	if m == nil {
		return Mapping(nil)
	}
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v.Clone()
	}
	return out
}

func (s Scalar) Native() any { return s.V }

func (l List) Native() any {
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = v.Native()
	}
	return out
}

func (m Mapping) Native() any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Native()
	}
	return out
}

// String renders the scalar as text. Nil renders as the empty string.
func (s Scalar) String() string {
	switch v := s.V.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Bool interprets the scalar as a boolean. Strings are parsed leniently so that
// substituted environment values like "true" or "1" work.
func (s Scalar) Bool() (bool, bool) {
	switch v := s.V.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	case int:
		return v != 0, true
	default:
		return false, false
	}
}

// Int interprets the scalar as an integer.
func (s Scalar) Int() (int, bool) {
	switch v := s.V.(type) {
	case int:
		return v, true
	case float64:
		if math.IsNaN(v) || v < math.MinInt || v >= math.MaxInt {
			return 0, false
		}
		return int(v), v == float64(int(v))
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	default:
		return 0, false
	}
}

// Keys returns the mapping keys in sorted order.
func (m Mapping) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Str returns the scalar at key rendered as a string.
func (m Mapping) Str(key string) (string, bool) {
	s, ok := m[key].(Scalar)
	if !ok {
		return "", false
	}
	return s.String(), true
}

// Bool returns the boolean at key.
func (m Mapping) Bool(key string) (bool, bool) {
	s, ok := m[key].(Scalar)
	if !ok {
		return false, false
	}
	return s.Bool()
}

// Int returns the integer at key.
func (m Mapping) Int(key string) (int, bool) {
	s, ok := m[key].(Scalar)
	if !ok {
		return 0, false
	}
	return s.Int()
}

// Strings returns the list at key rendered as strings. A scalar is treated as a
// single element list.
func (m Mapping) Strings(key string) []string {
	switch v := m[key].(type) {
	case List:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(Scalar); ok {
				out = append(out, s.String())
			}
		}
		return out
	case Scalar:
		if v.V == nil {
			return nil
		}
		return []string{v.String()}
	default:
		return nil
	}
}

// Map returns the nested mapping at key.
func (m Mapping) Map(key string) (Mapping, bool) {
	v, ok := m[key].(Mapping)
	return v, ok
}

// List returns the nested list at key.
func (m Mapping) List(key string) (List, bool) {
	v, ok := m[key].(List)
	return v, ok
}

// Equal reports whether two values are deeply equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return reflect.DeepEqual(a.Native(), b.Native())
}

// FromNative converts decoded Go values (as produced by yaml or json) into a Value.
func FromNative(v any) (Value, error) {
	switch t := v.(type) {
	case nil, string, bool, int, float64:
		return S(t), nil
	case int64:
		return S(int(t)), nil
	case uint64:
		return S(int(t)), nil //nolint:gosec
	case []any:
		out := make(List, 0, len(t))
		for _, item := range t {
			iv, err := FromNative(item)
			if err != nil {
				return nil, err
			}
			out = append(out, iv)
		}
		return out, nil
	case map[string]any:
		out := make(Mapping, len(t))
		for k, item := range t {
			iv, err := FromNative(item)
			if err != nil {
				return nil, err
			}
			out[k] = iv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalidPlan, v)
	}
}
