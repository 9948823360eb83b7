// Package props provides the typed key/value store attached to materials,
// nodes and scenes, and used for import configuration.
package props

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/Faultbox/scenery/pkg/math"
)

// Property store errors.
var (
	ErrNotFound     = errors.New("property not found")
	ErrTypeMismatch = errors.New("property type mismatch")
)

// Type identifies the kind of value stored under a key.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeVec3
	TypeString
	TypeBytes
)

// String returns a human-readable type name.
func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeVec3:
		return "vec3"
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	default:
		return fmt.Sprintf("Type(%d)", t)
	}
}

// TypeMismatchError reports a typed read of a key holding another type.
type TypeMismatchError struct {
	Key  string
	Want Type
	Have Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("property %q: want %s, have %s", e.Key, e.Want, e.Have)
}

// Is makes errors.Is(err, ErrTypeMismatch) match.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// Value is a tagged union over the supported property types. The zero Value
// is invalid and is never stored.
type Value struct {
	typ Type
	b   bool
	i   int64
	f   float64
	v   math.Vec3
	s   string
	raw []byte
}

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{typ: TypeInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{typ: TypeFloat, f: f} }

// Vector returns a 3-component float vector value.
func Vector(v math.Vec3) Value { return Value{typ: TypeVec3, v: v} }

// String returns a string value.
func String(s string) Value { return Value{typ: TypeString, s: s} }

// Bytes returns a raw byte buffer value. The buffer is copied.
func Bytes(b []byte) Value {
	return Value{typ: TypeBytes, raw: append([]byte(nil), b...)}
}

// Type returns the value's declared type.
func (v Value) Type() Type { return v.typ }

// IsValid reports whether the value carries a type.
func (v Value) IsValid() bool { return v.typ != TypeInvalid }

// AsBool returns the boolean payload; ok is false for other types.
func (v Value) AsBool() (b, ok bool) { return v.b, v.typ == TypeBool }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.typ == TypeInt }

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, bool) { return v.f, v.typ == TypeFloat }

// AsVec3 returns the vector payload.
func (v Value) AsVec3() (math.Vec3, bool) { return v.v, v.typ == TypeVec3 }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.typ == TypeString }

// AsBytes returns a copy of the byte payload.
func (v Value) AsBytes() ([]byte, bool) {
	if v.typ != TypeBytes {
		return nil, false
	}
	return append([]byte(nil), v.raw...), true
}

// Equal reports whether both values have the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeBool:
		return v.b == o.b
	case TypeInt:
		return v.i == o.i
	case TypeFloat:
		return v.f == o.f
	case TypeVec3:
		return v.v == o.v
	case TypeString:
		return v.s == o.s
	case TypeBytes:
		return string(v.raw) == string(o.raw)
	}
	return true
}

// String formats the payload for diagnostics.
func (v Value) String() string {
	switch v.typ {
	case TypeBool:
		return fmt.Sprintf("%t", v.b)
	case TypeInt:
		return fmt.Sprintf("%d", v.i)
	case TypeFloat:
		return fmt.Sprintf("%g", v.f)
	case TypeVec3:
		return fmt.Sprintf("(%g, %g, %g)", v.v.X, v.v.Y, v.v.Z)
	case TypeString:
		return fmt.Sprintf("%q", v.s)
	case TypeBytes:
		return fmt.Sprintf("<%d bytes>", len(v.raw))
	default:
		return "<invalid>"
	}
}

// Entry is one (key, type, value) triple produced by enumeration.
type Entry struct {
	Key   string
	Type  Type
	Value Value
}

// Store maps string keys to typed values. A key holds at most one value of
// one type at a time. A Store is owned by a single import and is not safe for
// concurrent mutation.
type Store struct {
	entries map[string]Value
}

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]Value)}
}

// Set stores v under key, replacing any previous value of any type.
// Invalid values are ignored.
func (s *Store) Set(key string, v Value) {
	if !v.IsValid() {
		return
	}
	if s.entries == nil {
		s.entries = make(map[string]Value)
	}
	s.entries[key] = v
}

// SetBool stores a boolean.
func (s *Store) SetBool(key string, b bool) { s.Set(key, Bool(b)) }

// SetInt stores an integer.
func (s *Store) SetInt(key string, i int64) { s.Set(key, Int(i)) }

// SetFloat stores a float.
func (s *Store) SetFloat(key string, f float64) { s.Set(key, Float(f)) }

// SetVec3 stores a vector.
func (s *Store) SetVec3(key string, v math.Vec3) { s.Set(key, Vector(v)) }

// SetString stores a string.
func (s *Store) SetString(key, str string) { s.Set(key, String(str)) }

// SetBytes stores a copy of b.
func (s *Store) SetBytes(key string, b []byte) { s.Set(key, Bytes(b)) }

// Get returns the value under key if it has type want. It returns
// ErrNotFound for an absent key and a *TypeMismatchError when the key holds
// a different type.
func (s *Store) Get(key string, want Type) (Value, error) {
	if s == nil {
		return Value{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	v, ok := s.entries[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if v.typ != want {
		return Value{}, &TypeMismatchError{Key: key, Want: want, Have: v.typ}
	}
	return v, nil
}

// Lookup returns the raw value under key regardless of type.
func (s *Store) Lookup(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.entries[key]
	return v, ok
}

// Bool returns the boolean under key.
func (s *Store) Bool(key string) (bool, error) {
	v, err := s.Get(key, TypeBool)
	return v.b, err
}

// Int returns the integer under key.
func (s *Store) Int(key string) (int64, error) {
	v, err := s.Get(key, TypeInt)
	return v.i, err
}

// Float returns the float under key.
func (s *Store) Float(key string) (float64, error) {
	v, err := s.Get(key, TypeFloat)
	return v.f, err
}

// Vec3 returns the vector under key.
func (s *Store) Vec3(key string) (math.Vec3, error) {
	v, err := s.Get(key, TypeVec3)
	return v.v, err
}

// String returns the string under key.
func (s *Store) String(key string) (string, error) {
	v, err := s.Get(key, TypeString)
	return v.s, err
}

// BytesValue returns a copy of the byte buffer under key.
func (s *Store) BytesValue(key string) ([]byte, error) {
	v, err := s.Get(key, TypeBytes)
	if err != nil {
		return nil, err
	}
	b, _ := v.AsBytes()
	return b, nil
}

// BoolOr returns the boolean under key, or def when it is absent or mistyped.
func (s *Store) BoolOr(key string, def bool) bool {
	if b, err := s.Bool(key); err == nil {
		return b
	}
	return def
}

// IntOr returns the integer under key, or def.
func (s *Store) IntOr(key string, def int64) int64 {
	if i, err := s.Int(key); err == nil {
		return i
	}
	return def
}

// FloatOr returns the float under key, or def. Integers are widened.
func (s *Store) FloatOr(key string, def float64) float64 {
	if f, err := s.Float(key); err == nil {
		return f
	}
	if i, err := s.Int(key); err == nil {
		return float64(i)
	}
	return def
}

// StringOr returns the string under key, or def.
func (s *Store) StringOr(key, def string) string {
	if str, err := s.String(key); err == nil {
		return str
	}
	return def
}

// Has reports whether key holds any value.
func (s *Store) Has(key string) bool {
	_, ok := s.Lookup(key)
	return ok
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	if s != nil {
		delete(s.entries, key)
	}
}

// Len returns the number of entries.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// All returns a lazy enumeration of every entry. Each call starts a fresh
// enumeration; order is unspecified.
func (s *Store) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if s == nil {
			return
		}
		for k, v := range s.entries {
			if !yield(Entry{Key: k, Type: v.typ, Value: v}) {
				return
			}
		}
	}
}

// Keys returns every key in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, s.Len())
	for e := range s.All() {
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the store.
func (s *Store) Clone() *Store {
	c := New()
	for e := range s.All() {
		if e.Type == TypeBytes {
			c.entries[e.Key] = Bytes(e.Value.raw)
			continue
		}
		c.entries[e.Key] = e.Value
	}
	return c
}

// Merge copies every entry of other into s, overwriting existing keys.
func (s *Store) Merge(other *Store) {
	for e := range other.Clone().All() {
		s.Set(e.Key, e.Value)
	}
}

// Equal reports whether both stores hold the same keys with equal values.
func (s *Store) Equal(other *Store) bool {
	if s.Len() != other.Len() {
		return false
	}
	for e := range s.All() {
		o, ok := other.Lookup(e.Key)
		if !ok || !o.Equal(e.Value) {
			return false
		}
	}
	return true
}
