package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type Kind uint8

const (
	KindInteger Kind = iota + 1
	KindFloat
	KindText
	KindBoolean
)

// Value is a typed scalar: Integer (int32), Float (float64), Text or Boolean.
// The zero Value is invalid.
type Value struct {
	kind Kind
	i    int32
	f    float64
	s    string
	b    bool
}

func Integer(v int32) Value   { return Value{kind: KindInteger, i: v} }
func Float(v float64) Value   { return Value{kind: KindFloat, f: v} }
func Text(v string) Value     { return Value{kind: KindText, s: v} }
func Boolean(v bool) Value    { return Value{kind: KindBoolean, b: v} }
func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != 0 }

// IsFinite reports whether v can be stored. Only NaN and the infinities fail.
func (v Value) IsFinite() bool {
	return v.kind != KindFloat || !(math.IsNaN(v.f) || math.IsInf(v.f, 0))
}

// Type returns the tag checked against a column's declared type.
func (v Value) Type() ColumnType {
	switch v.kind {
	case KindInteger:
		return TypeInteger
	case KindFloat:
		return TypeFloat
	case KindText:
		return TypeText
	case KindBoolean:
		return TypeBoolean
	default:
		return ""
	}
}

// String returns the canonical form. It is the display form and the key used
// for equality in conditions and indexes.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(int64(v.i), 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindText:
		return v.s
	case KindBoolean:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Any returns the underlying Go value (int32, float64, string, bool or nil).
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindText:
		return v.s
	case KindBoolean:
		return v.b
	default:
		return nil
	}
}

// FromAny builds a Value from a Go scalar. int and int64 must fit in 32 bits.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case int32:
		return Integer(t), nil
	case int:
		if int(int32(t)) != t {
			return Value{}, fmt.Errorf("record: integer %d overflows INTEGER", t)
		}
		return Integer(int32(t)), nil
	case int64:
		if int64(int32(t)) != t {
			return Value{}, fmt.Errorf("record: integer %d overflows INTEGER", t)
		}
		return Integer(int32(t)), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case string:
		return Text(t), nil
	case bool:
		return Boolean(t), nil
	default:
		return Value{}, fmt.Errorf("record: unsupported value type %T", x)
	}
}

type jsonValue struct {
	Type  ColumnType      `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("record: cannot encode invalid value")
	}
	if !v.IsFinite() {
		return nil, fmt.Errorf("record: cannot encode non-finite float %v", v.f)
	}
	raw, err := json.Marshal(v.Any())
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonValue{Type: v.Type(), Value: raw})
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	switch jv.Type {
	case TypeInteger:
		var i int32
		if err := json.Unmarshal(jv.Value, &i); err != nil {
			return err
		}
		*v = Integer(i)
	case TypeFloat:
		var f float64
		if err := json.Unmarshal(jv.Value, &f); err != nil {
			return err
		}
		*v = Float(f)
	case TypeText:
		var s string
		if err := json.Unmarshal(jv.Value, &s); err != nil {
			return err
		}
		*v = Text(s)
	case TypeBoolean:
		var b bool
		if err := json.Unmarshal(jv.Value, &b); err != nil {
			return err
		}
		*v = Boolean(b)
	default:
		return fmt.Errorf("record: unknown value type %q", jv.Type)
	}
	return nil
}
