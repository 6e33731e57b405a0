package models

import (
	"fmt"
	"math"
	"strconv"
)

// Kind discriminates the scalar variants a record field can hold.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
)

// Value is a single record scalar: integer, float, boolean, string or
// null. The zero Value is null.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Bool  bool
	Str   string
}

// Null returns the null scalar.
func Null() Value { return Value{} }

// IntValue wraps an integer scalar.
func IntValue(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FloatValue wraps a float scalar.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// BoolValue wraps a boolean scalar.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// StringValue wraps a string scalar.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// ParseScalar converts caller-supplied argument text into a scalar.
// Numeric-looking text becomes a number; everything else stays a
// string. This mirrors the read-side coercion, so writing "2500" and
// writing 2500 store the same logical value.
func ParseScalar(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntValue(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FloatValue(f)
	}
	return StringValue(s)
}

// FromNative converts a value produced by the msgpack decoder into a
// scalar. Unknown types are an error, not a silent string.
func FromNative(v interface{}) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return BoolValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int8:
		return IntValue(int64(x)), nil
	case int16:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint:
		return IntValue(int64(x)), nil
	case uint8:
		return IntValue(int64(x)), nil
	case uint16:
		return IntValue(int64(x)), nil
	case uint32:
		return IntValue(int64(x)), nil
	case uint64:
		return IntValue(int64(x)), nil
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case string:
		return StringValue(x), nil
	default:
		return Null(), fmt.Errorf("unsupported scalar type %T", v)
	}
}

// Native returns the scalar as a plain Go value for encoders.
func (v Value) Native() interface{} {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindString:
		return v.Str
	default:
		return nil
	}
}

// IsNull reports whether the scalar is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsNonIntegerFloat reports whether the scalar is a float with a
// fractional part. Drives the entry flag byte.
func (v Value) IsNonIntegerFloat() bool {
	return v.Kind == KindFloat && v.Float != math.Trunc(v.Float)
}

// Num returns the scalar as a float64 when it is numeric or parses as
// a number. Booleans and nulls are not numeric.
func (v Value) Num() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// String renders the scalar as text. Floats keep full precision.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return v.Str
	default:
		return ""
	}
}

// Equal compares two scalars, promoting across numeric kinds and
// falling back to string comparison for mixed kinds.
func (v Value) Equal(o Value) bool {
	if v.Kind == KindNull || o.Kind == KindNull {
		return v.Kind == o.Kind
	}
	if a, ok := v.Num(); ok {
		if b, ok := o.Num(); ok {
			return a == b
		}
	}
	return v.String() == o.String()
}

// Coerce applies the read-side numeric coercion: strings that parse as
// numbers come back as numbers.
func (v Value) Coerce() Value {
	if v.Kind != KindString {
		return v
	}
	return ParseScalar(v.Str)
}
