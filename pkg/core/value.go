package core

import (
	"fmt"
	"strconv"
)

// ValueKind is the storage class of a Value.
type ValueKind int

// Value kinds, mirroring SQLite storage classes.
const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindBytes
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInt:
		return "INTEGER"
	case KindFloat:
		return "REAL"
	case KindString:
		return "TEXT"
	case KindBytes:
		return "BLOB"
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Value is a single SQL value.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
}

// Null is the SQL NULL value.
var Null = Value{}

// IntValue returns an integer value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue returns a real value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StringValue returns a text value.
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// BytesValue returns a blob value.
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Any returns v as a Go value suitable for database/sql arguments.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindString:
		return v.Str
	case KindBytes:
		return v.Bytes
	}
	return nil
}

// String renders v the way the CLI prints result cells.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindBytes:
		return fmt.Sprintf("x'%x'", v.Bytes)
	}
	return "NULL"
}

// FromAny converts a value scanned from database/sql or returned by an
// embedded evaluator into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case int64:
		return IntValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int16:
		return IntValue(int64(t)), nil
	case int8:
		return IntValue(int64(t)), nil
	case uint32:
		return IntValue(int64(t)), nil
	case uint16:
		return IntValue(int64(t)), nil
	case uint8:
		return IntValue(int64(t)), nil
	case bool:
		if t {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	case float64:
		return FloatValue(t), nil
	case float32:
		return FloatValue(float64(t)), nil
	case string:
		return StringValue(t), nil
	case []byte:
		return BytesValue(append([]byte(nil), t...)), nil
	case Value:
		return t, nil
	case fmt.Stringer:
		return StringValue(t.String()), nil
	}
	return Null, fmt.Errorf("unsupported value type %T", x)
}
