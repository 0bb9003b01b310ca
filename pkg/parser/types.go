package parser

import "strings"

// Type is a PerfettoSQL column or argument type.
type Type int

// Types.
const (
	TypeInvalid Type = iota
	TypeInt
	TypeLong
	TypeUint
	TypeBool
	TypeDouble
	TypeString
	TypeBytes
	TypeTimestamp
	TypeDuration
	TypeID
	TypeJoinID
	TypeArgSetID
)

var typeNames = [...]string{
	TypeInvalid:   "INVALID",
	TypeInt:       "INT",
	TypeLong:      "LONG",
	TypeUint:      "UINT",
	TypeBool:      "BOOL",
	TypeDouble:    "DOUBLE",
	TypeString:    "STRING",
	TypeBytes:     "BYTES",
	TypeTimestamp: "TIMESTAMP",
	TypeDuration:  "DURATION",
	TypeID:        "ID",
	TypeJoinID:    "JOINID",
	TypeArgSetID:  "ARGSETID",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return typeNames[TypeInvalid]
	}
	return typeNames[t]
}

// IsInteger reports whether values of t are stored as integers.
func (t Type) IsInteger() bool {
	switch t {
	case TypeInt, TypeLong, TypeUint, TypeBool, TypeTimestamp, TypeDuration,
		TypeID, TypeJoinID, TypeArgSetID:
		return true
	}
	return false
}

// AcceptsRef reports whether t may be written with a `(table.col)` reference.
func (t Type) AcceptsRef() bool {
	return t == TypeID || t == TypeJoinID
}

// ParseType looks up a type name case-insensitively.
func ParseType(name string) (Type, bool) {
	upper := strings.ToUpper(name)
	for t := TypeInt; int(t) < len(typeNames); t++ {
		if typeNames[t] == upper {
			return t, true
		}
	}
	return TypeInvalid, false
}
