// Package pod implements the self-describing binary "Plain Old Data"
// format used for every wire message exchanged with the media graph
// server, and for every persisted node parameter.
//
// Every value starts with an 8-byte header: a little-endian uint32
// content size followed by a little-endian uint32 type tag. Content is
// padded with zero bytes up to the next 8-byte boundary. See Reader and
// Builder for the decode/encode sides of the format.
package pod

import "fmt"

// Type is the tag carried in every POD header.
type Type uint32

// Well-known POD type tags, in the order spec.md §4.1 lists them.
const (
	NONE Type = iota
	BOOL
	ID
	INT
	LONG
	FLOAT
	DOUBLE
	STRING
	BYTES
	RECTANGLE
	FRACTION
	BITMAP
	ARRAY
	STRUCT
	OBJECT
	SEQUENCE
	POINTER
	FD
	CHOICE
	POD
)

var typeNames = map[Type]string{
	NONE:      "None",
	BOOL:      "Bool",
	ID:        "Id",
	INT:       "Int",
	LONG:      "Long",
	FLOAT:     "Float",
	DOUBLE:    "Double",
	STRING:    "String",
	BYTES:     "Bytes",
	RECTANGLE: "Rectangle",
	FRACTION:  "Fraction",
	BITMAP:    "Bitmap",
	ARRAY:     "Array",
	STRUCT:    "Struct",
	OBJECT:    "Object",
	SEQUENCE:  "Sequence",
	POINTER:   "Pointer",
	FD:        "Fd",
	CHOICE:    "Choice",
	POD:       "Pod",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint32(t))
}

// FixedSize returns the content size in bytes of a sized atomic type,
// and false for unsized types (String, Bytes, Bitmap) and containers.
func (t Type) FixedSize() (int, bool) {
	switch t {
	case NONE:
		return 0, true
	case BOOL, ID, INT:
		return 4, true
	case LONG, DOUBLE:
		return 8, true
	case FLOAT:
		return 4, true
	case RECTANGLE:
		return 8, true
	case FRACTION:
		return 8, true
	case POINTER:
		return 16, true
	case FD:
		return 8, true
	default:
		return 0, false
	}
}

// ChoiceType is the kind carried in a Choice container's header.
type ChoiceType uint32

// Choice kinds, per spec.md §4.1.
const (
	ChoiceNone ChoiceType = iota
	ChoiceRange
	ChoiceEnum
	ChoiceStep
	ChoiceFlags
)

func (c ChoiceType) String() string {
	switch c {
	case ChoiceNone:
		return "None"
	case ChoiceRange:
		return "Range"
	case ChoiceEnum:
		return "Enum"
	case ChoiceStep:
		return "Step"
	case ChoiceFlags:
		return "Flags"
	default:
		return fmt.Sprintf("ChoiceType(%d)", uint32(c))
	}
}

// Rectangle is the sized Rectangle atom: width, height.
type Rectangle struct {
	Width, Height uint32
}

// Fraction is the sized Fraction atom: num/denom.
type Fraction struct {
	Num, Denom uint32
}

// Pointer is the sized Pointer atom: a type tag plus a 64-bit value
// split across two 32-bit halves on the wire.
type Pointer struct {
	Type  uint32
	Value uint64
}

// align8 rounds n up to the next multiple of 8.
func align8(n int) int {
	return (n + 7) &^ 7
}
