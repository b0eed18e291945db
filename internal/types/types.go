package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUInt
	KindSInt
	KindClock
	KindReset
	KindAsyncReset
	KindAnalog
	KindBundle
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUInt:
		return "UInt"
	case KindSInt:
		return "SInt"
	case KindClock:
		return "Clock"
	case KindReset:
		return "Reset"
	case KindAsyncReset:
		return "AsyncReset"
	case KindAnalog:
		return "Analog"
	case KindBundle:
		return "bundle"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// IsAggregate reports whether the kind has sub-elements.
func (k Kind) IsAggregate() bool {
	return k == KindBundle || k == KindVector
}

// Domain is the value domain of a ground integer type.
type Domain uint8

const (
	// DomainTwoValued values are 0 or 1 per bit.
	DomainTwoValued Domain = iota
	// DomainFourValued values additionally carry X and Z per bit.
	DomainFourValued
)

func (d Domain) String() string {
	if d == DomainFourValued {
		return "4-state"
	}
	return "2-state"
}

// UnknownWidth marks a ground type whose width has not been inferred.
const UnknownWidth int32 = -1

// Field is a named member of a bundle. A flipped field flows in the
// opposite direction of its parent.
type Field struct {
	Name string
	Flip bool
	Type TypeID
}

// Type is a compact descriptor for any supported type.
// Descriptors returned by the interner share their Fields slice and must be
// treated as immutable.
type Type struct {
	Kind   Kind
	Width  int32  // ground types, UnknownWidth if not inferred
	Domain Domain // UInt/SInt only
	Elem   TypeID // vectors
	Count  uint32 // vectors
	Fields []Field
}

// Descriptor helpers ---------------------------------------------------------

// MakeUInt describes an unsigned integer of the given width.
func MakeUInt(width int32) Type {
	return Type{Kind: KindUInt, Width: width}
}

// MakeSInt describes a signed integer of the given width.
func MakeSInt(width int32) Type {
	return Type{Kind: KindSInt, Width: width}
}

// MakeClock describes a clock signal.
func MakeClock() Type {
	return Type{Kind: KindClock, Width: 1}
}

// MakeReset describes an abstract (not yet inferred) reset.
func MakeReset() Type {
	return Type{Kind: KindReset, Width: 1}
}

// MakeAsyncReset describes an asynchronous reset.
func MakeAsyncReset() Type {
	return Type{Kind: KindAsyncReset, Width: 1}
}

// MakeAnalog describes an analog (bidirectional, non-passive) wire bundle.
func MakeAnalog(width int32) Type {
	return Type{Kind: KindAnalog, Width: width}
}

// MakeBundle describes an ordered set of named fields.
func MakeBundle(fields ...Field) Type {
	return Type{Kind: KindBundle, Fields: fields}
}

// MakeVector describes count repetitions of elem.
func MakeVector(elem TypeID, count uint32) Type {
	return Type{Kind: KindVector, Elem: elem, Count: count}
}

// WithDomain returns a copy of an integer descriptor in the given value domain.
func (t Type) WithDomain(d Domain) Type {
	t.Domain = d
	return t
}
