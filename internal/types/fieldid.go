package types

import (
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// Field IDs number the nodes of a type tree in pre-order: the root is 0 and
// every child is numbered before its own children. A ground type has a
// single ID. Annotations use field IDs to address sub-elements, so the
// numbering of a child must not depend on how its parent is later split.

// MaxFieldID returns the largest field ID used inside the type.
func (in *Interner) MaxFieldID(id TypeID) uint32 {
	return in.info(id).maxFieldID
}

// FieldID returns the field ID of the i-th child of an aggregate.
func (in *Interner) FieldID(id TypeID, i int) uint32 {
	t := in.MustLookup(id)
	switch t.Kind {
	case KindBundle:
		return in.info(id).fieldIDs[i]
	case KindVector:
		idx, err := safecast.Conv[uint32](i)
		if err != nil {
			panic(fmt.Errorf("vector index: %w", err))
		}
		return 1 + idx*(in.MaxFieldID(t.Elem)+1)
	default:
		panic(fmt.Sprintf("types: FieldID on ground type %s", t.Kind))
	}
}

// IndexForFieldID returns the index of the child containing fieldID.
// fieldID must be non-zero and within the type.
func (in *Interner) IndexForFieldID(id TypeID, fieldID uint32) int {
	t := in.MustLookup(id)
	if fieldID == 0 || fieldID > in.MaxFieldID(id) {
		panic(fmt.Sprintf("types: field ID %d out of range for %s", fieldID, in.String(id)))
	}
	switch t.Kind {
	case KindBundle:
		ids := in.info(id).fieldIDs
		// Largest i such that ids[i] <= fieldID.
		return sort.Search(len(ids), func(i int) bool { return ids[i] > fieldID }) - 1
	case KindVector:
		return int((fieldID - 1) / (in.MaxFieldID(t.Elem) + 1))
	default:
		panic(fmt.Sprintf("types: IndexForFieldID on ground type %s", t.Kind))
	}
}

// SubFieldID returns the type of the node addressed by fieldID.
func (in *Interner) SubFieldID(id TypeID, fieldID uint32) TypeID {
	for fieldID != 0 {
		idx := in.IndexForFieldID(id, fieldID)
		fieldID -= in.FieldID(id, idx)
		id = in.ElementType(id, idx)
	}
	return id
}

// NumElements returns the number of direct children of an aggregate, 0 for
// ground types.
func (in *Interner) NumElements(id TypeID) int {
	t := in.MustLookup(id)
	switch t.Kind {
	case KindBundle:
		return len(t.Fields)
	case KindVector:
		return int(t.Count)
	default:
		return 0
	}
}

// ElementType returns the type of the i-th child of an aggregate.
func (in *Interner) ElementType(id TypeID, i int) TypeID {
	t := in.MustLookup(id)
	switch t.Kind {
	case KindBundle:
		return t.Fields[i].Type
	case KindVector:
		return t.Elem
	default:
		panic(fmt.Sprintf("types: ElementType on ground type %s", t.Kind))
	}
}

// Kind returns the kind of id.
func (in *Interner) Kind(id TypeID) Kind {
	return in.MustLookup(id).Kind
}

// IsGround reports whether id is a scalar type.
func (in *Interner) IsGround(id TypeID) bool {
	return !in.Kind(id).IsAggregate()
}

// IsAggregate reports whether id is a bundle or vector.
func (in *Interner) IsAggregate(id TypeID) bool {
	return in.Kind(id).IsAggregate()
}

// IsPassive reports whether no field of id is flipped.
func (in *Interner) IsPassive(id TypeID) bool {
	return in.info(id).passive
}

// ContainsAnalog reports whether any leaf of id is analog.
func (in *Interner) ContainsAnalog(id TypeID) bool {
	return in.info(id).analog
}

// HasZeroBitWidth reports whether id is empty or has any zero-width (or not
// yet inferred) leaf.
func (in *Interner) HasZeroBitWidth(id TypeID) bool {
	return in.info(id).zeroWidth
}

// BitWidth returns the total number of bits of id. ok is false when any leaf
// width is unknown.
func (in *Interner) BitWidth(id TypeID) (width int64, ok bool) {
	info := in.info(id)
	return info.bitWidth, info.widthKnown
}

// MustBitWidth returns the bit width of id and panics if it is unknown.
func (in *Interner) MustBitWidth(id TypeID) int32 {
	w, ok := in.BitWidth(id)
	if !ok {
		panic(fmt.Sprintf("types: %s has no known width", in.String(id)))
	}
	w32, err := safecast.Conv[int32](w)
	if err != nil {
		panic(fmt.Errorf("bit width overflow: %w", err))
	}
	return w32
}
