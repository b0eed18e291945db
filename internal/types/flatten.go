package types

import "strconv"

// FlatField describes one child produced by peeling a single layer off an
// aggregate type.
type FlatField struct {
	// Type is the child type; it may itself be an aggregate.
	Type TypeID
	// Index is the position of the child in its parent.
	Index int
	// FieldID is the child's field ID relative to the parent.
	FieldID uint32
	// Suffix disambiguates the declaration created for the child ("_a", "_3").
	Suffix string
	// Flipped is set when the child flows opposite to its parent.
	Flipped bool
}

// IsPreservable reports whether an aggregate may be kept whole: it must be
// passive, contain no analog leaf and have no zero-width leaf.
func (in *Interner) IsPreservable(id TypeID) bool {
	return in.IsPassive(id) && !in.ContainsAnalog(id) && !in.HasZeroBitWidth(id)
}

// Peel splits one layer of an aggregate into its children. It reports
// false when nothing is decomposed: id is ground, or preserveAggregate is set
// and the type is preservable. An empty aggregate yields no fields but still
// reports true so its producer is removed.
func (in *Interner) Peel(id TypeID, preserveAggregate bool) ([]FlatField, bool) {
	if preserveAggregate && in.IsAggregate(id) && in.IsPreservable(id) {
		return nil, false
	}

	t := in.MustLookup(id)
	switch t.Kind {
	case KindBundle:
		fields := make([]FlatField, 0, len(t.Fields))
		for i, f := range t.Fields {
			fields = append(fields, FlatField{
				Type:    f.Type,
				Index:   i,
				FieldID: in.FieldID(id, i),
				Suffix:  "_" + f.Name,
				Flipped: f.Flip,
			})
		}
		return fields, true
	case KindVector:
		fields := make([]FlatField, 0, t.Count)
		for i := 0; i < int(t.Count); i++ {
			fields = append(fields, FlatField{
				Type:    t.Elem,
				Index:   i,
				FieldID: in.FieldID(id, i),
				Suffix:  "_" + strconv.Itoa(i),
			})
		}
		return fields, true
	default:
		return nil, false
	}
}
