package annotations

import "firlower/internal/types"

// Filter returns the annotations of an aggregate value that apply to one of
// its peeled fields, with field IDs rebased onto the field. needsSym is set
// when the declaration created for the field must carry a symbol so that a
// hierarchical path can keep addressing it.
//
// Rules, for an annotation with field ID id and the field's range
// [field.FieldID, field.FieldID+MaxFieldID(field.Type)]:
//   - no id: copied to every field;
//   - id == 0: the key is dropped and the annotation copied to every field;
//   - id outside the range: the annotation belongs to a sibling and is dropped;
//   - id inside the range: rebased to id-field.FieldID, where 0 addresses the
//     whole field. A DontTouch landing on a ground field becomes a symbol;
//   - malformed id (see CheckFieldID): dropped.
func Filter(in *types.Interner, annos Set, field types.FlatField) (out Set, needsSym bool) {
	if len(annos) == 0 {
		return nil, false
	}
	isGround := in.IsGround(field.Type)
	maxID := field.FieldID + in.MaxFieldID(field.Type)

	out = make(Set, 0, len(annos))
	for _, anno := range annos {
		id, hasID, err := anno.uintMember(KeyFieldID)
		if err != nil {
			continue
		}
		if !hasID {
			copied := updateTrackedFieldID(anno, field.FieldID)
			if isGround && isNonLocal(copied) {
				needsSym = true
			}
			out = append(out, copied)
			continue
		}
		stripped := anno.Without(KeyFieldID)

		if id == 0 {
			if isGround && isNonLocal(stripped) {
				needsSym = true
			}
			out = append(out, stripped)
			continue
		}
		if id < field.FieldID || id > maxID {
			continue
		}
		if rel := id - field.FieldID; rel != 0 {
			out = append(out, stripped.WithFieldID(rel))
			continue
		}
		if isGround && stripped.IsClass(ClassDontTouch) {
			needsSym = true
			continue
		}
		if isGround && isNonLocal(stripped) {
			needsSym = true
		}
		out = append(out, stripped)
	}
	return out, needsSym
}

func isNonLocal(a Annotation) bool {
	_, ok := a.NonLocal()
	return ok
}

// IsFieldIDSensitive reports whether the annotation must track the precise
// sub-element it was replicated onto.
func IsFieldIDSensitive(a Annotation) bool {
	return a.IsClass(ClassSignalDriver)
}

// updateTrackedFieldID accumulates fieldID into the tracked field ID of
// field-ID-sensitive annotations; other annotations are returned unchanged.
func updateTrackedFieldID(a Annotation, fieldID uint32) Annotation {
	if fieldID == 0 || !IsFieldIDSensitive(a) {
		return a
	}
	if existing, ok, err := a.uintMember(KeyTrackedFieldID); ok && err == nil {
		fieldID += existing
	}
	return a.With(KeyTrackedFieldID, int64(fieldID))
}

// RetargetPort rewrites the annotations of one memory port after the
// memory's data type was split. oldPort and newPort are the port bundle
// types before and after the split; field is the data field the new memory
// holds. Annotations addressing another field's data are dropped.
func RetargetPort(in *types.Interner, annos Set, oldPort, newPort types.TypeID, field types.FlatField) Set {
	if len(annos) == 0 {
		return nil
	}
	out := make(Set, 0, len(annos))
	for _, anno := range annos {
		id, ok, err := anno.uintMember(KeyFieldID)
		if err != nil {
			continue
		}
		if !ok || id == 0 {
			out = append(out, anno)
			continue
		}
		target := in.IndexForFieldID(oldPort, id)
		targetID := in.FieldID(oldPort, target)
		if id == targetID {
			// The whole port member, e.g. "en" or all of "data".
			out = append(out, anno.WithFieldID(in.FieldID(newPort, target)))
			continue
		}
		if !in.IsAggregate(in.ElementType(oldPort, target)) {
			continue
		}
		// Inside data/mask: field.FieldID is relative to the member.
		base := field.FieldID + targetID
		if id >= base && id <= base+in.MaxFieldID(field.Type) {
			out = append(out, anno.WithFieldID(id-base+in.FieldID(newPort, target)))
		}
	}
	return out
}
