package annotations

import "slices"

// Set is an ordered list of annotations attached to one target.
type Set []Annotation

// Clone returns a shallow copy; annotations themselves are immutable.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Has reports whether any annotation is of the given class.
func (s Set) Has(class string) bool {
	return slices.ContainsFunc(s, func(a Annotation) bool { return a.IsClass(class) })
}

// RemoveIf drops every annotation matching pred and returns how many were
// removed.
func (s *Set) RemoveIf(pred func(Annotation) bool) int {
	before := len(*s)
	*s = slices.DeleteFunc(*s, pred)
	return before - len(*s)
}

// Add appends annotations.
func (s *Set) Add(annos ...Annotation) {
	*s = append(*s, annos...)
}

// Equal reports element-wise equality.
func (s Set) Equal(o Set) bool {
	return slices.EqualFunc(s, o, Annotation.Equal)
}
