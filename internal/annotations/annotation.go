// Package annotations models the metadata dictionaries attached to
// operations and ports, and retargets them when an aggregate value is split
// into its fields.
package annotations

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"firlower/internal/types"
)

// Well-known annotation keys.
const (
	KeyClass = "class"
	// KeyFieldID addresses a sub-element of the annotated value. Absent or
	// zero means the whole value.
	KeyFieldID = "circt.fieldID"
	// KeyNonLocal names the hierarchical path the annotation is scoped to.
	KeyNonLocal = "circt.nonlocal"
	// KeyTrackedFieldID is accumulated on field-ID-sensitive classes every
	// time their target is split.
	KeyTrackedFieldID = "fieldID"
)

// Well-known annotation classes.
const (
	ClassDontTouch    = "firrtl.transforms.DontTouchAnnotation"
	ClassSignalDriver = "sifive.enterprise.grandcentral.SignalDriverAnnotation"
)

// Member is one key/value pair of an annotation. Values are string, int64
// or bool.
type Member struct {
	Key   string
	Value any
}

// Annotation is an immutable-by-convention dictionary with unique keys kept
// in key order. Mutating helpers return a new Annotation.
type Annotation struct {
	members []Member
}

// New builds an annotation of the given class with extra members.
func New(class string, members ...Member) Annotation {
	a := Annotation{}
	a = a.With(KeyClass, class)
	for _, m := range members {
		a = a.With(m.Key, m.Value)
	}
	return a
}

// FromMembers builds an annotation from arbitrary members; later duplicates win.
func FromMembers(members []Member) Annotation {
	a := Annotation{}
	for _, m := range members {
		a = a.With(m.Key, m.Value)
	}
	return a
}

// Members returns a copy of the members in key order.
func (a Annotation) Members() []Member {
	return slices.Clone(a.members)
}

// Len returns the number of members.
func (a Annotation) Len() int { return len(a.members) }

func (a Annotation) find(key string) (int, bool) {
	return slices.BinarySearchFunc(a.members, key, func(m Member, k string) int {
		return strings.Compare(m.Key, k)
	})
}

// Get returns the value stored under key.
func (a Annotation) Get(key string) (any, bool) {
	i, ok := a.find(key)
	if !ok {
		return nil, false
	}
	return a.members[i].Value, true
}

// With returns a copy of a with key set to value.
func (a Annotation) With(key string, value any) Annotation {
	i, ok := a.find(key)
	members := slices.Clone(a.members)
	if ok {
		members[i].Value = value
	} else {
		members = slices.Insert(members, i, Member{Key: key, Value: value})
	}
	return Annotation{members: members}
}

// Without returns a copy of a with key removed.
func (a Annotation) Without(key string) Annotation {
	i, ok := a.find(key)
	if !ok {
		return a
	}
	members := slices.Clone(a.members)
	return Annotation{members: slices.Delete(members, i, i+1)}
}

// Class returns the class member, or "".
func (a Annotation) Class() string {
	v, _ := a.Get(KeyClass)
	s, _ := v.(string)
	return s
}

// IsClass reports whether the annotation is of the given class.
func (a Annotation) IsClass(class string) bool {
	return a.Class() == class
}

// FieldID returns the circt.fieldID member. A malformed value reports
// false; CheckFieldID tells it apart from an absent one.
func (a Annotation) FieldID() (uint32, bool) {
	id, ok, err := a.uintMember(KeyFieldID)
	return id, ok && err == nil
}

// CheckFieldID reports a circt.fieldID that is not a 32-bit unsigned
// integer, or that lies past the last field ID of typ. typ may be
// types.NoTypeID to check only the encoding.
func CheckFieldID(in *types.Interner, a Annotation, typ types.TypeID) error {
	id, ok, err := a.uintMember(KeyFieldID)
	if err != nil || !ok || typ == types.NoTypeID {
		return err
	}
	if maxID := in.MaxFieldID(typ); id > maxID {
		return fmt.Errorf("%s %d out of range for %s (max %d)", KeyFieldID, id, in.String(typ), maxID)
	}
	return nil
}

// WithFieldID returns a copy addressing fieldID; zero removes the key.
func (a Annotation) WithFieldID(fieldID uint32) Annotation {
	if fieldID == 0 {
		return a.Without(KeyFieldID)
	}
	return a.With(KeyFieldID, int64(fieldID))
}

// NonLocal returns the hierarchical path name the annotation is scoped to.
func (a Annotation) NonLocal() (string, bool) {
	v, ok := a.Get(KeyNonLocal)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// uintMember reads an integer member. present is false when the key is
// missing; err is set when the value is not a valid uint32.
func (a Annotation) uintMember(key string) (n uint32, present bool, err error) {
	v, ok := a.Get(key)
	if !ok {
		return 0, false, nil
	}
	switch x := v.(type) {
	case int64:
		n, err = safecast.Conv[uint32](x)
	case int:
		n, err = safecast.Conv[uint32](x)
	case uint32:
		n = x
	default:
		err = fmt.Errorf("value %v is %T, not an integer", v, v)
	}
	if err != nil {
		return 0, true, fmt.Errorf("annotation key %s: %w", key, err)
	}
	return n, true, nil
}

// Equal reports whether two annotations have the same members.
func (a Annotation) Equal(b Annotation) bool {
	return slices.Equal(a.members, b.members)
}

// String renders the annotation as {key = value, ...}.
func (a Annotation) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, m := range a.members {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(m.Key)
		sb.WriteString(" = ")
		switch v := m.Value.(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		default:
			fmt.Fprint(&sb, v)
		}
	}
	sb.WriteByte('}')
	return sb.String()
}
