package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for common ground types.
type Builtins struct {
	Invalid    TypeID
	UInt1      TypeID
	Clock      TypeID
	Reset      TypeID
	AsyncReset TypeID
}

// typeInfo caches structural facts computed once at intern time.
type typeInfo struct {
	maxFieldID uint32
	fieldIDs   []uint32 // bundle: field ID of each member
	passive    bool
	analog     bool
	zeroWidth  bool
	bitWidth   int64
	widthKnown bool
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Identical descriptors always intern to the same TypeID, so type equality
// is TypeID equality. It is safe for concurrent use.
type Interner struct {
	mu       sync.RWMutex
	types    []Type
	infos    []typeInfo
	index    map[string]TypeID
	builtins Builtins
}

// NewInterner constructs an interner seeded with built-in ground types.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[string]TypeID, 64),
	}
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid}, typeInfo{})
	in.builtins.UInt1 = in.Intern(MakeUInt(1))
	in.builtins.Clock = in.Intern(MakeClock())
	in.builtins.Reset = in.Intern(MakeReset())
	in.builtins.AsyncReset = in.Intern(MakeAsyncReset())
	return in
}

// Builtins returns TypeIDs for built-in ground types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
// Child types referenced by the descriptor must already be interned.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	in.mu.RLock()
	id, ok := in.index[key]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.index[key]; ok {
		return id
	}
	if t.Kind == KindBundle {
		t.Fields = slices.Clone(t.Fields)
	}
	id = in.internRaw(t, in.computeInfo(t))
	in.index[key] = id
	return id
}

// UInt interns UInt<width>.
func (in *Interner) UInt(width int32) TypeID { return in.Intern(MakeUInt(width)) }

// SInt interns SInt<width>.
func (in *Interner) SInt(width int32) TypeID { return in.Intern(MakeSInt(width)) }

// Bundle interns a bundle of the given fields.
func (in *Interner) Bundle(fields ...Field) TypeID { return in.Intern(MakeBundle(fields...)) }

// Vector interns elem[count].
func (in *Interner) Vector(elem TypeID, count uint32) TypeID {
	return in.Intern(MakeVector(elem, count))
}

// internRaw adds the descriptor to the storage without consulting the map.
// Callers hold the write lock, except during construction.
func (in *Interner) internRaw(t Type, info typeInfo) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.infos = append(in.infos, info)
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Len returns the number of interned types, including the invalid sentinel.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.types)
}

func (in *Interner) info(id TypeID) typeInfo {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.infos) {
		panic("types: invalid TypeID")
	}
	return in.infos[id]
}

// computeInfo derives cached facts for t. Callers hold the write lock, so
// child infos are read directly.
func (in *Interner) computeInfo(t Type) typeInfo {
	child := func(id TypeID) typeInfo {
		if id == NoTypeID || int(id) >= len(in.infos) {
			panic(fmt.Sprintf("types: %s references unknown TypeID %d", t.Kind, id))
		}
		return in.infos[id]
	}
	switch t.Kind {
	case KindBundle:
		info := typeInfo{passive: true, widthKnown: true, zeroWidth: len(t.Fields) == 0}
		info.fieldIDs = make([]uint32, len(t.Fields))
		next := uint32(1)
		for i, f := range t.Fields {
			ci := child(f.Type)
			info.fieldIDs[i] = next
			next += ci.maxFieldID + 1
			info.passive = info.passive && ci.passive && !f.Flip
			info.analog = info.analog || ci.analog
			info.zeroWidth = info.zeroWidth || ci.zeroWidth
			info.widthKnown = info.widthKnown && ci.widthKnown
			info.bitWidth += ci.bitWidth
		}
		info.maxFieldID = next - 1
		return info
	case KindVector:
		ci := child(t.Elem)
		count := int64(t.Count)
		span := uint64(ci.maxFieldID+1) * uint64(t.Count)
		maxID, err := safecast.Conv[uint32](span)
		if err != nil {
			panic(fmt.Errorf("vector field IDs overflow: %w", err))
		}
		return typeInfo{
			maxFieldID: maxID,
			passive:    ci.passive,
			analog:     ci.analog,
			zeroWidth:  t.Count == 0 || ci.zeroWidth,
			bitWidth:   ci.bitWidth * count,
			widthKnown: ci.widthKnown,
		}
	default:
		info := typeInfo{passive: true, analog: t.Kind == KindAnalog}
		if t.Width >= 0 {
			info.bitWidth = int64(t.Width)
			info.widthKnown = true
		}
		// Unknown widths count as zero width: they cannot be preserved whole.
		info.zeroWidth = !info.widthKnown || info.bitWidth == 0
		return info
	}
}

// typeKey renders a canonical identity for a descriptor. Children are
// referenced by TypeID, so the key is linear in the top layer only.
func typeKey(t Type) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(t.Kind)))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(int(t.Width)))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(int(t.Domain)))
	sb.WriteByte('/')
	sb.WriteString(strconv.FormatUint(uint64(t.Elem), 10))
	sb.WriteByte('/')
	sb.WriteString(strconv.FormatUint(uint64(t.Count), 10))
	for _, f := range t.Fields {
		sb.WriteByte('|')
		if f.Flip {
			sb.WriteByte('~')
		}
		sb.WriteString(strconv.Quote(f.Name))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(f.Type), 10))
	}
	return sb.String()
}
