package types

import (
	"fmt"
	"math/bits"

	"fortio.org/safecast"
)

// PortKind is the access mode of a memory port.
type PortKind uint8

const (
	PortRead PortKind = iota
	PortWrite
	PortReadWrite
)

func (k PortKind) String() string {
	switch k {
	case PortRead:
		return "read"
	case PortWrite:
		return "write"
	case PortReadWrite:
		return "rw"
	default:
		return fmt.Sprintf("PortKind(%d)", k)
	}
}

// CeilLog2 returns the number of bits needed to index n elements.
func CeilLog2(n uint64) int32 {
	if n <= 1 {
		return 0
	}
	w, err := safecast.Conv[int32](bits.Len64(n - 1))
	if err != nil {
		panic(err)
	}
	return w
}

// MaskType mirrors data with UInt<1> leaves.
func (in *Interner) MaskType(data TypeID) TypeID {
	t := in.MustLookup(data)
	switch t.Kind {
	case KindBundle:
		fields := make([]Field, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = Field{Name: f.Name, Flip: f.Flip, Type: in.MaskType(f.Type)}
		}
		return in.Bundle(fields...)
	case KindVector:
		return in.Vector(in.MaskType(t.Elem), t.Count)
	default:
		return in.builtins.UInt1
	}
}

// MemPortType returns the bundle type of a memory port with the given data
// type. Flipped members are driven by the memory.
func (in *Interner) MemPortType(depth uint64, data TypeID, kind PortKind) TypeID {
	addrWidth := max(int32(1), CeilLog2(depth))
	fields := []Field{
		{Name: "addr", Type: in.UInt(addrWidth)},
		{Name: "en", Type: in.builtins.UInt1},
		{Name: "clk", Type: in.builtins.Clock},
	}
	switch kind {
	case PortRead:
		fields = append(fields, Field{Name: "data", Flip: true, Type: data})
	case PortWrite:
		fields = append(fields,
			Field{Name: "data", Type: data},
			Field{Name: "mask", Type: in.MaskType(data)},
		)
	case PortReadWrite:
		fields = append(fields,
			Field{Name: "rdata", Flip: true, Type: data},
			Field{Name: "wmode", Type: in.builtins.UInt1},
			Field{Name: "wdata", Type: data},
			Field{Name: "wmask", Type: in.MaskType(data)},
		)
	default:
		panic(fmt.Sprintf("types: unknown memory port kind %d", kind))
	}
	return in.Bundle(fields...)
}

// IsMemDataField reports whether a memory port member carries (a mask of)
// the memory's data type.
func IsMemDataField(name string) bool {
	switch name {
	case "data", "mask", "rdata", "wdata", "wmask":
		return true
	default:
		return false
	}
}
