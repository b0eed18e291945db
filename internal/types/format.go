package types

import (
	"strconv"
	"strings"
)

// String renders id in FIRRTL-like syntax, e.g. "{a: UInt<1>, flip b: SInt<2>}"
// or "UInt<2>[4]".
func (in *Interner) String(id TypeID) string {
	var sb strings.Builder
	in.format(&sb, id)
	return sb.String()
}

func (in *Interner) format(sb *strings.Builder, id TypeID) {
	t, ok := in.Lookup(id)
	if !ok {
		sb.WriteString("<invalid>")
		return
	}
	switch t.Kind {
	case KindUInt, KindSInt, KindAnalog:
		sb.WriteString(t.Kind.String())
		if t.Width >= 0 {
			sb.WriteByte('<')
			sb.WriteString(strconv.Itoa(int(t.Width)))
			sb.WriteByte('>')
		}
		if t.Domain == DomainFourValued {
			sb.WriteString("!4")
		}
	case KindBundle:
		sb.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			if f.Flip {
				sb.WriteString("flip ")
			}
			sb.WriteString(f.Name)
			sb.WriteString(": ")
			in.format(sb, f.Type)
		}
		sb.WriteByte('}')
	case KindVector:
		in.format(sb, t.Elem)
		sb.WriteByte('[')
		sb.WriteString(strconv.FormatUint(uint64(t.Count), 10))
		sb.WriteByte(']')
	default:
		sb.WriteString(t.Kind.String())
	}
}
