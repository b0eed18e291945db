package lowertypes

import (
	"firlower/internal/annotations"
	"firlower/internal/firrtl"
)

// lowerPorts replaces every aggregate port, left to right, with its peeled
// fields inserted right after it, then removes the original. Fields that
// are still aggregates are reached again by the same loop.
func (v *visitor) lowerPorts() {
	preserve := v.opts.allowedToPreserve(v.mod)
	for i := 0; i < len(v.mod.Ports); i++ {
		old := v.mod.Ports[i]
		fields, ok := v.in.Peel(old.Type, preserve)
		if !ok {
			continue
		}

		lowered := make([]*firrtl.Value, 0, len(fields))
		for j, f := range fields {
			name := old.Name + f.Suffix
			symBase := name
			if old.Sym != "" {
				symBase = old.Sym + f.Suffix
			}
			annos, needsSym := annotations.Filter(v.in, old.Annos, f)

			port := firrtl.Port{
				Name:  name,
				Type:  f.Type,
				Dir:   old.Dir.Flip(f.Flipped),
				Annos: annos,
			}
			if needsSym || old.Sym != "" {
				port.Sym = v.ns.NewName(symBase)
			}
			lowered = append(lowered, v.mod.InsertPort(i+1+j, port))

			if old.Sym != "" {
				v.recordRename(old.Sym, port.Sym, f.Type, Target{Module: v.mod, PortSym: port.Sym})
			}
		}

		if arg := v.mod.Arg(i); arg != nil {
			v.processUsers(arg, lowered)
		}
		v.mod.ErasePort(i)
		i--
		v.changed = true
	}
}
