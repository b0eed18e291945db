package lowertypes

import (
	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/types"
)

// visitMem splits a memory with an aggregate data type into one memory per
// peeled field. The old port bundles are first moved onto wires named
// <mem>_<port>; the wires are then connected member by member to the new
// memories. Memories are never preserved.
func (v *visitor) visitMem(op *firrtl.Op) bool {
	fields, ok := v.in.Peel(op.Mem.DataType, false)
	if !ok {
		return false
	}

	oldPorts := make([]*firrtl.Value, op.NumResults())
	for i, result := range op.Results() {
		wire := v.b.Wire(result.Type, op.Name+"_"+op.Mem.Ports[i].Name)
		oldPorts[i] = wire.Result(0)
		result.ReplaceAllUsesWith(oldPorts[i])
	}

	newMems := make([]*firrtl.Op, len(fields))
	for i, f := range fields {
		newMems[i] = v.cloneMem(op, f)
	}

	for i, port := range oldPorts {
		portType := v.in.MustLookup(port.Type)
		for fi, pf := range portType.Fields {
			oldField := v.b.Subfield(port, fi)
			if types.IsMemDataField(pf.Name) {
				for _, f := range fields {
					src := v.subWhatever(oldField, f.Index)
					dest := v.b.Subfield(newMems[f.Index].Result(i), fi)
					if pf.Flip {
						src, dest = dest, src
					}
					v.b.Connect(dest, src)
				}
				continue
			}
			for _, mem := range newMems {
				v.b.Connect(v.b.Subfield(mem.Result(i), fi), oldField)
			}
		}
	}
	return true
}

// cloneMem creates the memory holding field f of op's data type. Port
// annotations are re-targeted onto the narrower port bundles.
func (v *visitor) cloneMem(op *firrtl.Op, f types.FlatField) *firrtl.Op {
	info := op.Mem.Clone()
	info.DataType = f.Type
	mem := v.b.Mem(info, op.Name+f.Suffix)
	mem.NameKind = op.NameKind
	mem.Annos = op.Annos.Clone()

	for i := range info.Ports {
		oldPort := op.Result(i).Type
		newPort := mem.Result(i).Type
		info.Ports[i].Annos = annotations.RetargetPort(v.in, op.Mem.Ports[i].Annos, oldPort, newPort, f)
	}

	if op.Sym != "" {
		mem.Sym = v.ns.NewName(op.Sym + f.Suffix)
		v.recordRename(op.Sym, mem.Sym, f.Type, Target{Module: v.mod, Op: mem})
	}
	return mem
}
