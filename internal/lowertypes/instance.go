package lowertypes

import (
	"firlower/internal/annotations"
	"firlower/internal/firrtl"
)

// visitInstance re-derives the port list of an instance from the lowered
// signature of the instantiated module and redistributes the old results.
// The preservation policy is the one of the instantiated module, so both
// sides of the boundary agree.
func (v *visitor) visitInstance(op *firrtl.Op) bool {
	ref := v.c.Module(op.Inst.Module)
	if ref == nil {
		invariantf(v.mod.Name, "instance %s of unknown module %s", op.Name, op.Inst.Module)
	}
	preserve := v.opts.allowedToPreserve(ref)

	var (
		newPorts  []firrtl.InstancePort
		endFields = []int{0}
		skip      = true
		needsSym  bool
	)
	for i, port := range op.Inst.Ports {
		srcType := op.Result(i).Type
		fields, ok := v.in.Peel(srcType, preserve)
		if !ok {
			newPorts = append(newPorts, port)
			endFields = append(endFields, len(newPorts))
			continue
		}
		skip = false
		for _, f := range fields {
			annos, fieldNeedsSym := annotations.Filter(v.in, port.Annos, f)
			needsSym = needsSym || fieldNeedsSym
			newPorts = append(newPorts, firrtl.InstancePort{
				Name:  port.Name + f.Suffix,
				Dir:   port.Dir.Flip(f.Flipped),
				Type:  f.Type,
				Annos: annos,
			})
		}
		endFields = append(endFields, len(newPorts))
	}
	if skip {
		return false
	}

	sym := op.Sym
	if sym == "" && needsSym {
		sym = v.ns.NewName("sym" + op.Name)
	}

	inst := v.b.Instance(op.Inst.Module, op.Name, newPorts)
	inst.NameKind = op.NameKind
	inst.Annos = op.Annos.Clone()
	inst.Inst.LowerToBind = op.Inst.LowerToBind
	inst.Sym = sym

	for i := range op.Inst.Ports {
		lowered := inst.Results()[endFields[i]:endFields[i+1]]
		old := op.Result(i)
		if len(lowered) == 1 && lowered[0].Type == old.Type {
			old.ReplaceAllUsesWith(lowered[0])
			continue
		}
		v.processUsers(old, lowered)
	}
	return true
}
