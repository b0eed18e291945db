package lowertypes

import (
	"fortio.org/safecast"

	"firlower/internal/firrtl"
	"firlower/internal/types"
)

// visitSubaccess lowers a dynamic read. Empty vectors read as invalid,
// constant indices become static accesses, anything else selects among all
// elements with a multibit mux whose inputs run from the highest index down.
func (v *visitor) visitSubaccess(op *firrtl.Op) bool {
	input, index := op.Operand(0), op.Operand(1)
	result := op.Result(0)
	n := v.in.NumElements(input.Type)

	if n == 0 {
		result.ReplaceAllUsesWith(v.b.Invalid(result.Type))
		return true
	}

	if def := index.DefiningOp(); def != nil && def.Kind == firrtl.OpConstant {
		i, err := safecast.Conv[int](def.Const)
		if err != nil || i >= n {
			invariantf(v.mod.Name, "constant index %d out of range for %s", def.Const, v.in.String(input.Type))
		}
		result.ReplaceAllUsesWith(v.b.Subindex(input, i))
		return true
	}

	inputs := make([]*firrtl.Value, 0, n)
	for i := n - 1; i >= 0; i-- {
		inputs = append(inputs, v.b.Subindex(input, i))
	}
	result.ReplaceAllUsesWith(v.b.MultibitMux(index, inputs...))
	return true
}

// isNotSubaccess reports whether op is a plain access: a subfield, a
// subindex, or a subaccess that is really a subindex because its index is
// constant and the vector is not empty.
func (v *visitor) isNotSubaccess(op *firrtl.Op) bool {
	if op.Kind != firrtl.OpSubaccess {
		return true
	}
	def := op.Operand(1).DefiningOp()
	return def != nil && def.Kind == firrtl.OpConstant && v.in.NumElements(op.Operand(0).Type) != 0
}

// writePath collects the accesses feeding the destination of a connect,
// innermost first, trimmed so that the last one is a dynamic subaccess.
func (v *visitor) writePath(op *firrtl.Op) []*firrtl.Op {
	var path []*firrtl.Op
	def := op.Operand(0).DefiningOp()
	for def != nil && isAccess(def.Kind) {
		path = append(path, def)
		def = def.Operand(0).DefiningOp()
	}
	for len(path) > 0 && v.isNotSubaccess(path[len(path)-1]) {
		path = path[:len(path)-1]
	}
	return path
}

func isAccess(k firrtl.OpKind) bool {
	return k == firrtl.OpSubfield || k == firrtl.OpSubindex || k == firrtl.OpSubaccess
}

// processSAPath expands a connect whose destination goes through a dynamic
// subaccess. The connect is left without operands for the caller to erase;
// accesses of the old path are erased as far up as they became unused.
func (v *visitor) processSAPath(op *firrtl.Op) bool {
	path := v.writePath(op)
	if len(path) == 0 {
		return false
	}
	v.lowerSAWritePath(op, path)
	op.DropOperands()
	for _, access := range path {
		if access.Result(0).HasUses() {
			break
		}
		access.Erase()
	}
	return true
}

// lowerSAWritePath emits one guarded write per element of the outermost
// dynamically indexed vector:
//
//	when eq(idx, UInt<w>(i)) { path'[i] <= src }
//
// where path' replays the accesses below the subaccess on the constant
// element.
func (v *visitor) lowerSAWritePath(op *firrtl.Op, path []*firrtl.Op) {
	sao := path[len(path)-1]
	vec, index := sao.Operand(0), sao.Operand(1)
	n := v.in.NumElements(vec.Type)
	n64, err := safecast.Conv[uint64](n)
	if err != nil {
		invariantf(v.mod.Name, "vector size %d: %v", n, err)
	}
	selType := v.in.UInt(max(1, types.CeilLog2(n64)))
	src := op.Operand(1)

	for i := 0; i < n; i++ {
		cond := v.b.Eq(index, v.b.Constant(selType, uint64(i)))
		v.b.When(cond, func() {
			leaf := v.b.Subindex(vec, i)
			for j := len(path) - 2; j >= 0; j-- {
				leaf = v.cloneAccess(path[j], leaf)
			}
			v.connect(op.Kind, leaf, src)
		}, nil)
	}
}

func (v *visitor) cloneAccess(op *firrtl.Op, input *firrtl.Value) *firrtl.Value {
	switch op.Kind {
	case firrtl.OpSubfield:
		return v.b.Subfield(input, op.Index)
	case firrtl.OpSubindex:
		return v.b.Subindex(input, op.Index)
	case firrtl.OpSubaccess:
		return v.b.Subaccess(input, op.Operand(1))
	default:
		invariantf(v.mod.Name, "unknown accessor %s on a write path", op.Kind)
		return nil
	}
}
