package lowertypes

import (
	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/types"
)

// Declarations -----------------------------------------------------------------

func (v *visitor) visitWire(op *firrtl.Op) bool {
	return v.lowerProducer(op, func(f types.FlatField, annos annotations.Set) *firrtl.Op {
		return firrtl.Annotate(v.b.Wire(f.Type, ""), annos...)
	})
}

func (v *visitor) visitReg(op *firrtl.Op) bool {
	clock := op.Operand(0)
	return v.lowerProducer(op, func(f types.FlatField, annos annotations.Set) *firrtl.Op {
		return firrtl.Annotate(v.b.Reg(f.Type, clock, ""), annos...)
	})
}

func (v *visitor) visitRegReset(op *firrtl.Op) bool {
	clock, reset, init := op.Operand(0), op.Operand(1), op.Operand(2)
	return v.lowerProducer(op, func(f types.FlatField, annos annotations.Set) *firrtl.Op {
		resetVal := v.subWhatever(init, f.Index)
		return firrtl.Annotate(v.b.RegReset(f.Type, clock, reset, resetVal, ""), annos...)
	})
}

func (v *visitor) visitNode(op *firrtl.Op) bool {
	input := op.Operand(0)
	return v.lowerProducer(op, func(f types.FlatField, annos annotations.Set) *firrtl.Op {
		return firrtl.Annotate(v.b.Node(v.subWhatever(input, f.Index), ""), annos...)
	})
}

// Expressions ------------------------------------------------------------------

func (v *visitor) visitInvalid(op *firrtl.Op) bool {
	return v.lowerProducer(op, func(f types.FlatField, _ annotations.Set) *firrtl.Op {
		return v.b.Invalid(f.Type).DefiningOp()
	})
}

func (v *visitor) visitMux(op *firrtl.Op) bool {
	sel, high, low := op.Operand(0), op.Operand(1), op.Operand(2)
	return v.lowerProducer(op, func(f types.FlatField, _ annotations.Set) *firrtl.Op {
		h := v.subWhatever(high, f.Index)
		l := v.subWhatever(low, f.Index)
		return v.b.Mux(sel, h, l).DefiningOp()
	})
}

func (v *visitor) visitMultibitMux(op *firrtl.Op) bool {
	operands := op.Operands()
	index, inputs := operands[0], operands[1:]
	return v.lowerProducer(op, func(f types.FlatField, _ annotations.Set) *firrtl.Op {
		subs := make([]*firrtl.Value, len(inputs))
		for i, input := range inputs {
			subs[i] = v.subWhatever(input, f.Index)
		}
		return v.b.MultibitMux(index, subs...).DefiningOp()
	})
}

func (v *visitor) visitCast(op *firrtl.Op) bool {
	input := op.Operand(0)
	return v.lowerProducer(op, func(f types.FlatField, _ annotations.Set) *firrtl.Op {
		return v.b.Cast(f.Type, v.subWhatever(input, f.Index)).DefiningOp()
	})
}

// Statements -------------------------------------------------------------------

// visitConnect expands aggregate connects field by field. Connects are
// expanded even when aggregates are preserved.
func (v *visitor) visitConnect(op *firrtl.Op) bool {
	if v.processSAPath(op) {
		return true
	}
	dest, src := op.Operand(0), op.Operand(1)
	fields, ok := v.in.Peel(dest.Type, false)
	if !ok {
		return false
	}
	for _, f := range fields {
		d := v.subWhatever(dest, f.Index)
		s := v.subWhatever(src, f.Index)
		if f.Flipped {
			d, s = s, d
		}
		v.connect(op.Kind, d, s)
	}
	return true
}

// visitWhen lowers both branches; the condition is always ground.
func (v *visitor) visitWhen(op *firrtl.Op) bool {
	v.lowerBlock(op.Then)
	if op.Else != nil {
		v.lowerBlock(op.Else)
	}
	return false
}
