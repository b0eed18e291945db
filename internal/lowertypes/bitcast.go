package lowertypes

import (
	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/types"
)

// visitBitCast packs the input into a single UInt (first leaf in the low
// bits) and, for aggregate results, slices that UInt back into the fields.
func (v *visitor) visitBitCast(op *firrtl.Op) bool {
	input, result := op.Operand(0), op.Result(0)
	if v.in.IsAggregate(result.Type) {
		if _, ok := v.in.Peel(result.Type, v.opts.PreserveAggregate); !ok {
			return false
		}
	}

	var flat *firrtl.Value
	if fields, ok := v.in.Peel(input.Type, false); ok {
		var upto int32
		for _, f := range fields {
			w := v.in.MustBitWidth(f.Type)
			if w == 0 {
				continue
			}
			src := v.b.BitCastOrFold(v.in.UInt(w), v.subWhatever(input, f.Index))
			if upto == 0 {
				flat = src
			} else {
				flat = v.b.Cat(src, flat)
			}
			upto += w
		}
	} else {
		flat = v.b.AsUIntOrFold(input)
	}
	if flat == nil {
		flat = v.b.Constant(v.in.UInt(0), 0)
	}

	if v.in.IsAggregate(result.Type) {
		var upto int32
		return v.lowerProducer(op, func(f types.FlatField, _ annotations.Set) *firrtl.Op {
			w := v.in.MustBitWidth(f.Type)
			if w == 0 {
				return v.b.Invalid(f.Type).DefiningOp()
			}
			bits := v.b.Bits(flat, upto+w-1, upto)
			upto += w
			return v.b.BitCast(f.Type, bits).DefiningOp()
		})
	}

	switch v.in.Kind(result.Type) {
	case types.KindUInt:
	case types.KindSInt:
		flat = v.b.AsSInt(flat)
	default:
		flat = v.b.Cast(result.Type, flat)
	}
	result.ReplaceAllUsesWith(flat)
	return true
}
