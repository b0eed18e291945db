package firrtl

import (
	"slices"

	"firlower/internal/types"
)

// use is one operand slot referring to a value.
type use struct {
	op  *Op
	idx int
}

// Value is an SSA value: an operation result or a block argument.
type Value struct {
	Type types.TypeID

	def   *Op // defining op, nil for block arguments
	index int // result or argument index
	block *Block
	uses  []use
}

// DefiningOp returns the op producing v, or nil for a block argument.
func (v *Value) DefiningOp() *Op { return v.def }

// IsArgument reports whether v is a block argument.
func (v *Value) IsArgument() bool { return v.def == nil }

// ArgIndex returns the index of a block argument.
func (v *Value) ArgIndex() int { return v.index }

// ResultIndex returns the position of v among its op's results.
func (v *Value) ResultIndex() int { return v.index }

// HasUses reports whether any op uses v.
func (v *Value) HasUses() bool { return len(v.uses) > 0 }

// NumUses returns the number of operand slots referring to v.
func (v *Value) NumUses() int { return len(v.uses) }

// Users returns the distinct ops using v in use order. The slice is a
// snapshot; callers may erase users while iterating it.
func (v *Value) Users() []*Op {
	out := make([]*Op, 0, len(v.uses))
	for _, u := range v.uses {
		if !slices.Contains(out, u.op) {
			out = append(out, u.op)
		}
	}
	return out
}

// ReplaceAllUsesWith redirects every use of v to repl.
func (v *Value) ReplaceAllUsesWith(repl *Value) {
	if v == repl {
		return
	}
	uses := v.uses
	v.uses = nil
	for _, u := range uses {
		u.op.operands[u.idx] = repl
		repl.uses = append(repl.uses, u)
	}
}

func (v *Value) addUse(op *Op, idx int) {
	v.uses = append(v.uses, use{op: op, idx: idx})
}

func (v *Value) removeUse(op *Op, idx int) {
	for i, u := range v.uses {
		if u.op == op && u.idx == idx {
			v.uses = slices.Delete(v.uses, i, i+1)
			return
		}
	}
}

func (v *Value) hasUse(op *Op, idx int) bool {
	return slices.Contains(v.uses, use{op: op, idx: idx})
}
