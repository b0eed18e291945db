package firrtl

import "firlower/internal/types"

// Block is an ordered list of ops with optional arguments. A module body's
// arguments are the module's ports.
type Block struct {
	parent *Op     // When op owning the block, nil for a module body
	module *Module // set on module bodies
	args   []*Value

	first, last *Op
	n           int
}

func newBlock(parent *Op) *Block {
	return &Block{parent: parent}
}

// Parent returns the op owning b, or nil for a module body.
func (b *Block) Parent() *Op { return b.parent }

// Module returns the module whose body (transitively) contains b.
func (b *Block) Module() *Module {
	for b.parent != nil {
		if b.parent.block == nil {
			return nil
		}
		b = b.parent.block
	}
	return b.module
}

// First returns the first op, or nil.
func (b *Block) First() *Op { return b.first }

// Last returns the last op, or nil.
func (b *Block) Last() *Op { return b.last }

// Len returns the number of ops directly in b.
func (b *Block) Len() int { return b.n }

// Empty reports whether b has no ops.
func (b *Block) Empty() bool { return b.n == 0 }

// Ops returns a snapshot of the ops directly in b.
func (b *Block) Ops() []*Op {
	out := make([]*Op, 0, b.n)
	for op := b.first; op != nil; op = op.next {
		out = append(out, op)
	}
	return out
}

// Walk calls fn for every op in b, recursing into nested blocks.
func (b *Block) Walk(fn func(*Op)) {
	for op := b.first; op != nil; {
		next := op.next
		op.Walk(fn)
		op = next
	}
}

// Arg returns argument i.
func (b *Block) Arg(i int) *Value { return b.args[i] }

// Args returns the argument list. It must not be modified.
func (b *Block) Args() []*Value { return b.args }

// NumArgs returns the number of arguments.
func (b *Block) NumArgs() int { return len(b.args) }

// InsertArg inserts a new argument at position i.
func (b *Block) InsertArg(i int, t types.TypeID) *Value {
	v := &Value{Type: t, block: b}
	b.args = append(b.args, nil)
	copy(b.args[i+1:], b.args[i:])
	b.args[i] = v
	b.renumberArgs(i)
	return v
}

// EraseArg removes argument i; it must be unused.
func (b *Block) EraseArg(i int) {
	if b.args[i].HasUses() {
		panic("firrtl: erasing a block argument that still has uses")
	}
	b.args[i].block = nil
	b.args = append(b.args[:i], b.args[i+1:]...)
	b.renumberArgs(i)
}

func (b *Block) renumberArgs(from int) {
	for i := from; i < len(b.args); i++ {
		b.args[i].index = i
	}
}

// insertBefore links op before at, or at the end when at is nil.
func (b *Block) insertBefore(op, at *Op) {
	op.block = b
	if at == nil {
		op.prev, op.next = b.last, nil
		if b.last != nil {
			b.last.next = op
		} else {
			b.first = op
		}
		b.last = op
	} else {
		op.prev, op.next = at.prev, at
		if at.prev != nil {
			at.prev.next = op
		} else {
			b.first = op
		}
		at.prev = op
	}
	b.n++
}

func (b *Block) unlink(op *Op) {
	if op.prev != nil {
		op.prev.next = op.next
	} else {
		b.first = op.next
	}
	if op.next != nil {
		op.next.prev = op.prev
	} else {
		b.last = op.prev
	}
	op.prev, op.next, op.block = nil, nil, nil
	b.n--
}

// eraseAll erases every op bottom-up so that uses disappear before defs.
func (b *Block) eraseAll() {
	for op := b.last; op != nil; {
		prev := op.prev
		for _, r := range op.results {
			for _, u := range append([]use(nil), r.uses...) {
				u.op.SetOperand(u.idx, nil)
			}
		}
		op.Erase()
		op = prev
	}
}
