package firrtl

import (
	"fmt"

	"firlower/internal/annotations"
	"firlower/internal/types"
)

// Builder creates ops at an insertion point and infers their result types.
type Builder struct {
	in     *types.Interner
	block  *Block
	before *Op // nil inserts at the end of block
}

// NewBuilder returns a builder without an insertion point.
func NewBuilder(in *types.Interner) *Builder {
	return &Builder{in: in}
}

// Types returns the builder's type interner.
func (b *Builder) Types() *types.Interner { return b.in }

// SetInsertionPoint makes new ops go right before op.
func (b *Builder) SetInsertionPoint(op *Op) {
	b.block, b.before = op.block, op
}

// SetInsertionPointToEnd makes new ops go at the end of blk.
func (b *Builder) SetInsertionPointToEnd(blk *Block) {
	b.block, b.before = blk, nil
}

func (b *Builder) insert(op *Op) *Op {
	if b.block == nil {
		panic("firrtl: builder has no insertion point")
	}
	b.block.insertBefore(op, b.before)
	return op
}

func (b *Builder) create(kind OpKind, operands []*Value, resultTypes ...types.TypeID) *Op {
	return b.insert(newOp(kind, operands, resultTypes))
}

// Create inserts an op of any kind with explicit result types. Payload
// fields are left for the caller; Then and Else blocks are not created.
func (b *Builder) Create(kind OpKind, operands []*Value, resultTypes ...types.TypeID) *Op {
	return b.create(kind, operands, resultTypes...)
}

func (b *Builder) width(t types.TypeID) int32 {
	return b.in.MustLookup(t).Width
}

// Declarations -----------------------------------------------------------------

// Wire declares a wire.
func (b *Builder) Wire(t types.TypeID, name string) *Op {
	op := b.create(OpWire, nil, t)
	op.Name = name
	return op
}

// Reg declares a register clocked by clock.
func (b *Builder) Reg(t types.TypeID, clock *Value, name string) *Op {
	op := b.create(OpReg, []*Value{clock}, t)
	op.Name = name
	return op
}

// RegReset declares a register with a reset value.
func (b *Builder) RegReset(t types.TypeID, clock, reset, init *Value, name string) *Op {
	op := b.create(OpRegReset, []*Value{clock, reset, init}, t)
	op.Name = name
	return op
}

// Node names an expression.
func (b *Builder) Node(input *Value, name string) *Op {
	op := b.create(OpNode, []*Value{input}, input.Type)
	op.Name = name
	return op
}

// Mem declares a memory; result types follow the port kinds of info.
func (b *Builder) Mem(info *MemInfo, name string) *Op {
	resultTypes := make([]types.TypeID, len(info.Ports))
	for i, p := range info.Ports {
		resultTypes[i] = b.in.MemPortType(info.Depth, info.DataType, p.Kind)
	}
	op := b.create(OpMem, nil, resultTypes...)
	op.Name = name
	op.Mem = info
	return op
}

// Instance instantiates module under name; result i is ports[i].
func (b *Builder) Instance(module, name string, ports []InstancePort) *Op {
	resultTypes := make([]types.TypeID, len(ports))
	for i, p := range ports {
		resultTypes[i] = p.Type
	}
	op := b.create(OpInstance, nil, resultTypes...)
	op.Name = name
	op.Inst = &InstanceInfo{Module: module, Ports: ports}
	return op
}

// Expressions ------------------------------------------------------------------

// Constant creates an integer constant of type t.
func (b *Builder) Constant(t types.TypeID, v uint64) *Value {
	op := b.create(OpConstant, nil, t)
	op.Const = v
	return op.Result(0)
}

// Invalid creates an invalid value of type t.
func (b *Builder) Invalid(t types.TypeID) *Value {
	return b.create(OpInvalid, nil, t).Result(0)
}

// Subfield selects field i of a bundle.
func (b *Builder) Subfield(input *Value, i int) *Value {
	t := b.in.MustLookup(input.Type)
	if t.Kind != types.KindBundle || i < 0 || i >= len(t.Fields) {
		panic(fmt.Sprintf("firrtl: subfield %d of %s", i, b.in.String(input.Type)))
	}
	op := b.create(OpSubfield, []*Value{input}, t.Fields[i].Type)
	op.Index = i
	return op.Result(0)
}

// Subindex selects element i of a vector.
func (b *Builder) Subindex(input *Value, i int) *Value {
	t := b.in.MustLookup(input.Type)
	if t.Kind != types.KindVector || i < 0 || i >= int(t.Count) {
		panic(fmt.Sprintf("firrtl: subindex %d of %s", i, b.in.String(input.Type)))
	}
	op := b.create(OpSubindex, []*Value{input}, t.Elem)
	op.Index = i
	return op.Result(0)
}

// Subaccess selects the vector element addressed by a runtime index.
func (b *Builder) Subaccess(input, index *Value) *Value {
	t := b.in.MustLookup(input.Type)
	if t.Kind != types.KindVector {
		panic(fmt.Sprintf("firrtl: subaccess of %s", b.in.String(input.Type)))
	}
	return b.create(OpSubaccess, []*Value{input, index}, t.Elem).Result(0)
}

// Mux selects high when sel is set, low otherwise.
func (b *Builder) Mux(sel, high, low *Value) *Value {
	return b.create(OpMux, []*Value{sel, high, low}, high.Type).Result(0)
}

// MultibitMux selects inputs[len-1-index]; inputs are packed highest index
// first.
func (b *Builder) MultibitMux(index *Value, inputs ...*Value) *Value {
	if len(inputs) == 0 {
		panic("firrtl: multibit mux without inputs")
	}
	operands := append([]*Value{index}, inputs...)
	return b.create(OpMultibitMux, operands, inputs[0].Type).Result(0)
}

// Cast reinterprets input as t without changing bits.
func (b *Builder) Cast(t types.TypeID, input *Value) *Value {
	return b.create(OpCast, []*Value{input}, t).Result(0)
}

// BitCast reinterprets the bits of input as t.
func (b *Builder) BitCast(t types.TypeID, input *Value) *Value {
	return b.create(OpBitCast, []*Value{input}, t).Result(0)
}

// BitCastOrFold is BitCast, returning input unchanged when it already has
// type t.
func (b *Builder) BitCastOrFold(t types.TypeID, input *Value) *Value {
	if input.Type == t {
		return input
	}
	return b.BitCast(t, input)
}

// Cat concatenates hi above lo.
func (b *Builder) Cat(hi, lo *Value) *Value {
	wh, wl := b.width(hi.Type), b.width(lo.Type)
	w := types.UnknownWidth
	if wh >= 0 && wl >= 0 {
		w = wh + wl
	}
	return b.create(OpCat, []*Value{hi, lo}, b.in.UInt(w)).Result(0)
}

// Bits extracts the inclusive bit range [lo, hi].
func (b *Builder) Bits(input *Value, hi, lo int32) *Value {
	if hi < lo {
		panic(fmt.Sprintf("firrtl: bits(%d, %d)", hi, lo))
	}
	op := b.create(OpBits, []*Value{input}, b.in.UInt(hi-lo+1))
	op.Hi, op.Lo = hi, lo
	return op.Result(0)
}

// AsUInt reinterprets a ground value as unsigned.
func (b *Builder) AsUInt(input *Value) *Value {
	return b.create(OpAsUInt, []*Value{input}, b.in.UInt(b.width(input.Type))).Result(0)
}

// AsUIntOrFold is AsUInt, returning unsigned inputs unchanged.
func (b *Builder) AsUIntOrFold(input *Value) *Value {
	if b.in.Kind(input.Type) == types.KindUInt {
		return input
	}
	return b.AsUInt(input)
}

// AsSInt reinterprets a ground value as signed.
func (b *Builder) AsSInt(input *Value) *Value {
	return b.create(OpAsSInt, []*Value{input}, b.in.SInt(b.width(input.Type))).Result(0)
}

// Eq compares two ground values.
func (b *Builder) Eq(lhs, rhs *Value) *Value {
	return b.create(OpEq, []*Value{lhs, rhs}, b.in.Builtins().UInt1).Result(0)
}

// And is the bitwise and of two unsigned values.
func (b *Builder) And(lhs, rhs *Value) *Value {
	w := max(b.width(lhs.Type), b.width(rhs.Type))
	return b.create(OpAnd, []*Value{lhs, rhs}, b.in.UInt(w)).Result(0)
}

// Not is the bitwise complement.
func (b *Builder) Not(input *Value) *Value {
	return b.create(OpNot, []*Value{input}, b.in.UInt(b.width(input.Type))).Result(0)
}

// Statements -------------------------------------------------------------------

// Connect drives dest from src.
func (b *Builder) Connect(dest, src *Value) *Op {
	return b.create(OpConnect, []*Value{dest, src})
}

// StrictConnect drives dest from src of exactly the same type.
func (b *Builder) StrictConnect(dest, src *Value) *Op {
	return b.create(OpStrictConnect, []*Value{dest, src})
}

// When creates a conditional. thenFn and elseFn populate the branches with
// the builder positioned inside them; a nil elseFn creates no else block.
func (b *Builder) When(cond *Value, thenFn, elseFn func()) *Op {
	op := b.create(OpWhen, []*Value{cond})
	op.Then = newBlock(op)
	if elseFn != nil {
		op.Else = newBlock(op)
	}
	saved, savedBefore := b.block, b.before
	if thenFn != nil {
		b.SetInsertionPointToEnd(op.Then)
		thenFn()
	}
	if elseFn != nil {
		b.SetInsertionPointToEnd(op.Else)
		elseFn()
	}
	b.block, b.before = saved, savedBefore
	return op
}

// Annotate appends annos to op and returns it.
func Annotate(op *Op, annos ...annotations.Annotation) *Op {
	op.Annos = append(op.Annos, annos...)
	return op
}
