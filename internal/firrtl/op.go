package firrtl

import (
	"fmt"
	"slices"

	"firlower/internal/annotations"
	"firlower/internal/types"
)

// MemPort is one port of a memory declaration.
type MemPort struct {
	Name  string
	Kind  types.PortKind
	Annos annotations.Set
}

// MemInfo is the payload of a memory declaration. Result i is the bundle of
// port i, typed by types.MemPortType(Depth, DataType, Ports[i].Kind).
type MemInfo struct {
	DataType     types.TypeID
	Depth        uint64
	ReadLatency  uint32
	WriteLatency uint32
	RUW          string
	Ports        []MemPort
}

// Clone returns a deep copy of the payload.
func (m *MemInfo) Clone() *MemInfo {
	cp := *m
	cp.Ports = make([]MemPort, len(m.Ports))
	for i, p := range m.Ports {
		p.Annos = p.Annos.Clone()
		cp.Ports[i] = p
	}
	return &cp
}

// InstancePort is one port of an instance as seen from the parent module.
type InstancePort struct {
	Name  string
	Dir   Direction
	Type  types.TypeID
	Annos annotations.Set
}

// InstanceInfo is the payload of an instance. Result i is port i.
type InstanceInfo struct {
	Module      string
	Ports       []InstancePort
	LowerToBind bool
}

// Op is an operation. Ops live in a Block's intrusive list.
type Op struct {
	Kind     OpKind
	Name     string
	NameKind NameKind
	Sym      string
	Annos    annotations.Set

	// Index is the field index of Subfield and the element index of Subindex.
	Index int
	// Const is the value of a Constant.
	Const uint64
	// Hi and Lo are the inclusive bit range of Bits.
	Hi, Lo int32

	Mem  *MemInfo
	Inst *InstanceInfo
	Then *Block
	Else *Block

	operands []*Value
	results  []*Value

	block      *Block
	prev, next *Op
}

// Operand returns operand i.
func (op *Op) Operand(i int) *Value { return op.operands[i] }

// Operands returns a copy of the operand list.
func (op *Op) Operands() []*Value { return slices.Clone(op.operands) }

// NumOperands returns the number of operands.
func (op *Op) NumOperands() int { return len(op.operands) }

// Result returns result i.
func (op *Op) Result(i int) *Value { return op.results[i] }

// Results returns the result list. It must not be modified.
func (op *Op) Results() []*Value { return op.results }

// NumResults returns the number of results.
func (op *Op) NumResults() int { return len(op.results) }

// Block returns the block containing op, or nil once erased.
func (op *Op) Block() *Block { return op.block }

// Prev returns the previous op in the block.
func (op *Op) Prev() *Op { return op.prev }

// Next returns the next op in the block.
func (op *Op) Next() *Op { return op.next }

// Parent returns the op owning op's block, or nil at module level.
func (op *Op) Parent() *Op {
	if op.block == nil {
		return nil
	}
	return op.block.parent
}

// Module returns the module whose body contains op.
func (op *Op) Module() *Module {
	if op.block == nil {
		return nil
	}
	return op.block.Module()
}

// SetOperand replaces operand i, keeping use lists consistent.
func (op *Op) SetOperand(i int, v *Value) {
	if old := op.operands[i]; old != nil {
		old.removeUse(op, i)
	}
	op.operands[i] = v
	if v != nil {
		v.addUse(op, i)
	}
}

// DropOperands detaches op from all its operands.
func (op *Op) DropOperands() {
	for i, v := range op.operands {
		if v != nil {
			v.removeUse(op, i)
		}
	}
	op.operands = nil
}

// Erase unlinks op from its block and drops its operands. Results must be
// unused. Nested blocks are erased with it.
func (op *Op) Erase() {
	for _, r := range op.results {
		if r.HasUses() {
			panic(fmt.Sprintf("firrtl: erasing %s with %d remaining uses of result %d", op.Kind, r.NumUses(), r.index))
		}
	}
	for _, blk := range []*Block{op.Then, op.Else} {
		if blk != nil {
			blk.eraseAll()
		}
	}
	op.DropOperands()
	if op.block != nil {
		op.block.unlink(op)
	}
}

// Walk calls fn for op and every op nested in its blocks, in program order.
func (op *Op) Walk(fn func(*Op)) {
	fn(op)
	if op.Then != nil {
		op.Then.Walk(fn)
	}
	if op.Else != nil {
		op.Else.Walk(fn)
	}
}

func newOp(kind OpKind, operands []*Value, resultTypes []types.TypeID) *Op {
	op := &Op{Kind: kind}
	op.operands = make([]*Value, len(operands))
	for i, v := range operands {
		op.operands[i] = v
		v.addUse(op, i)
	}
	op.results = make([]*Value, len(resultTypes))
	for i, t := range resultTypes {
		op.results[i] = &Value{Type: t, def: op, index: i}
	}
	return op
}
