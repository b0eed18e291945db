package lowertypes

import (
	"strconv"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/hierpath"
	"firlower/internal/symbols"
	"firlower/internal/types"
)

// visitor lowers one module. It owns the module exclusively while running;
// everything it learns about renamed symbols ends up in renames.
type visitor struct {
	in   *types.Interner
	c    *firrtl.Circuit
	mod  *firrtl.Module
	opts Options
	b    *firrtl.Builder

	// ns keeps generated symbols unique within the module.
	ns *symbols.Namespace
	// origSyms maps every symbol derived during lowering back to the
	// symbol it was split from.
	origSyms *symbols.DisjointSet
	renames  map[hierpath.Ref][]Target

	nextGen int
	changed bool
}

func newVisitor(c *firrtl.Circuit, m *firrtl.Module, opts Options) *visitor {
	return &visitor{
		in:       c.Types,
		c:        c,
		mod:      m,
		opts:     opts,
		b:        firrtl.NewBuilder(c.Types),
		ns:       symbols.NewNamespace(m.Syms()...),
		origSyms: symbols.NewDisjointSet(),
		renames:  make(map[hierpath.Ref][]Target),
	}
}

// cloneFunc builds the replacement for one peeled field of a producer.
type cloneFunc func(field types.FlatField, annos annotations.Set) *firrtl.Op

func (v *visitor) lowerModule() {
	if v.mod.Body != nil {
		v.lowerBlock(v.mod.Body)
	}
	v.lowerPorts()
}

// lowerBlock visits ops bottom-up. Replacements are inserted right before
// the op being visited, so they are the next ops the loop reaches.
func (v *visitor) lowerBlock(blk *firrtl.Block) {
	for op := blk.Last(); op != nil; {
		v.b.SetInsertionPoint(op)
		remove := v.visit(op)
		prev := op.Prev()
		if remove {
			op.Erase()
			v.changed = true
		}
		op = prev
	}
}

// visit lowers op and reports whether the original must be erased.
func (v *visitor) visit(op *firrtl.Op) bool {
	switch op.Kind {
	case firrtl.OpWire:
		return v.visitWire(op)
	case firrtl.OpReg:
		return v.visitReg(op)
	case firrtl.OpRegReset:
		return v.visitRegReset(op)
	case firrtl.OpNode:
		return v.visitNode(op)
	case firrtl.OpMem:
		return v.visitMem(op)
	case firrtl.OpInstance:
		return v.visitInstance(op)
	case firrtl.OpInvalid:
		return v.visitInvalid(op)
	case firrtl.OpMux:
		return v.visitMux(op)
	case firrtl.OpMultibitMux:
		return v.visitMultibitMux(op)
	case firrtl.OpCast:
		return v.visitCast(op)
	case firrtl.OpBitCast:
		return v.visitBitCast(op)
	case firrtl.OpSubaccess:
		return v.visitSubaccess(op)
	case firrtl.OpConnect, firrtl.OpStrictConnect:
		return v.visitConnect(op)
	case firrtl.OpWhen:
		return v.visitWhen(op)
	default:
		return false
	}
}

// lowerProducer splits the single aggregate result of op into one op per
// peeled field, built by clone, and moves the field accesses of the old
// result onto the replacements.
func (v *visitor) lowerProducer(op *firrtl.Op, clone cloneFunc) bool {
	result := op.Result(0)
	fields, ok := v.in.Peel(result.Type, v.opts.PreserveAggregate)
	if !ok {
		return false
	}

	symBase := op.Sym
	if symBase == "" {
		symBase = op.Name
	}
	if symBase == "" {
		symBase = v.uniqueName()
	}

	lowered := make([]*firrtl.Value, 0, len(fields))
	for _, field := range fields {
		annos, needsSym := annotations.Filter(v.in, op.Annos, field)
		newOp := clone(field, annos)

		if op.Name != "" {
			newOp.Name = op.Name + field.Suffix
		}
		if op.Kind.IsDeclaration() {
			newOp.NameKind = op.NameKind
		}
		if needsSym || op.Sym != "" {
			newOp.Sym = v.ns.NewName(symBase + field.Suffix)
			if op.Sym != "" {
				v.recordRename(op.Sym, newOp.Sym, field.Type, Target{Module: v.mod, Op: newOp})
			}
		}
		lowered = append(lowered, newOp.Result(0))
	}

	v.processUsers(result, lowered)
	return true
}

// recordRename notes that derived was split off orig. Ground descendants
// are the endpoints hierarchical paths get re-pointed at.
func (v *visitor) recordRename(orig, derived string, fieldType types.TypeID, target Target) {
	v.origSyms.Union(orig, derived)
	if !v.in.IsGround(fieldType) {
		return
	}
	key := hierpath.Ref{Module: v.mod.Name, Sym: v.origSyms.Leader(orig)}
	v.renames[key] = append(v.renames[key], target)
}

// processUsers replaces every field or element access of val with the
// matching entry of mapping.
func (v *visitor) processUsers(val *firrtl.Value, mapping []*firrtl.Value) {
	for _, user := range val.Users() {
		switch user.Kind {
		case firrtl.OpSubfield, firrtl.OpSubindex:
			if user.Index >= len(mapping) {
				invariantf(v.mod.Name, "%s index %d out of range for %d lowered fields", user.Kind, user.Index, len(mapping))
			}
			user.Result(0).ReplaceAllUsesWith(mapping[user.Index])
			user.Erase()
		default:
			invariantf(v.mod.Name, "unknown user %s of lowered aggregate %s", user.Kind, v.in.String(val.Type))
		}
	}
}

// subWhatever accesses child i of an aggregate value.
func (v *visitor) subWhatever(val *firrtl.Value, i int) *firrtl.Value {
	switch v.in.Kind(val.Type) {
	case types.KindBundle:
		return v.b.Subfield(val, i)
	case types.KindVector:
		return v.b.Subindex(val, i)
	default:
		invariantf(v.mod.Name, "access %d into non-aggregate %s", i, v.in.String(val.Type))
		return nil
	}
}

func (v *visitor) connect(kind firrtl.OpKind, dest, src *firrtl.Value) {
	if kind == firrtl.OpStrictConnect {
		v.b.StrictConnect(dest, src)
		return
	}
	v.b.Connect(dest, src)
}

func (v *visitor) uniqueName() string {
	name := "__GEN_" + strconv.Itoa(v.nextGen)
	v.nextGen++
	return name
}
