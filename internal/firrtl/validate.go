package firrtl

import (
	"errors"
	"fmt"

	"firlower/internal/annotations"
	"firlower/internal/types"
)

// Validate checks structural IR invariants.
// Returns error if any invariant is violated.
func Validate(c *Circuit) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, m := range c.Modules {
		if m == nil {
			continue
		}
		if err := validateModule(c, m); err != nil {
			errs = append(errs, fmt.Errorf("module %s: %w", m.Name, err))
		}
	}
	return errors.Join(errs...)
}

func validateModule(c *Circuit, m *Module) error {
	var errs []error

	// 1. Ports and body arguments agree
	if err := validatePorts(m); err != nil {
		errs = append(errs, err)
	}
	if m.Body == nil {
		return errors.Join(errs...)
	}

	// 2. Operands are defined before use; use lists match operands
	defined := make(map[*Value]bool)
	for _, arg := range m.Body.Args() {
		defined[arg] = true
	}
	if err := validateBlock(c, m.Body, defined); err != nil {
		errs = append(errs, err)
	}

	// 3. Symbols are unique within the module
	if err := validateSyms(m); err != nil {
		errs = append(errs, err)
	}

	// 4. Annotation field IDs address a field of their target
	if err := validateAnnos(c, m); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateAnnos(c *Circuit, m *Module) error {
	var errs []error
	check := func(where string, set annotations.Set, typ types.TypeID) {
		for _, a := range set {
			if err := annotations.CheckFieldID(c.Types, a, typ); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", where, err))
			}
		}
	}
	for _, p := range m.Ports {
		check("port "+p.Name, p.Annos, p.Type)
	}
	m.Walk(func(op *Op) {
		typ := types.NoTypeID
		if len(op.results) == 1 {
			typ = op.results[0].Type
		}
		check(fmt.Sprintf("%s %q", op.Kind, op.Name), op.Annos, typ)
		if op.Mem != nil {
			for i, p := range op.Mem.Ports {
				if i < len(op.results) {
					check(fmt.Sprintf("%s %q port %s", op.Kind, op.Name, p.Name), p.Annos, op.results[i].Type)
				}
			}
		}
		if op.Inst != nil {
			for _, p := range op.Inst.Ports {
				check(fmt.Sprintf("%s %q port %s", op.Kind, op.Name, p.Name), p.Annos, p.Type)
			}
		}
	})
	return errors.Join(errs...)
}

// validatePorts checks that every port is typed and mirrored by a body
// argument of the same type.
func validatePorts(m *Module) error {
	var errs []error
	for i, p := range m.Ports {
		if p.Type == types.NoTypeID {
			errs = append(errs, fmt.Errorf("port %s: missing type", p.Name))
		}
		if m.Body == nil {
			continue
		}
		if i >= m.Body.NumArgs() {
			errs = append(errs, fmt.Errorf("port %s: no body argument", p.Name))
			continue
		}
		if arg := m.Body.Arg(i); arg.Type != p.Type {
			errs = append(errs, fmt.Errorf("port %s: argument type differs from port type", p.Name))
		} else if arg.index != i {
			errs = append(errs, fmt.Errorf("port %s: argument index %d, want %d", p.Name, arg.index, i))
		}
	}
	if m.Body != nil && m.Body.NumArgs() != len(m.Ports) {
		errs = append(errs, fmt.Errorf("%d ports but %d body arguments", len(m.Ports), m.Body.NumArgs()))
	}
	return errors.Join(errs...)
}

// validateBlock walks blk in order. Values defined inside nested blocks go
// out of scope when the block ends.
func validateBlock(c *Circuit, blk *Block, defined map[*Value]bool) error {
	var errs []error
	var local []*Value
	for op := blk.First(); op != nil; op = op.Next() {
		if op.block != blk {
			errs = append(errs, fmt.Errorf("%s: op linked into the wrong block", op.Kind))
		}
		for i, v := range op.operands {
			switch {
			case v == nil:
				errs = append(errs, fmt.Errorf("%s %q: operand %d is nil", op.Kind, op.Name, i))
			case !defined[v]:
				errs = append(errs, fmt.Errorf("%s %q: operand %d used before definition", op.Kind, op.Name, i))
			case !v.hasUse(op, i):
				errs = append(errs, fmt.Errorf("%s %q: operand %d missing from use list", op.Kind, op.Name, i))
			}
		}
		if err := validateOpShape(c, op); err != nil {
			errs = append(errs, err)
		}
		for _, nested := range []*Block{op.Then, op.Else} {
			if nested == nil {
				continue
			}
			if nested.parent != op {
				errs = append(errs, fmt.Errorf("%s: nested block has wrong parent", op.Kind))
			}
			if err := validateBlock(c, nested, defined); err != nil {
				errs = append(errs, err)
			}
		}
		for i, r := range op.results {
			if r.Type == types.NoTypeID {
				errs = append(errs, fmt.Errorf("%s %q: result %d has no type", op.Kind, op.Name, i))
			}
			if r.def != op || r.index != i {
				errs = append(errs, fmt.Errorf("%s %q: result %d has a stale back-reference", op.Kind, op.Name, i))
			}
			for _, u := range r.uses {
				if u.op.block == nil || u.idx >= len(u.op.operands) || u.op.operands[u.idx] != r {
					errs = append(errs, fmt.Errorf("%s %q: result %d has a dangling use", op.Kind, op.Name, i))
					break
				}
			}
			defined[r] = true
			local = append(local, r)
		}
	}
	if blk.parent != nil {
		for _, v := range local {
			delete(defined, v)
		}
	}
	return errors.Join(errs...)
}

// validateOpShape checks per-kind operand and payload arity.
func validateOpShape(c *Circuit, op *Op) error {
	want := -1
	switch op.Kind {
	case OpWire, OpMem, OpInstance, OpConstant, OpInvalid:
		want = 0
	case OpReg, OpNode, OpSubfield, OpSubindex, OpCast, OpBitCast, OpBits, OpAsUInt, OpAsSInt, OpNot, OpWhen:
		want = 1
	case OpSubaccess, OpCat, OpEq, OpAnd, OpConnect, OpStrictConnect:
		want = 2
	case OpRegReset, OpMux:
		want = 3
	case OpMultibitMux:
		if len(op.operands) < 2 {
			return fmt.Errorf("multibit_mux: needs an index and at least one input")
		}
	default:
		return fmt.Errorf("unknown op kind %s", op.Kind)
	}
	if want >= 0 && len(op.operands) != want {
		return fmt.Errorf("%s %q: %d operands, want %d", op.Kind, op.Name, len(op.operands), want)
	}
	switch op.Kind {
	case OpMem:
		if op.Mem == nil || len(op.Mem.Ports) != len(op.results) {
			return fmt.Errorf("mem %q: port payload does not match results", op.Name)
		}
	case OpInstance:
		if op.Inst == nil || len(op.Inst.Ports) != len(op.results) {
			return fmt.Errorf("instance %q: port payload does not match results", op.Name)
		}
		if c.Module(op.Inst.Module) == nil {
			return fmt.Errorf("instance %q: unknown module %s", op.Name, op.Inst.Module)
		}
	case OpWhen:
		if op.Then == nil {
			return fmt.Errorf("when: missing then block")
		}
	}
	return nil
}

func validateSyms(m *Module) error {
	seen := make(map[string]bool)
	var errs []error
	for _, s := range m.Syms() {
		if seen[s] {
			errs = append(errs, fmt.Errorf("symbol %q declared twice", s))
		}
		seen[s] = true
	}
	return errors.Join(errs...)
}

// VerifyGround reports every port and op result that still has an aggregate
// type. Memory ports are bundles by construction; for memories the data
// type is checked instead.
func VerifyGround(c *Circuit) error {
	var errs []error
	in := c.Types
	for _, m := range c.Modules {
		for _, p := range m.Ports {
			if in.IsAggregate(p.Type) {
				errs = append(errs, fmt.Errorf("module %s: port %s has aggregate type %s", m.Name, p.Name, in.String(p.Type)))
			}
		}
		m.Walk(func(op *Op) {
			if op.Kind == OpMem {
				if in.IsAggregate(op.Mem.DataType) {
					errs = append(errs, fmt.Errorf("module %s: mem %q has aggregate data type %s",
						m.Name, op.Name, in.String(op.Mem.DataType)))
				}
				return
			}
			for i, r := range op.results {
				if in.IsAggregate(r.Type) {
					errs = append(errs, fmt.Errorf("module %s: %s %q result %d has aggregate type %s",
						m.Name, op.Kind, op.Name, i, in.String(r.Type)))
				}
			}
		})
	}
	return errors.Join(errs...)
}
