package testkit

import (
	"errors"
	"fmt"
	"strings"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
)

// CheckLowered runs the invariants a fully lowered circuit must satisfy:
// 1) the IR is structurally valid
// 2) no aggregate-typed port or op result remains
// 3) every hierarchical path resolves and every nonlocal annotation names a
// live path
func CheckLowered(c *firrtl.Circuit) error {
	if c == nil {
		return fmt.Errorf("nil circuit")
	}
	return errors.Join(
		firrtl.Validate(c),
		firrtl.VerifyGround(c),
		CheckPaths(c),
	)
}

// CheckPaths verifies that each path's leaf names a symbol declared in its
// module and that each nonlocal annotation refers to an existing path.
func CheckPaths(c *firrtl.Circuit) error {
	var errs []error
	for _, p := range c.Paths.All() {
		leaf := p.Leaf()
		m := c.Module(leaf.Module)
		if m == nil {
			errs = append(errs, fmt.Errorf("path %s: unknown module %s", p.Name, leaf.Module))
			continue
		}
		if leaf.Sym == "" {
			continue
		}
		found := false
		for _, s := range m.Syms() {
			if s == leaf.Sym {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("path %s: symbol %s not declared in %s", p.Name, leaf.Sym, leaf.Module))
		}
	}

	checkSet := func(where string, set annotations.Set) {
		for _, a := range set {
			nl, ok := a.NonLocal()
			if !ok {
				continue
			}
			if _, ok := c.Paths.Get(nl); !ok {
				errs = append(errs, fmt.Errorf("%s: annotation refers to missing path %s", where, nl))
			}
		}
	}
	for _, m := range c.Modules {
		for _, p := range m.Ports {
			checkSet(m.Name+"."+p.Name, p.Annos)
		}
		m.Walk(func(op *firrtl.Op) {
			checkSet(m.Name+"."+op.Name, op.Annos)
		})
	}
	return errors.Join(errs...)
}

// Dump renders c with firrtl.Dump.
func Dump(c *firrtl.Circuit) string {
	var sb strings.Builder
	if err := firrtl.Dump(&sb, c); err != nil {
		return "dump failed: " + err.Error()
	}
	return sb.String()
}

// FindOp returns the first op of m named name, or nil.
func FindOp(m *firrtl.Module, name string) *firrtl.Op {
	var found *firrtl.Op
	m.Walk(func(op *firrtl.Op) {
		if found == nil && op.Name == name {
			found = op
		}
	})
	return found
}

// CountKind counts ops of the given kind in m.
func CountKind(m *firrtl.Module, kind firrtl.OpKind) int {
	n := 0
	m.Walk(func(op *firrtl.Op) {
		if op.Kind == kind {
			n++
		}
	})
	return n
}
