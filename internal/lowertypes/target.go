package lowertypes

import (
	"firlower/internal/annotations"
	"firlower/internal/firrtl"
)

// Target is a ground declaration or port that inherited a symbol from a
// split aggregate. Hierarchical paths ending at the aggregate are re-pointed
// at every target.
type Target struct {
	Module *firrtl.Module
	// Op is the declaration; nil for port targets.
	Op *firrtl.Op
	// PortSym identifies a port target. Ports move while siblings are split,
	// so they are found by symbol rather than index.
	PortSym string
}

// IsPort reports whether t names a module port.
func (t Target) IsPort() bool { return t.Op == nil }

// Sym returns the symbol the target carries.
func (t Target) Sym() string {
	if t.Op != nil {
		return t.Op.Sym
	}
	return t.PortSym
}

// Name returns the declaration or port name, for diagnostics.
func (t Target) Name() string {
	if t.Op != nil {
		return t.Op.Name
	}
	if i := t.Module.PortBySym(t.PortSym); i >= 0 {
		return t.Module.Ports[i].Name
	}
	return ""
}

// annos returns the annotation set of the target, or nil when a port target
// no longer exists.
func (t Target) annos() *annotations.Set {
	if t.Op != nil {
		return &t.Op.Annos
	}
	i := t.Module.PortBySym(t.PortSym)
	if i < 0 {
		return nil
	}
	return &t.Module.Ports[i].Annos
}
