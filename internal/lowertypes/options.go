package lowertypes

import "firlower/internal/firrtl"

// Options controls which aggregates survive lowering.
type Options struct {
	// PreserveAggregate keeps passive, analog-free, non-zero-width aggregate
	// declarations and ports whole. Connects are always expanded.
	PreserveAggregate bool
	// PreservePublicTypes restricts PreserveAggregate to private modules:
	// ports of public and external modules are always lowered.
	PreservePublicTypes bool
	// Jobs bounds the number of modules lowered concurrently.
	// Zero or negative means runtime.GOMAXPROCS(0).
	Jobs int
}

// allowedToPreserve reports whether aggregates on the ports of m may be kept.
func (o Options) allowedToPreserve(m *firrtl.Module) bool {
	if !o.PreserveAggregate {
		return false
	}
	if !o.PreservePublicTypes {
		return true
	}
	if m.Kind == firrtl.ModuleKindExt {
		return false
	}
	return !m.Public
}
