package firrtl

import "fmt"

// OpKind enumerates operation kinds.
type OpKind uint8

const (
	OpInvalidKind OpKind = iota

	// Declarations.
	OpWire
	OpReg
	OpRegReset
	OpNode
	OpMem
	OpInstance

	// Expressions.
	OpConstant
	OpInvalid
	OpSubfield
	OpSubindex
	OpSubaccess
	OpMux
	OpMultibitMux
	OpCast
	OpBitCast
	OpCat
	OpBits
	OpAsUInt
	OpAsSInt
	OpEq
	OpAnd
	OpNot

	// Statements.
	OpConnect
	OpStrictConnect
	OpWhen
)

var opKindNames = [...]string{
	OpInvalidKind:   "<invalid>",
	OpWire:          "wire",
	OpReg:           "reg",
	OpRegReset:      "regreset",
	OpNode:          "node",
	OpMem:           "mem",
	OpInstance:      "instance",
	OpConstant:      "constant",
	OpInvalid:       "invalidvalue",
	OpSubfield:      "subfield",
	OpSubindex:      "subindex",
	OpSubaccess:     "subaccess",
	OpMux:           "mux",
	OpMultibitMux:   "multibit_mux",
	OpCast:          "cast",
	OpBitCast:       "bitcast",
	OpCat:           "cat",
	OpBits:          "bits",
	OpAsUInt:        "asUInt",
	OpAsSInt:        "asSInt",
	OpEq:            "eq",
	OpAnd:           "and",
	OpNot:           "not",
	OpConnect:       "connect",
	OpStrictConnect: "strictconnect",
	OpWhen:          "when",
}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) && opKindNames[k] != "" {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", k)
}

// IsDeclaration reports whether ops of this kind declare named hardware.
func (k OpKind) IsDeclaration() bool {
	return k >= OpWire && k <= OpInstance
}

// IsStatement reports whether ops of this kind produce no results.
func (k OpKind) IsStatement() bool {
	return k >= OpConnect
}

// NameKind tells later passes whether a declaration name may be dropped.
type NameKind uint8

const (
	NameDroppable NameKind = iota
	NameInteresting
)

func (k NameKind) String() string {
	switch k {
	case NameDroppable:
		return "droppable"
	case NameInteresting:
		return "interesting"
	default:
		return fmt.Sprintf("NameKind(%d)", k)
	}
}

// Direction is the direction of a module or instance port.
type Direction uint8

const (
	In Direction = iota
	Out
)

// Flip returns the opposite direction when flipped is set.
func (d Direction) Flip(flipped bool) Direction {
	if flipped {
		return d ^ 1
	}
	return d
}

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// ModuleKind distinguishes modules with a body from external declarations.
type ModuleKind uint8

const (
	ModuleKindModule ModuleKind = iota
	ModuleKindExt
)

func (k ModuleKind) String() string {
	if k == ModuleKindExt {
		return "extmodule"
	}
	return "module"
}
