package firrtl

import (
	"fmt"
	"slices"

	"firlower/internal/annotations"
	"firlower/internal/hierpath"
	"firlower/internal/symbols"
	"firlower/internal/types"
)

// Port is a module port.
type Port struct {
	Name  string
	Type  types.TypeID
	Dir   Direction
	Sym   string
	Annos annotations.Set
}

// Module is a module or an external module declaration.
type Module struct {
	Name   string
	Kind   ModuleKind
	Public bool
	Ports  []Port
	Body   *Block // nil for external modules
	Annos  annotations.Set
}

// NewModule creates a module. Modules of kind ModuleKindModule get a body
// whose arguments mirror ports.
func NewModule(name string, kind ModuleKind, ports ...Port) *Module {
	m := &Module{Name: name, Kind: kind}
	if kind == ModuleKindModule {
		m.Body = newBlock(nil)
		m.Body.module = m
	}
	for _, p := range ports {
		m.InsertPort(len(m.Ports), p)
	}
	return m
}

// Arg returns the body argument of port i.
func (m *Module) Arg(i int) *Value {
	if m.Body == nil {
		return nil
	}
	return m.Body.Arg(i)
}

// InsertPort inserts p at position i and returns its body argument (nil for
// external modules).
func (m *Module) InsertPort(i int, p Port) *Value {
	m.Ports = slices.Insert(m.Ports, i, p)
	if m.Body == nil {
		return nil
	}
	return m.Body.InsertArg(i, p.Type)
}

// ErasePort removes port i. Its body argument must be unused.
func (m *Module) ErasePort(i int) {
	if m.Body != nil {
		m.Body.EraseArg(i)
	}
	m.Ports = slices.Delete(m.Ports, i, i+1)
}

// PortIndex returns the index of the port named name, or -1.
func (m *Module) PortIndex(name string) int {
	return slices.IndexFunc(m.Ports, func(p Port) bool { return p.Name == name })
}

// PortBySym returns the index of the port carrying symbol sym, or -1.
func (m *Module) PortBySym(sym string) int {
	if sym == "" {
		return -1
	}
	return slices.IndexFunc(m.Ports, func(p Port) bool { return p.Sym == sym })
}

// Walk calls fn for every op of the body in program order.
func (m *Module) Walk(fn func(*Op)) {
	if m.Body != nil {
		m.Body.Walk(fn)
	}
}

// Syms returns every symbol declared in the module, on ports and ops.
func (m *Module) Syms() []string {
	var out []string
	for _, p := range m.Ports {
		if p.Sym != "" {
			out = append(out, p.Sym)
		}
	}
	m.Walk(func(op *Op) {
		if op.Sym != "" {
			out = append(out, op.Sym)
		}
	})
	return out
}

// Circuit is the unit being compiled: its modules, the shared type interner
// and the circuit-wide symbol and hierarchical-path tables.
type Circuit struct {
	Name    string
	Types   *types.Interner
	Modules []*Module
	Symbols *symbols.Table
	Paths   *hierpath.Table

	byName map[string]*Module
}

// NewCircuit creates an empty circuit. A nil interner gets a fresh one.
func NewCircuit(name string, in *types.Interner) *Circuit {
	if in == nil {
		in = types.NewInterner()
	}
	return &Circuit{
		Name:    name,
		Types:   in,
		Symbols: symbols.NewTable(),
		Paths:   hierpath.NewTable(),
		byName:  make(map[string]*Module),
	}
}

// AddModule registers m under its name.
func (c *Circuit) AddModule(m *Module) error {
	if err := c.Symbols.InsertExact(m.Name, symbols.KindModule); err != nil {
		return fmt.Errorf("module %s: %w", m.Name, err)
	}
	c.Modules = append(c.Modules, m)
	c.byName[m.Name] = m
	return nil
}

// Module returns the module named name, or nil.
func (c *Circuit) Module(name string) *Module {
	return c.byName[name]
}

// AddPath registers a hierarchical path. The name is made unique in the
// circuit symbol table and returned.
func (c *Circuit) AddPath(name string, namepath ...hierpath.Ref) (string, error) {
	if len(namepath) == 0 {
		return "", fmt.Errorf("path %s: empty namepath", name)
	}
	unique := c.Symbols.Insert(name, symbols.KindPath)
	p := &hierpath.Path{Name: unique, Namepath: slices.Clone(namepath)}
	if err := c.Paths.Add(p); err != nil {
		c.Symbols.Erase(unique)
		return "", err
	}
	return unique, nil
}
