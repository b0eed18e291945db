package testkit

import (
	"fmt"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/hierpath"
	"firlower/internal/types"
)

// Fixture builds circuits for tests. Module bodies are filled through B,
// which is positioned at the end of the most recently added module.
type Fixture struct {
	C  *firrtl.Circuit
	In *types.Interner
	B  *firrtl.Builder
}

// New returns a fixture with an empty circuit.
func New(name string) *Fixture {
	in := types.NewInterner()
	return &Fixture{
		C:  firrtl.NewCircuit(name, in),
		In: in,
		B:  firrtl.NewBuilder(in),
	}
}

// Module adds a module with a body and moves the builder into it.
func (f *Fixture) Module(name string, ports ...firrtl.Port) *firrtl.Module {
	m := firrtl.NewModule(name, firrtl.ModuleKindModule, ports...)
	f.mustAdd(m)
	f.B.SetInsertionPointToEnd(m.Body)
	return m
}

// Ext adds an external module.
func (f *Fixture) Ext(name string, ports ...firrtl.Port) *firrtl.Module {
	m := firrtl.NewModule(name, firrtl.ModuleKindExt, ports...)
	f.mustAdd(m)
	return m
}

func (f *Fixture) mustAdd(m *firrtl.Module) {
	if err := f.C.AddModule(m); err != nil {
		panic(err)
	}
}

// Path registers a hierarchical path and returns its name.
func (f *Fixture) Path(name string, namepath ...hierpath.Ref) string {
	unique, err := f.C.AddPath(name, namepath...)
	if err != nil {
		panic(err)
	}
	return unique
}

// Instance instantiates the module named module with its current ports.
func (f *Fixture) Instance(module, name string) *firrtl.Op {
	m := f.C.Module(module)
	if m == nil {
		panic(fmt.Sprintf("testkit: unknown module %s", module))
	}
	ports := make([]firrtl.InstancePort, len(m.Ports))
	for i, p := range m.Ports {
		ports[i] = firrtl.InstancePort{Name: p.Name, Dir: p.Dir, Type: p.Type}
	}
	return f.B.Instance(module, name, ports)
}

// Field is a non-flipped bundle member.
func Field(name string, t types.TypeID) types.Field {
	return types.Field{Name: name, Type: t}
}

// Flip is a flipped bundle member.
func Flip(name string, t types.TypeID) types.Field {
	return types.Field{Name: name, Flip: true, Type: t}
}

// In is an input port.
func In(name string, t types.TypeID) firrtl.Port {
	return firrtl.Port{Name: name, Type: t, Dir: firrtl.In}
}

// Out is an output port.
func Out(name string, t types.TypeID) firrtl.Port {
	return firrtl.Port{Name: name, Type: t, Dir: firrtl.Out}
}

// DontTouch returns a DontTouch annotation; nonlocal scopes it to a path
// when not empty, fieldID addresses a sub-element when not zero.
func DontTouch(nonlocal string, fieldID uint32) annotations.Annotation {
	a := annotations.New(annotations.ClassDontTouch)
	if nonlocal != "" {
		a = a.With(annotations.KeyNonLocal, nonlocal)
	}
	return a.WithFieldID(fieldID)
}

// Sample builds a circuit exercising every kind of aggregate the lowering
// handles: bundle and vector ports with flips, a symbol-carrying wire
// addressed by a hierarchical path, a register with reset, a dynamic write
// and read, a memory with a bundle data type, an instance and a bitcast.
func Sample() *Fixture {
	f := New("Top")
	in := f.In
	u1, u2, u8 := in.UInt(1), in.UInt(2), in.UInt(8)
	clock := in.Builtins().Clock
	pair := in.Bundle(Field("a", u1), Field("b", u2))
	decoupled := in.Bundle(Field("valid", u1), Flip("ready", u1), Field("bits", u8))
	vec := in.Vector(u8, 4)

	nlaOut := f.Path("nla_out", hierpath.Ref{Module: "Top", Sym: "u"}, hierpath.Ref{Module: "Child", Sym: "out"})
	child := f.Module("Child",
		In("clk", clock),
		In("io", decoupled),
		Out("out", pair),
	)
	child.Ports[2].Sym = "out"
	child.Ports[2].Annos = annotations.Set{DontTouch(nlaOut, 0)}
	io := child.Arg(1)
	out := child.Arg(2)
	f.B.Connect(f.B.Subfield(io, 1), f.B.Constant(u1, 1))
	r := f.B.Reg(pair, child.Arg(0), "r")
	f.B.Connect(f.B.Subfield(r.Result(0), 0), f.B.Subfield(io, 0))
	f.B.Connect(f.B.Subfield(r.Result(0), 1), f.B.Bits(f.B.Subfield(io, 2), 1, 0))
	f.B.Connect(out, r.Result(0))

	top := f.Module("Top",
		In("clk", clock),
		In("rst", u1),
		In("idx", u2),
		In("din", u8),
		Out("dout", u8),
		Out("flat", u8),
	)
	top.Public = true
	clk, rst, idx, din := top.Arg(0), top.Arg(1), top.Arg(2), top.Arg(3)
	dout, flatOut := top.Arg(4), top.Arg(5)

	nla := f.Path("nla", hierpath.Ref{Module: "Top", Sym: "x"})
	x := f.B.Wire(pair, "x")
	x.Sym = "x"
	x.NameKind = firrtl.NameInteresting
	firrtl.Annotate(x, DontTouch(nla, 0))
	f.B.Connect(f.B.Subfield(x.Result(0), 0), f.B.Constant(u1, 0))
	f.B.Connect(f.B.Subfield(x.Result(0), 1), f.B.Constant(u2, 2))

	init := f.B.Invalid(vec)
	v := f.B.RegReset(vec, clk, rst, init, "v")
	f.B.Connect(f.B.Subaccess(v.Result(0), idx), din)
	f.B.Connect(dout, f.B.Subaccess(v.Result(0), idx))

	mem := f.B.Mem(&firrtl.MemInfo{
		DataType:    pair,
		Depth:       16,
		ReadLatency: 1,
		Ports: []firrtl.MemPort{
			{Name: "r", Kind: types.PortRead},
			{Name: "w", Kind: types.PortWrite},
		},
	}, "m")
	for i := range 2 {
		port := mem.Result(i)
		f.B.Connect(f.B.Subfield(port, 0), f.B.Constant(in.UInt(4), 0))
		f.B.Connect(f.B.Subfield(port, 1), f.B.Constant(u1, 1))
		f.B.Connect(f.B.Subfield(port, 2), clk)
	}
	f.B.Connect(f.B.Subfield(mem.Result(1), 3), x.Result(0))
	f.B.Connect(f.B.Subfield(mem.Result(1), 4), f.B.Invalid(in.MaskType(pair)))

	u := f.Instance("Child", "u")
	u.Sym = "u"
	f.B.Connect(u.Result(0), clk)
	f.B.Connect(f.B.Subfield(u.Result(1), 0), f.B.Constant(u1, 1))
	f.B.Connect(f.B.Subfield(u.Result(1), 2), din)
	cast := f.B.BitCast(in.UInt(3), u.Result(2))
	f.B.Connect(flatOut, f.B.Cat(f.B.Constant(in.UInt(5), 0), cast))

	f.B.Connect(f.B.Subfield(x.Result(0), 0), f.B.Subfield(f.B.Subfield(mem.Result(0), 3), 0))
	return f
}
