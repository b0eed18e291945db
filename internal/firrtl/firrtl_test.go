package firrtl_test

import (
	"strings"
	"testing"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/hierpath"
	"firlower/internal/types"
)

func newTop(t *testing.T, in *types.Interner, ports ...firrtl.Port) (*firrtl.Circuit, *firrtl.Module) {
	t.Helper()
	c := firrtl.NewCircuit("Top", in)
	m := firrtl.NewModule("Top", firrtl.ModuleKindModule, ports...)
	if err := c.AddModule(m); err != nil {
		t.Fatalf("AddModule: %v", err)
	}
	return c, m
}

func TestBuilderUseLists(t *testing.T) {
	c, m := newTop(t, nil)
	in := c.Types
	bundle := in.Bundle(types.Field{Name: "a", Type: in.UInt(1)}, types.Field{Name: "b", Type: in.UInt(2)})

	b := firrtl.NewBuilder(in)
	b.SetInsertionPointToEnd(m.Body)
	w := b.Wire(bundle, "w")
	a := b.Subfield(w.Result(0), 0)
	bb := b.Subfield(w.Result(0), 1)
	b.Connect(a, b.Constant(in.UInt(1), 1))

	if got := w.Result(0).NumUses(); got != 2 {
		t.Fatalf("wire uses = %d, want 2", got)
	}
	if got := a.Type; got != in.UInt(1) {
		t.Fatalf("subfield type = %s", in.String(got))
	}
	users := w.Result(0).Users()
	if len(users) != 2 || users[0] != a.DefiningOp() || users[1] != bb.DefiningOp() {
		t.Fatalf("users not in use order")
	}

	b.SetInsertionPoint(w)
	repl := b.Wire(bundle, "v")
	w.Result(0).ReplaceAllUsesWith(repl.Result(0))
	if w.Result(0).HasUses() || repl.Result(0).NumUses() != 2 {
		t.Fatalf("RAUW did not move uses")
	}
	w.Erase()
	bb.DefiningOp().Erase()
	if err := firrtl.Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEraseWithUsesPanics(t *testing.T) {
	c, m := newTop(t, nil)
	b := firrtl.NewBuilder(c.Types)
	b.SetInsertionPointToEnd(m.Body)
	w := b.Wire(c.Types.UInt(1), "w")
	b.Node(w.Result(0), "n")

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	w.Erase()
}

func TestInsertionPoint(t *testing.T) {
	c, m := newTop(t, nil)
	in := c.Types
	b := firrtl.NewBuilder(in)
	b.SetInsertionPointToEnd(m.Body)
	last := b.Wire(in.UInt(1), "last")
	b.SetInsertionPoint(last)
	first := b.Wire(in.UInt(1), "first")

	ops := m.Body.Ops()
	if len(ops) != 2 || ops[0] != first || ops[1] != last {
		t.Fatalf("ops out of order")
	}
	if last.Prev() != first || first.Next() != last {
		t.Fatalf("links broken")
	}
	if first.Module() != m {
		t.Fatalf("Module() = %v", first.Module())
	}
}

func TestWhenNesting(t *testing.T) {
	in := types.NewInterner()
	c, m := newTop(t, in, firrtl.Port{Name: "c", Type: in.Builtins().UInt1})
	b := firrtl.NewBuilder(in)
	b.SetInsertionPointToEnd(m.Body)
	w := b.Wire(in.UInt(1), "w")

	var inner *firrtl.Op
	when := b.When(m.Arg(0), func() {
		inner = b.Connect(w.Result(0), b.Constant(in.UInt(1), 1))
	}, func() {
		b.Connect(w.Result(0), b.Constant(in.UInt(1), 0))
	})
	after := b.Wire(in.UInt(1), "after")

	if after.Prev() != when {
		t.Fatalf("builder did not restore the insertion point")
	}
	if inner.Parent() != when || inner.Module() != m {
		t.Fatalf("nested op parent/module wrong")
	}
	if when.Then.Len() != 2 || when.Else.Len() != 2 {
		t.Fatalf("branch sizes then=%d else=%d", when.Then.Len(), when.Else.Len())
	}
	if err := firrtl.Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var kinds []string
	m.Walk(func(op *firrtl.Op) { kinds = append(kinds, op.Kind.String()) })
	want := "wire when constant connect constant connect wire"
	if got := strings.Join(kinds, " "); got != want {
		t.Fatalf("walk order = %q, want %q", got, want)
	}

	when.Erase()
	if w.Result(0).HasUses() {
		t.Fatalf("erasing when left uses behind")
	}
}

func TestPorts(t *testing.T) {
	in := types.NewInterner()
	c, m := newTop(t, in,
		firrtl.Port{Name: "a", Type: in.Builtins().Clock},
		firrtl.Port{Name: "b", Type: in.Builtins().Clock, Sym: "b_sym"},
	)
	if m.Body.NumArgs() != 2 {
		t.Fatalf("args = %d", m.Body.NumArgs())
	}
	arg := m.InsertPort(1, firrtl.Port{Name: "mid", Type: in.UInt(3)})
	if arg.ArgIndex() != 1 || m.Arg(2).ArgIndex() != 2 {
		t.Fatalf("argument indices not renumbered")
	}
	if m.PortIndex("mid") != 1 || m.PortBySym("b_sym") != 2 {
		t.Fatalf("port lookup failed")
	}
	m.ErasePort(0)
	if m.Ports[0].Name != "mid" || m.Arg(0) != arg || arg.ArgIndex() != 0 {
		t.Fatalf("ErasePort left stale state")
	}
	if err := firrtl.Validate(c); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		build func(c *firrtl.Circuit, m *firrtl.Module)
		want  string
	}{
		{
			name: "duplicate_sym",
			build: func(c *firrtl.Circuit, m *firrtl.Module) {
				b := firrtl.NewBuilder(c.Types)
				b.SetInsertionPointToEnd(m.Body)
				b.Wire(c.Types.UInt(1), "a").Sym = "s"
				b.Wire(c.Types.UInt(1), "b").Sym = "s"
			},
			want: "declared twice",
		},
		{
			name: "unknown_instance_module",
			build: func(c *firrtl.Circuit, m *firrtl.Module) {
				b := firrtl.NewBuilder(c.Types)
				b.SetInsertionPointToEnd(m.Body)
				b.Instance("Missing", "u", nil)
			},
			want: "unknown module Missing",
		},
		{
			name: "port_argument_mismatch",
			build: func(c *firrtl.Circuit, m *firrtl.Module) {
				m.Ports = append(m.Ports, firrtl.Port{Name: "x", Type: c.Types.UInt(1)})
			},
			want: "no body argument",
		},
		{
			name: "field_id_past_last_leaf",
			build: func(c *firrtl.Circuit, m *firrtl.Module) {
				b := firrtl.NewBuilder(c.Types)
				b.SetInsertionPointToEnd(m.Body)
				pair := c.Types.Bundle(types.Field{Name: "a", Type: c.Types.UInt(1)}, types.Field{Name: "b", Type: c.Types.UInt(1)})
				w := b.Wire(pair, "w")
				w.Annos.Add(annotations.New("custom").WithFieldID(3))
			},
			want: `wire "w": circt.fieldID 3 out of range`,
		},
		{
			name: "negative_field_id",
			build: func(c *firrtl.Circuit, m *firrtl.Module) {
				b := firrtl.NewBuilder(c.Types)
				b.SetInsertionPointToEnd(m.Body)
				w := b.Wire(c.Types.UInt(1), "w")
				w.Annos.Add(annotations.New("custom").With(annotations.KeyFieldID, int64(-1)))
			},
			want: "annotation key circt.fieldID",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := newTop(t, nil)
			tt.build(c, m)
			err := firrtl.Validate(c)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestVerifyGround(t *testing.T) {
	c, m := newTop(t, nil)
	in := c.Types
	b := firrtl.NewBuilder(in)
	b.SetInsertionPointToEnd(m.Body)
	b.Mem(&firrtl.MemInfo{
		DataType: in.UInt(8),
		Depth:    4,
		Ports:    []firrtl.MemPort{{Name: "r", Kind: types.PortRead}},
	}, "mem")
	if err := firrtl.VerifyGround(c); err != nil {
		t.Fatalf("ground memory flagged: %v", err)
	}
	b.Wire(in.Vector(in.UInt(1), 2), "v")
	err := firrtl.VerifyGround(c)
	if err == nil || !strings.Contains(err.Error(), `wire "v"`) {
		t.Fatalf("aggregate wire not reported: %v", err)
	}
}

func TestDumpIsDeterministic(t *testing.T) {
	build := func() *firrtl.Circuit {
		in := types.NewInterner()
		c, m := newTop(t, in, firrtl.Port{Name: "clk", Type: in.Builtins().Clock})
		b := firrtl.NewBuilder(in)
		b.SetInsertionPointToEnd(m.Body)
		r := b.Reg(in.UInt(4), m.Arg(0), "r")
		r.Sym = "r_sym"
		firrtl.Annotate(r, annotations.New(annotations.ClassDontTouch))
		b.Connect(r.Result(0), b.Constant(in.UInt(4), 3))
		if _, err := c.AddPath("nla", hierpath.Ref{Module: "Top", Sym: "r_sym"}); err != nil {
			t.Fatalf("AddPath: %v", err)
		}
		return c
	}
	var first, second strings.Builder
	if err := firrtl.Dump(&first, build()); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if err := firrtl.Dump(&second, build()); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if first.String() != second.String() {
		t.Fatalf("dumps differ:\n%s\n---\n%s", first.String(), second.String())
	}
	for _, want := range []string{
		`%0 = reg "r" %clk : UInt<4> sym @r_sym`,
		"connect %0, %1",
		"hierpath nla",
	} {
		if !strings.Contains(first.String(), want) {
			t.Errorf("dump lacks %q:\n%s", want, first.String())
		}
	}
}

func TestCollectStats(t *testing.T) {
	c, m := newTop(t, nil)
	in := c.Types
	b := firrtl.NewBuilder(in)
	b.SetInsertionPointToEnd(m.Body)
	w := b.Wire(in.UInt(1), "w")
	b.Connect(w.Result(0), b.Invalid(in.UInt(1)))

	s := firrtl.CollectStats(c)
	if s.Modules != 1 || s.Ops != 3 || s.ByKind[firrtl.OpWire] != 1 {
		t.Fatalf("stats = %s", s)
	}
}
