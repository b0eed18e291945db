package lowertypes_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/hierpath"
	"firlower/internal/lowertypes"
	"firlower/internal/testkit"
	"firlower/internal/trace"
	"firlower/internal/types"
)

func run(t *testing.T, c *firrtl.Circuit, opts lowertypes.Options) *lowertypes.Result {
	t.Helper()
	if err := firrtl.Validate(c); err != nil {
		t.Fatalf("input invalid: %v", err)
	}
	res, err := lowertypes.Run(context.Background(), c, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func mustLowered(t *testing.T, c *firrtl.Circuit) {
	t.Helper()
	if err := testkit.CheckLowered(c); err != nil {
		t.Fatalf("lowered circuit violates invariants: %v\n%s", err, testkit.Dump(c))
	}
}

func TestSampleLowersCompletely(t *testing.T) {
	f := testkit.Sample()
	res := run(t, f.C, lowertypes.Options{Jobs: 2})
	mustLowered(t, f.C)

	if res.ModulesLowered != 2 {
		t.Errorf("ModulesLowered = %d, want 2", res.ModulesLowered)
	}
	if res.PathsRewritten != 2 || res.PathsAdded != 2 {
		t.Errorf("paths rewritten=%d added=%d, want 2 and 2", res.PathsRewritten, res.PathsAdded)
	}
	top := f.C.Module("Top")
	for _, name := range []string{"x_a", "x_b", "v_0", "v_3", "m_a", "m_b", "m_w_data_b"} {
		if testkit.FindOp(top, name) == nil {
			t.Errorf("missing lowered op %s", name)
		}
	}
	if n := testkit.CountKind(top, firrtl.OpWhen); n != 4 {
		t.Errorf("when count = %d, want 4", n)
	}
	child := f.C.Module("Child")
	var names []string
	for _, p := range child.Ports {
		names = append(names, p.Dir.String()+" "+p.Name)
	}
	want := []string{"in clk", "in io_valid", "out io_ready", "in io_bits", "out out_a", "out out_b"}
	if !slices.Equal(names, want) {
		t.Errorf("Child ports = %v, want %v", names, want)
	}
}

// TestBundleWireWithNonLocalDontTouch lowers {a: UInt<1>, b: UInt<2>} x into
// x_a and x_b, each with its own symbol and a whole-field copy of the
// annotation.
func TestBundleWireWithNonLocalDontTouch(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	pair := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.UInt(2)))
	f.Module("Top")
	nla := f.Path("nla", hierpath.Ref{Module: "Top", Sym: "x"})
	x := f.B.Wire(pair, "x")
	x.Sym = "x"
	firrtl.Annotate(x, testkit.DontTouch(nla, 0))

	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)
	top := f.C.Module("Top")
	for i, name := range []string{"x_a", "x_b"} {
		op := testkit.FindOp(top, name)
		if op == nil {
			t.Fatalf("%s not found:\n%s", name, testkit.Dump(f.C))
		}
		if op.Sym != name {
			t.Errorf("%s: sym %q, want %q", name, op.Sym, name)
		}
		if want := in.UInt(int32(i + 1)); op.Result(0).Type != want {
			t.Errorf("%s: type %s", name, in.String(op.Result(0).Type))
		}
		if len(op.Annos) != 1 || !op.Annos[0].IsClass(annotations.ClassDontTouch) {
			t.Fatalf("%s: annotations %v", name, op.Annos)
		}
		if _, ok := op.Annos[0].FieldID(); ok {
			t.Errorf("%s: annotation still carries a field ID", name)
		}
		wantPath := []string{"nla", "nla_0"}[i]
		if nl, _ := op.Annos[0].NonLocal(); nl != wantPath {
			t.Errorf("%s: nonlocal %q, want %q", name, nl, wantPath)
		}
		if p, ok := f.C.Paths.Get(wantPath); !ok || p.Leaf().Sym != name {
			t.Errorf("path %s does not end at %s", wantPath, name)
		}
	}
	if testkit.CountKind(top, firrtl.OpWire) != 2 {
		t.Errorf("aggregate wire not erased:\n%s", testkit.Dump(f.C))
	}
}

// TestAnnotationFieldIDs checks that annotations follow the sub-elements
// they address through several lowering layers of
// {a: {c: UInt<1>, d: UInt<1>}, b: UInt<2>[2]}.
func TestAnnotationFieldIDs(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	inner := in.Bundle(testkit.Field("c", in.UInt(1)), testkit.Field("d", in.UInt(1)))
	typ := in.Bundle(testkit.Field("a", inner), testkit.Field("b", in.Vector(in.UInt(2), 2)))
	f.Module("Top")
	w := f.B.Wire(typ, "w")
	firrtl.Annotate(w,
		annotations.New("test.Whole", annotations.Member{Key: annotations.KeyFieldID, Value: int64(0)}),
		annotations.New("test.Untargeted"),
		annotations.New("test.SubBundle").WithFieldID(1),
		annotations.New("test.LeafD").WithFieldID(3),
		annotations.New("test.LeafB1").WithFieldID(6),
	)

	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)

	top := f.C.Module("Top")
	want := map[string][]string{
		"w_a_c": {"test.Whole", "test.Untargeted", "test.SubBundle"},
		"w_a_d": {"test.Whole", "test.Untargeted", "test.SubBundle", "test.LeafD"},
		"w_b_0": {"test.Whole", "test.Untargeted"},
		"w_b_1": {"test.Whole", "test.Untargeted", "test.LeafB1"},
	}
	all := []string{"test.Whole", "test.Untargeted", "test.SubBundle", "test.LeafD", "test.LeafB1"}
	for name, classes := range want {
		op := testkit.FindOp(top, name)
		if op == nil {
			t.Fatalf("%s not found:\n%s", name, testkit.Dump(f.C))
		}
		for _, class := range all {
			if got := op.Annos.Has(class); got != slices.Contains(classes, class) {
				t.Errorf("%s: has %s = %v", name, class, got)
			}
		}
		for _, a := range op.Annos {
			if _, ok := a.FieldID(); ok {
				t.Errorf("%s: %s keeps a field ID on a ground leaf", name, a.Class())
			}
		}
	}
}

func TestSignalDriverFieldIDAccumulates(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	typ := in.Vector(in.Bundle(testkit.Field("p", in.UInt(1)), testkit.Field("q", in.UInt(1))), 2)
	f.Module("Top")
	w := f.B.Wire(typ, "w")
	firrtl.Annotate(w, annotations.New(annotations.ClassSignalDriver))

	run(t, f.C, lowertypes.Options{})
	top := f.C.Module("Top")
	// Pre-order IDs of the leaves of {p, q}[2].
	for name, want := range map[string]int64{"w_0_p": 2, "w_0_q": 3, "w_1_p": 5, "w_1_q": 6} {
		op := testkit.FindOp(top, name)
		if op == nil || len(op.Annos) != 1 {
			t.Fatalf("%s: missing or wrong annotations", name)
		}
		got, _ := op.Annos[0].Get(annotations.KeyTrackedFieldID)
		if got != want {
			t.Errorf("%s: tracked field ID %v, want %d", name, got, want)
		}
	}
}

// buildDynamicWrite creates `v[idx] <= din` for a vector of n UInt<8>.
func buildDynamicWrite(n uint32) (*testkit.Fixture, *firrtl.Module) {
	f := testkit.New("Top")
	in := f.In
	idxWidth := max(1, types.CeilLog2(uint64(n)))
	m := f.Module("Top", testkit.In("idx", in.UInt(idxWidth)), testkit.In("din", in.UInt(8)))
	v := f.B.Wire(in.Vector(in.UInt(8), n), "v")
	f.B.Connect(f.B.Subaccess(v.Result(0), m.Arg(0)), m.Arg(1))
	return f, m
}

func whens(m *firrtl.Module) []*firrtl.Op {
	var out []*firrtl.Op
	m.Walk(func(op *firrtl.Op) {
		if op.Kind == firrtl.OpWhen {
			out = append(out, op)
		}
	})
	return out
}

func TestDynamicWrite(t *testing.T) {
	tests := []struct {
		name     string
		n        uint32
		selWidth int32
	}{
		{"four_elements", 4, 2},
		{"five_elements", 5, 3},
		{"single_element", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, m := buildDynamicWrite(tt.n)
			run(t, f.C, lowertypes.Options{})
			mustLowered(t, f.C)

			ws := whens(m)
			if len(ws) != int(tt.n) {
				t.Fatalf("got %d guarded writes, want %d:\n%s", len(ws), tt.n, testkit.Dump(f.C))
			}
			for i, w := range ws {
				eq := w.Operand(0).DefiningOp()
				if eq == nil || eq.Kind != firrtl.OpEq || eq.Operand(0) != m.Arg(0) {
					t.Fatalf("guard %d is not eq(idx, _)", i)
				}
				k := eq.Operand(1).DefiningOp()
				if k == nil || k.Kind != firrtl.OpConstant || k.Const != uint64(i) {
					t.Fatalf("guard %d does not compare against %d", i, i)
				}
				if k.Result(0).Type != f.In.UInt(tt.selWidth) {
					t.Errorf("guard %d constant type %s, want UInt<%d>", i, f.In.String(k.Result(0).Type), tt.selWidth)
				}
				body := w.Then.Ops()
				if len(body) != 1 || body[0].Kind != firrtl.OpConnect {
					t.Fatalf("guard %d body has %d ops", i, len(body))
				}
				elem := testkit.FindOp(m, fmt.Sprintf("v_%d", i))
				if elem == nil || body[0].Operand(0) != elem.Result(0) || body[0].Operand(1) != m.Arg(1) {
					t.Errorf("guard %d does not write v_%d from din", i, i)
				}
			}
			if testkit.CountKind(m, firrtl.OpSubaccess) != 0 {
				t.Errorf("subaccess left behind")
			}
		})
	}
}

func TestDynamicWriteEmptyVector(t *testing.T) {
	f, m := buildDynamicWrite(0)
	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)
	if len(whens(m)) != 0 || !m.Body.Empty() {
		t.Fatalf("empty vector write should vanish:\n%s", testkit.Dump(f.C))
	}
}

// TestDynamicWriteNestedPath writes v[idx].b through a bundle element.
func TestDynamicWriteNestedPath(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	elem := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.UInt(4)))
	m := f.Module("Top", testkit.In("idx", in.UInt(1)), testkit.In("din", in.UInt(4)))
	v := f.B.Wire(in.Vector(elem, 2), "v")
	f.B.StrictConnect(f.B.Subfield(f.B.Subaccess(v.Result(0), m.Arg(0)), 1), m.Arg(1))

	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)
	ws := whens(m)
	if len(ws) != 2 {
		t.Fatalf("got %d guarded writes, want 2", len(ws))
	}
	for i, w := range ws {
		body := w.Then.Ops()
		if len(body) != 1 || body[0].Kind != firrtl.OpStrictConnect {
			t.Fatalf("guard %d: want a single strict connect", i)
		}
		dest := testkit.FindOp(m, fmt.Sprintf("v_%d_b", i))
		if dest == nil || body[0].Operand(0) != dest.Result(0) {
			t.Errorf("guard %d does not write v_%d_b", i, i)
		}
	}
}

func TestDynamicRead(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	m := f.Module("Top",
		testkit.In("idx", in.UInt(2)),
		testkit.Out("o", in.UInt(8)),
		testkit.Out("k", in.UInt(8)),
		testkit.Out("e", in.UInt(8)),
	)
	v := f.B.Wire(in.Vector(in.UInt(8), 3), "v")
	empty := f.B.Wire(in.Vector(in.UInt(8), 0), "empty")
	f.B.Connect(m.Arg(1), f.B.Subaccess(v.Result(0), m.Arg(0)))
	f.B.Connect(m.Arg(2), f.B.Subaccess(v.Result(0), f.B.Constant(in.UInt(2), 1)))
	f.B.Connect(m.Arg(3), f.B.Subaccess(empty.Result(0), m.Arg(0)))

	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)

	sources := make(map[string]*firrtl.Op)
	m.Walk(func(op *firrtl.Op) {
		if op.Kind == firrtl.OpConnect && op.Operand(0).IsArgument() {
			sources[m.Ports[op.Operand(0).ArgIndex()].Name] = op.Operand(1).DefiningOp()
		}
	})

	mux := sources["o"]
	if mux == nil || mux.Kind != firrtl.OpMultibitMux {
		t.Fatalf("o is not driven by a multibit mux:\n%s", testkit.Dump(f.C))
	}
	ops := mux.Operands()
	if ops[0] != m.Arg(0) || len(ops) != 4 {
		t.Fatalf("mux operands: %d", len(ops))
	}
	for j, want := range []string{"v_2", "v_1", "v_0"} {
		if def := ops[j+1].DefiningOp(); def == nil || def.Name != want {
			t.Errorf("mux input %d is not %s", j, want)
		}
	}
	if k := sources["k"]; k == nil || k.Name != "v_1" {
		t.Errorf("constant read not reduced to v_1")
	}
	if e := sources["e"]; e == nil || e.Kind != firrtl.OpInvalid {
		t.Errorf("empty read not reduced to invalid")
	}
}

func TestMuxAndNode(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	pair := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.UInt(2)))
	m := f.Module("Top",
		testkit.In("sel", in.UInt(1)),
		testkit.In("x", pair),
		testkit.In("y", pair),
		testkit.Out("o", pair),
	)
	n := f.B.Node(f.B.Mux(m.Arg(0), m.Arg(1), m.Arg(2)), "n")
	n.NameKind = firrtl.NameInteresting
	f.B.Connect(m.Arg(3), n.Result(0))

	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)
	if got := testkit.CountKind(m, firrtl.OpMux); got != 2 {
		t.Errorf("mux count = %d, want 2", got)
	}
	for _, name := range []string{"n_a", "n_b"} {
		op := testkit.FindOp(m, name)
		if op == nil || op.Kind != firrtl.OpNode || op.NameKind != firrtl.NameInteresting {
			t.Fatalf("%s missing or lost its name kind", name)
		}
		mux := op.Operand(0).DefiningOp()
		if mux.Kind != firrtl.OpMux || mux.Operand(0) != m.Arg(0) {
			t.Errorf("%s not fed by a mux on sel", name)
		}
	}
}

func TestBitCastToBundle(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	pair := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.SInt(2)))
	m := f.Module("Top", testkit.In("raw", in.UInt(3)), testkit.Out("o", pair), testkit.Out("back", in.UInt(3)))
	cast := f.B.BitCast(pair, m.Arg(0))
	f.B.Connect(m.Arg(1), cast)
	f.B.Connect(m.Arg(2), f.B.BitCast(in.UInt(3), cast))

	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)
	if testkit.CountKind(m, firrtl.OpBitCast) != 0 {
		t.Fatalf("bitcasts left:\n%s", testkit.Dump(f.C))
	}

	drivers := make(map[string]*firrtl.Value)
	m.Walk(func(op *firrtl.Op) {
		if op.Kind == firrtl.OpConnect && op.Operand(0).IsArgument() {
			drivers[m.Ports[op.Operand(0).ArgIndex()].Name] = op.Operand(1)
		}
	})
	bitsOf := func(v *firrtl.Value) (int32, int32) {
		def := v.DefiningOp()
		if def != nil && def.Kind == firrtl.OpAsSInt {
			def = def.Operand(0).DefiningOp()
		}
		if def == nil || def.Kind != firrtl.OpBits || def.Operand(0) != m.Arg(0) {
			t.Fatalf("field not extracted from raw")
		}
		return def.Hi, def.Lo
	}
	if hi, lo := bitsOf(drivers["o_a"]); hi != 0 || lo != 0 {
		t.Errorf("o_a = bits(%d, %d), want bits(0, 0)", hi, lo)
	}
	if hi, lo := bitsOf(drivers["o_b"]); hi != 2 || lo != 1 {
		t.Errorf("o_b = bits(%d, %d), want bits(2, 1)", hi, lo)
	}
	if d := drivers["o_b"].DefiningOp(); d.Kind != firrtl.OpAsSInt {
		t.Errorf("signed field not converted with asSInt")
	}
	if d := drivers["back"].DefiningOp(); d == nil || d.Kind != firrtl.OpCat {
		t.Errorf("back is not repacked with cat")
	}
}

func TestMemorySplit(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	data := in.Bundle(testkit.Field("a", in.UInt(8)), testkit.Field("b", in.UInt(4)))
	m := f.Module("Top", testkit.In("clk", in.Builtins().Clock), testkit.Out("q", in.UInt(4)))
	// Write port IDs: addr 1, en 2, clk 3, data 4 (a 5, b 6), mask 7 (a 8, b 9).
	mem := f.B.Mem(&firrtl.MemInfo{
		DataType: data,
		Depth:    8,
		Ports: []firrtl.MemPort{
			{Name: "r", Kind: types.PortRead},
			{Name: "w", Kind: types.PortWrite, Annos: annotations.Set{
				annotations.New("test.En").WithFieldID(2),
				annotations.New("test.DataB").WithFieldID(6),
				annotations.New("test.Port"),
			}},
		},
	}, "m")
	mem.Sym = "m"
	f.B.Connect(f.B.Subfield(mem.Result(0), 2), m.Arg(0))
	f.B.Connect(m.Arg(1), f.B.Subfield(f.B.Subfield(mem.Result(0), 3), 1))

	res := run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)

	ma, mb := testkit.FindOp(m, "m_a"), testkit.FindOp(m, "m_b")
	if ma == nil || mb == nil || ma.Kind != firrtl.OpMem || mb.Kind != firrtl.OpMem {
		t.Fatalf("split memories missing:\n%s", testkit.Dump(f.C))
	}
	if ma.Mem.DataType != in.UInt(8) || mb.Mem.DataType != in.UInt(4) {
		t.Errorf("data types %s / %s", in.String(ma.Mem.DataType), in.String(mb.Mem.DataType))
	}
	if ma.Sym != "m_a" || mb.Sym != "m_b" {
		t.Errorf("syms %q / %q", ma.Sym, mb.Sym)
	}
	if got := res.Renames[hierpath.Ref{Module: "Top", Sym: "m"}]; len(got) != 2 {
		t.Errorf("renames for m = %d, want 2", len(got))
	}

	fieldIDs := func(set annotations.Set) map[string]int64 {
		out := make(map[string]int64)
		for _, a := range set {
			id, _ := a.FieldID()
			out[a.Class()] = int64(id)
		}
		return out
	}
	// New write port IDs: addr 1, en 2, clk 3, data 4, mask 5.
	gotA := fieldIDs(ma.Mem.Ports[1].Annos)
	gotB := fieldIDs(mb.Mem.Ports[1].Annos)
	if gotA["test.En"] != 2 || gotB["test.En"] != 2 {
		t.Errorf("en annotation not kept on both: %v / %v", gotA, gotB)
	}
	if _, ok := gotA["test.DataB"]; ok {
		t.Errorf("data.b annotation leaked onto m_a")
	}
	if id, ok := gotB["test.DataB"]; !ok || id != 4 {
		t.Errorf("data.b annotation on m_b = %d, %v; want field ID 4", id, ok)
	}
	if _, ok := gotA["test.Port"]; !ok {
		t.Errorf("untargeted port annotation dropped")
	}

	// The read data of q must come from m_b.
	var q *firrtl.Op
	m.Walk(func(op *firrtl.Op) {
		if op.Kind == firrtl.OpConnect && op.Operand(0) == m.Arg(1) {
			q = op
		}
	})
	if q == nil {
		t.Fatalf("q not driven")
	}
	wire := q.Operand(1).DefiningOp()
	if wire == nil || wire.Name != "m_r_data_b" {
		t.Fatalf("q driven by %v, want wire m_r_data_b", wire)
	}
	driven := false
	for _, user := range wire.Result(0).Users() {
		if user.Kind != firrtl.OpConnect || user.Operand(0) != wire.Result(0) {
			continue
		}
		src := user.Operand(1).DefiningOp()
		if src.Kind == firrtl.OpSubfield && src.Operand(0) == mb.Result(0) && src.Index == 3 {
			driven = true
		}
	}
	if !driven {
		t.Errorf("m_r_data_b not driven by m_b.r.data:\n%s", testkit.Dump(f.C))
	}
}

func TestInstanceResignature(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	bus := in.Bundle(testkit.Field("valid", in.UInt(1)), testkit.Flip("ready", in.UInt(1)))
	child := f.Module("Child", testkit.In("io", bus), testkit.In("clk", in.Builtins().Clock))
	f.B.Connect(f.B.Subfield(child.Arg(0), 1), f.B.Subfield(child.Arg(0), 0))

	top := f.Module("Top", testkit.Out("ready", in.UInt(1)), testkit.In("clk", in.Builtins().Clock))
	nla := f.Path("nla", hierpath.Ref{Module: "Top", Sym: "symc"}, hierpath.Ref{Module: "Child"})
	inst := f.Instance("Child", "c")
	inst.Inst.Ports[0].Annos = annotations.Set{testkit.DontTouch(nla, 0)}
	f.B.Connect(f.B.Subfield(inst.Result(0), 0), f.B.Constant(in.UInt(1), 1))
	f.B.Connect(top.Arg(0), f.B.Subfield(inst.Result(0), 1))
	f.B.Connect(inst.Result(1), top.Arg(1))

	run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)

	newInst := testkit.FindOp(top, "c")
	if newInst == nil || newInst.Kind != firrtl.OpInstance {
		t.Fatalf("instance missing")
	}
	var got []string
	for _, p := range newInst.Inst.Ports {
		got = append(got, p.Dir.String()+" "+p.Name)
	}
	want := []string{"in io_valid", "out io_ready", "in clk"}
	if !slices.Equal(got, want) {
		t.Errorf("instance ports %v, want %v", got, want)
	}
	for i, p := range child.Ports {
		if p.Name != newInst.Inst.Ports[i].Name || p.Type != newInst.Inst.Ports[i].Type {
			t.Errorf("port %d differs between module and instance", i)
		}
	}
	if newInst.Sym != "symc" {
		t.Errorf("instance sym %q, want symc", newInst.Sym)
	}
	if !newInst.Inst.Ports[0].Annos.Has(annotations.ClassDontTouch) {
		t.Errorf("port annotation not carried")
	}
}

func TestInstanceWithoutAggregatesIsKept(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	f.Module("Leaf", testkit.In("a", in.UInt(1)))
	top := f.Module("Top")
	inst := f.Instance("Leaf", "l")
	f.B.Connect(inst.Result(0), f.B.Constant(in.UInt(1), 0))

	res := run(t, f.C, lowertypes.Options{})
	if testkit.FindOp(top, "l") != inst {
		t.Fatalf("ground-only instance was rebuilt")
	}
	if res.ModulesLowered != 0 {
		t.Errorf("ModulesLowered = %d, want 0", res.ModulesLowered)
	}
}

func TestPortLowering(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	bus := in.Bundle(testkit.Flip("req", in.UInt(1)), testkit.Field("resp", in.Vector(in.UInt(8), 2)))
	ext := f.Ext("BlackBox", testkit.In("clk", in.Builtins().Clock), testkit.Out("bus", bus))
	m := f.Module("Top", testkit.Out("bus", bus), testkit.In("en", in.UInt(1)))
	m.Ports[0].Sym = "bus"
	nla := f.Path("nla", hierpath.Ref{Module: "Top", Sym: "bus"})
	m.Ports[0].Annos = annotations.Set{testkit.DontTouch(nla, 0)}
	port := m.Arg(0)
	f.B.Connect(f.B.Subindex(f.B.Subfield(port, 1), 0), f.B.Constant(in.UInt(8), 7))
	f.B.Connect(f.B.Subindex(f.B.Subfield(port, 1), 1), f.B.Constant(in.UInt(8), 9))

	res := run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)

	portList := func(mod *firrtl.Module) []string {
		var out []string
		for _, p := range mod.Ports {
			out = append(out, p.Dir.String()+" "+p.Name)
		}
		return out
	}
	if got, want := portList(ext), []string{"in clk", "in bus_req", "out bus_resp_0", "out bus_resp_1"}; !slices.Equal(got, want) {
		t.Errorf("external ports %v, want %v", got, want)
	}
	if got, want := portList(m), []string{"in bus_req", "out bus_resp_0", "out bus_resp_1", "in en"}; !slices.Equal(got, want) {
		t.Errorf("module ports %v, want %v", got, want)
	}
	for i, p := range m.Ports[:3] {
		if p.Sym == "" {
			t.Errorf("port %s lost its symbol", p.Name)
		}
		if m.Arg(i).Type != p.Type {
			t.Errorf("port %s: argument type mismatch", p.Name)
		}
	}
	if got := res.Renames[hierpath.Ref{Module: "Top", Sym: "bus"}]; len(got) != 3 {
		t.Fatalf("renames for bus = %d, want 3", len(got))
	}
	if res.PathsAdded != 2 {
		t.Errorf("PathsAdded = %d, want 2", res.PathsAdded)
	}
}

func TestPathSplitIntoGroundLeaves(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	inner := in.Bundle(testkit.Field("c", in.UInt(1)), testkit.Field("d", in.UInt(3)))
	typ := in.Bundle(testkit.Field("a", inner), testkit.Field("b", in.UInt(2)))

	leafMod := f.Module("Leaf", testkit.In("clk", in.Builtins().Clock))
	x := f.B.Reg(typ, leafMod.Arg(0), "x")
	x.Sym = "x"
	f.B.Wire(in.UInt(1), "y").Sym = "y"
	nla := f.Path("nla", hierpath.Ref{Module: "Top", Sym: "leaf"}, hierpath.Ref{Module: "Leaf", Sym: "x"})
	firrtl.Annotate(x, testkit.DontTouch(nla, 0), annotations.New("test.Local"))
	other := f.Path("other", hierpath.Ref{Module: "Leaf", Sym: "y"})

	f.Module("Top")
	f.Instance("Leaf", "leaf").Sym = "leaf"

	res := run(t, f.C, lowertypes.Options{})
	mustLowered(t, f.C)

	if res.PathsRewritten != 1 || res.PathsAdded != 2 {
		t.Fatalf("rewritten=%d added=%d, want 1 and 2", res.PathsRewritten, res.PathsAdded)
	}
	leaf := f.C.Module("Leaf")
	seen := make(map[string]bool)
	for _, p := range f.C.Paths.All() {
		if p.Name == other {
			if p.Leaf().Sym != "y" {
				t.Errorf("unrelated path was rewritten")
			}
			continue
		}
		if !strings.HasPrefix(p.Name, "nla") {
			t.Errorf("unexpected path %s", p)
			continue
		}
		if p.Namepath[0] != (hierpath.Ref{Module: "Top", Sym: "leaf"}) {
			t.Errorf("path %s lost its prefix", p)
		}
		var target *firrtl.Op
		leaf.Walk(func(op *firrtl.Op) {
			if op.Sym == p.Leaf().Sym {
				target = op
			}
		})
		if target == nil {
			t.Fatalf("path %s ends at unknown symbol", p)
		}
		seen[target.Name] = true
		count := 0
		for _, a := range target.Annos {
			if nl, ok := a.NonLocal(); ok {
				count++
				if nl != p.Name {
					t.Errorf("%s: annotation scoped to %s, want %s", target.Name, nl, p.Name)
				}
			}
		}
		if count != 1 {
			t.Errorf("%s: %d nonlocal annotations, want 1", target.Name, count)
		}
		if !target.Annos.Has("test.Local") {
			t.Errorf("%s: local annotation lost", target.Name)
		}
	}
	for _, name := range []string{"x_a_c", "x_a_d", "x_b"} {
		if !seen[name] {
			t.Errorf("no path ends at %s", name)
		}
	}
	if _, ok := f.C.Symbols.Lookup(nla); !ok {
		t.Errorf("original path name no longer in the symbol table")
	}
}

func TestIdempotent(t *testing.T) {
	f := testkit.Sample()
	run(t, f.C, lowertypes.Options{})
	first := testkit.Dump(f.C)

	res := run(t, f.C, lowertypes.Options{})
	if second := testkit.Dump(f.C); second != first {
		t.Fatalf("second run changed the circuit:\n%s\n---\n%s", first, second)
	}
	if res.ModulesLowered != 0 || len(res.Renames) != 0 || res.PathsAdded != 0 {
		t.Errorf("second run reported work: %+v", res)
	}
}

// A ground-to-ground bitcast in an otherwise flat module is rewritten on
// the first run; the rewritten form is stable.
func TestGroundBitCastRewrittenOnce(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	m := f.Module("Top", testkit.In("raw", in.UInt(2)), testkit.Out("o", in.SInt(2)))
	f.B.Connect(m.Arg(1), f.B.BitCast(in.SInt(2), m.Arg(0)))

	run(t, f.C, lowertypes.Options{})
	if testkit.CountKind(m, firrtl.OpBitCast) != 0 || testkit.CountKind(m, firrtl.OpAsSInt) != 1 {
		t.Fatalf("bitcast not rewritten to asSInt:\n%s", testkit.Dump(f.C))
	}
	first := testkit.Dump(f.C)
	run(t, f.C, lowertypes.Options{})
	if second := testkit.Dump(f.C); second != first {
		t.Fatalf("second run changed the circuit:\n%s\n---\n%s", first, second)
	}
}

func TestPreserveAggregate(t *testing.T) {
	build := func() (*testkit.Fixture, *firrtl.Module, *firrtl.Module) {
		f := testkit.New("Top")
		in := f.In
		pair := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.UInt(2)))
		bidir := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Flip("b", in.UInt(1)))

		child := f.Module("Child", testkit.In("p", pair))
		f.B.Wire(pair, "cw")

		top := f.Module("Top", testkit.In("p", pair))
		top.Public = true
		w := f.B.Wire(pair, "w")
		f.B.Connect(w.Result(0), f.B.Invalid(pair))
		f.B.Wire(bidir, "bi")
		f.B.Wire(in.Bundle(testkit.Field("z", in.UInt(0))), "zw")
		f.B.Connect(f.B.Subfield(w.Result(0), 0), f.B.Subfield(top.Arg(0), 0))
		return f, child, top
	}

	t.Run("preserve_all", func(t *testing.T) {
		f, child, top := build()
		run(t, f.C, lowertypes.Options{PreserveAggregate: true})
		if err := firrtl.Validate(f.C); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if w := testkit.FindOp(top, "w"); w == nil || !f.In.IsAggregate(w.Result(0).Type) {
			t.Errorf("passive wire was not preserved")
		}
		if testkit.FindOp(top, "bi") != nil || testkit.FindOp(top, "bi_b") == nil {
			t.Errorf("non-passive wire was preserved")
		}
		if testkit.FindOp(top, "zw") != nil {
			t.Errorf("zero-width wire was preserved")
		}
		if len(top.Ports) != 1 || len(child.Ports) != 1 {
			t.Errorf("ports were lowered")
		}
		// The connect of the preserved wire is still expanded.
		top.Walk(func(op *firrtl.Op) {
			if op.Kind == firrtl.OpConnect && f.In.IsAggregate(op.Operand(0).Type) {
				t.Errorf("aggregate connect survived")
			}
		})
	})

	t.Run("preserve_private_only", func(t *testing.T) {
		f, child, top := build()
		run(t, f.C, lowertypes.Options{PreserveAggregate: true, PreservePublicTypes: true})
		if err := firrtl.Validate(f.C); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if len(child.Ports) != 1 {
			t.Errorf("private module ports were lowered")
		}
		if len(top.Ports) != 2 || top.Ports[0].Name != "p_a" {
			t.Errorf("public module ports were preserved: %v", top.Ports)
		}
	})

	t.Run("no_preserve", func(t *testing.T) {
		f, _, _ := build()
		run(t, f.C, lowertypes.Options{})
		mustLowered(t, f.C)
	})

	t.Run("public_types_alone_lowers_everything", func(t *testing.T) {
		f, child, _ := build()
		run(t, f.C, lowertypes.Options{PreservePublicTypes: true})
		mustLowered(t, f.C)
		if len(child.Ports) != 2 {
			t.Errorf("private module ports were preserved: %v", child.Ports)
		}
	})
}

func TestUnknownAggregateUserIsInvariantError(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	pair := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.UInt(2)))
	m := f.Module("Top", testkit.Out("o", in.UInt(3)))
	w := f.B.Wire(pair, "w")
	f.B.Connect(m.Arg(0), f.B.AsUInt(w.Result(0)))

	_, err := lowertypes.Run(context.Background(), f.C, lowertypes.Options{})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !lowertypes.IsInvariantError(err) {
		t.Fatalf("error %v is not an invariant error", err)
	}
	if !strings.Contains(err.Error(), "module Top") || !strings.Contains(err.Error(), "asUInt") {
		t.Errorf("error lacks context: %v", err)
	}
}

func TestFailedModuleClosesItsSpan(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	pair := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.UInt(2)))
	m := f.Module("Top", testkit.Out("o", in.UInt(3)))
	w := f.B.Wire(pair, "w")
	f.B.Connect(m.Arg(0), f.B.AsUInt(w.Result(0)))

	rec := trace.NewRecorder(64, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), rec)
	if _, err := lowertypes.Run(ctx, f.C, lowertypes.Options{Jobs: 1}); !lowertypes.IsInvariantError(err) {
		t.Fatalf("Run error = %v, want an invariant error", err)
	}

	var begun, ended, failed bool
	for _, ev := range rec.Tail(0) {
		if ev.Scope != trace.ScopeModule || ev.Name != "Top" {
			continue
		}
		switch ev.Kind {
		case trace.KindBegin:
			begun = true
		case trace.KindEnd:
			ended = ev.Detail == "failed"
		case trace.KindFailure:
			failed = strings.Contains(ev.Detail, "asUInt")
		}
	}
	if !begun || !ended || !failed {
		t.Fatalf("module span begin=%v end(failed)=%v failure=%v", begun, ended, failed)
	}
}

func TestManyModulesInParallel(t *testing.T) {
	f := testkit.New("Top")
	in := f.In
	pair := in.Bundle(testkit.Field("a", in.UInt(1)), testkit.Field("b", in.UInt(2)))
	const n = 32
	for i := range n {
		name := fmt.Sprintf("M%d", i)
		m := f.Module(name, testkit.In("p", pair))
		m.Ports[0].Sym = "p"
		f.Path("nla_"+name, hierpath.Ref{Module: name, Sym: "p"})
		w := f.B.Wire(pair, "w")
		w.Sym = "w"
		f.B.Connect(w.Result(0), m.Arg(0))
	}

	res := run(t, f.C, lowertypes.Options{Jobs: 4})
	mustLowered(t, f.C)
	if res.ModulesLowered != n {
		t.Errorf("ModulesLowered = %d, want %d", res.ModulesLowered, n)
	}
	if len(res.Renames) != 2*n {
		t.Errorf("renames = %d, want %d", len(res.Renames), 2*n)
	}
	if res.PathsRewritten != n || res.PathsAdded != n {
		t.Errorf("rewritten=%d added=%d, want %d each", res.PathsRewritten, res.PathsAdded, n)
	}
	if f.C.Paths.Len() != 2*n {
		t.Errorf("paths = %d, want %d", f.C.Paths.Len(), 2*n)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	f := testkit.Sample()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lowertypes.Run(ctx, f.C, lowertypes.Options{Jobs: 1}); err == nil {
		t.Fatalf("expected a cancellation error")
	}
}
