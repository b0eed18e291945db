package snapshot

import (
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/hierpath"
	"firlower/internal/symbols"
	"firlower/internal/types"
)

// Decode reads a snapshot from r into a fresh circuit.
func Decode(r io.Reader) (*firrtl.Circuit, error) {
	var f File
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return f.ToCircuit()
}

// ToCircuit rebuilds the circuit described by f.
func (f *File) ToCircuit() (*firrtl.Circuit, error) {
	if err := checkSchema(f.Schema); err != nil {
		return nil, err
	}
	in := types.NewInterner()
	d := &decoder{in: in, typeMap: []types.TypeID{types.NoTypeID}}
	for i, t := range f.Types {
		id, err := d.internType(t)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", i+1, err)
		}
		d.typeMap = append(d.typeMap, id)
	}

	c := firrtl.NewCircuit(f.Circuit, in)
	for _, md := range f.Modules {
		m, err := d.module(md)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", md.Name, err)
		}
		if err := c.AddModule(m); err != nil {
			return nil, err
		}
	}
	for _, pd := range f.Paths {
		if len(pd.Refs) == 0 {
			return nil, fmt.Errorf("path %s: empty namepath", pd.Name)
		}
		if err := c.Symbols.InsertExact(pd.Name, symbols.KindPath); err != nil {
			return nil, fmt.Errorf("path %s: %w", pd.Name, err)
		}
		p := &hierpath.Path{Name: pd.Name}
		for _, r := range pd.Refs {
			p.Namepath = append(p.Namepath, hierpath.Ref{Module: r.Module, Sym: r.Sym})
		}
		if err := c.Paths.Add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type decoder struct {
	in      *types.Interner
	typeMap []types.TypeID
	b       *firrtl.Builder
	values  []*firrtl.Value
}

func (d *decoder) typ(id uint32) (types.TypeID, error) {
	if id == 0 || int(id) >= len(d.typeMap) {
		return types.NoTypeID, fmt.Errorf("type reference %d out of range", id)
	}
	return d.typeMap[id], nil
}

func (d *decoder) internType(t Type) (types.TypeID, error) {
	kind := types.Kind(t.Kind)
	desc := types.Type{Kind: kind, Width: t.Width, Domain: types.Domain(t.Domain), Count: t.Count}
	switch kind {
	case types.KindUInt, types.KindSInt, types.KindClock, types.KindReset, types.KindAsyncReset, types.KindAnalog:
	case types.KindVector:
		elem, err := d.typ(t.Elem)
		if err != nil {
			return types.NoTypeID, err
		}
		desc.Elem = elem
	case types.KindBundle:
		for _, fld := range t.Fields {
			ft, err := d.typ(fld.Type)
			if err != nil {
				return types.NoTypeID, fmt.Errorf("field %s: %w", fld.Name, err)
			}
			desc.Fields = append(desc.Fields, types.Field{Name: fld.Name, Flip: fld.Flip, Type: ft})
		}
	default:
		return types.NoTypeID, fmt.Errorf("unknown type kind %d", t.Kind)
	}
	return d.in.Intern(desc), nil
}

func (d *decoder) ports(dtos []Port) ([]firrtl.Port, error) {
	out := make([]firrtl.Port, 0, len(dtos))
	for _, p := range dtos {
		t, err := d.typ(p.Type)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", p.Name, err)
		}
		annos, err := decodeAnnos(p.Annos)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", p.Name, err)
		}
		out = append(out, firrtl.Port{
			Name:  p.Name,
			Type:  t,
			Dir:   firrtl.Direction(p.Dir),
			Sym:   p.Sym,
			Annos: annos,
		})
	}
	return out, nil
}

func (d *decoder) module(md Module) (*firrtl.Module, error) {
	kind := firrtl.ModuleKind(md.Kind)
	if kind != firrtl.ModuleKindModule && kind != firrtl.ModuleKindExt {
		return nil, fmt.Errorf("unknown module kind %d", md.Kind)
	}
	ports, err := d.ports(md.Ports)
	if err != nil {
		return nil, err
	}
	m := firrtl.NewModule(md.Name, kind, ports...)
	m.Public = md.Public
	if m.Annos, err = decodeAnnos(md.Annos); err != nil {
		return nil, err
	}
	if m.Body == nil {
		if len(md.Body) != 0 {
			return nil, fmt.Errorf("external module with a body")
		}
		return m, nil
	}

	d.b = firrtl.NewBuilder(d.in)
	d.b.SetInsertionPointToEnd(m.Body)
	d.values = append(d.values[:0], m.Body.Args()...)
	if err := d.block(md.Body); err != nil {
		return nil, err
	}
	return m, nil
}

func (d *decoder) block(ops []Op) error {
	for i := range ops {
		if err := d.op(&ops[i]); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) op(od *Op) error {
	kind := firrtl.OpKind(od.Kind)
	if kind == firrtl.OpInvalidKind || kind > firrtl.OpWhen {
		return fmt.Errorf("unknown op kind %d", od.Kind)
	}
	operands := make([]*firrtl.Value, 0, len(od.Operands))
	for _, id := range od.Operands {
		if int(id) >= len(d.values) {
			return fmt.Errorf("%s %q: operand %d not defined", kind, od.Name, id)
		}
		operands = append(operands, d.values[id])
	}
	results := make([]types.TypeID, 0, len(od.Results))
	for _, r := range od.Results {
		t, err := d.typ(r)
		if err != nil {
			return fmt.Errorf("%s %q: %w", kind, od.Name, err)
		}
		results = append(results, t)
	}

	var op *firrtl.Op
	if kind == firrtl.OpWhen {
		if len(operands) != 1 {
			return fmt.Errorf("when with %d operands", len(operands))
		}
		var inner error
		thenFn := func() { inner = d.block(od.Then) }
		var elseFn func()
		if od.HasElse {
			elseFn = func() {
				if inner == nil {
					inner = d.block(od.Else)
				}
			}
		}
		op = d.b.When(operands[0], thenFn, elseFn)
		if inner != nil {
			return inner
		}
	} else {
		op = d.b.Create(kind, operands, results...)
	}

	op.Name = od.Name
	op.NameKind = firrtl.NameKind(od.NameKind)
	op.Sym = od.Sym
	op.Index = od.Index
	op.Const = od.Const
	op.Hi, op.Lo = od.Hi, od.Lo
	var err error
	if op.Annos, err = decodeAnnos(od.Annos); err != nil {
		return fmt.Errorf("%s %q: %w", kind, od.Name, err)
	}
	if od.Mem != nil {
		if op.Mem, err = d.mem(od.Mem); err != nil {
			return fmt.Errorf("mem %q: %w", od.Name, err)
		}
	}
	if od.Inst != nil {
		ports, err := d.ports(od.Inst.Ports)
		if err != nil {
			return fmt.Errorf("instance %q: %w", od.Name, err)
		}
		info := &firrtl.InstanceInfo{Module: od.Inst.Module, LowerToBind: od.Inst.LowerToBind}
		for _, p := range ports {
			info.Ports = append(info.Ports, firrtl.InstancePort{Name: p.Name, Dir: p.Dir, Type: p.Type, Annos: p.Annos})
		}
		op.Inst = info
	}
	d.values = append(d.values, op.Results()...)
	return nil
}

func (d *decoder) mem(md *Mem) (*firrtl.MemInfo, error) {
	data, err := d.typ(md.DataType)
	if err != nil {
		return nil, err
	}
	info := &firrtl.MemInfo{
		DataType:     data,
		Depth:        md.Depth,
		ReadLatency:  md.ReadLatency,
		WriteLatency: md.WriteLatency,
		RUW:          md.RUW,
	}
	for _, p := range md.Ports {
		annos, err := decodeAnnos(p.Annos)
		if err != nil {
			return nil, fmt.Errorf("port %s: %w", p.Name, err)
		}
		info.Ports = append(info.Ports, firrtl.MemPort{Name: p.Name, Kind: types.PortKind(p.Kind), Annos: annos})
	}
	return info, nil
}

func decodeAnnos(dtos []Annotation) (annotations.Set, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make(annotations.Set, 0, len(dtos))
	for _, dto := range dtos {
		members := make([]annotations.Member, 0, len(dto))
		for _, m := range dto {
			v, err := normalizeValue(m.Value)
			if err != nil {
				return nil, fmt.Errorf("annotation member %s: %w", m.Key, err)
			}
			members = append(members, annotations.Member{Key: m.Key, Value: v})
		}
		out = append(out, annotations.FromMembers(members))
	}
	return out, nil
}

// normalizeValue maps decoded msgpack scalars onto the value kinds
// annotations carry: string, int64 and bool.
func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string, bool, int64:
		return x, nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return safecast.Conv[int64](x)
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}
