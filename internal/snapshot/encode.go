package snapshot

import (
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/types"
)

// File is the on-disk layout of a snapshot.
//
// Types are stored in TypeID order starting at 1; children always precede
// their parents. Values are numbered per module: body arguments first, then
// op results in walk order.
type File struct {
	Schema  string   `msgpack:"schema"`
	Circuit string   `msgpack:"circuit"`
	Types   []Type   `msgpack:"types"`
	Modules []Module `msgpack:"modules"`
	Paths   []Path   `msgpack:"paths,omitempty"`
}

type Type struct {
	Kind   uint8   `msgpack:"k"`
	Width  int32   `msgpack:"w,omitempty"`
	Domain uint8   `msgpack:"d,omitempty"`
	Elem   uint32  `msgpack:"e,omitempty"`
	Count  uint32  `msgpack:"n,omitempty"`
	Fields []Field `msgpack:"f,omitempty"`
}

type Field struct {
	Name string `msgpack:"name"`
	Flip bool   `msgpack:"flip,omitempty"`
	Type uint32 `msgpack:"type"`
}

// Annotation keeps members in key order.
type Annotation []Member

type Member struct {
	Key   string `msgpack:"k"`
	Value any    `msgpack:"v"`
}

type Port struct {
	Name  string       `msgpack:"name"`
	Type  uint32       `msgpack:"type"`
	Dir   uint8        `msgpack:"dir"`
	Sym   string       `msgpack:"sym,omitempty"`
	Annos []Annotation `msgpack:"annos,omitempty"`
}

type Module struct {
	Name   string       `msgpack:"name"`
	Kind   uint8        `msgpack:"kind"`
	Public bool         `msgpack:"public,omitempty"`
	Ports  []Port       `msgpack:"ports"`
	Annos  []Annotation `msgpack:"annos,omitempty"`
	Body   []Op         `msgpack:"body,omitempty"`
}

type Op struct {
	Kind     uint8        `msgpack:"op"`
	Name     string       `msgpack:"name,omitempty"`
	NameKind uint8        `msgpack:"nk,omitempty"`
	Sym      string       `msgpack:"sym,omitempty"`
	Annos    []Annotation `msgpack:"annos,omitempty"`
	Index    int          `msgpack:"idx,omitempty"`
	Const    uint64       `msgpack:"const,omitempty"`
	Hi       int32        `msgpack:"hi,omitempty"`
	Lo       int32        `msgpack:"lo,omitempty"`
	Operands []uint32     `msgpack:"args,omitempty"`
	Results  []uint32     `msgpack:"res,omitempty"`
	Mem      *Mem         `msgpack:"mem,omitempty"`
	Inst     *Instance    `msgpack:"inst,omitempty"`
	Then     []Op         `msgpack:"then,omitempty"`
	Else     []Op         `msgpack:"else,omitempty"`
	HasElse  bool         `msgpack:"has_else,omitempty"`
}

type Mem struct {
	DataType     uint32    `msgpack:"data"`
	Depth        uint64    `msgpack:"depth"`
	ReadLatency  uint32    `msgpack:"rd,omitempty"`
	WriteLatency uint32    `msgpack:"wr,omitempty"`
	RUW          string    `msgpack:"ruw,omitempty"`
	Ports        []MemPort `msgpack:"ports"`
}

type MemPort struct {
	Name  string       `msgpack:"name"`
	Kind  uint8        `msgpack:"kind"`
	Annos []Annotation `msgpack:"annos,omitempty"`
}

type Instance struct {
	Module      string `msgpack:"module"`
	Ports       []Port `msgpack:"ports"`
	LowerToBind bool   `msgpack:"bind,omitempty"`
}

type Path struct {
	Name string `msgpack:"name"`
	Refs []Ref  `msgpack:"refs"`
}

type Ref struct {
	Module string `msgpack:"m"`
	Sym    string `msgpack:"s,omitempty"`
}

// Encode writes c to w.
func Encode(w io.Writer, c *firrtl.Circuit) error {
	f, err := FromCircuit(c)
	if err != nil {
		return err
	}
	return msgpack.NewEncoder(w).Encode(f)
}

// FromCircuit converts c into its snapshot layout.
func FromCircuit(c *firrtl.Circuit) (*File, error) {
	f := &File{Schema: SchemaVersion, Circuit: c.Name}

	for id := 1; id < c.Types.Len(); id++ {
		tid, err := safecast.Conv[types.TypeID](id)
		if err != nil {
			return nil, fmt.Errorf("type %d: %w", id, err)
		}
		t := c.Types.MustLookup(tid)
		dto := Type{
			Kind:   uint8(t.Kind),
			Width:  t.Width,
			Domain: uint8(t.Domain),
			Elem:   uint32(t.Elem),
			Count:  t.Count,
		}
		for _, fld := range t.Fields {
			dto.Fields = append(dto.Fields, Field{Name: fld.Name, Flip: fld.Flip, Type: uint32(fld.Type)})
		}
		f.Types = append(f.Types, dto)
	}

	for _, m := range c.Modules {
		dto, err := encodeModule(m)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", m.Name, err)
		}
		f.Modules = append(f.Modules, dto)
	}

	for _, p := range c.Paths.All() {
		dto := Path{Name: p.Name}
		for _, r := range p.Namepath {
			dto.Refs = append(dto.Refs, Ref{Module: r.Module, Sym: r.Sym})
		}
		f.Paths = append(f.Paths, dto)
	}
	return f, nil
}

type valueIDs map[*firrtl.Value]uint32

func (ids valueIDs) assign(v *firrtl.Value) error {
	id, err := safecast.Conv[uint32](len(ids))
	if err != nil {
		return err
	}
	ids[v] = id
	return nil
}

func encodeModule(m *firrtl.Module) (Module, error) {
	dto := Module{
		Name:   m.Name,
		Kind:   uint8(m.Kind),
		Public: m.Public,
		Annos:  encodeAnnos(m.Annos),
		Ports:  make([]Port, 0, len(m.Ports)),
	}
	for _, p := range m.Ports {
		dto.Ports = append(dto.Ports, Port{
			Name:  p.Name,
			Type:  uint32(p.Type),
			Dir:   uint8(p.Dir),
			Sym:   p.Sym,
			Annos: encodeAnnos(p.Annos),
		})
	}
	if m.Body == nil {
		return dto, nil
	}
	ids := make(valueIDs)
	for _, arg := range m.Body.Args() {
		if err := ids.assign(arg); err != nil {
			return dto, err
		}
	}
	body, err := encodeBlock(m.Body, ids)
	if err != nil {
		return dto, err
	}
	dto.Body = body
	return dto, nil
}

func encodeBlock(blk *firrtl.Block, ids valueIDs) ([]Op, error) {
	var out []Op
	for _, op := range blk.Ops() {
		dto := Op{
			Kind:     uint8(op.Kind),
			Name:     op.Name,
			NameKind: uint8(op.NameKind),
			Sym:      op.Sym,
			Annos:    encodeAnnos(op.Annos),
			Index:    op.Index,
			Const:    op.Const,
			Hi:       op.Hi,
			Lo:       op.Lo,
		}
		for _, v := range op.Operands() {
			id, ok := ids[v]
			if !ok {
				return nil, fmt.Errorf("%s %q uses a value defined later", op.Kind, op.Name)
			}
			dto.Operands = append(dto.Operands, id)
		}
		for _, r := range op.Results() {
			dto.Results = append(dto.Results, uint32(r.Type))
			if err := ids.assign(r); err != nil {
				return nil, err
			}
		}
		if op.Mem != nil {
			dto.Mem = encodeMem(op.Mem)
		}
		if op.Inst != nil {
			inst := &Instance{Module: op.Inst.Module, LowerToBind: op.Inst.LowerToBind}
			for _, p := range op.Inst.Ports {
				inst.Ports = append(inst.Ports, Port{
					Name:  p.Name,
					Type:  uint32(p.Type),
					Dir:   uint8(p.Dir),
					Annos: encodeAnnos(p.Annos),
				})
			}
			dto.Inst = inst
		}
		if op.Then != nil {
			then, err := encodeBlock(op.Then, ids)
			if err != nil {
				return nil, err
			}
			dto.Then = then
		}
		if op.Else != nil {
			els, err := encodeBlock(op.Else, ids)
			if err != nil {
				return nil, err
			}
			dto.Else, dto.HasElse = els, true
		}
		out = append(out, dto)
	}
	return out, nil
}

func encodeMem(info *firrtl.MemInfo) *Mem {
	dto := &Mem{
		DataType:     uint32(info.DataType),
		Depth:        info.Depth,
		ReadLatency:  info.ReadLatency,
		WriteLatency: info.WriteLatency,
		RUW:          info.RUW,
	}
	for _, p := range info.Ports {
		dto.Ports = append(dto.Ports, MemPort{Name: p.Name, Kind: uint8(p.Kind), Annos: encodeAnnos(p.Annos)})
	}
	return dto
}

func encodeAnnos(set annotations.Set) []Annotation {
	if len(set) == 0 {
		return nil
	}
	out := make([]Annotation, 0, len(set))
	for _, a := range set {
		members := a.Members()
		dto := make(Annotation, 0, len(members))
		for _, m := range members {
			dto = append(dto, Member{Key: m.Key, Value: m.Value})
		}
		out = append(out, dto)
	}
	return out
}
