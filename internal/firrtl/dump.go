package firrtl

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"firlower/internal/annotations"
	"firlower/internal/types"
)

// Dump writes a deterministic, human-readable rendering of c. Values are
// numbered in program order per module, so two structurally identical
// circuits dump identically.
func Dump(w io.Writer, c *Circuit) error {
	if w == nil || c == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "circuit %s\n", c.Name)
	for _, m := range c.Modules {
		dumpModule(&sb, c.Types, m)
	}
	for _, p := range c.Paths.All() {
		fmt.Fprintf(&sb, "  hierpath %s\n", p)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// DumpModule writes a single module.
func DumpModule(w io.Writer, in *types.Interner, m *Module) error {
	var sb strings.Builder
	dumpModule(&sb, in, m)
	_, err := io.WriteString(w, sb.String())
	return err
}

type dumper struct {
	sb    *strings.Builder
	in    *types.Interner
	names map[*Value]string
	next  int
}

func dumpModule(sb *strings.Builder, in *types.Interner, m *Module) {
	d := &dumper{sb: sb, in: in, names: make(map[*Value]string)}
	flags := ""
	if m.Public {
		flags = " public"
	}
	fmt.Fprintf(sb, "  %s %s%s%s\n", m.Kind, m.Name, flags, annoSuffix(m.Annos))
	for i, p := range m.Ports {
		fmt.Fprintf(sb, "    %s %s: %s%s%s\n", p.Dir, p.Name, in.String(p.Type), symSuffix(p.Sym), annoSuffix(p.Annos))
		if m.Body != nil && i < m.Body.NumArgs() {
			d.names[m.Body.Arg(i)] = "%" + p.Name
		}
	}
	if m.Body != nil {
		d.block(m.Body, "    ")
	}
}

func (d *dumper) name(v *Value) string {
	if v == nil {
		return "<nil>"
	}
	if n, ok := d.names[v]; ok {
		return n
	}
	return "<undef>"
}

func (d *dumper) define(v *Value) string {
	n := "%" + strconv.Itoa(d.next)
	d.next++
	d.names[v] = n
	return n
}

func (d *dumper) block(blk *Block, indent string) {
	for op := blk.First(); op != nil; op = op.Next() {
		d.op(op, indent)
	}
}

func (d *dumper) op(op *Op, indent string) {
	sb := d.sb
	sb.WriteString(indent)
	if len(op.results) > 0 {
		for i, r := range op.results {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.define(r))
		}
		sb.WriteString(" = ")
	}
	sb.WriteString(op.Kind.String())

	switch op.Kind {
	case OpSubfield, OpSubindex:
		fmt.Fprintf(sb, "[%d]", op.Index)
	case OpConstant:
		fmt.Fprintf(sb, " %d", op.Const)
	case OpBits:
		fmt.Fprintf(sb, "[%d:%d]", op.Hi, op.Lo)
	case OpInstance:
		fmt.Fprintf(sb, " @%s", op.Inst.Module)
	case OpMem:
		fmt.Fprintf(sb, " depth=%d rd=%d wr=%d", op.Mem.Depth, op.Mem.ReadLatency, op.Mem.WriteLatency)
		if op.Mem.RUW != "" {
			fmt.Fprintf(sb, " ruw=%s", op.Mem.RUW)
		}
		fmt.Fprintf(sb, " data=%s", d.in.String(op.Mem.DataType))
	}
	if op.Name != "" {
		fmt.Fprintf(sb, " %q", op.Name)
	}
	if op.Kind.IsDeclaration() && op.NameKind != NameDroppable {
		fmt.Fprintf(sb, " %s", op.NameKind)
	}

	for i, v := range op.operands {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(d.name(v))
	}

	if len(op.results) == 1 {
		fmt.Fprintf(sb, " : %s", d.in.String(op.results[0].Type))
	}
	sb.WriteString(symSuffix(op.Sym))
	sb.WriteString(annoSuffix(op.Annos))
	if op.Kind == OpInstance && op.Inst.LowerToBind {
		sb.WriteString(" bind")
	}
	sb.WriteString("\n")

	switch op.Kind {
	case OpInstance:
		for _, p := range op.Inst.Ports {
			fmt.Fprintf(sb, "%s  %s %s: %s%s\n", indent, p.Dir, p.Name, d.in.String(p.Type), annoSuffix(p.Annos))
		}
	case OpMem:
		for i, p := range op.Mem.Ports {
			fmt.Fprintf(sb, "%s  %s %s: %s%s\n", indent, p.Kind, p.Name, d.in.String(op.results[i].Type), annoSuffix(p.Annos))
		}
	case OpWhen:
		fmt.Fprintf(sb, "%s{\n", indent)
		d.block(op.Then, indent+"  ")
		if op.Else != nil {
			fmt.Fprintf(sb, "%s} else {\n", indent)
			d.block(op.Else, indent+"  ")
		}
		fmt.Fprintf(sb, "%s}\n", indent)
	}
}

func symSuffix(sym string) string {
	if sym == "" {
		return ""
	}
	return " sym @" + sym
}

func annoSuffix(annos annotations.Set) string {
	if len(annos) == 0 {
		return ""
	}
	parts := make([]string, len(annos))
	for i, a := range annos {
		parts[i] = a.String()
	}
	return " [" + strings.Join(parts, ", ") + "]"
}
