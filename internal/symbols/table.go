package symbols

import (
	"fmt"
	"slices"
)

// Kind classifies circuit-level symbols.
type Kind uint8

const (
	KindModule Kind = iota + 1
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindPath:
		return "path"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Table is the circuit-scoped symbol table shared by modules and
// hierarchical paths. It is not safe for concurrent mutation.
type Table struct {
	ns    *Namespace
	kinds map[string]Kind
	order []string
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{ns: NewNamespace(), kinds: make(map[string]Kind)}
}

// Insert adds a symbol. If name is taken, a unique variant is chosen and
// returned.
func (t *Table) Insert(name string, kind Kind) string {
	if name == "" {
		name = "sym"
	}
	unique := t.ns.NewName(name)
	t.kinds[unique] = kind
	t.order = append(t.order, unique)
	return unique
}

// InsertExact adds a symbol that must keep its name.
func (t *Table) InsertExact(name string, kind Kind) error {
	if name == "" {
		return fmt.Errorf("empty %s symbol name", kind)
	}
	if t.ns.Has(name) {
		return fmt.Errorf("redefinition of symbol %q", name)
	}
	t.ns.Add(name)
	t.kinds[name] = kind
	t.order = append(t.order, name)
	return nil
}

// Lookup returns the kind of a symbol.
func (t *Table) Lookup(name string) (Kind, bool) {
	k, ok := t.kinds[name]
	return k, ok
}

// Erase removes a symbol; its name becomes available again.
func (t *Table) Erase(name string) {
	if _, ok := t.kinds[name]; !ok {
		return
	}
	delete(t.kinds, name)
	t.ns.Remove(name)
	if i := slices.Index(t.order, name); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// NewName returns a name unique in the table without inserting a symbol.
// The name stays reserved until a symbol with it is inserted and erased.
func (t *Table) NewName(base string) string {
	return t.ns.NewName(base)
}

// Names returns symbol names in insertion order.
func (t *Table) Names() []string {
	return slices.Clone(t.order)
}

// Len returns the number of symbols.
func (t *Table) Len() int { return len(t.kinds) }
