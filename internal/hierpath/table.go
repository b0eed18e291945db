package hierpath

import (
	"fmt"
	"slices"

	"firlower/internal/symbols"
)

// Table indexes paths by name and by every module they pass through.
// It is not safe for concurrent use; only the sequential fixup mutates it.
type Table struct {
	byName   map[string]*Path
	byModule map[string][]*Path
	order    []*Path
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		byName:   make(map[string]*Path),
		byModule: make(map[string][]*Path),
	}
}

// Add registers p. The caller is responsible for its name being unique in
// the circuit symbol table.
func (t *Table) Add(p *Path) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("hierpath: path without a name")
	}
	if _, ok := t.byName[p.Name]; ok {
		return fmt.Errorf("hierpath: duplicate path %q", p.Name)
	}
	t.byName[p.Name] = p
	for _, m := range p.Modules() {
		t.byModule[m] = append(t.byModule[m], p)
	}
	t.order = append(t.order, p)
	return nil
}

// Lookup returns the paths that pass through or end in module, in insertion
// order. The returned slice is a copy and may be held across mutations.
func (t *Table) Lookup(module string) []*Path {
	return slices.Clone(t.byModule[module])
}

// Get returns the path with the given name.
func (t *Table) Get(name string) (*Path, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// Erase removes p from the table and, if syms is not nil, releases its name
// in the circuit symbol table.
func (t *Table) Erase(p *Path, syms *symbols.Table) {
	if cur, ok := t.byName[p.Name]; !ok || cur != p {
		return
	}
	delete(t.byName, p.Name)
	for _, m := range p.Modules() {
		list := slices.DeleteFunc(t.byModule[m], func(q *Path) bool { return q == p })
		if len(list) == 0 {
			delete(t.byModule, m)
		} else {
			t.byModule[m] = list
		}
	}
	t.order = slices.DeleteFunc(t.order, func(q *Path) bool { return q == p })
	if syms != nil {
		syms.Erase(p.Name)
	}
}

// All returns every path in insertion order.
func (t *Table) All() []*Path {
	return slices.Clone(t.order)
}

// Len returns the number of paths.
func (t *Table) Len() int { return len(t.order) }
