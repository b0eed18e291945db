package symbols

// DisjointSet groups every symbol derived from one original symbol during
// type lowering. The leader of each class is the original, pre-lowering
// symbol, so any intermediate or final symbol can be traced back to it.
//
// For a wire with symbol "a" of type {a: UInt<1>, b: {c: UInt<1>}} the class
// ends up as ["a", "a_a", "a_b", "a_b_c"] with leader "a", even though only
// "a_a" and "a_b_c" survive lowering.
type DisjointSet struct {
	names  *Interner
	parent []StringID // indexed by StringID; parent[i] == i for leaders
}

// NewDisjointSet returns an empty set backed by its own interner.
func NewDisjointSet() *DisjointSet {
	return &DisjointSet{names: NewInterner(), parent: []StringID{NoStringID}}
}

func (d *DisjointSet) id(name string) StringID {
	id := d.names.Intern(name)
	for int(id) >= len(d.parent) {
		d.parent = append(d.parent, StringID(len(d.parent)))
	}
	return id
}

func (d *DisjointSet) find(id StringID) StringID {
	root := id
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for d.parent[id] != root {
		d.parent[id], id = root, d.parent[id]
	}
	return root
}

// Union merges the class of derived into the class of orig. The leader of
// orig's class stays the leader.
func (d *DisjointSet) Union(orig, derived string) {
	o := d.find(d.id(orig))
	n := d.find(d.id(derived))
	if o != n {
		d.parent[n] = o
	}
}

// Leader returns the original symbol name is derived from, or name itself
// if it was never unioned.
func (d *DisjointSet) Leader(name string) string {
	return d.names.MustLookup(d.find(d.id(name)))
}

// Same reports whether a and b are in the same class.
func (d *DisjointSet) Same(a, b string) bool {
	return d.find(d.id(a)) == d.find(d.id(b))
}

// Len returns the number of names tracked.
func (d *DisjointSet) Len() int {
	return d.names.Len() - 1
}
