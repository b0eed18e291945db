package symbols

import "strconv"

// Namespace hands out names that are unique within one scope.
type Namespace struct {
	used    map[string]struct{}
	nextIdx map[string]int
}

// NewNamespace returns a namespace pre-populated with names.
func NewNamespace(names ...string) *Namespace {
	ns := &Namespace{
		used:    make(map[string]struct{}, len(names)),
		nextIdx: make(map[string]int),
	}
	for _, n := range names {
		ns.Add(n)
	}
	return ns
}

// Add reserves name. Empty names are ignored.
func (ns *Namespace) Add(name string) {
	if name == "" {
		return
	}
	ns.used[name] = struct{}{}
}

// Has reports whether name is reserved.
func (ns *Namespace) Has(name string) bool {
	_, ok := ns.used[name]
	return ok
}

// Remove releases name.
func (ns *Namespace) Remove(name string) {
	delete(ns.used, name)
}

// NewName returns base if it is free, otherwise base_<n> for the smallest
// free n. The returned name is reserved.
func (ns *Namespace) NewName(base string) string {
	if !ns.Has(base) {
		ns.Add(base)
		return base
	}
	for i := ns.nextIdx[base]; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if !ns.Has(candidate) {
			ns.nextIdx[base] = i + 1
			ns.Add(candidate)
			return candidate
		}
	}
}

// Len returns the number of reserved names.
func (ns *Namespace) Len() int {
	return len(ns.used)
}
