// Package hierpath holds the circuit-wide table of hierarchical paths. A
// path names an instance chain that ends at a symbol inside some module;
// annotations refer to paths by name to target one instance of a
// declaration.
package hierpath

import (
	"strings"
)

// Ref addresses a symbol inside a module. An empty Sym addresses the module
// itself.
type Ref struct {
	Module string
	Sym    string
}

func (r Ref) String() string {
	if r.Sym == "" {
		return "@" + r.Module
	}
	return "@" + r.Module + "::@" + r.Sym
}

// Path is a named chain of references from the root module down to its leaf.
type Path struct {
	Name     string
	Namepath []Ref
}

// Leaf returns the last reference of the path.
func (p *Path) Leaf() Ref {
	if len(p.Namepath) == 0 {
		return Ref{}
	}
	return p.Namepath[len(p.Namepath)-1]
}

// WithLeaf returns a copy of p renamed to name whose last reference is
// replaced by leaf.
func (p *Path) WithLeaf(name string, leaf Ref) *Path {
	np := make([]Ref, len(p.Namepath))
	copy(np, p.Namepath)
	if len(np) == 0 {
		np = append(np, leaf)
	} else {
		np[len(np)-1] = leaf
	}
	return &Path{Name: name, Namepath: np}
}

// Modules returns every module the path passes through, without duplicates.
func (p *Path) Modules() []string {
	seen := make(map[string]struct{}, len(p.Namepath))
	out := make([]string, 0, len(p.Namepath))
	for _, r := range p.Namepath {
		if _, ok := seen[r.Module]; ok {
			continue
		}
		seen[r.Module] = struct{}{}
		out = append(out, r.Module)
	}
	return out
}

func (p *Path) String() string {
	var sb strings.Builder
	sb.WriteString(p.Name)
	sb.WriteString(" [")
	for i, r := range p.Namepath {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	sb.WriteString("]")
	return sb.String()
}
