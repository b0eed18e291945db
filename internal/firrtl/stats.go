package firrtl

import (
	"fmt"
	"slices"
	"strings"
)

// Stats counts the contents of a circuit.
type Stats struct {
	Modules int
	Ports   int
	Ops     int
	ByKind  map[OpKind]int
}

// CollectStats walks every module of c.
func CollectStats(c *Circuit) Stats {
	s := Stats{ByKind: make(map[OpKind]int)}
	for _, m := range c.Modules {
		s.Modules++
		s.Ports += len(m.Ports)
		m.Walk(func(op *Op) {
			s.Ops++
			s.ByKind[op.Kind]++
		})
	}
	return s
}

func (s Stats) String() string {
	kinds := make([]OpKind, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	var sb strings.Builder
	fmt.Fprintf(&sb, "modules=%d ports=%d ops=%d", s.Modules, s.Ports, s.Ops)
	for _, k := range kinds {
		fmt.Fprintf(&sb, " %s=%d", k, s.ByKind[k])
	}
	return sb.String()
}
