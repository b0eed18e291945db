package lowertypes

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"firlower/internal/annotations"
	"firlower/internal/firrtl"
	"firlower/internal/hierpath"
	"firlower/internal/symbols"
	"firlower/internal/trace"
)

// fixupPaths re-points every hierarchical path that ended at a split symbol.
// The first descendant keeps the path's name; every further descendant gets
// a copy of the path under a fresh name, and annotations scoped to the old
// path are re-scoped to the copy living on their declaration.
//
// Must run after all modules are lowered: it mutates the circuit-wide
// symbol and path tables.
func fixupPaths(c *firrtl.Circuit, res *Result, tracer trace.Tracer, spanID uint64) error {
	keys := slices.SortedFunc(maps.Keys(res.Renames), func(a, b hierpath.Ref) int {
		return cmp.Or(strings.Compare(a.Module, b.Module), strings.Compare(a.Sym, b.Sym))
	})

	for _, oldRef := range keys {
		targets := res.Renames[oldRef]
		if len(targets) == 0 {
			continue
		}
		for _, path := range c.Paths.Lookup(oldRef.Module) {
			if path.Leaf() != oldRef {
				continue
			}
			if err := splitPath(c, path, targets, res, tracer, spanID); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitPath(c *firrtl.Circuit, path *hierpath.Path, targets []Target, res *Result, tracer trace.Tracer, spanID uint64) error {
	oldSym := path.Name
	res.PathsRewritten++
	for i, target := range targets {
		newSym := oldSym
		if i == 0 {
			c.Paths.Erase(path, c.Symbols)
			if err := c.Symbols.InsertExact(newSym, symbols.KindPath); err != nil {
				return fmt.Errorf("path %s: %w", oldSym, err)
			}
		} else {
			newSym = c.Symbols.Insert(oldSym, symbols.KindPath)
			res.PathsAdded++
		}

		if annos := target.annos(); annos != nil {
			var moved annotations.Set
			annos.RemoveIf(func(a annotations.Annotation) bool {
				if nl, ok := a.NonLocal(); ok && nl == oldSym {
					moved = append(moved, a.With(annotations.KeyNonLocal, newSym))
					return true
				}
				return false
			})
			annos.Add(moved...)
		}

		leaf := hierpath.Ref{Module: target.Module.Name, Sym: target.Sym()}
		if err := c.Paths.Add(path.WithLeaf(newSym, leaf)); err != nil {
			return fmt.Errorf("path %s: %w", newSym, err)
		}
		trace.Point(tracer, trace.ScopeNode, "split-path", oldSym+" -> "+newSym+" at "+leaf.String(), spanID)
	}
	return nil
}
