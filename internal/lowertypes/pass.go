// Package lowertypes removes bundle and vector types from a circuit. Every
// aggregate declaration, expression, port and connect is replaced by ground
// equivalents, annotations follow the fields they address, and hierarchical
// paths ending at a split symbol are re-pointed at its ground descendants.
//
// Modules are lowered concurrently; paths are fixed up afterwards in a
// single sequential step.
package lowertypes

import (
	"context"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"firlower/internal/firrtl"
	"firlower/internal/hierpath"
	"firlower/internal/trace"
)

// Result summarizes a run.
type Result struct {
	// Renames maps each split symbol to the ground declarations and ports
	// that replaced it.
	Renames map[hierpath.Ref][]Target
	// ModulesLowered counts modules whose body or ports changed.
	ModulesLowered int
	// PathsRewritten counts hierarchical paths that ended at a split symbol.
	PathsRewritten int
	// PathsAdded counts paths created beyond the rewritten ones.
	PathsAdded int
}

// Run lowers every module of c. On error the circuit may be partially
// rewritten and must not be used further.
func Run(ctx context.Context, c *firrtl.Circuit, opts Options) (*Result, error) {
	tracer := trace.FromContext(ctx)
	parent := trace.ParentFrom(ctx)
	span := trace.Begin(tracer, trace.ScopePass, "lower-types", parent)

	res := &Result{Renames: make(map[hierpath.Ref][]Target)}
	if err := lowerModules(ctx, c, opts, res, span.ID()); err != nil {
		span.End("failed")
		return nil, err
	}
	span.Set("modules", strconv.Itoa(res.ModulesLowered)).
		Set("renames", strconv.Itoa(len(res.Renames))).
		End("")

	fix := trace.Begin(tracer, trace.ScopePass, "fixup-paths", parent)
	if err := fixupPaths(c, res, tracer, fix.ID()); err != nil {
		fix.End("failed")
		return nil, err
	}
	fix.Set("rewritten", strconv.Itoa(res.PathsRewritten)).
		Set("added", strconv.Itoa(res.PathsAdded)).
		End("")
	return res, nil
}

// lowerModules runs one visitor per module on a bounded worker pool and
// merges the rename maps as modules finish.
func lowerModules(ctx context.Context, c *firrtl.Circuit, opts Options, res *Result, spanID uint64) error {
	if len(c.Modules) == 0 {
		return nil
	}
	tracer := trace.FromContext(ctx)

	// Настраиваем параллелизм
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(c.Modules)))

	for _, m := range c.Modules {
		g.Go(func() (err error) {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			span := trace.Begin(tracer, trace.ScopeModule, m.Name, spanID)
			// Runs after recoverInvariant has filled err.
			defer func() {
				if err != nil {
					trace.Fail(tracer, trace.ScopeModule, m.Name, err, spanID)
					span.End("failed")
				}
			}()
			defer recoverInvariant(m.Name, &err)

			v := newVisitor(c, m, opts)
			v.lowerModule()

			// Общая карта переименований обновляется только под мьютексом
			mu.Lock()
			for ref, targets := range v.renames {
				res.Renames[ref] = append(res.Renames[ref], targets...)
			}
			if v.changed {
				res.ModulesLowered++
			}
			mu.Unlock()

			span.Set("renames", strconv.Itoa(len(v.renames))).End("")
			return nil
		})
	}

	return g.Wait()
}
