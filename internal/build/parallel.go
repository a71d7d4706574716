package build

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"abicheck/internal/abi"
	"abicheck/internal/decl"
	"abicheck/internal/diag"
)

// UnitResult is the outcome of building one unit.
type UnitResult struct {
	Source string
	Module *abi.Module
	Bag    *diag.Bag
}

// Units builds every unit on its own Builder, at most jobs at a time.
// Results keep the order of units.
func Units(ctx context.Context, units []*decl.Unit, opts Options, jobs int) ([]UnitResult, error) {
	if len(units) == 0 {
		return nil, nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// каждая горутина пишет только в свой индекс
	results := make([]UnitResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(units)))

	for i, u := range units {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			mod, bag := BuildUnit(u, opts)
			results[i] = UnitResult{Source: u.Source, Module: mod, Bag: bag}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
