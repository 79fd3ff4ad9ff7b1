package sim

import (
	"context"
	"sync"

	"github.com/san-kum/plasmactl/internal/dynamo"
)

// Ensemble runs independent closed-loop simulations in parallel for
// Monte Carlo sweeps. Each run gets its own driver (and therefore its
// own plant, optimizer, corrector, and history) from the factory, so no
// mutable state is shared across goroutines.
type Ensemble struct {
	build     func(seed int64) *Driver
	numRuns   int
	seedStart int64
}

func NewEnsemble(build func(seed int64) *Driver, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{build: build, numRuns: numRuns, seedStart: seedStart}
}

func (e *Ensemble) Run(ctx context.Context, x0, xref dynamo.State, cfg Config) ([]*dynamo.Result, error) {
	results := make([]*dynamo.Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			seed := e.seedStart + int64(idx)
			cfgCopy := cfg
			cfgCopy.Seed = seed

			drv := e.build(seed)
			results[idx], errs[idx] = drv.Run(ctx, x0.Clone(), xref.Clone(), cfgCopy)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
