package actions

import (
	"context"
	"sync"
)

// spawnParallelism is the default width of the spawnAgent rolling window
// (§4.6).
const spawnParallelism = 4

// spawnBatch executes every spawnAgent directive in directives with
// bounded parallelism, returning results in the same order as the input
// (a "settled-all rolling window": at most spawnParallelism directives run
// concurrently at any instant, and the call returns once every directive
// has settled). Grounded on the bounded-concurrency discipline of
// itsddvn-goclaw/internal/tools/subagent_tracing.go's subagent execution
// path, reduced here to a plain semaphore since no tracing span nesting is
// in scope for a directive batch.
//
// Recursion depth >= 1 is rejected: a spawned agent's own turn must not be
// allowed to spawn further agents.
func (d *Dispatcher) spawnBatch(ctx context.Context, directives []Directive, ownerKey string) []Result {
	results := make([]Result, len(directives))

	if d.spawnDepth >= 1 {
		for i := range directives {
			results[i] = ErrResult(errSpawnDepthExceeded)
		}
		return results
	}

	if err := d.rateLimiter.Allow(CategorySpawn, ownerKey); err != nil {
		for i := range directives {
			results[i] = ErrResult(err)
		}
		return results
	}

	handler, ok := d.handlers[TypeSpawnAgent]
	if !ok {
		for i := range directives {
			results[i] = ErrResult(errUnhandledType(TypeSpawnAgent))
		}
		return results
	}

	sem := make(chan struct{}, spawnParallelism)
	var wg sync.WaitGroup
	for i, dir := range directives {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, dir Directive) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = handler(ctx, dir)
		}(i, dir)
	}
	wg.Wait()

	return results
}
