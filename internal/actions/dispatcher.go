package actions

import "context"

// Handler executes one directive of a given Type and produces its Result.
// Registered per Type by the host embedding this package (chat platform
// sends, task/cron CRUD, etc. are all external collaborators per §1).
type Handler func(ctx context.Context, d Directive) Result

// Dispatcher executes a parsed, category-filtered directive list
// sequentially — spawnAgent directives excepted, which run as a separate
// bounded-parallel batch (§4.6). Grounded on the sequential,
// dispatch-table execution shape of itsddvn-goclaw/internal/tools/registry.go's
// Registry.Execute, generalized from tool-name lookup to directive-type
// lookup.
type Dispatcher struct {
	handlers    map[Type]Handler
	rateLimiter *RateLimiter
	spawnDepth  int // recursion depth of the current invocation; see spawn.go
}

// NewDispatcher returns a Dispatcher with no handlers registered; callers
// wire in Handle for each Type they support.
func NewDispatcher(rateLimiter *RateLimiter, spawnDepth int) *Dispatcher {
	return &Dispatcher{handlers: make(map[Type]Handler), rateLimiter: rateLimiter, spawnDepth: spawnDepth}
}

// Handle registers handler for t, overwriting any prior registration.
func (d *Dispatcher) Handle(t Type, handler Handler) {
	d.handlers[t] = handler
}

// Dispatch executes directives in order, producing one Result per input
// directive (same length, same order). spawnAgent directives are pulled
// out and executed as a bounded-parallel batch via spawnBatch, then their
// results are spliced back into the correct output positions so the
// parallel execution model is invisible to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, directives []Directive, ownerKey string) []Result {
	results := make([]Result, len(directives))

	var spawnIdx []int
	for i, dir := range directives {
		if dir.Type == TypeSpawnAgent {
			spawnIdx = append(spawnIdx, i)
		}
	}

	spawnSet := make(map[int]bool, len(spawnIdx))
	for _, i := range spawnIdx {
		spawnSet[i] = true
	}

	for i, dir := range directives {
		if spawnSet[i] {
			continue
		}
		results[i] = d.runOne(ctx, dir, ownerKey)
	}

	if len(spawnIdx) > 0 {
		batch := make([]Directive, len(spawnIdx))
		for j, i := range spawnIdx {
			batch[j] = directives[i]
		}
		spawnResults := d.spawnBatch(ctx, batch, ownerKey)
		for j, i := range spawnIdx {
			results[i] = spawnResults[j]
		}
	}

	return results
}

func (d *Dispatcher) runOne(ctx context.Context, dir Directive, ownerKey string) Result {
	if err := d.rateLimiter.Allow(categoryOf[dir.Type], ownerKey); err != nil {
		return ErrResult(err)
	}
	handler, ok := d.handlers[dir.Type]
	if !ok {
		return ErrResult(errUnhandledType(dir.Type))
	}
	return handler(ctx, dir)
}
