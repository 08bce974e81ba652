package cronjob

import (
	"context"
	"strings"
	"sync"

	"github.com/nlbuilder/forgehost/internal/runtime"
)

// poolCapacity bounds how many concurrent process-pool sessions a single
// strategy keeps warm across all cron jobs.
const poolCapacity = 8

// RuntimeInvoker implements Invoker over the real adapter framework:
// classifying a model name to a registered Strategy, then routing the turn
// either through a per-strategy process pool (multi-turn strategies) or a
// one-shot runtime.Invoke call.
type RuntimeInvoker struct {
	Registry runtime.Registry
	Tracker  *runtime.Tracker
	Config   runtime.InvokeConfig

	mu    sync.Mutex
	pools map[string]*runtime.Pool
}

// NewRuntimeInvoker wires a registry of strategies to a shared process
// tracker and invoke policy.
func NewRuntimeInvoker(registry runtime.Registry, tracker *runtime.Tracker, cfg runtime.InvokeConfig) *RuntimeInvoker {
	return &RuntimeInvoker{
		Registry: registry,
		Tracker:  tracker,
		Config:   cfg,
		pools:    make(map[string]*runtime.Pool),
	}
}

// Invoke resolves model to a runtime strategy and streams one turn.
func (r *RuntimeInvoker) Invoke(ctx context.Context, model string, opts runtime.InvokeOptions) <-chan runtime.Event {
	strategy, ok := r.Registry.Resolve(classifyRuntime(model))
	if !ok {
		out := make(chan runtime.Event, 2)
		out <- runtime.Event{Type: runtime.EventError, ErrorKind: runtime.ErrorSpawn, Message: "no runtime strategy registered for model " + model}
		out <- runtime.Event{Type: runtime.EventDone}
		close(out)
		return out
	}

	opts.Model = model
	if strategy.MultiTurnMode() == runtime.MultiTurnProcessPool && opts.SessionKey != "" {
		pool, err := r.poolFor(strategy)
		if err != nil {
			out := make(chan runtime.Event, 2)
			out <- runtime.Event{Type: runtime.EventError, ErrorKind: runtime.ErrorSpawn, Message: err.Error()}
			out <- runtime.Event{Type: runtime.EventDone}
			close(out)
			return out
		}
		return pool.SendTurn(ctx, opts.SessionKey, opts, r.Config)
	}

	return runtime.Invoke(ctx, r.Tracker, strategy, opts, r.Config)
}

func (r *RuntimeInvoker) poolFor(strategy runtime.Strategy) (*runtime.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[strategy.ID()]; ok {
		return p, nil
	}
	p, err := runtime.NewPool(strategy, r.Tracker, poolCapacity)
	if err != nil {
		return nil, err
	}
	r.pools[strategy.ID()] = p
	return p, nil
}

// KillAll tears down every pooled process across every strategy, used on
// host shutdown alongside the shared Tracker.
func (r *RuntimeInvoker) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pools {
		p.KillAll()
	}
}

// classifyRuntime maps a configured model name to the runtime strategy ID
// that should handle it, by the same family-name heuristics the tool-tier
// classifier uses (§4.2): an explicit record override is expected to name
// the runtime directly ("claude", "codex", "gemini") and is returned
// unchanged; anything else is pattern-matched by family.
func classifyRuntime(model string) string {
	m := strings.ToLower(model)
	switch {
	case m == "claude" || m == "codex" || m == "gemini":
		return m
	case strings.Contains(m, "claude"):
		return "claude"
	case strings.Contains(m, "gpt") || strings.Contains(m, "codex") || strings.Contains(m, "o1") || strings.Contains(m, "o3"):
		return "codex"
	case strings.Contains(m, "gemini"):
		return "gemini"
	default:
		return "claude"
	}
}
