package strategies

import "github.com/nlbuilder/forgehost/internal/runtime"

// NewDefaultRegistry returns the built-in strategy set, keyed by each
// strategy's own ID().
func NewDefaultRegistry() runtime.Registry {
	claude := &ClaudeStrategy{}
	codex := &CodexStrategy{}
	gemini := &GeminiStrategy{}
	return runtime.Registry{
		claude.ID(): claude,
		codex.ID():  codex,
		gemini.ID(): gemini,
	}
}
