// Package strategies provides the concrete Strategy implementations the
// adapter framework dispatches to: one per supported model CLI family.
// Grounded on itsddvn-goclaw/internal/tools/dynamic_tool.go's argv/shell
// construction discipline, generalized from a single shell template to a
// per-runtime argv builder, and on the runtime package's own Strategy
// contract (internal/runtime/strategy.go).
package strategies

import (
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/nlbuilder/forgehost/internal/runtime"
)

// splitExtraFlags tokenizes a raw, user-configured extra-flags string the
// way a shell would, so values containing quoted spaces survive intact.
// A malformed string (unbalanced quotes) degrades to a naive whitespace
// split rather than erroring the whole invocation.
func splitExtraFlags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	tokens, err := shellwords.Parse(raw)
	if err != nil {
		return strings.Fields(raw)
	}
	return tokens
}

// genericSpawnError is the framework's documented fallback message for a
// spawn failure that has no runtime-specific phrasing (§7).
func genericSpawnError(runtimeName string, err error) string {
	if strings.Contains(err.Error(), "executable file not found") || strings.Contains(err.Error(), "no such file") {
		return runtimeName + " binary not found"
	}
	return runtimeName + " process failed unexpectedly"
}

// genericSanitizeError strips anything that looks like a flag or a path
// under a home/workspace directory, which could otherwise leak the prompt
// or filesystem layout back to the user via a raw stderr echo.
func genericSanitizeError(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "--") || strings.HasPrefix(l, "/") {
			continue
		}
		return l
	}
	if len(lines) > 0 {
		return lines[0]
	}
	return "unknown error"
}

var _ runtime.Strategy = (*ClaudeStrategy)(nil)
var _ runtime.Strategy = (*CodexStrategy)(nil)
var _ runtime.Strategy = (*GeminiStrategy)(nil)
