package strategies

import (
	"context"
	"os"

	"github.com/nlbuilder/forgehost/internal/runtime"
)

// GeminiStrategy drives a Gemini-family CLI in plain text streaming mode,
// one-shot only — no multi-turn state is kept across invocations.
type GeminiStrategy struct{}

func (GeminiStrategy) ID() string { return "gemini" }

func (GeminiStrategy) DefaultBinary() string {
	if bin := os.Getenv("GEMINI_BIN"); bin != "" {
		return bin
	}
	return "gemini"
}

func (GeminiStrategy) DefaultModel() string           { return "gemini-2.5-pro" }
func (GeminiStrategy) OutputMode() runtime.OutputMode { return runtime.OutputText }
func (GeminiStrategy) MultiTurnMode() runtime.MultiTurnMode {
	return runtime.MultiTurnNone
}

func (GeminiStrategy) BuildArgs(ctx context.Context, opts runtime.InvokeOptions) []string {
	args := []string{"--yolo"}
	model := opts.Model
	if model == "" {
		model = GeminiStrategy{}.DefaultModel()
	}
	args = append(args, "--model", model)
	args = append(args, splitExtraFlags(opts.ExtraFlags)...)
	args = append(args, "--")
	if len(opts.Prompt) < 100_000 {
		args = append(args, opts.Prompt)
	}
	return args
}

func (GeminiStrategy) BuildStdinPayload(ctx context.Context, opts runtime.InvokeOptions) []byte {
	if len(opts.Prompt) < 100_000 {
		return nil
	}
	return []byte(opts.Prompt)
}

// ParseLine is never called: Gemini runs in text mode.
func (GeminiStrategy) ParseLine(ctx context.Context, line []byte) (runtime.ParsedLine, bool) {
	return runtime.ParsedLine{}, false
}

func (GeminiStrategy) SanitizeError(raw string) string { return genericSanitizeError(raw) }

func (GeminiStrategy) HandleSpawnError(err error) string {
	return genericSpawnError("gemini", err)
}

func (GeminiStrategy) HandleExitError(exitCode int, stderr, stdout string) (string, bool) {
	return "", false
}
