package cronjob

import (
	"context"
	"testing"

	"github.com/nlbuilder/forgehost/internal/runtime"
)

func drainInvokerEvents(ch <-chan runtime.Event) []runtime.Event {
	var events []runtime.Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestClassifyRuntimeMatchesExplicitRuntimeNames(t *testing.T) {
	cases := map[string]string{
		"claude":      "claude",
		"codex":       "codex",
		"gemini":      "gemini",
		"claude-opus": "claude",
		"gpt-4":       "codex",
		"o1-preview":  "codex",
		"gemini-pro":  "gemini",
		"unknown-llm": "claude",
	}
	for in, want := range cases {
		if got := classifyRuntime(in); got != want {
			t.Errorf("classifyRuntime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRuntimeInvokerReturnsSpawnErrorForUnregisteredModel(t *testing.T) {
	inv := NewRuntimeInvoker(runtime.Registry{}, runtime.NewTracker(), runtime.InvokeConfig{})
	events := drainInvokerEvents(inv.Invoke(context.Background(), "claude", runtime.InvokeOptions{}))

	if len(events) != 2 || events[0].Type != runtime.EventError || events[1].Type != runtime.EventDone {
		t.Fatalf("expected [error, done], got %+v", events)
	}
	if events[0].ErrorKind != runtime.ErrorSpawn {
		t.Fatalf("expected spawn error kind, got %+v", events[0])
	}
}

// shellStrategy runs an arbitrary shell script, used to exercise
// RuntimeInvoker's routing without a real model CLI.
type shellStrategy struct {
	id        string
	multiTurn runtime.MultiTurnMode
}

func (s shellStrategy) ID() string            { return s.id }
func (s shellStrategy) DefaultBinary() string { return "/bin/sh" }
func (s shellStrategy) DefaultModel() string  { return s.id }
func (s shellStrategy) OutputMode() runtime.OutputMode       { return runtime.OutputText }
func (s shellStrategy) MultiTurnMode() runtime.MultiTurnMode { return s.multiTurn }
func (s shellStrategy) BuildArgs(ctx context.Context, opts runtime.InvokeOptions) []string {
	return []string{"-c", "echo one-shot"}
}
func (s shellStrategy) BuildStdinPayload(ctx context.Context, opts runtime.InvokeOptions) []byte {
	return nil
}
func (s shellStrategy) ParseLine(ctx context.Context, line []byte) (runtime.ParsedLine, bool) {
	return runtime.ParsedLine{Text: string(line)}, true
}
func (s shellStrategy) SanitizeError(raw string) string { return "shell error" }
func (s shellStrategy) HandleSpawnError(err error) string {
	return "shell binary not found"
}
func (s shellStrategy) HandleExitError(exitCode int, stderr, stdout string) (string, bool) {
	return "", false
}

func TestRuntimeInvokerRoutesOneShotStrategiesThroughInvoke(t *testing.T) {
	registry := runtime.Registry{"claude": shellStrategy{id: "claude", multiTurn: runtime.MultiTurnNone}}
	inv := NewRuntimeInvoker(registry, runtime.NewTracker(), runtime.InvokeConfig{})

	events := drainInvokerEvents(inv.Invoke(context.Background(), "claude-opus", runtime.InvokeOptions{Prompt: "hi"}))
	foundDone := false
	for _, e := range events {
		if e.Type == runtime.EventDone {
			foundDone = true
		}
	}
	if !foundDone {
		t.Fatalf("expected a done event from the one-shot path, got %+v", events)
	}
}

func TestRuntimeInvokerReusesPoolAcrossCallsForSameStrategy(t *testing.T) {
	registry := runtime.Registry{"claude": shellStrategy{id: "claude", multiTurn: runtime.MultiTurnProcessPool}}
	inv := NewRuntimeInvoker(registry, runtime.NewTracker(), runtime.InvokeConfig{})
	defer inv.KillAll()

	strategy, _ := registry.Resolve("claude")
	p1, err := inv.poolFor(strategy)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := inv.poolFor(strategy)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("expected the same pool instance to be reused for the same strategy ID")
	}
}
