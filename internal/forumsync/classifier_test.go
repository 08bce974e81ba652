package forumsync

import (
	"context"
	"testing"

	"github.com/nlbuilder/forgehost/internal/runtime"
	"github.com/nlbuilder/forgehost/internal/store"
)

type fakeInvoker struct {
	events []runtime.Event
}

func (f fakeInvoker) Invoke(ctx context.Context, model string, opts runtime.InvokeOptions) <-chan runtime.Event {
	ch := make(chan runtime.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestRuntimeClassifierParsesPurposeTagsAndModel(t *testing.T) {
	c := &RuntimeClassifier{
		Invoker: fakeInvoker{events: []runtime.Event{
			{Type: runtime.EventTextFinal, Text: `{"purposeTags": ["weather", "daily-digest"], "model": "codex"}`},
			{Type: runtime.EventDone},
		}},
	}
	tags, model, err := c.Classify(context.Background(), &store.CronRunRecord{CronID: "job-1", Prompt: "summarize the weather"})
	if err != nil {
		t.Fatal(err)
	}
	if model != "codex" {
		t.Fatalf("model = %q, want codex", model)
	}
	if len(tags) != 2 || tags[0] != "weather" || tags[1] != "daily-digest" {
		t.Fatalf("tags = %v", tags)
	}
}

func TestRuntimeClassifierToleratesSurroundingProse(t *testing.T) {
	c := &RuntimeClassifier{
		Invoker: fakeInvoker{events: []runtime.Event{
			{Type: runtime.EventTextFinal, Text: "Sure, here you go:\n{\"purposeTags\": [\"ops\"], \"model\": \"claude\"}\nHope that helps!"},
		}},
	}
	tags, model, err := c.Classify(context.Background(), &store.CronRunRecord{CronID: "job-2", Prompt: "restart service"})
	if err != nil {
		t.Fatal(err)
	}
	if model != "claude" || len(tags) != 1 || tags[0] != "ops" {
		t.Fatalf("tags=%v model=%q", tags, model)
	}
}

func TestRuntimeClassifierDefaultsModelWhenResponseOmitsIt(t *testing.T) {
	c := &RuntimeClassifier{
		DefaultModel: "gemini",
		Invoker: fakeInvoker{events: []runtime.Event{
			{Type: runtime.EventTextFinal, Text: `{"purposeTags": ["reminder"]}`},
		}},
	}
	_, model, err := c.Classify(context.Background(), &store.CronRunRecord{CronID: "job-3", Prompt: "remind me"})
	if err != nil {
		t.Fatal(err)
	}
	if model != "gemini" {
		t.Fatalf("model = %q, want gemini", model)
	}
}

func TestRuntimeClassifierReturnsErrorOnErrorEvent(t *testing.T) {
	c := &RuntimeClassifier{
		Invoker: fakeInvoker{events: []runtime.Event{
			{Type: runtime.EventError, Message: "model unavailable"},
		}},
	}
	_, _, err := c.Classify(context.Background(), &store.CronRunRecord{CronID: "job-4"})
	if err == nil {
		t.Fatal("expected an error when the invoker reports an error event")
	}
}

func TestRuntimeClassifierReturnsErrorOnEmptyResponse(t *testing.T) {
	c := &RuntimeClassifier{Invoker: fakeInvoker{}}
	_, _, err := c.Classify(context.Background(), &store.CronRunRecord{CronID: "job-5"})
	if err == nil {
		t.Fatal("expected an error when the invoker returns no text")
	}
}
