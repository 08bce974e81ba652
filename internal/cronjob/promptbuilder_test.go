package cronjob

import (
	"strings"
	"testing"

	"github.com/nlbuilder/forgehost/internal/store"
)

func TestBuildPromptBodyExpandsPlaceholders(t *testing.T) {
	body := BuildPromptBody(PromptParams{
		JobName:        "daily-digest",
		PromptTemplate: "Post to {{channel}} ({{channelId}}). State: {{state}}",
		Channel:        "alpha",
		ChannelID:      "123",
	})
	if !strings.Contains(body, "Post to alpha (123). State: {}") {
		t.Fatalf("placeholders not expanded: %s", body)
	}
}

func TestBuildPromptBodyDefaultModeNamesChannelAndSentinel(t *testing.T) {
	body := BuildPromptBody(PromptParams{
		JobName:        "heartbeat",
		PromptTemplate: "do the thing",
		Channel:        "alpha",
		Silent:         true,
		RoutingMode:    store.RoutingDefault,
	})
	if !strings.Contains(body, "#alpha") {
		t.Fatalf("expected default routing to name the channel: %s", body)
	}
	if !strings.Contains(body, HeartbeatOK) {
		t.Fatalf("expected silent-mode heartbeat sentinel instruction: %s", body)
	}
}

func TestBuildPromptBodyJSONModeForbidsFencesAndListsChannels(t *testing.T) {
	body := BuildPromptBody(PromptParams{
		JobName:           "fanout",
		PromptTemplate:    "report",
		RoutingMode:       store.RoutingJSON,
		AvailableChannels: []string{"alpha", "beta"},
		Silent:            true,
	})
	if !strings.Contains(body, "no surrounding code fences") {
		t.Fatalf("expected code-fence prohibition: %s", body)
	}
	if !strings.Contains(body, "alpha, beta") {
		t.Fatalf("expected channel list: %s", body)
	}
	if !strings.Contains(body, "[]") {
		t.Fatalf("expected silent JSON mode to instruct emitting [], got: %s", body)
	}
	if strings.Contains(body, HeartbeatOK) {
		t.Fatalf("JSON routing mode must not mention the prose sentinel: %s", body)
	}
}

func TestBuildPromptBodyOmitsStateSectionWhenEmpty(t *testing.T) {
	body := BuildPromptBody(PromptParams{JobName: "j", PromptTemplate: "t"})
	if strings.Contains(body, "Persistent State") {
		t.Fatalf("empty state must not produce a Persistent State section: %s", body)
	}
}

func TestBuildPromptBodyTruncatesOversizedState(t *testing.T) {
	big := make(map[string]any, 2000)
	for i := 0; i < 2000; i++ {
		big[uniqueStateKey(i)] = strings.Repeat("v", 20)
	}
	body := BuildPromptBody(PromptParams{
		JobName:        "j",
		PromptTemplate: "t",
		State:          big,
	})
	if !strings.Contains(body, "(state truncated)") {
		t.Fatalf("expected oversized state to be truncated with a marker: %s", body)
	}
}

func uniqueStateKey(i int) string {
	return "k" + strings.Repeat("_", i%7) + string(rune('a'+i%26)) + string(rune('0'+i/26%10))
}

func TestTruncateToTokenBudgetLeavesShortInputUntouched(t *testing.T) {
	raw := []byte(`{"a":1}`)
	out, truncated := truncateToTokenBudget(raw, statePromptTokenBudget)
	if truncated {
		t.Fatalf("short input should not be truncated")
	}
	if string(out) != string(raw) {
		t.Fatalf("short input should be returned unchanged, got %s", out)
	}
}

func TestTruncateToTokenBudgetCutsLongInput(t *testing.T) {
	raw := []byte(strings.Repeat("hello world ", 5000))
	out, truncated := truncateToTokenBudget(raw, statePromptTokenBudget)
	if !truncated {
		t.Fatalf("long input should be truncated")
	}
	if len(out) >= len(raw) {
		t.Fatalf("truncated output should be shorter than input: got %d, want < %d", len(out), len(raw))
	}
}
