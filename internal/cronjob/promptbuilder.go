package cronjob

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nlbuilder/forgehost/internal/store"
)

// heartbeatOK is the silent-mode sentinel the prompt instructs the model to
// emit when it has nothing to report (§4.3 step 12).
const HeartbeatOK = "HEARTBEAT_OK"

// statePromptTokenBudget caps the serialized state JSON dumped into the
// prompt, resolving the §9 Open Question on state-prompt length with a
// token-aware cap rather than a flat byte cap, since the cost that matters
// is the model's own context window, not the wire size.
const statePromptTokenBudget = 2000

// statePromptEncoding is shared across calls; cl100k_base is the encoding
// every current Claude/GPT-family model family in the adapter framework's
// default registry (internal/runtime/strategies) tokenizes close enough to
// for budgeting purposes.
var statePromptEncoding = loadStatePromptEncoding()

func loadStatePromptEncoding() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("cronjob: tiktoken encoding unavailable, state prompt truncation falls back to a byte cap", "error", err)
		return nil
	}
	return enc
}

// PromptParams bundles everything the body builder needs, named to mirror
// §4.4's parameter list.
type PromptParams struct {
	JobName           string
	PromptTemplate    string
	Channel           string
	ChannelID         string
	Silent            bool
	RoutingMode       store.RoutingMode
	AvailableChannels []string // name or id, deduplicated by caller
	State             map[string]any
}

// BuildPromptBody expands placeholders and assembles the cron-specific
// instruction body described in §4.4. The security preamble and workspace
// context files are prepended by the executor (§4.3 step 6); this builder
// only produces the job-specific portion.
func BuildPromptBody(p PromptParams) string {
	body := expandPlaceholders(p)

	var b strings.Builder
	fmt.Fprintf(&b, "## Scheduled Job: %s\n\n", p.JobName)
	b.WriteString(body)
	b.WriteString("\n\n")

	switch p.RoutingMode {
	case store.RoutingJSON:
		b.WriteString(jsonRoutingInstructions(p))
	default:
		b.WriteString(defaultRoutingInstructions(p))
	}

	if len(p.State) > 0 {
		b.WriteString("\n\n")
		b.WriteString(statePromptSection(p.State))
	}

	return b.String()
}

func expandPlaceholders(p PromptParams) string {
	stateJSON := "{}"
	if len(p.State) > 0 {
		if b, err := json.Marshal(p.State); err == nil {
			stateJSON = string(b)
		}
	}
	r := strings.NewReplacer(
		"{{channel}}", p.Channel,
		"{{channelId}}", p.ChannelID,
		"{{state}}", stateJSON,
	)
	return r.Replace(p.PromptTemplate)
}

func defaultRoutingInstructions(p PromptParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Post your response directly to #%s.\n", p.Channel)
	if p.Silent {
		fmt.Fprintf(&b, "If there is nothing worth reporting, reply with exactly `%s` and nothing else.\n", HeartbeatOK)
	}
	return b.String()
}

func jsonRoutingInstructions(p PromptParams) string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON array, no surrounding code fences, where each element has the shape:\n")
	b.WriteString(`  {"channel": "<channel name or id>", "content": "<message text>"}` + "\n")
	if len(p.AvailableChannels) > 0 {
		fmt.Fprintf(&b, "Available channels: %s\n", strings.Join(p.AvailableChannels, ", "))
	}
	if p.Silent {
		b.WriteString("If there is nothing worth reporting, reply with exactly `[]`.\n")
	}
	return b.String()
}

func statePromptSection(state map[string]any) string {
	raw, err := json.Marshal(state)
	if err != nil {
		return ""
	}
	raw, truncated := truncateToTokenBudget(raw, statePromptTokenBudget)
	var b strings.Builder
	b.WriteString("## Persistent State\n\n")
	b.WriteString("```json\n")
	b.Write(raw)
	if truncated {
		b.WriteString("\n(state truncated)")
	}
	b.WriteString("\n```\n")
	b.WriteString("If anything about this state changed, emit an updated `<cron-state>{...}</cron-state>` block with the full new state.\n")
	return b.String()
}

// truncateToTokenBudget trims raw to at most budget tokens under
// statePromptEncoding, cutting on a rune boundary. Falls back to a flat
// byte-per-token estimate (~4 bytes/token) when the encoding failed to
// load, so state is still bounded rather than unbounded.
func truncateToTokenBudget(raw []byte, budget int) ([]byte, bool) {
	if statePromptEncoding == nil {
		byteBudget := budget * 4
		if len(raw) <= byteBudget {
			return raw, false
		}
		return raw[:byteBudget], true
	}

	tokens := statePromptEncoding.Encode(string(raw), nil, nil)
	if len(tokens) <= budget {
		return raw, false
	}
	truncated := statePromptEncoding.Decode(tokens[:budget])
	return []byte(truncated), true
}
