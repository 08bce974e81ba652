package forumsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nlbuilder/forgehost/internal/runtime"
	"github.com/nlbuilder/forgehost/internal/store"
)

// classifyPromptTemplate asks the model to return its answer as a single
// JSON object so RuntimeClassifier can parse it without a bespoke wire
// format, mirroring how the executor's own routeJSON parses structured
// model output (internal/cronjob/executor.go).
const classifyPromptTemplate = `You are tagging a scheduled job for a chat-platform forum thread.

Job prompt:
%s

Reply with exactly one JSON object and nothing else, shaped like:
{"purposeTags": ["short-tag", "another-tag"], "model": "claude"}

purposeTags: 1-3 short lowercase kebab-case tags describing what the job does.
model: one of "claude", "codex", "gemini" — whichever best fits the job's task.`

// Invoker is the narrow slice of cronjob.RuntimeInvoker that RuntimeClassifier
// needs: a one-shot or pooled model call keyed by model name. Declared here
// rather than imported to keep forumsync free of a cronjob dependency.
type Invoker interface {
	Invoke(ctx context.Context, model string, opts runtime.InvokeOptions) <-chan runtime.Event
}

// RuntimeClassifier implements Classifier by asking the runtime invoker for
// purpose tags and a model choice, reusing whatever strategy is registered
// under defaultModel. Grounded on the executor's own routeJSON: invoke,
// collect the final text event, unmarshal a single JSON object.
type RuntimeClassifier struct {
	Invoker      Invoker
	DefaultModel string
}

type classifyResponse struct {
	PurposeTags []string `json:"purposeTags"`
	Model       string   `json:"model"`
}

func (c *RuntimeClassifier) Classify(ctx context.Context, rec *store.CronRunRecord) ([]string, string, error) {
	prompt := rec.Prompt
	if prompt == "" {
		prompt = rec.CronID
	}
	opts := runtime.InvokeOptions{Prompt: fmt.Sprintf(classifyPromptTemplate, prompt)}

	model := c.DefaultModel
	if model == "" {
		model = "claude"
	}

	var text string
	for ev := range c.Invoker.Invoke(ctx, model, opts) {
		switch ev.Type {
		case runtime.EventTextFinal:
			text = ev.Text
		case runtime.EventError:
			return nil, "", fmt.Errorf("classify %s: %s", rec.CronID, ev.Message)
		}
	}
	if text == "" {
		return nil, "", fmt.Errorf("classify %s: no response", rec.CronID)
	}

	var resp classifyResponse
	if err := json.Unmarshal([]byte(extractJSONObject(text)), &resp); err != nil {
		return nil, "", fmt.Errorf("classify %s: parse response: %w", rec.CronID, err)
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp.PurposeTags, resp.Model, nil
}

// extractJSONObject trims any leading/trailing prose a model adds despite
// being asked for bare JSON, keeping only the outermost {...} span.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
