package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nlbuilder/forgehost/internal/runtime"
)

// ClaudeStrategy drives a Claude-family CLI in jsonl streaming mode with
// process-pool multi-turn support (§4.2).
type ClaudeStrategy struct{}

func (ClaudeStrategy) ID() string { return "claude" }

func (ClaudeStrategy) DefaultBinary() string {
	if bin := os.Getenv("CLAUDE_BIN"); bin != "" {
		return bin
	}
	return "claude"
}

func (ClaudeStrategy) DefaultModel() string       { return "claude-sonnet-4-5" }
func (ClaudeStrategy) OutputMode() runtime.OutputMode { return runtime.OutputJSONL }
func (ClaudeStrategy) MultiTurnMode() runtime.MultiTurnMode {
	return runtime.MultiTurnProcessPool
}

func (ClaudeStrategy) BuildArgs(ctx context.Context, opts runtime.InvokeOptions) []string {
	args := []string{"--output-format", "stream-json", "--verbose"}
	model := opts.Model
	if model == "" {
		model = ClaudeStrategy{}.DefaultModel()
	}
	args = append(args, "--model", model)
	if opts.SessionKey != "" {
		args = append(args, "--resume", opts.SessionKey)
	}
	if len(opts.Tools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.Tools, ","))
	}
	args = append(args, splitExtraFlags(opts.ExtraFlags)...)
	args = append(args, "--")
	if len(opts.Images) == 0 && len(opts.Prompt) < 100_000 {
		args = append(args, opts.Prompt)
	}
	return args
}

func (ClaudeStrategy) BuildStdinPayload(ctx context.Context, opts runtime.InvokeOptions) []byte {
	if len(opts.Images) == 0 && len(opts.Prompt) < 100_000 {
		return nil
	}
	blocks := make([]runtime.ContentBlock, 0, len(opts.Images)+1)
	blocks = append(blocks, runtime.ContentBlock{Type: "text", Text: opts.Prompt})
	blocks = append(blocks, opts.Images...)
	payload, _ := json.Marshal(map[string]any{
		"type":    "user",
		"message": map[string]any{"role": "user", "content": blocks},
	})
	return append(payload, '\n')
}

// claudeLine mirrors the subset of a Claude CLI stream-json event this
// strategy cares about.
type claudeLine struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		Content []struct {
			Type  string `json:"type"`
			Text  string `json:"text"`
			Name  string `json:"name"`
			Input json.RawMessage `json:"input"`
			Source struct {
				MediaType string `json:"media_type"`
				Data      string `json:"data"`
			} `json:"source"`
		} `json:"content"`
	} `json:"message"`
	Result   string `json:"result"`
	IsError  bool   `json:"is_error"`
	ToolUseID string `json:"tool_use_id"`
}

func (ClaudeStrategy) ParseLine(ctx context.Context, line []byte) (runtime.ParsedLine, bool) {
	var l claudeLine
	if err := json.Unmarshal(line, &l); err != nil {
		return runtime.ParsedLine{}, false
	}
	out := runtime.ParsedLine{}
	switch l.Type {
	case "assistant":
		for _, block := range l.Message.Content {
			switch block.Type {
			case "text":
				out.Text += block.Text
			case "tool_use":
				out.ToolStart = true
				out.ToolName = block.Name
				out.ToolInput = string(block.Input)
				out.InToolUse = true
			case "image":
				out.Image = &runtime.ImageData{MediaType: block.Source.MediaType, Base64: block.Source.Data}
			}
		}
	case "user":
		for _, block := range l.Message.Content {
			if block.Type == "tool_result" {
				out.ToolEnd = true
				out.ToolOK = !l.IsError
			}
		}
	case "result":
		out.ResultText = l.Result
	case "system":
		if l.Subtype != "" {
			out.Activity = l.Subtype
		}
	}
	return out, true
}

func (ClaudeStrategy) SanitizeError(raw string) string { return genericSanitizeError(raw) }

func (ClaudeStrategy) HandleSpawnError(err error) string {
	return genericSpawnError("claude", err)
}

func (ClaudeStrategy) HandleExitError(exitCode int, stderr, stdout string) (string, bool) {
	if strings.Contains(stderr, "rate_limit") || strings.Contains(stderr, "overloaded") {
		return fmt.Sprintf("claude runtime is rate-limited (exit %d)", exitCode), true
	}
	return "", false
}
