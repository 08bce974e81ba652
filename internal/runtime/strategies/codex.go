package strategies

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nlbuilder/forgehost/internal/runtime"
)

// CodexStrategy drives a Codex-family CLI in jsonl mode using
// session-resume continuity: the framework records a session ID from the
// first turn and passes it back on subsequent turns (§4.2).
type CodexStrategy struct{}

func (CodexStrategy) ID() string { return "codex" }

func (CodexStrategy) DefaultBinary() string {
	if bin := os.Getenv("CODEX_BIN"); bin != "" {
		return bin
	}
	return "codex"
}

func (CodexStrategy) DefaultModel() string           { return "gpt-5-codex" }
func (CodexStrategy) OutputMode() runtime.OutputMode { return runtime.OutputJSONL }
func (CodexStrategy) MultiTurnMode() runtime.MultiTurnMode {
	return runtime.MultiTurnSessionResume
}

func (CodexStrategy) BuildArgs(ctx context.Context, opts runtime.InvokeOptions) []string {
	args := []string{"exec", "--json"}
	model := opts.Model
	if model == "" {
		model = CodexStrategy{}.DefaultModel()
	}
	args = append(args, "--model", model)
	if opts.SessionKey != "" {
		args = append(args, "--session-id", opts.SessionKey)
	}
	args = append(args, splitExtraFlags(opts.ExtraFlags)...)
	args = append(args, "--")
	if len(opts.Prompt) < 100_000 {
		args = append(args, opts.Prompt)
	}
	return args
}

func (CodexStrategy) BuildStdinPayload(ctx context.Context, opts runtime.InvokeOptions) []byte {
	if len(opts.Prompt) < 100_000 {
		return nil
	}
	return []byte(opts.Prompt)
}

type codexLine struct {
	Type string `json:"type"`
	Msg  struct {
		Type    string `json:"type"`
		Text    string `json:"text"`
		Call    string `json:"call_id"`
		Command string `json:"command"`
		Success bool   `json:"success"`
	} `json:"msg"`
	SessionID string `json:"session_id"`
}

func (CodexStrategy) ParseLine(ctx context.Context, line []byte) (runtime.ParsedLine, bool) {
	var l codexLine
	if err := json.Unmarshal(line, &l); err != nil {
		return runtime.ParsedLine{}, false
	}
	out := runtime.ParsedLine{}
	switch l.Msg.Type {
	case "agent_message", "agent_message_delta":
		out.Text = l.Msg.Text
	case "exec_command_begin":
		out.ToolStart = true
		out.ToolName = l.Msg.Command
	case "exec_command_end":
		out.ToolEnd = true
		out.ToolOK = l.Msg.Success
	case "task_complete":
		out.ResultText = l.Msg.Text
	case "background_event", "agent_reasoning":
		out.Activity = l.Msg.Type
	}
	return out, true
}

func (CodexStrategy) SanitizeError(raw string) string { return genericSanitizeError(raw) }

func (CodexStrategy) HandleSpawnError(err error) string {
	return genericSpawnError("codex", err)
}

func (CodexStrategy) HandleExitError(exitCode int, stderr, stdout string) (string, bool) {
	if strings.Contains(stderr, "session not found") {
		return fmt.Sprintf("codex session expired (exit %d)", exitCode), true
	}
	return "", false
}
