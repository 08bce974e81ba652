package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// defaultMCPTimeout bounds a single bridged MCP tool call invoked from an
// action directive.
const defaultMCPTimeout = 60 * time.Second

// NewMCPHandler adapts an MCP server's CallTool RPC into a Handler for any
// directive Type the host wants backed by MCP (for example, wiring a
// third-party integration as a directive without writing a bespoke
// dispatcher case for it). Grounded on
// itsddvn-goclaw/internal/mcp/bridge_tool.go's BridgeTool.Execute: same
// timeout-wrapped CallTool, same text-content extraction, narrowed here to
// the directive payload's "tool" and "args" fields instead of a tools.Tool
// parameter map.
func NewMCPHandler(client *mcpclient.Client) Handler {
	return func(ctx context.Context, d Directive) Result {
		toolName, _ := d.Payload["tool"].(string)
		if toolName == "" {
			return ErrResult(fmt.Errorf("actions: mcp directive missing \"tool\""))
		}
		args, _ := d.Payload["args"].(map[string]any)

		callCtx, cancel := context.WithTimeout(ctx, defaultMCPTimeout)
		defer cancel()

		req := mcpgo.CallToolRequest{}
		req.Params.Name = toolName
		req.Params.Arguments = args

		res, err := client.CallTool(callCtx, req)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return ErrResult(fmt.Errorf("actions: mcp tool %q timed out", toolName))
			}
			return ErrResult(fmt.Errorf("actions: mcp tool %q error: %w", toolName, err))
		}

		text := extractText(res)
		if res.IsError {
			return ErrResult(fmt.Errorf("%s", text))
		}
		return OKResult(text)
	}
}

func extractText(res *mcpgo.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
