package actions

import (
	"context"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func TestNewMCPHandlerRejectsMissingToolNameWithoutCallingClient(t *testing.T) {
	handler := NewMCPHandler(nil)
	res := handler(context.Background(), Directive{Payload: map[string]any{}})
	if res.OK {
		t.Fatal("expected a missing tool name to fail")
	}
	if !strings.Contains(res.Error(), "missing") {
		t.Fatalf("expected a missing-tool error, got %q", res.Error())
	}
}

func TestExtractTextJoinsTextContentParts(t *testing.T) {
	res := &mcpgo.CallToolResult{
		Content: []mcpgo.Content{
			mcpgo.TextContent{Type: "text", Text: "first"},
			mcpgo.TextContent{Type: "text", Text: "second"},
		},
	}
	got := extractText(res)
	if got != "first\nsecond" {
		t.Fatalf("extractText = %q", got)
	}
}

func TestExtractTextHandlesNilResult(t *testing.T) {
	if got := extractText(nil); got != "" {
		t.Fatalf("extractText(nil) = %q, want empty", got)
	}
}

func TestExtractTextHandlesEmptyContent(t *testing.T) {
	res := &mcpgo.CallToolResult{}
	if got := extractText(res); got != "" {
		t.Fatalf("extractText(empty) = %q, want empty", got)
	}
}
