package format

import (
	"strings"
	"testing"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
)

func TestSplitChunksUnderLimit(t *testing.T) {
	chunks := SplitChunks("hello world", nil)
	if len(chunks) != 1 || chunks[0].Text != "hello world" {
		t.Fatalf("expected single chunk, got %+v", chunks)
	}
}

func TestSplitChunksRespectsLimit(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	chunks := SplitChunks(text, nil)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > MaxChunkChars {
			t.Errorf("chunk %d exceeds MaxChunkChars: %d", i, len(c.Text))
		}
	}
}

func TestSplitChunksClosesUnclosedFence(t *testing.T) {
	var b strings.Builder
	b.WriteString("```go\n")
	b.WriteString(strings.Repeat("x = 1\n", 500))
	b.WriteString("```\n")
	chunks := SplitChunks(b.String(), nil)
	if len(chunks) < 2 {
		t.Fatalf("expected the fenced block to split, got %d chunks", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if strings.Count(c.Text, "```")%2 != 0 {
			t.Errorf("chunk %d has an unbalanced fence:\n%s", i, c.Text)
		}
	}
}

func TestSplitChunksImagesAttachToLastChunk(t *testing.T) {
	chunks := SplitChunks("short", []chatplatform.FileAttachment{{Name: "a.png"}, {Name: "b.png"}})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0].Images) != 2 {
		t.Fatalf("expected images on the only chunk, got %d", len(chunks[0].Images))
	}
}
