// Package format implements output splitting, code-fence repair, and the
// JSON fan-out route parser used by the cron executor's §4.3 step 14
// routing. Grounded on internal/channels/telegram/stream.go's
// throttled-edit discipline, adapted here to a one-shot splitter instead
// of a live-edited draft.
package format

import (
	"strings"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
)

// MaxChunkChars is the largest a single outgoing message chunk may be.
const MaxChunkChars = 2000

// MaxImagesPerMessage caps how many images attach to one chunk.
const MaxImagesPerMessage = 10

// Chunk is one piece of a split message, with any images batched onto it.
type Chunk struct {
	Text   string
	Images []chatplatform.FileAttachment
}

// SplitChunks breaks text into pieces each at most MaxChunkChars, never
// splitting inside a code fence, and closing any fence left open by a cut
// (§4.3 step 14). All images are attached to the last chunk, batched at
// MaxImagesPerMessage per message with any excess dropped silently beyond
// that point (images never queue past the cap per §8 boundaries).
func SplitChunks(text string, images []chatplatform.FileAttachment) []Chunk {
	pieces := splitText(text)
	if len(pieces) == 0 {
		pieces = []string{""}
	}
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Text: p}
	}
	if len(images) > MaxImagesPerMessage {
		images = images[:MaxImagesPerMessage]
	}
	if len(images) > 0 {
		chunks[len(chunks)-1].Images = images
	}
	return chunks
}

// splitText does the actual boundary-safe splitting and fence repair.
func splitText(text string) []string {
	if len(text) <= MaxChunkChars && trackFences(text, "") == "" {
		return []string{text}
	}

	var out []string
	remaining := text
	openFenceLang := ""

	for len(remaining) > 0 {
		if len(remaining) <= MaxChunkChars && trackFences(remaining, openFenceLang) == "" {
			out = append(out, reopenWith(openFenceLang, remaining))
			break
		}

		limit := MaxChunkChars
		if limit > len(remaining) {
			limit = len(remaining)
		}
		cut := safeBoundary(remaining, limit)
		piece := remaining[:cut]

		stillOpen := trackFences(piece, openFenceLang)
		piece = reopenWith(openFenceLang, piece)
		if stillOpen != "" {
			// A fence is left open at the end of this piece: close it so the
			// chunk renders correctly on its own; the next piece reopens it.
			piece = strings.TrimRight(piece, "\n") + "\n```"
		}
		out = append(out, piece)

		remaining = strings.TrimPrefix(remaining[cut:], "\n")
		openFenceLang = stillOpen
	}
	return out
}

// reopenWith prepends a fresh fence opener to piece when lang is non-empty,
// so a chunk continuing a fence from the previous piece renders correctly
// on its own.
func reopenWith(lang, piece string) string {
	if lang == "" {
		return piece
	}
	return "```" + lang + "\n" + piece
}

// safeBoundary finds the best place at or before limit to cut text: prefer
// the last newline, falling back to the last space, falling back to a hard
// cut at limit if neither exists.
func safeBoundary(text string, limit int) int {
	window := text[:limit]
	if i := strings.LastIndexByte(window, '\n'); i > limit/2 {
		return i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i > limit/2 {
		return i + 1
	}
	return limit
}

// trackFences scans piece for ``` fence markers and returns the language tag
// of any fence left open at its end ("" if balanced).
func trackFences(piece, openLang string) string {
	lines := strings.Split(piece, "\n")
	open := openLang
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if open == "" {
			open = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			if open == "" {
				open = "text"
			}
		} else {
			open = ""
		}
	}
	return open
}
