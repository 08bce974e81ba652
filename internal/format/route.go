package format

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RouteEntry is one element of a JSON routing-mode fan-out array
// (§3 glossary "JSON routing mode", §4.3 step 14).
type RouteEntry struct {
	Channel string `json:"channel"`
	Content string `json:"content"`
}

var fenceStripRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```\\s*$")

// ParseJSONRouteEntries tolerantly parses s as a JSON array of
// {channel, content} objects: it strips a surrounding triple-backtick
// fence first, then rejects non-array top-level shapes and silently
// filters any entry whose channel/content aren't both non-empty strings
// (§8 testable property 7). A totally unparseable document returns
// (nil, false) — "irrecoverable", the caller's cue to fall back.
func ParseJSONRouteEntries(s string) ([]RouteEntry, bool) {
	trimmed := strings.TrimSpace(s)
	if m := fenceStripRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	var raw []map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, false
	}

	entries := make([]RouteEntry, 0, len(raw))
	for _, obj := range raw {
		ch, chOK := obj["channel"].(string)
		content, contentOK := obj["content"].(string)
		if !chOK || !contentOK || strings.TrimSpace(ch) == "" || strings.TrimSpace(content) == "" {
			continue
		}
		entries = append(entries, RouteEntry{Channel: ch, Content: content})
	}
	return entries, true
}
