package actions

import (
	"encoding/json"
	"regexp"
)

// directiveBlockRe matches <discord-action>{...}</discord-action> blocks
// (or the equivalent delimited-JSON form), non-greedy so adjacent blocks
// are separated correctly. Grounded on itsddvn-goclaw/internal/tools/registry.go's
// dispatch-table-by-name shape, applied here to block scanning instead of
// tool-call routing.
var directiveBlockRe = regexp.MustCompile(`(?s)<discord-action>\s*(.*?)\s*</discord-action>`)

// ParseResult is the parser's output per §4.6.
type ParseResult struct {
	CleanText                string
	Actions                  []Directive
	StrippedUnrecognizedTypes []Type
	ParseFailures            int
}

// Parse scans text for directive blocks, returning the text with every
// block removed plus the recognized directives found. Malformed JSON
// increments ParseFailures and is stripped without producing a Directive.
// Unknown "type" values are stripped and recorded in
// StrippedUnrecognizedTypes.
func Parse(text string) ParseResult {
	var result ParseResult

	clean := directiveBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := directiveBlockRe.FindStringSubmatch(match)
		if len(sub) != 2 {
			result.ParseFailures++
			return ""
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(sub[1]), &payload); err != nil {
			result.ParseFailures++
			return ""
		}
		rawType, _ := payload["type"].(string)
		t := Type(rawType)
		if _, known := categoryOf[t]; !known {
			result.StrippedUnrecognizedTypes = append(result.StrippedUnrecognizedTypes, t)
			return ""
		}
		result.Actions = append(result.Actions, Directive{Type: t, Payload: payload})
		return ""
	})

	result.CleanText = clean
	return result
}

// FilterDisabled removes any directive whose category is disabled in
// flags, appending its type to disabled for the formatter's footer.
func FilterDisabled(directives []Directive, flags Flags) (enabled []Directive, disabled []Type) {
	for _, d := range directives {
		if flags.Enabled(d.Type) {
			enabled = append(enabled, d)
		} else {
			disabled = append(disabled, d.Type)
		}
	}
	return enabled, disabled
}
