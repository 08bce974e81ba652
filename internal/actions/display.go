package actions

import (
	"fmt"
	"strings"
)

// DisplayLines renders one formatted line per (directive, result) pair, in
// input order, for the reply text the executor appends after the model's
// clean text (§4.3 step 10, §4.6).
func DisplayLines(directives []Directive, results []Result) string {
	var b strings.Builder
	for i, dir := range directives {
		if i >= len(results) {
			break
		}
		r := results[i]
		if r.OK {
			fmt.Fprintf(&b, "✅ %s: %s\n", dir.Type, r.Summary)
		} else {
			fmt.Fprintf(&b, "❌ %s: %s\n", dir.Type, r.Error())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RetryPlaceholder synthesizes a "retry" instruction for the model's next
// turn from the first non-query action that failed, or "" if every action
// succeeded (or only query-type actions failed, which never warrant a
// retry prompt per §4.6).
func RetryPlaceholder(directives []Directive, results []Result) string {
	for i, dir := range directives {
		if i >= len(results) {
			break
		}
		r := results[i]
		if r.OK || queryTypes[dir.Type] {
			continue
		}
		return fmt.Sprintf("Action failed (`%s`: %s). Retrying…", dir.Type, r.Error())
	}
	return ""
}

// UnavailableNotice formats a footer listing action categories that were
// stripped because their category is disabled (§4.3 step 11).
func UnavailableNotice(disabledTypes []Type) string {
	if len(disabledTypes) == 0 {
		return ""
	}
	names := make([]string, 0, len(disabledTypes))
	seen := make(map[Type]bool)
	for _, t := range disabledTypes {
		if seen[t] {
			continue
		}
		seen[t] = true
		names = append(names, string(t))
	}
	return fmt.Sprintf("_(unavailable action types: %s)_", strings.Join(names, ", "))
}

// ParseFailureWarning formats the "N blocks failed to parse" warning
// (§4.3 step 11). Returns "" when n is 0.
func ParseFailureWarning(n int) string {
	if n == 0 {
		return ""
	}
	if n == 1 {
		return "_(1 block failed to parse)_"
	}
	return fmt.Sprintf("_(%d blocks failed to parse)_", n)
}
