package codereview

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

var severityOrder = []Severity{SeverityP1, SeverityP2, SeverityP3}

// WriteMarkdown renders r as a heading, summary line, and one section per
// severity listing every finding.
func WriteMarkdown(r *Report, path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Code Review — %s\n\n", r.GeneratedAt.Format("2006-01-02"))
	if len(r.Sections) > 0 {
		fmt.Fprintf(&b, "Sections: %s\n\n", strings.Join(r.Sections, ", "))
	}
	fmt.Fprintf(&b, "%s\n\n", r.Summary())

	bySeverity := map[Severity][]Finding{}
	for _, f := range r.Findings {
		bySeverity[f.Severity] = append(bySeverity[f.Severity], f)
	}
	for _, sev := range severityOrder {
		findings := bySeverity[sev]
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s (%d)\n\n", sev, len(findings))
		for _, f := range findings {
			if f.Line > 0 {
				fmt.Fprintf(&b, "- `%s:%d` [%s] %s\n", f.Path, f.Line, f.RuleID, f.Message)
			} else {
				fmt.Fprintf(&b, "- `%s` [%s] %s\n", f.Path, f.RuleID, f.Message)
			}
		}
		b.WriteString("\n")
	}
	if len(r.Findings) == 0 {
		b.WriteString("No findings.\n")
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// WriteJSON marshals r verbatim.
func WriteJSON(r *Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("codereview: marshal report: %w", err)
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
