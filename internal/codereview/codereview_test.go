package codereview

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTreeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanCleanPackageYieldsOnlyMissingTestFinding(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "internal/widget/widget.go", "// Package widget does things.\npackage widget\n\n// Run does the thing.\nfunc Run() {}\n")

	report, err := Scan(root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(report.Findings) != 1 || report.Findings[0].RuleID != "missing-test-file" {
		t.Fatalf("expected exactly one missing-test-file finding, got %+v", report.Findings)
	}
	if report.Sections[0] != "widget" {
		t.Fatalf("expected section %q, got %v", "widget", report.Sections)
	}
}

func TestScanDetectsUndocumentedExportedFunc(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "internal/widget/widget.go", "package widget\n\nfunc Run() {}\n")
	writeTreeFile(t, root, "internal/widget/widget_test.go", "package widget\n\nimport \"testing\"\n\nfunc TestRun(t *testing.T) { Run() }\n")

	report, err := Scan(root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	found := false
	for _, f := range report.Findings {
		if f.RuleID == "undocumented-exported" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an undocumented-exported finding, got %+v", report.Findings)
	}
}

func TestScanDetectsOpenTODOAndBarePanic(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "internal/widget/widget.go", "package widget\n\n// TODO: handle the edge case\nfunc Run() {\n\tpanic(\"boom\")\n}\n")
	writeTreeFile(t, root, "internal/widget/widget_test.go", "package widget\n\nimport \"testing\"\n\nfunc TestRun(t *testing.T) { Run() }\n")

	report, err := Scan(root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	var ruleIDs []string
	for _, f := range report.Findings {
		ruleIDs = append(ruleIDs, f.RuleID)
	}
	if !contains(ruleIDs, "open-todo") {
		t.Fatalf("expected an open-todo finding, got %v", ruleIDs)
	}
	if !contains(ruleIDs, "bare-panic") {
		t.Fatalf("expected a bare-panic finding, got %v", ruleIDs)
	}
}

func TestScanSectionFilterExcludesOtherSections(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "internal/alpha/alpha.go", "package alpha\n\n// TODO: fix\nfunc Run() {}\n")
	writeTreeFile(t, root, "internal/beta/beta.go", "package beta\n\n// TODO: fix\nfunc Run() {}\n")

	report, err := Scan(root, Options{Sections: []string{"alpha"}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, f := range report.Findings {
		if f.Section != "alpha" {
			t.Fatalf("expected only alpha section findings, got %+v", f)
		}
	}
	if len(report.Sections) != 1 || report.Sections[0] != "alpha" {
		t.Fatalf("expected sections=[alpha], got %v", report.Sections)
	}
}

func TestScanIncludeTestsLintsTestFileContent(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "internal/widget/widget.go", "package widget\n\nfunc run() {}\n")
	writeTreeFile(t, root, "internal/widget/widget_test.go", "package widget\n\nimport \"testing\"\n\n// TODO: add more cases\nfunc TestRun(t *testing.T) { run() }\n")

	withoutTests, err := Scan(root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, f := range withoutTests.Findings {
		if f.RuleID == "open-todo" {
			t.Fatalf("expected test file TODO to be excluded by default, got %+v", f)
		}
	}

	withTests, err := Scan(root, Options{IncludeTests: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	found := false
	for _, f := range withTests.Findings {
		if f.RuleID == "open-todo" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected --include-tests to surface the test file TODO, got %+v", withTests.Findings)
	}
}

func TestScanWithGatesDetectsTrailingWhitespaceAndMissingNewline(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "internal/widget/widget.go", "package widget\n\nfunc run() {   \n\treturn\n}")
	writeTreeFile(t, root, "internal/widget/widget_test.go", "package widget\n\nimport \"testing\"\n\nfunc TestRun(t *testing.T) { run() }\n")

	without, err := Scan(root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for _, f := range without.Findings {
		if f.RuleID == "trailing-whitespace" || f.RuleID == "missing-final-newline" {
			t.Fatalf("gate findings should not appear without --with-gates, got %+v", f)
		}
	}

	with, err := Scan(root, Options{WithGates: true})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	var ruleIDs []string
	for _, f := range with.Findings {
		ruleIDs = append(ruleIDs, f.RuleID)
	}
	if !contains(ruleIDs, "trailing-whitespace") {
		t.Fatalf("expected trailing-whitespace finding with --with-gates, got %v", ruleIDs)
	}
	if !contains(ruleIDs, "missing-final-newline") {
		t.Fatalf("expected missing-final-newline finding with --with-gates, got %v", ruleIDs)
	}
}

func TestReportSummaryCountsBySeverity(t *testing.T) {
	r := &Report{Findings: []Finding{
		{Severity: SeverityP1}, {Severity: SeverityP1}, {Severity: SeverityP2}, {Severity: SeverityP3},
	}}
	counts := r.Counts()
	if counts[SeverityP1] != 2 || counts[SeverityP2] != 1 || counts[SeverityP3] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestWriteMarkdownAndJSONProduceFiles(t *testing.T) {
	root := t.TempDir()
	writeTreeFile(t, root, "internal/widget/widget.go", "package widget\n\nfunc run() {}\n")

	report, err := Scan(root, Options{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	mdPath := filepath.Join(t.TempDir(), "report.md")
	if err := WriteMarkdown(report, mdPath); err != nil {
		t.Fatalf("WriteMarkdown: %v", err)
	}
	if _, err := os.Stat(mdPath); err != nil {
		t.Fatalf("expected markdown report written: %v", err)
	}

	jsonPath := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSON(report, jsonPath); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if _, err := os.Stat(jsonPath); err != nil {
		t.Fatalf("expected json report written: %v", err)
	}
}

func contains(items []string, target string) bool {
	for _, s := range items {
		if s == target {
			return true
		}
	}
	return false
}
