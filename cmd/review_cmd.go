package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlbuilder/forgehost/internal/codereview"
)

// reviewCmd generates a static section-by-section code review report
// (§6): a Markdown+JSON pair under docs/code-review/, plus a one-line
// P1/P2/P3 finding-count summary on stdout.
func reviewCmd() *cobra.Command {
	var sectionsCSV string
	var includeTests bool
	var withGates bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Generate a section-by-section code review report",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCodeReview(sectionsCSV, includeTests, withGates); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&sectionsCSV, "section", "", "comma-separated list of sections to review (default: all)")
	cmd.Flags().BoolVar(&includeTests, "include-tests", false, "also scan _test.go file contents")
	cmd.Flags().BoolVar(&withGates, "with-gates", false, "also run formatting/hygiene gate checks")
	return cmd
}

func runCodeReview(sectionsCSV string, includeTests, withGates bool) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}

	sections := splitCSV(sectionsCSV)

	report, err := codereview.Scan(wd, codereview.Options{
		Sections:     sections,
		IncludeTests: includeTests,
		WithGates:    withGates,
	})
	if err != nil {
		return fmt.Errorf("review: scan: %w", err)
	}

	outDir := filepath.Join(wd, "docs", "code-review")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("review: create report dir: %w", err)
	}

	mdPath, jsonPath := reviewReportPaths(outDir, time.Now(), sections)
	if err := codereview.WriteMarkdown(report, mdPath); err != nil {
		return fmt.Errorf("review: write markdown report: %w", err)
	}
	if err := codereview.WriteJSON(report, jsonPath); err != nil {
		return fmt.Errorf("review: write json report: %w", err)
	}

	fmt.Printf("Wrote %s and %s\n", mdPath, jsonPath)
	fmt.Println(report.Summary())
	return nil
}

// reviewReportPaths names the report pair
// docs/code-review/section-review-<YYYY-MM-DD>[-sections].{md,json}.
func reviewReportPaths(dir string, t time.Time, sections []string) (md, json string) {
	name := "section-review-" + t.Format("2006-01-02")
	if len(sections) > 0 {
		name += "-" + strings.Join(sections, "-")
	}
	return filepath.Join(dir, name+".md"), filepath.Join(dir, name+".json")
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
