// Package codereview implements the static section-review report generator
// exposed by the `review` CLI subcommand (§6): a directory-walking scanner
// in the same style as internal/preflight's legacy-token guard, extended
// with a handful of go/parser-based structural checks, bucketed into
// P1/P2/P3 severities and rendered as a Markdown+JSON report pair.
package codereview

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Severity ranks a Finding's urgency: P1 blocks a merge, P2 should be fixed
// soon, P3 is a minor hygiene note.
type Severity string

const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
)

// Finding is one section-review result, anchored to a file and (where
// applicable) a line.
type Finding struct {
	Section  string   `json:"section"`
	Path     string   `json:"path"`
	Line     int      `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	RuleID   string   `json:"ruleId"`
	Message  string   `json:"message"`
}

// Options parameterizes a Scan, mirroring the review command's flags.
type Options struct {
	// Sections restricts the scan to these section names (derived from the
	// top-level package directory, e.g. "store", "cronjob", "cmd"). Empty
	// means every section.
	Sections []string
	// IncludeTests also lints _test.go file contents; structural checks
	// (like missing-test-file) run regardless of this flag.
	IncludeTests bool
	// WithGates additionally runs formatting/hygiene gate checks.
	WithGates bool
}

// Report is the full output of a Scan, serialized verbatim to JSON and
// rendered to Markdown.
type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Sections    []string  `json:"sections"`
	Findings    []Finding `json:"findings"`
}

// Counts tallies findings per severity, always including all three keys.
func (r *Report) Counts() map[Severity]int {
	counts := map[Severity]int{SeverityP1: 0, SeverityP2: 0, SeverityP3: 0}
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}

// Summary is the one-line P1/P2/P3 count the CLI prints on completion.
func (r *Report) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("P1: %d  P2: %d  P3: %d  (%d findings across %d section(s))",
		c[SeverityP1], c[SeverityP2], c[SeverityP3], len(r.Findings), len(r.Sections))
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "_examples": true, "dist": true, "build": true,
}

const (
	maxLineLen   = 120
	maxFuncLines = 120
)

var todoPattern = regexp.MustCompile(`//.*\b(TODO|FIXME)\b`)
var panicPattern = regexp.MustCompile(`\bpanic\(`)

// Scan walks root and produces a Report. A file that fails to parse yields
// a single P1 parse-error finding rather than aborting the whole scan.
func Scan(root string, opts Options) (*Report, error) {
	sectionFilter := toSet(opts.Sections)

	var findings []Finding
	sectionsSeen := map[string]bool{}
	goDirs := map[string]string{} // dir -> section, for dirs with non-test .go files
	testDirs := map[string]bool{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}

		section := sectionFor(root, path)
		if len(sectionFilter) > 0 && !sectionFilter[section] {
			return nil
		}

		dir := filepath.Dir(path)
		isTest := strings.HasSuffix(path, "_test.go")
		if isTest {
			testDirs[dir] = true
		} else {
			goDirs[dir] = section
		}
		if isTest && !opts.IncludeTests {
			return nil
		}

		src, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}

		rel := relPath(root, path)
		sectionsSeen[section] = true
		findings = append(findings, scanLines(section, rel, src, isTest, opts.WithGates)...)

		fset := token.NewFileSet()
		astFile, perr := parser.ParseFile(fset, path, src, parser.ParseComments)
		if perr != nil {
			findings = append(findings, Finding{
				Section: section, Path: rel, Severity: SeverityP1,
				RuleID: "parse-error", Message: fmt.Sprintf("failed to parse: %s", perr),
			})
			return nil
		}
		findings = append(findings, scanAST(section, rel, fset, astFile, isTest)...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("codereview: walk %s: %w", root, err)
	}

	for dir, section := range goDirs {
		if testDirs[dir] {
			continue
		}
		findings = append(findings, Finding{
			Section: section, Path: relPath(root, dir), Severity: SeverityP3,
			RuleID: "missing-test-file", Message: "package directory has no _test.go file",
		})
	}

	sections := make([]string, 0, len(sectionsSeen))
	for s := range sectionsSeen {
		sections = append(sections, s)
	}
	sort.Strings(sections)

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Line < findings[j].Line
	})

	return &Report{GeneratedAt: time.Now(), Sections: sections, Findings: findings}, nil
}

func scanLines(section, path string, src []byte, isTest, withGates bool) []Finding {
	var out []Finding
	lines := strings.Split(string(src), "\n")
	for i, line := range lines {
		lineNo := i + 1
		if todoPattern.MatchString(line) {
			out = append(out, Finding{
				Section: section, Path: path, Line: lineNo, Severity: SeverityP1,
				RuleID: "open-todo", Message: "unresolved TODO/FIXME comment",
			})
		}
		if !isTest && panicPattern.MatchString(line) {
			out = append(out, Finding{
				Section: section, Path: path, Line: lineNo, Severity: SeverityP1,
				RuleID: "bare-panic", Message: "panic call outside test code",
			})
		}
		if len(line) > maxLineLen {
			out = append(out, Finding{
				Section: section, Path: path, Line: lineNo, Severity: SeverityP3,
				RuleID: "long-line", Message: fmt.Sprintf("line exceeds %d characters", maxLineLen),
			})
		}
		if withGates {
			if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
				out = append(out, Finding{
					Section: section, Path: path, Line: lineNo, Severity: SeverityP3,
					RuleID: "trailing-whitespace", Message: "line has trailing whitespace",
				})
			}
		}
	}
	if withGates && len(src) > 0 && src[len(src)-1] != '\n' {
		out = append(out, Finding{
			Section: section, Path: path, Line: len(lines), Severity: SeverityP3,
			RuleID: "missing-final-newline", Message: "file does not end with a newline",
		})
	}
	return out
}

func scanAST(section, path string, fset *token.FileSet, file *ast.File, isTest bool) []Finding {
	var out []Finding
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if !isTest && d.Name.IsExported() && d.Doc == nil {
				out = append(out, Finding{
					Section: section, Path: path, Line: fset.Position(d.Pos()).Line, Severity: SeverityP2,
					RuleID: "undocumented-exported", Message: fmt.Sprintf("exported func %s has no doc comment", d.Name.Name),
				})
			}
			if d.Body != nil {
				start, end := fset.Position(d.Pos()).Line, fset.Position(d.End()).Line
				if end-start > maxFuncLines {
					out = append(out, Finding{
						Section: section, Path: path, Line: start, Severity: SeverityP2,
						RuleID: "long-function", Message: fmt.Sprintf("func %s spans %d lines", d.Name.Name, end-start),
					})
				}
			}
		case *ast.GenDecl:
			if isTest || d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ts.Name.IsExported() {
					continue
				}
				if d.Doc == nil && ts.Doc == nil {
					out = append(out, Finding{
						Section: section, Path: path, Line: fset.Position(ts.Pos()).Line, Severity: SeverityP2,
						RuleID: "undocumented-exported", Message: fmt.Sprintf("exported type %s has no doc comment", ts.Name.Name),
					})
				}
			}
		}
	}
	return out
}

// sectionFor derives a section name from a file path: "cmd" for anything
// under cmd/, the immediate child directory name for anything under
// internal/, and the top-level directory name otherwise.
func sectionFor(root, path string) string {
	rel := relPath(root, path)
	parts := strings.Split(rel, "/")
	if len(parts) == 0 {
		return rel
	}
	if parts[0] == "internal" && len(parts) > 1 {
		return parts[1]
	}
	return parts[0]
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}
