package status

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeProbe struct {
	name string
	err  error
}

func (f fakeProbe) Name() string                        { return f.name }
func (f fakeProbe) Probe(ctx context.Context) error { return f.err }

func TestBuildNeverFailsOnProbeError(t *testing.T) {
	b := &Builder{
		StartedAt: time.Now().Add(-time.Hour),
		Probes: []Prober{
			fakeProbe{name: "ok-dep", err: nil},
			fakeProbe{name: "down-dep", err: errors.New("connection refused")},
		},
	}
	snap := b.Build(context.Background())
	if len(snap.Probes) != 2 {
		t.Fatalf("expected 2 probe results, got %d", len(snap.Probes))
	}
	if !snap.Probes[0].OK {
		t.Fatal("expected ok-dep to report OK")
	}
	if snap.Probes[1].OK || snap.Probes[1].Err == "" {
		t.Fatalf("expected down-dep to report a non-OK result with an error string, got %+v", snap.Probes[1])
	}
}

func TestBuildReportsWorkspaceFileExistence(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "present.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := &Builder{
		StartedAt:      time.Now(),
		Workspace:      dir,
		WorkspaceFiles: []string{"present.txt", "missing.txt"},
	}
	snap := b.Build(context.Background())
	if len(snap.WorkspaceFiles) != 2 {
		t.Fatalf("expected 2 file checks, got %d", len(snap.WorkspaceFiles))
	}
	byPath := map[string]bool{}
	for _, f := range snap.WorkspaceFiles {
		byPath[f.Path] = f.Exists
	}
	if !byPath["present.txt"] {
		t.Fatal("expected present.txt to be reported as existing")
	}
	if byPath["missing.txt"] {
		t.Fatal("expected missing.txt to be reported as absent")
	}
}

func TestBuildWithNilSchedulerYieldsNoJobs(t *testing.T) {
	b := &Builder{StartedAt: time.Now()}
	snap := b.Build(context.Background())
	if len(snap.Jobs) != 0 {
		t.Fatalf("expected no jobs with a nil scheduler, got %+v", snap.Jobs)
	}
}

func TestRenderIncludesAllSectionsAndFencesOutput(t *testing.T) {
	snap := Snapshot{
		Uptime:        90 * time.Minute,
		OpenTaskCount: 3,
		Probes:        []ProbeResult{{Name: "redis", OK: true}, {Name: "discord", OK: false, Err: "timeout"}},
		WorkspaceFiles: []FileCheck{{Path: "NOTES.md", Exists: true}},
	}
	out := Render(snap)
	if !strings.HasPrefix(out, "```\n") || !strings.HasSuffix(out, "```") {
		t.Fatalf("expected Render to fence its output, got %q", out)
	}
	if !strings.Contains(out, "open tasks: 3") {
		t.Fatalf("expected open task count in output: %s", out)
	}
	if !strings.Contains(out, "redis: ok") {
		t.Fatalf("expected probe ok line: %s", out)
	}
	if !strings.Contains(out, "discord: FAIL: timeout") {
		t.Fatalf("expected probe failure line: %s", out)
	}
	if !strings.Contains(out, "NOTES.md: present") {
		t.Fatalf("expected workspace file line: %s", out)
	}
}

func TestHumanizeUntilOverdueAndBuckets(t *testing.T) {
	if got := humanizeUntil(time.Now().Add(-time.Minute)); got != "overdue" {
		t.Fatalf("humanizeUntil(past) = %q", got)
	}
	if got := humanizeUntil(time.Now().Add(30 * time.Second)); got != "in <1m" {
		t.Fatalf("humanizeUntil(30s) = %q", got)
	}
	got := humanizeUntil(time.Now().Add(10 * time.Minute))
	if !strings.HasPrefix(got, "in ") || !strings.HasSuffix(got, "m") {
		t.Fatalf("humanizeUntil(10m) = %q", got)
	}
}
