// Package status builds the chat-surface "!status" snapshot: a fenced
// plain-text block summarizing host uptime, cron state, open tasks, and
// live API reachability. Grounded on the teacher's doctor-style probe loop
// (cmd/doctor.go's checkProvider/checkBinary) for the live-probe section
// and on internal/cronjob.Scheduler for the job list.
package status

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nlbuilder/forgehost/internal/cronjob"
)

// Prober checks one external dependency's reachability within a bounded
// timeout, returning a short ok/error description.
type Prober interface {
	Name() string
	Probe(ctx context.Context) error
}

// Snapshot is the fully-resolved !status payload, ready to render.
type Snapshot struct {
	Uptime            time.Duration
	LastMessageAt     time.Time
	Jobs              []JobLine
	OpenTaskCount     int
	DurableItemCount  int
	RollingSummaryLen int
	Probes            []ProbeResult
	WorkspaceFiles    []FileCheck
}

// JobLine is one cron job's next-run projection for the snapshot.
type JobLine struct {
	CronID   string
	Cadence  string
	NextRun  time.Time
	InFlight bool
}

// ProbeResult is one live API probe's outcome.
type ProbeResult struct {
	Name string
	OK   bool
	Err  string
}

// FileCheck reports whether a workspace-relative file exists.
type FileCheck struct {
	Path   string
	Exists bool
}

// Builder assembles a Snapshot from the host's live components.
type Builder struct {
	StartedAt        time.Time
	LastMessageAt    time.Time
	Scheduler        *cronjob.Scheduler
	OpenTaskCount    func() int
	DurableItemCount func() int
	SummaryCharCount func() int
	Probes           []Prober
	ProbeTimeout     time.Duration
	Workspace        string
	WorkspaceFiles   []string
}

const defaultProbeTimeout = 3 * time.Second

// Build collects every section of the snapshot. Probe failures and missing
// files are recorded, never fatal — !status always renders something.
func (b *Builder) Build(ctx context.Context) Snapshot {
	snap := Snapshot{
		Uptime:        time.Since(b.StartedAt),
		LastMessageAt: b.LastMessageAt,
	}

	if b.Scheduler != nil {
		for _, js := range b.Scheduler.ListJobs() {
			line := JobLine{CronID: js.CronID, InFlight: js.InFlight, NextRun: js.NextRun}
			if js.Record != nil {
				line.Cadence = string(js.Record.Cadence)
			}
			snap.Jobs = append(snap.Jobs, line)
		}
		sort.Slice(snap.Jobs, func(i, j int) bool { return snap.Jobs[i].CronID < snap.Jobs[j].CronID })
	}

	if b.OpenTaskCount != nil {
		snap.OpenTaskCount = b.OpenTaskCount()
	}
	if b.DurableItemCount != nil {
		snap.DurableItemCount = b.DurableItemCount()
	}
	if b.SummaryCharCount != nil {
		snap.RollingSummaryLen = b.SummaryCharCount()
	}

	timeout := b.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	for _, p := range b.Probes {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Probe(probeCtx)
		cancel()
		res := ProbeResult{Name: p.Name(), OK: err == nil}
		if err != nil {
			res.Err = err.Error()
		}
		snap.Probes = append(snap.Probes, res)
	}

	for _, rel := range b.WorkspaceFiles {
		path := rel
		if b.Workspace != "" {
			path = b.Workspace + "/" + rel
		}
		_, err := os.Stat(path)
		snap.WorkspaceFiles = append(snap.WorkspaceFiles, FileCheck{Path: rel, Exists: err == nil})
	}

	return snap
}

// Render formats snap as the fenced plain-text block the chat surface
// posts verbatim.
func Render(snap Snapshot) string {
	var b strings.Builder
	b.WriteString("```\n")
	fmt.Fprintf(&b, "uptime: %s\n", snap.Uptime.Round(time.Second))
	if !snap.LastMessageAt.IsZero() {
		fmt.Fprintf(&b, "last message: %s\n", snap.LastMessageAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "open tasks: %d\n", snap.OpenTaskCount)
	fmt.Fprintf(&b, "durable items: %d\n", snap.DurableItemCount)
	fmt.Fprintf(&b, "rolling summary: %d chars\n", snap.RollingSummaryLen)

	b.WriteString("\ncron jobs:\n")
	if len(snap.Jobs) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, j := range snap.Jobs {
		flight := ""
		if j.InFlight {
			flight = " [running]"
		}
		next := "no schedule"
		if !j.NextRun.IsZero() {
			next = "next " + humanizeUntil(j.NextRun)
		}
		fmt.Fprintf(&b, "  %s (%s) %s%s\n", j.CronID, j.Cadence, next, flight)
	}

	b.WriteString("\nprobes:\n")
	for _, p := range snap.Probes {
		mark := "ok"
		if !p.OK {
			mark = "FAIL: " + p.Err
		}
		fmt.Fprintf(&b, "  %s: %s\n", p.Name, mark)
	}

	b.WriteString("\nworkspace files:\n")
	for _, f := range snap.WorkspaceFiles {
		mark := "missing"
		if f.Exists {
			mark = "present"
		}
		fmt.Fprintf(&b, "  %s: %s\n", f.Path, mark)
	}
	b.WriteString("```")
	return b.String()
}

func humanizeUntil(t time.Time) string {
	d := time.Until(t)
	if d < 0 {
		return "overdue"
	}
	switch {
	case d < time.Minute:
		return "in <1m"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return t.Format("Jan 2 15:04")
	}
}
