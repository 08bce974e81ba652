package store

import "log/slog"

// migrationStep mutates a Document in place, bringing it from version n-1
// to version n. Every step must be additive and idempotent (§4.1): running
// it twice, or against a document that already has the fields it adds,
// must be a no-op.
type migrationStep struct {
	version int
	apply   func(*Document)
}

// migrations is the ordered list of additive steps. New fields that ship
// with a default zero value don't need an entry here — only add a step
// when an old document needs an explicit backfill.
var migrations = []migrationStep{
	{version: 2, apply: func(d *Document) {
		for _, r := range d.Jobs {
			if r.TriggerType == "" {
				r.TriggerType = TriggerSchedule
			}
		}
	}},
	{version: 3, apply: func(d *Document) {
		for _, r := range d.Jobs {
			if r.RoutingMode == "" {
				r.RoutingMode = RoutingDefault
			}
		}
	}},
	{version: 4, apply: func(d *Document) {
		for _, r := range d.Jobs {
			if r.PurposeTags == nil {
				r.PurposeTags = []string{}
			}
		}
	}},
	{version: 5, apply: func(d *Document) {
		for _, r := range d.Jobs {
			if r.LastRunStatus == RunStatusRunning {
				r.LastRunStatus = RunStatusInterrupted
			}
		}
	}},
	// v5 -> v6 is a no-op in the sources this spec was distilled from; kept
	// as an explicit step (rather than omitted) so the version sequence and
	// step count match, per the §9 open-question resolution in DESIGN.md.
	{version: 6, apply: func(*Document) {}},
	{version: 7, apply: func(d *Document) {
		for _, r := range d.Jobs {
			if r.Chain == nil {
				r.Chain = []string{}
			}
		}
	}},
}

const currentVersion = 7

// ApplyMigrations brings doc up to currentVersion in order. Missing or
// zero Version is treated as version 1 (the baseline shape). Each step is
// safe to re-apply; unknown fields already present are left untouched.
func ApplyMigrations(doc *Document) {
	if doc.Jobs == nil {
		doc.Jobs = make(map[string]*CronRunRecord)
	}
	if doc.Version < 1 {
		doc.Version = 1
	}
	for _, step := range migrations {
		if doc.Version < step.version {
			step.apply(doc)
			doc.Version = step.version
		}
	}
	if doc.Version < currentVersion {
		doc.Version = currentVersion
	}
}

// SweepInterruptedDoc rewrites any "running" status left by a prior crash
// to "interrupted" (§3 invariant 4, "sweep interrupted"). Returns the
// affected cronIds. Called on load, independent of the migration table
// since it must also run on every restart against an already-current
// document, not just during a version bump.
func SweepInterruptedDoc(doc *Document) []string {
	var affected []string
	for cronID, r := range doc.Jobs {
		if r.LastRunStatus == RunStatusRunning {
			r.LastRunStatus = RunStatusInterrupted
			affected = append(affected, cronID)
		}
	}
	if len(affected) > 0 {
		slog.Warn("store: swept interrupted runs", "count", len(affected))
	}
	return affected
}
