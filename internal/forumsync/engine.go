package forumsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
	"github.com/nlbuilder/forgehost/internal/store"
)

// defaultThrottle paces writes within a single phase per §4.5 ("All writes
// are throttled by a configurable throttleMs (default 250 ms) between
// operations within a phase").
const defaultThrottle = 250 * time.Millisecond

// maxAppliedTags caps the tag set applied to a thread (§4.5 phase 1).
const maxAppliedTags = 5

// Classifier asks an external model for a job's purpose tags and preferred
// model id, given its prompt/name. An external collaborator per §1 — the
// sync engine only consumes this narrow interface.
type Classifier interface {
	Classify(ctx context.Context, rec *store.CronRunRecord) (purposeTags []string, model string, err error)
}

// TagMap resolves a semantic tag name (purpose tag or cadence tag) to the
// platform's applied-tag ID, per the §6 "tag map" file.
type TagMap interface {
	TagID(name string) (id string, ok bool)
}

// Stats accumulates per-phase counters for a single Run, surfaced to the
// caller (and to tests) instead of aborting on per-item failure (§4.5:
// "failures within a phase are logged and counted but never abort the
// sync").
type Stats struct {
	Phase1Classified int
	Phase1TagsEdited int
	Phase1Errors     int

	Phase2Renamed int
	Phase2Errors  int

	Phase3Edited    int
	Phase3Recreated int
	Phase3Errors    int

	Phase35Backfilled int
	Phase35Errors     int

	Phase4Orphans []string
}

// Engine reconciles the in-memory record set (via store.RecordStore) against
// the live forum state, phase by phase (§4.5). Each phase is independently
// throttled; a per-item failure increments a counter and is logged, never
// aborting the run. Grounded on the spec's own phase description — no
// direct teacher file covers multi-phase forum reconciliation, so the
// phases are new code following the teacher's plain-function,
// early-continue-on-error idiom seen throughout internal/cron/service.go.
type Engine struct {
	Store      store.RecordStore
	Forum      chatplatform.ForumChannel
	Classifier Classifier
	Tags       TagMap

	// ThrottleMs paces operations within a phase; zero uses defaultThrottle.
	ThrottleMs int
}

func (e *Engine) throttle() time.Duration {
	if e.ThrottleMs <= 0 {
		return defaultThrottle
	}
	return time.Duration(e.ThrottleMs) * time.Millisecond
}

func (e *Engine) limiter() *rate.Limiter {
	d := e.throttle()
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Run executes phases 1 through 4 in order against every record that has a
// registered thread, then returns the accumulated Stats. Threads is the
// live snapshot from the forum (active ∪ archived, keyed by thread ID),
// fetched once by the caller so every phase reconciles against the same
// view.
func (e *Engine) Run(ctx context.Context, threads map[string]chatplatform.Thread) Stats {
	var stats Stats

	records := e.Store.List()

	e.phase1(ctx, records, threads, &stats)
	e.phase2(ctx, records, threads, &stats)
	e.phase3(ctx, records, threads, &stats)
	e.phase35(ctx, records, threads, &stats)
	e.phase4(records, threads, &stats)

	return stats
}

// phase1 classifies cadence/purpose tags/model for records missing them and
// reconciles the thread's applied-tag set against the desired set.
func (e *Engine) phase1(ctx context.Context, records []*store.CronRunRecord, threads map[string]chatplatform.Thread, stats *Stats) {
	lim := e.limiter()
	for _, rec := range records {
		th, ok := threads[rec.ThreadID]
		if !ok {
			continue
		}

		if rec.Cadence == "" || len(rec.PurposeTags) == 0 || rec.Model == "" {
			if err := e.classify(ctx, rec); err != nil {
				slog.Warn("forumsync: phase1 classify failed", "cronId", rec.CronID, "error", err)
				stats.Phase1Errors++
				continue
			}
			if _, err := e.Store.UpsertRecord(rec.CronID, rec.ThreadID, rec); err != nil {
				slog.Warn("forumsync: phase1 upsert failed", "cronId", rec.CronID, "error", err)
				stats.Phase1Errors++
				continue
			}
			stats.Phase1Classified++
		}

		desired := desiredTagIDs(rec, e.Tags)
		current := append([]string(nil), th.AppliedTags()...)
		if sameTagSet(desired, current) {
			continue
		}

		_ = lim.Wait(ctx)
		if err := th.Edit(ctx, desired); err != nil {
			slog.Warn("forumsync: phase1 tag edit failed", "cronId", rec.CronID, "error", err)
			stats.Phase1Errors++
			continue
		}
		stats.Phase1TagsEdited++
	}
}

func (e *Engine) classify(ctx context.Context, rec *store.CronRunRecord) error {
	if rec.Cadence == "" {
		rec.Cadence = CadenceFromSchedule(rec.Schedule)
	}
	if e.Classifier == nil {
		return nil
	}
	if len(rec.PurposeTags) > 0 && rec.Model != "" {
		return nil
	}
	tags, model, err := e.Classifier.Classify(ctx, rec)
	if err != nil {
		return err
	}
	if len(rec.PurposeTags) == 0 {
		rec.PurposeTags = tags
	}
	if rec.Model == "" {
		rec.Model = model
	}
	return nil
}

// desiredTagIDs computes the desired applied-tag ID set: purpose tags plus
// the cadence tag, truncated to maxAppliedTags (§4.5 phase 1).
func desiredTagIDs(rec *store.CronRunRecord, tags TagMap) []string {
	var names []string
	names = append(names, rec.PurposeTags...)
	if rec.Cadence != "" {
		names = append(names, "cadence:"+string(rec.Cadence))
	}

	var ids []string
	seen := make(map[string]bool)
	for _, name := range names {
		if len(ids) >= maxAppliedTags {
			break
		}
		id := name
		if tags != nil {
			if resolved, ok := tags.TagID(name); ok {
				id = resolved
			}
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// sameTagSet compares two tag-ID sets order-insensitively (§4.5 phase 1:
// "Only call the edit API if the current set differs").
func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// phase2 renames a thread when its actual name differs from the computed
// cadence-prefixed name (§4.5 phase 2).
func (e *Engine) phase2(ctx context.Context, records []*store.CronRunRecord, threads map[string]chatplatform.Thread, stats *Stats) {
	lim := e.limiter()
	for _, rec := range records {
		th, ok := threads[rec.ThreadID]
		if !ok {
			continue
		}
		expected := BuildCronThreadName(th.Name(), rec.Cadence)
		if expected == th.Name() {
			continue
		}
		_ = lim.Wait(ctx)
		if err := th.SetName(ctx, expected); err != nil {
			slog.Warn("forumsync: phase2 rename failed", "cronId", rec.CronID, "error", err)
			stats.Phase2Errors++
			continue
		}
		stats.Phase2Renamed++
	}
}

// phase3 composes and pins/edits the per-thread status summary message
// (§4.5 phase 3).
func (e *Engine) phase3(ctx context.Context, records []*store.CronRunRecord, threads map[string]chatplatform.Thread, stats *Stats) {
	lim := e.limiter()
	for _, rec := range records {
		th, ok := threads[rec.ThreadID]
		if !ok {
			continue
		}
		summary := StatusSummary(rec)

		_ = lim.Wait(ctx)
		if rec.StatusMessageID != "" {
			if err := th.EditMessage(ctx, rec.StatusMessageID, summary); err == nil {
				stats.Phase3Edited++
				continue
			}
			slog.Warn("forumsync: phase3 edit failed, recreating", "cronId", rec.CronID)
		}

		msgID, err := th.SendMessage(ctx, summary)
		if err != nil {
			slog.Warn("forumsync: phase3 send failed", "cronId", rec.CronID, "error", err)
			stats.Phase3Errors++
			continue
		}
		if err := th.PinMessage(ctx, msgID); err != nil {
			slog.Warn("forumsync: phase3 pin failed", "cronId", rec.CronID, "error", err)
		}
		rec.StatusMessageID = msgID
		if _, err := e.Store.UpsertRecord(rec.CronID, rec.ThreadID, rec); err != nil {
			slog.Warn("forumsync: phase3 upsert failed", "cronId", rec.CronID, "error", err)
			stats.Phase3Errors++
			continue
		}
		stats.Phase3Recreated++
	}
}

// phase35 backfills the prompt as a pinned message for records that have a
// prompt but haven't yet recorded a prompt-message ID (§4.5 phase 3.5).
func (e *Engine) phase35(ctx context.Context, records []*store.CronRunRecord, threads map[string]chatplatform.Thread, stats *Stats) {
	lim := e.limiter()
	for _, rec := range records {
		if rec.Prompt == "" || rec.PromptMessageID != "" {
			continue
		}
		th, ok := threads[rec.ThreadID]
		if !ok {
			continue
		}

		_ = lim.Wait(ctx)
		body := fmt.Sprintf("**Prompt**\n\n%s", rec.Prompt)
		msgID, err := th.SendMessage(ctx, body)
		if err != nil {
			slog.Warn("forumsync: phase3.5 prompt backfill failed", "cronId", rec.CronID, "error", err)
			stats.Phase35Errors++
			continue
		}
		if err := th.PinMessage(ctx, msgID); err != nil {
			slog.Warn("forumsync: phase3.5 pin failed", "cronId", rec.CronID, "error", err)
		}
		rec.PromptMessageID = msgID
		if _, err := e.Store.UpsertRecord(rec.CronID, rec.ThreadID, rec); err != nil {
			slog.Warn("forumsync: phase3.5 upsert failed", "cronId", rec.CronID, "error", err)
			stats.Phase35Errors++
			continue
		}
		stats.Phase35Backfilled++
	}
}

// phase4 logs (warning-only, no destructive action) every thread parented
// to the forum whose ID has no registered record (§4.5 phase 4).
func (e *Engine) phase4(records []*store.CronRunRecord, threads map[string]chatplatform.Thread, stats *Stats) {
	registered := make(map[string]bool, len(records))
	for _, rec := range records {
		registered[rec.ThreadID] = true
	}
	for id, th := range threads {
		if registered[id] {
			continue
		}
		stats.Phase4Orphans = append(stats.Phase4Orphans, id)
		slog.Warn("forumsync: orphan thread (no registered job)", "threadId", id, "name", th.Name())
	}
	sort.Strings(stats.Phase4Orphans)
}

// FetchAllThreads merges active and archived threads into one map keyed by
// thread ID, the view every phase reconciles against.
func FetchAllThreads(ctx context.Context, forum chatplatform.ForumChannel) (map[string]chatplatform.Thread, error) {
	out := make(map[string]chatplatform.Thread)
	active, err := forum.FetchActiveThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("forumsync: fetch active threads: %w", err)
	}
	for id, th := range active {
		out[id] = th
	}
	archived, err := forum.FetchArchivedThreads(ctx)
	if err != nil {
		return out, fmt.Errorf("forumsync: fetch archived threads: %w", err)
	}
	for id, th := range archived {
		out[id] = th
	}
	return out, nil
}

// statusEmoji maps a run status to the glyph used in the pinned summary.
var statusEmoji = map[store.RunStatus]string{
	store.RunStatusSuccess:     "✅",
	store.RunStatusError:       "❌",
	store.RunStatusRunning:     "🔄",
	store.RunStatusInterrupted: "⚠️",
}

// StatusSummary composes the deterministic pinned status message body for
// rec (§4.5 phase 3): last-run timestamp, status emoji, run count, model,
// cadence, tags, and any last error.
func StatusSummary(rec *store.CronRunRecord) string {
	var b strings.Builder
	b.WriteString("**Status**\n")

	lastRun := "never"
	if rec.LastRunAt != nil && *rec.LastRunAt != "" {
		lastRun = *rec.LastRunAt
	}
	emoji := statusEmoji[rec.LastRunStatus]
	if emoji == "" {
		emoji = "➖"
	}
	fmt.Fprintf(&b, "- Last run: %s %s\n", emoji, lastRun)
	fmt.Fprintf(&b, "- Run count: %d\n", rec.RunCount)
	if rec.Model != "" {
		fmt.Fprintf(&b, "- Model: %s\n", rec.Model)
	}
	if rec.Cadence != "" {
		fmt.Fprintf(&b, "- Cadence: %s\n", rec.Cadence)
	}
	if len(rec.PurposeTags) > 0 {
		fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(rec.PurposeTags, ", "))
	}
	if rec.LastErrorMessage != "" {
		fmt.Fprintf(&b, "- Last error: %s\n", rec.LastErrorMessage)
	}
	return b.String()
}
