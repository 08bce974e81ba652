package forumsync

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
)

// TaskRecord is the minimal view of a task the phase-5 task-sync variant
// reconciles against forum thread archived state. The task CRUD directive
// category (§4.6) that creates/closes these is an external collaborator;
// this package only consumes the open/closed projection.
type TaskRecord struct {
	ID       string
	ShortID  string
	ThreadID string
	Open     bool
	ClosedAt time.Time
}

// OpKind names a planned phase-5 operation.
type OpKind string

const (
	OpArchive   OpKind = "archive"
	OpUnarchive OpKind = "unarchive"
	OpReArchive OpKind = "re_archive"
	OpCollision OpKind = "collision"
)

// Operation is one planned phase-5 action against a thread.
type Operation struct {
	Kind     OpKind
	ThreadID string
	TaskID   string
	Reason   string
}

// staleClosedWindow is how long a closed-but-unarchived thread is given
// before phase 5 forces a re-archive (§4.5 phase 5: "unarchive and
// re-archive stale-closed threads").
const staleClosedWindow = 24 * time.Hour

// PlanReconcile computes the phase-5 operation list from a snapshot of
// tasks and live threads — a pure function of its inputs per §4.5 ("Reconcile
// executes a planned operation list (pure function from snapshot)"). No I/O
// happens here; ExecuteReconcile applies the result.
func PlanReconcile(tasks []TaskRecord, threads map[string]chatplatform.Thread) []Operation {
	var ops []Operation

	byShortID := make(map[string][]TaskRecord)
	for _, t := range tasks {
		if t.ShortID != "" {
			byShortID[t.ShortID] = append(byShortID[t.ShortID], t)
		}
	}
	for shortID, group := range byShortID {
		if len(group) <= 1 {
			continue
		}
		ids := make([]string, len(group))
		for i, t := range group {
			ids[i] = t.ID
		}
		sort.Strings(ids)
		for _, t := range group {
			ops = append(ops, Operation{Kind: OpCollision, ThreadID: t.ThreadID, TaskID: t.ID,
				Reason: "short id " + shortID + " claimed by multiple tasks: " + joinIDs(ids)})
		}
	}

	now := time.Now()
	for _, t := range tasks {
		th, ok := threads[t.ThreadID]
		if !ok {
			continue
		}

		switch {
		case !t.Open && !th.Archived():
			ops = append(ops, Operation{Kind: OpArchive, ThreadID: t.ThreadID, TaskID: t.ID, Reason: "task closed"})
		case t.Open && th.Archived():
			ops = append(ops, Operation{Kind: OpUnarchive, ThreadID: t.ThreadID, TaskID: t.ID, Reason: "task reopened"})
		case !t.Open && th.Archived() && !t.ClosedAt.IsZero() && now.Sub(t.ClosedAt) > staleClosedWindow:
			// Stale-closed: unarchive then re-archive to force the platform
			// to refresh the thread's archived-reason metadata.
			ops = append(ops, Operation{Kind: OpUnarchive, ThreadID: t.ThreadID, TaskID: t.ID, Reason: "stale closed, refreshing"})
			ops = append(ops, Operation{Kind: OpReArchive, ThreadID: t.ThreadID, TaskID: t.ID, Reason: "stale closed, refreshing"})
		}
	}

	return ops
}

func joinIDs(ids []string) string {
	out := ids[0]
	for _, id := range ids[1:] {
		out += ", " + id
	}
	return out
}

// InFlightChecker reports whether a reply is currently being composed/sent
// on a channel, used to defer a close operation rather than race an
// in-progress send (§4.5 phase 5: "Reconcile ... defers any close operation
// when an in-flight reply is active on that channel").
type InFlightChecker func(threadID string) bool

// ExecuteReconcile applies ops in order, throttled like the other phases.
// Archive operations are deferred (skipped this pass, left for the next
// reconcile) when inFlight reports true for their thread.
func ExecuteReconcile(ctx context.Context, ops []Operation, threads map[string]chatplatform.Thread, inFlight InFlightChecker, throttleMs int) (applied, deferred int) {
	d := time.Duration(throttleMs) * time.Millisecond
	if d <= 0 {
		d = defaultThrottle
	}

	for _, op := range ops {
		th, ok := threads[op.ThreadID]
		if !ok {
			continue
		}

		if op.Kind == OpArchive && inFlight != nil && inFlight(op.ThreadID) {
			deferred++
			slog.Info("forumsync: deferring close, in-flight reply active", "threadId", op.ThreadID, "taskId", op.TaskID)
			continue
		}

		time.Sleep(d)

		var err error
		switch op.Kind {
		case OpArchive, OpReArchive:
			err = th.SetArchived(ctx, true)
		case OpUnarchive:
			err = th.SetArchived(ctx, false)
		case OpCollision:
			slog.Warn("forumsync: short-id collision", "threadId", op.ThreadID, "taskId", op.TaskID, "reason", op.Reason)
			applied++
			continue
		}
		if err != nil {
			slog.Warn("forumsync: phase5 operation failed", "kind", op.Kind, "threadId", op.ThreadID, "error", err)
			continue
		}
		applied++
	}
	return applied, deferred
}
