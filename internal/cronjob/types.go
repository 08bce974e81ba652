// Package cronjob implements the cron scheduler and per-job executor:
// firing jobs on schedule, enforcing single-flight execution across
// restarts via an in-process guard plus a cross-process file lock,
// streaming model output through the runtime adapter framework, and
// routing results back to chat channels. Grounded throughout on
// itsddvn-goclaw/internal/cron/service.go's Service, generalized from the
// teacher's Kind ∈ {at, every, cron} Schedule union to a richer
// CronRunRecord-backed job model with chained re-fires and JSON fan-out
// routing.
package cronjob

import (
	"context"
	"sync"
	"time"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
	"github.com/nlbuilder/forgehost/internal/store"
)

// CronJob is the in-memory registration for one scheduled job: a stable
// reference to its durable record plus the runtime state the scheduler and
// executor need that has no business being persisted (§3 "Scheduler job").
type CronJob struct {
	mu sync.Mutex

	CronID   string
	GuildID  string
	Channel  chatplatform.ChannelRef // resolved lazily, cached across fires

	inFlight bool
	cancel   context.CancelFunc
}

// setInFlight atomically transitions the in-process overlap guard, failing
// the attempt when a prior run is already registered (§5 layer 1).
func (j *CronJob) setInFlight(v bool) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v && j.inFlight {
		return false
	}
	j.inFlight = v
	return true
}

func (j *CronJob) setCancel(c context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = c
}

// Cancel requests cancellation of this job's in-flight run, if any.
func (j *CronJob) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel == nil {
		return false
	}
	j.cancel()
	return true
}

// Snapshot is a read-only view of a job's live state plus its backing
// record, handed out by listJobs/getJob without holding any lock.
type Snapshot struct {
	CronID   string
	InFlight bool
	Record   *store.CronRunRecord
	NextRun  time.Time
}
