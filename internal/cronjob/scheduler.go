package cronjob

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nlbuilder/forgehost/internal/store"
)

// tickInterval mirrors internal/cron/service.go's runLoop ticker cadence.
const tickInterval = 1 * time.Second

// Scheduler registers jobs, computes next-run times from their 5-field
// cron expression and timezone, and fires due jobs by calling Executor.Run.
// Grounded on itsddvn-goclaw/internal/cron/service.go's Service.runLoop /
// checkJobs, generalized from the teacher's Kind ∈ {at, every, cron}
// Schedule union to the spec's single 5-field-cron-or-empty definition.
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*CronJob
	nextRuns map[string]time.Time

	store    store.RecordStore
	executor *Executor

	stopCh chan struct{}
}

// NewScheduler wires a scheduler to store for record lookups and executor
// for firing due jobs.
func NewScheduler(st store.RecordStore, executor *Executor) *Scheduler {
	return &Scheduler{
		jobs:     make(map[string]*CronJob),
		nextRuns: make(map[string]time.Time),
		store:    st,
		executor: executor,
	}
}

// Register adds job to the schedule set, computing its first nextRun from
// the backing record's Schedule/Timezone. A job with an empty Schedule
// never self-fires (webhook/manual trigger only, §4.3).
func (s *Scheduler) Register(job *CronJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.CronID] = job
	s.scheduleNextLocked(job.CronID)
}

// Unregister removes a job from the schedule set. Safe to call on a job
// that is mid-run; the executor's own lock/inFlight guards remain correct.
func (s *Scheduler) Unregister(cronID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, cronID)
	delete(s.nextRuns, cronID)
}

// ListJobs returns a snapshot of every registered job and its current
// record, joining against the store.
func (s *Scheduler) ListJobs() []Snapshot {
	s.mu.Lock()
	jobs := make([]*CronJob, 0, len(s.jobs))
	nextRuns := make(map[string]time.Time, len(s.nextRuns))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	for id, t := range s.nextRuns {
		nextRuns[id] = t
	}
	s.mu.Unlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		rec, _ := s.store.Get(j.CronID)
		j.mu.Lock()
		inFlight := j.inFlight
		j.mu.Unlock()
		out = append(out, Snapshot{CronID: j.CronID, InFlight: inFlight, Record: rec, NextRun: nextRuns[j.CronID]})
	}
	return out
}

// GetJob returns the live registration for cronID, if registered.
func (s *Scheduler) GetJob(cronID string) (*CronJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[cronID]
	return j, ok
}

// scheduleNextLocked computes and stores nextRuns[cronID]; called with s.mu
// held. A record with no Schedule, an invalid expression, or an invalid
// timezone clears any pending nextRun (the job becomes fire-on-demand-only;
// an invalid timezone additionally warns per §6's DEFAULT_TIMEZONE note).
func (s *Scheduler) scheduleNextLocked(cronID string) {
	rec, ok := s.store.Get(cronID)
	if !ok || rec.Schedule == "" {
		delete(s.nextRuns, cronID)
		return
	}

	loc := time.UTC
	if rec.Timezone != "" {
		if l, err := time.LoadLocation(rec.Timezone); err == nil {
			loc = l
		} else {
			slog.Warn("cronjob: invalid timezone, falling back to UTC", "cronId", cronID, "timezone", rec.Timezone)
		}
	}

	gx := gronx.New()
	if !gx.IsValid(rec.Schedule) {
		slog.Warn("cronjob: invalid cron expression, job will not self-fire", "cronId", cronID, "expr", rec.Schedule)
		delete(s.nextRuns, cronID)
		return
	}

	next, err := gronx.NextTickAfter(rec.Schedule, time.Now().In(loc), false)
	if err != nil {
		slog.Warn("cronjob: failed to compute next run", "cronId", cronID, "error", err)
		delete(s.nextRuns, cronID)
		return
	}
	s.nextRuns[cronID] = next
}

// Start begins the polling loop; it returns immediately and runs until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the polling loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

// tick finds every job whose nextRun has passed, reschedules it, and fires
// it without blocking the tick loop (§4.3: "Firing never waits for a prior
// run — the executor's overlap guard is responsible for skipping").
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*CronJob
	for cronID, next := range s.nextRuns {
		if !next.After(now) {
			if job, ok := s.jobs[cronID]; ok {
				due = append(due, job)
			}
			s.scheduleNextLocked(cronID)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		go s.executor.Run(ctx, job, 0)
	}
}
