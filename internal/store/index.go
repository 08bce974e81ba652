package store

// Indexes holds the in-memory secondary indexes over a Document's jobs map.
// Rebuilt on load, maintained incrementally on every mutation (§3
// invariants 1 and 2). Shared by every RecordStore backend so they don't
// each reinvent index bookkeeping.
type Indexes struct {
	byThreadID  map[string]string // threadId -> cronId
	byStatusMsg map[string]string // statusMessageId -> cronId
	bySourceID  map[string]string // webhookSourceId -> cronId
}

// NewIndexes returns an empty index set.
func NewIndexes() *Indexes {
	return &Indexes{
		byThreadID:  make(map[string]string),
		byStatusMsg: make(map[string]string),
		bySourceID:  make(map[string]string),
	}
}

// Rebuild recomputes all indexes from scratch against jobs.
func (ix *Indexes) Rebuild(jobs map[string]*CronRunRecord) {
	ix.byThreadID = make(map[string]string, len(jobs))
	ix.byStatusMsg = make(map[string]string, len(jobs))
	ix.bySourceID = make(map[string]string, len(jobs))
	for cronID, r := range jobs {
		if r.ThreadID != "" {
			ix.byThreadID[r.ThreadID] = cronID
		}
		if r.StatusMessageID != "" {
			ix.byStatusMsg[r.StatusMessageID] = cronID
		}
		if r.WebhookSourceID != "" {
			ix.bySourceID[r.WebhookSourceID] = cronID
		}
	}
}

// CheckSourceIDConflict returns ErrSourceIDConflict if sourceID is already
// owned by a record other than exceptCronID.
func (ix *Indexes) CheckSourceIDConflict(sourceID, exceptCronID string) error {
	if sourceID == "" {
		return nil
	}
	if owner, ok := ix.bySourceID[sourceID]; ok && owner != exceptCronID {
		return ErrSourceIDConflict
	}
	return nil
}

// CheckThreadIDConflict returns ErrThreadIDConflict if threadID is already
// owned by a record other than exceptCronID.
func (ix *Indexes) CheckThreadIDConflict(threadID, exceptCronID string) error {
	if threadID == "" {
		return nil
	}
	if owner, ok := ix.byThreadID[threadID]; ok && owner != exceptCronID {
		return ErrThreadIDConflict
	}
	return nil
}

// Reconcile updates all index entries for cronID: removes stale entries
// pointing at cronID whose field value changed, then adds the current ones.
func (ix *Indexes) Reconcile(cronID string, before, after *CronRunRecord) {
	reconcileOne(ix.byThreadID, cronID, fieldOf(before, func(r *CronRunRecord) string { return r.ThreadID }), after.ThreadID)
	reconcileOne(ix.byStatusMsg, cronID, fieldOf(before, func(r *CronRunRecord) string { return r.StatusMessageID }), after.StatusMessageID)
	reconcileOne(ix.bySourceID, cronID, fieldOf(before, func(r *CronRunRecord) string { return r.WebhookSourceID }), after.WebhookSourceID)
}

// Remove deletes all index entries owned by cronID.
func (ix *Indexes) Remove(cronID string, r *CronRunRecord) {
	if r == nil {
		return
	}
	deleteIfOwner(ix.byThreadID, r.ThreadID, cronID)
	deleteIfOwner(ix.byStatusMsg, r.StatusMessageID, cronID)
	deleteIfOwner(ix.bySourceID, r.WebhookSourceID, cronID)
}

func fieldOf(r *CronRunRecord, get func(*CronRunRecord) string) string {
	if r == nil {
		return ""
	}
	return get(r)
}

func reconcileOne(idx map[string]string, cronID, oldVal, newVal string) {
	if oldVal != "" && oldVal != newVal {
		deleteIfOwner(idx, oldVal, cronID)
	}
	if newVal != "" {
		idx[newVal] = cronID
	}
}

func deleteIfOwner(idx map[string]string, key, cronID string) {
	if key == "" {
		return
	}
	if owner, ok := idx[key]; ok && owner == cronID {
		delete(idx, key)
	}
}

func (ix *Indexes) byThread(threadID string) (string, bool)  { v, ok := ix.byThreadID[threadID]; return v, ok }
func (ix *Indexes) byStatus(msgID string) (string, bool)      { v, ok := ix.byStatusMsg[msgID]; return v, ok }
func (ix *Indexes) bySource(sourceID string) (string, bool)   { v, ok := ix.bySourceID[sourceID]; return v, ok }

// ByThreadID exposes the threadId -> cronId lookup for callers outside the package.
func (ix *Indexes) ByThreadID(threadID string) (string, bool) { return ix.byThread(threadID) }

// ByStatusMessageID exposes the statusMessageId -> cronId lookup.
func (ix *Indexes) ByStatusMessageID(msgID string) (string, bool) { return ix.byStatus(msgID) }

// BySourceID exposes the webhookSourceId -> cronId lookup.
func (ix *Indexes) BySourceID(sourceID string) (string, bool) { return ix.bySource(sourceID) }
