// Package file implements the default record store backend: a single JSON
// document on disk, serialized through a mutex-guarded writer and flushed
// with an atomic temp-file-then-rename swap. Grounded on the teacher's
// internal/cron/service.go (load/save-unsafe pair held under one mutex)
// and internal/pairing/service.go (same load/save shape for a second
// document type).
package file

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nlbuilder/forgehost/internal/crypto"
	"github.com/nlbuilder/forgehost/internal/store"
)

// Store is the file-backed store.RecordStore implementation.
type Store struct {
	path          string
	encryptionKey string
	cache         store.CacheInvalidatable

	mu  sync.Mutex
	doc *store.Document
	idx *store.Indexes
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithEncryptionKey enables AES-256-GCM encryption of webhookSecret at
// rest (itsddvn-goclaw/internal/crypto/aes.go). Empty key disables it.
func WithEncryptionKey(key string) Option {
	return func(s *Store) { s.encryptionKey = key }
}

// WithCache attaches an optional read-through cache that gets told about
// every committed mutation via InvalidateCache.
func WithCache(c store.CacheInvalidatable) Option {
	return func(s *Store) { s.cache = c }
}

// Open loads path (absent or malformed yields an empty store, never an
// error — §4.1), runs migrations, sweeps interrupted runs, and rebuilds
// indexes.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := loadDocument(path)
	if err != nil {
		slog.Warn("store: failed to parse document, starting empty", "path", path, "error", err)
		doc = &store.Document{Version: 0, Jobs: map[string]*store.CronRunRecord{}}
	}
	store.ApplyMigrations(doc)
	store.SweepInterruptedDoc(doc)

	idx := store.NewIndexes()
	idx.Rebuild(doc.Jobs)

	s.doc = doc
	s.idx = idx

	// Persist the sweep/migration result so a second crash-restart cycle
	// doesn't need to redo it from a stale file.
	if err := s.flushLocked(); err != nil {
		return nil, fmt.Errorf("store: initial flush: %w", err)
	}
	return s, nil
}

func loadDocument(path string) (*store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &store.Document{Version: 0, Jobs: map[string]*store.CronRunRecord{}}, nil
		}
		return nil, err
	}
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return &store.Document{Version: 0, Jobs: map[string]*store.CronRunRecord{}}, nil
	}
	if doc.Jobs == nil {
		doc.Jobs = map[string]*store.CronRunRecord{}
	}
	return &doc, nil
}

// flushLocked writes the current document atomically. Caller must hold mu.
// Protocol: write to <path>.tmp.<pid>, then rename over path (§4.1).
func (s *Store) flushLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	s.doc.UpdatedAt = time.Now().UnixMilli()

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store document: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("atomic rename store file: %w", err)
	}
	return nil
}

// --- readers: no lock, no I/O ---
//
// The spec calls for lock-free reads. In this single-process file backend
// the in-memory maps are the source of truth once loaded, so readers take
// the mutex only to avoid a data race with a concurrent writer goroutine —
// this is cheap (no I/O under the lock) and preserves the spirit of
// "readers see post-commit state" without actually blocking on disk.

func (s *Store) Get(cronID string) (*store.CronRunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.doc.Jobs[cronID]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (s *Store) GetByThreadID(threadID string) (*store.CronRunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cronID, ok := s.idx.ByThreadID(threadID)
	if !ok {
		return nil, false
	}
	return s.doc.Jobs[cronID].Clone(), true
}

func (s *Store) GetByStatusMessageID(msgID string) (*store.CronRunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cronID, ok := s.idx.ByStatusMessageID(msgID)
	if !ok {
		return nil, false
	}
	return s.doc.Jobs[cronID].Clone(), true
}

func (s *Store) GetBySourceID(sourceID string) (*store.CronRunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cronID, ok := s.idx.BySourceID(sourceID)
	if !ok {
		return nil, false
	}
	return s.doc.Jobs[cronID].Clone(), true
}

func (s *Store) List() []*store.CronRunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.CronRunRecord, 0, len(s.doc.Jobs))
	for _, r := range s.doc.Jobs {
		out = append(out, r.Clone())
	}
	return out
}

// --- writer ---

// UpsertRecord validates webhookSourceId/threadId uniqueness, merges
// updates into the existing (or a new) record, reconciles indexes, and
// flushes. The whole thing is atomic: on conflict, no partial state change
// is committed (§3 invariant 2, §4.1).
func (s *Store) UpsertRecord(cronID, threadID string, updates *store.CronRunRecord) (*store.CronRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, had := s.doc.Jobs[cronID]

	sourceID := ""
	effectiveThreadID := threadID
	if updates != nil {
		sourceID = updates.WebhookSourceID
		if updates.ThreadID != "" {
			effectiveThreadID = updates.ThreadID
		}
	}
	if err := s.idx.CheckSourceIDConflict(sourceID, cronID); err != nil {
		return nil, err
	}
	if err := s.idx.CheckThreadIDConflict(effectiveThreadID, cronID); err != nil {
		return nil, err
	}

	before := existing.Clone()
	var merged *store.CronRunRecord
	if had {
		merged = existing
	} else {
		merged = &store.CronRunRecord{CronID: cronID}
	}
	merged.ThreadID = effectiveThreadID
	if updates != nil {
		mergeUpdates(merged, updates)
	}
	if s.encryptionKey != "" && merged.WebhookSecret != "" && !crypto.IsEncrypted(merged.WebhookSecret) {
		enc, err := crypto.Encrypt(merged.WebhookSecret, s.encryptionKey)
		if err == nil {
			merged.WebhookSecret = enc
		}
	}

	s.doc.Jobs[cronID] = merged
	s.idx.Reconcile(cronID, before, merged)

	if err := s.flushLocked(); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateCache(cronID)
	}
	return merged.Clone(), nil
}

// mergeUpdates copies non-zero fields from u into dst, matching the
// teacher's JobPatch merge discipline (internal/cron/service.go UpdateJob)
// generalized to a whole-record merge instead of a pointer-field patch.
func mergeUpdates(dst, u *store.CronRunRecord) {
	if u.StatusMessageID != "" {
		dst.StatusMessageID = u.StatusMessageID
	}
	if u.WebhookSourceID != "" {
		dst.WebhookSourceID = u.WebhookSourceID
	}
	if u.WebhookSecret != "" {
		dst.WebhookSecret = u.WebhookSecret
	}
	if u.Cadence != "" {
		dst.Cadence = u.Cadence
	}
	if u.PurposeTags != nil {
		dst.PurposeTags = u.PurposeTags
	}
	if u.Model != "" {
		dst.Model = u.Model
	}
	if u.ModelOverride != "" {
		dst.ModelOverride = u.ModelOverride
	}
	if u.TriggerType != "" {
		dst.TriggerType = u.TriggerType
	}
	dst.Silent = u.Silent
	if u.RoutingMode != "" {
		dst.RoutingMode = u.RoutingMode
	}
	if u.Chain != nil {
		dst.Chain = u.Chain
	}
	if u.State != nil {
		dst.State = u.State
	}
	if u.Schedule != "" {
		dst.Schedule = u.Schedule
	}
	if u.Timezone != "" {
		dst.Timezone = u.Timezone
	}
	if u.Channel != "" {
		dst.Channel = u.Channel
	}
	if u.Prompt != "" {
		dst.Prompt = u.Prompt
	}
	if u.AuthorID != "" {
		dst.AuthorID = u.AuthorID
	}
	if u.PromptMessageID != "" {
		dst.PromptMessageID = u.PromptMessageID
	}
}

// RecordRun increments runCount, stamps lastRunAt, sets/clears the error
// message (truncated to 200 chars), and flushes (§4.1).
func (s *Store) RecordRun(cronID string, status store.RunStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.doc.Jobs[cronID]
	if !ok {
		return store.ErrNotFound
	}
	r.RunCount++
	now := time.Now().UTC().Format(time.RFC3339)
	r.LastRunAt = &now
	r.LastRunStatus = status
	r.StartedAt = nil
	if status == store.RunStatusError {
		r.LastErrorMessage = store.TruncateLastError(message)
	} else {
		r.LastErrorMessage = ""
	}

	if err := s.flushLocked(); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateCache(cronID)
	}
	return nil
}

// RecordRunStart marks a run as in progress.
func (s *Store) RecordRunStart(cronID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.doc.Jobs[cronID]
	if !ok {
		return store.ErrNotFound
	}
	r.LastRunStatus = store.RunStatusRunning
	now := time.Now().UTC().Format(time.RFC3339)
	r.StartedAt = &now

	if err := s.flushLocked(); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateCache(cronID)
	}
	return nil
}

// SweepInterrupted rewrites any "running" status to "interrupted" and
// flushes, returning affected cronIds.
func (s *Store) SweepInterrupted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	affected := store.SweepInterruptedDoc(s.doc)
	if len(affected) > 0 {
		_ = s.flushLocked()
		if s.cache != nil {
			for _, id := range affected {
				s.cache.InvalidateCache(id)
			}
		}
	}
	return affected
}

func (s *Store) RemoveRecord(cronID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.doc.Jobs[cronID]
	if !ok {
		return store.ErrNotFound
	}
	s.idx.Remove(cronID, r)
	delete(s.doc.Jobs, cronID)
	if err := s.flushLocked(); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateCache(cronID)
	}
	return nil
}

func (s *Store) RemoveByThreadID(threadID string) error {
	s.mu.Lock()
	cronID, ok := s.idx.ByThreadID(threadID)
	s.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	return s.RemoveRecord(cronID)
}

// Close is a no-op for the file backend; present to satisfy store.RecordStore.
func (s *Store) Close() error { return nil }
