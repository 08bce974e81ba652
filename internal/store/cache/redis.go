// Package cache implements an optional Redis-backed read-through cache
// that sits in front of an internal/store.RecordStore. It is pure
// overhead reduction for List()/Get() on deployments with many jobs and a
// remote (managed-mode) store backend; it is never the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nlbuilder/forgehost/internal/store"
)

const (
	keyPrefix  = "forgehost:cron:"
	listKey    = "forgehost:cron:__list__"
	defaultTTL = 5 * time.Minute
)

// ReadThrough wraps a store.RecordStore, caching single-record and list
// reads in Redis and invalidating on every write via InvalidateCache. The
// wrapped store remains authoritative; a Redis outage degrades to
// pass-through reads, never an error.
type ReadThrough struct {
	inner store.RecordStore
	rdb   *redis.Client
	ttl   time.Duration
}

// New wraps inner with a Redis read-through cache. addr is a standard
// host:port; ttl <= 0 uses defaultTTL.
func New(inner store.RecordStore, addr, password string, db int, ttl time.Duration) *ReadThrough {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ReadThrough{
		inner: inner,
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func (c *ReadThrough) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

func (c *ReadThrough) Get(cronID string) (*store.CronRunRecord, bool) {
	ctx, cancel := c.ctx()
	defer cancel()
	if r, ok := c.getCached(ctx, cronID); ok {
		return r, true
	}
	r, ok := c.inner.Get(cronID)
	if ok {
		c.setCached(ctx, cronID, r)
	}
	return r, ok
}

func (c *ReadThrough) getCached(ctx context.Context, cronID string) (*store.CronRunRecord, bool) {
	raw, err := c.rdb.Get(ctx, keyPrefix+cronID).Bytes()
	if err != nil {
		return nil, false
	}
	var r store.CronRunRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false
	}
	return &r, true
}

func (c *ReadThrough) setCached(ctx context.Context, cronID string, r *store.CronRunRecord) {
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, keyPrefix+cronID, raw, c.ttl).Err()
}

// GetByThreadID, GetByStatusMessageID, GetBySourceID bypass the cache: they
// are index lookups the inner store already serves from memory cheaply, and
// caching them would require a second index in Redis for little benefit.
func (c *ReadThrough) GetByThreadID(threadID string) (*store.CronRunRecord, bool) {
	return c.inner.GetByThreadID(threadID)
}

func (c *ReadThrough) GetByStatusMessageID(msgID string) (*store.CronRunRecord, bool) {
	return c.inner.GetByStatusMessageID(msgID)
}

func (c *ReadThrough) GetBySourceID(sourceID string) (*store.CronRunRecord, bool) {
	return c.inner.GetBySourceID(sourceID)
}

func (c *ReadThrough) List() []*store.CronRunRecord {
	ctx, cancel := c.ctx()
	defer cancel()

	if raw, err := c.rdb.Get(ctx, listKey).Bytes(); err == nil {
		var out []*store.CronRunRecord
		if json.Unmarshal(raw, &out) == nil {
			return out
		}
	}

	out := c.inner.List()
	if raw, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, listKey, raw, c.ttl).Err()
	}
	return out
}

func (c *ReadThrough) UpsertRecord(cronID, threadID string, updates *store.CronRunRecord) (*store.CronRunRecord, error) {
	r, err := c.inner.UpsertRecord(cronID, threadID, updates)
	if err == nil {
		c.InvalidateCache(cronID)
	}
	return r, err
}

func (c *ReadThrough) RecordRun(cronID string, status store.RunStatus, message string) error {
	err := c.inner.RecordRun(cronID, status, message)
	if err == nil {
		c.InvalidateCache(cronID)
	}
	return err
}

func (c *ReadThrough) RecordRunStart(cronID string) error {
	err := c.inner.RecordRunStart(cronID)
	if err == nil {
		c.InvalidateCache(cronID)
	}
	return err
}

func (c *ReadThrough) SweepInterrupted() []string {
	affected := c.inner.SweepInterrupted()
	for _, id := range affected {
		c.InvalidateCache(id)
	}
	return affected
}

func (c *ReadThrough) RemoveRecord(cronID string) error {
	err := c.inner.RemoveRecord(cronID)
	if err == nil {
		c.InvalidateCache(cronID)
	}
	return err
}

func (c *ReadThrough) RemoveByThreadID(threadID string) error {
	err := c.inner.RemoveByThreadID(threadID)
	if err == nil {
		c.InvalidateCache("")
	}
	return err
}

func (c *ReadThrough) Close() error {
	inner := c.inner.Close()
	if err := c.rdb.Close(); err != nil && inner == nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return inner
}

// InvalidateCache implements store.CacheInvalidatable: drop the
// single-record entry (if cronID is non-empty) and always drop the list
// snapshot, since any mutation can change List()'s contents.
func (c *ReadThrough) InvalidateCache(cronID string) {
	ctx, cancel := c.ctx()
	defer cancel()
	if cronID != "" {
		_ = c.rdb.Del(ctx, keyPrefix+cronID).Err()
	}
	_ = c.rdb.Del(ctx, listKey).Err()
}
