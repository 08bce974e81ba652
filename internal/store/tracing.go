package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TraceData is one run's top-level trace: the span tree's root summary.
// One trace corresponds to one cron job invocation (or one forum-sync
// classification call), mirroring CronRunRecord's one-row-per-run shape.
type TraceData struct {
	ID            uuid.UUID `json:"id"`
	CronID        string    `json:"cron_id"`
	TriggerType   string    `json:"trigger_type"`
	Model         string    `json:"model"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Error         string    `json:"error,omitempty"`
	OutputPreview string    `json:"output_preview,omitempty"`

	SpanCount  int `json:"span_count"`
	TokensIn   int `json:"tokens_in"`
	TokensOut  int `json:"tokens_out"`
}

// SpanData is one unit of work within a trace: a model call, a tool
// invocation, an action dispatch. Buffered in memory by the tracing
// collector and flushed in batches (see internal/tracing/collector.go).
type SpanData struct {
	ID        uuid.UUID `json:"id"`
	TraceID   uuid.UUID `json:"trace_id"`
	ParentID  uuid.UUID `json:"parent_id,omitempty"`
	SpanType  string    `json:"span_type"`
	Name      string    `json:"name"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	TokensIn  int       `json:"tokens_in,omitempty"`
	TokensOut int       `json:"tokens_out,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// TracingStore is the persistence boundary for trace/span data. Kept
// separate from RecordStore because tracing is an optional, batched
// write path (see Collector) rather than the synchronous cron-record
// read/write path every backend must support.
type TracingStore interface {
	CreateTrace(ctx context.Context, trace *TraceData) error
	UpdateTrace(ctx context.Context, traceID uuid.UUID, updates map[string]any) error
	BatchCreateSpans(ctx context.Context, spans []SpanData) error
	BatchUpdateTraceAggregates(ctx context.Context, traceID uuid.UUID) error
}
