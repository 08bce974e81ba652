package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nlbuilder/forgehost/internal/store"
)

// TracingStore is the managed-mode backing for store.TracingStore,
// grounded on CronStore's direct-query-every-call discipline: Postgres
// stays authoritative and nothing is cached in process memory.
type TracingStore struct {
	db *sqlx.DB
}

// NewTracingStore wraps an already-migrated *sqlx.DB.
func NewTracingStore(db *sqlx.DB) *TracingStore {
	return &TracingStore{db: db}
}

func (s *TracingStore) CreateTrace(ctx context.Context, trace *store.TraceData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traces (
			id, cron_id, trigger_type, model, status, start_time, end_time,
			error, output_preview, span_count, tokens_in, tokens_out
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12)`,
		trace.ID, trace.CronID, trace.TriggerType, trace.Model, trace.Status,
		trace.StartTime, trace.EndTime, trace.Error, trace.OutputPreview,
		trace.SpanCount, trace.TokensIn, trace.TokensOut)
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}
	return nil
}

// UpdateTrace applies a sparse set of column updates built by the
// collector (status, end_time, error, output_preview). Column names are
// restricted to a known allowlist so the map can never drive arbitrary
// SQL, even though it only ever originates from collector.go.
var traceUpdateColumns = map[string]bool{
	"status":         true,
	"end_time":       true,
	"error":          true,
	"output_preview": true,
}

func (s *TracingStore) UpdateTrace(ctx context.Context, traceID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	var sets []string
	var args []any
	i := 1
	for col, val := range updates {
		if !traceUpdateColumns[col] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, traceID)
	query := fmt.Sprintf(`UPDATE traces SET %s WHERE id = $%d`, strings.Join(sets, ", "), i)
	res, err := s.db.ExecContext(ctx, query, args...)
	return checkAffected(res, err)
}

func (s *TracingStore) BatchCreateSpans(ctx context.Context, spans []store.SpanData) error {
	if len(spans) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin span batch: %w", err)
	}
	defer tx.Rollback()

	for _, span := range spans {
		var parentID any
		if span.ParentID != uuid.Nil {
			parentID = span.ParentID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO spans (
				id, trace_id, parent_id, span_type, name, input, output, error,
				tokens_in, tokens_out, duration_ms, created_at
			) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)`,
			span.ID, span.TraceID, parentID, span.SpanType, span.Name,
			span.Input, span.Output, span.Error, span.TokensIn, span.TokensOut,
			span.DurationMs, span.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert span: %w", err)
		}
	}
	return tx.Commit()
}

func (s *TracingStore) BatchUpdateTraceAggregates(ctx context.Context, traceID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE traces SET
			span_count = (SELECT count(*) FROM spans WHERE trace_id = $1),
			tokens_in  = (SELECT coalesce(sum(tokens_in), 0) FROM spans WHERE trace_id = $1),
			tokens_out = (SELECT coalesce(sum(tokens_out), 0) FROM spans WHERE trace_id = $1)
		WHERE id = $1`, traceID)
	if err != nil {
		return fmt.Errorf("update trace aggregates: %w", err)
	}
	return nil
}
