package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/nlbuilder/forgehost/internal/store"
)

// CronStore is the managed-mode mirror of store.RecordStore: Postgres is
// authoritative, queried directly on every call rather than cached in
// process memory, following the same direct-query discipline as the
// teacher's PGAgentStore (internal/store/pg/agents.go).
type CronStore struct {
	db *sqlx.DB
}

// NewCronStore wraps an already-migrated *sqlx.DB.
func NewCronStore(db *sqlx.DB) *CronStore {
	return &CronStore{db: db}
}

type cronRow struct {
	CronID           string         `db:"cron_id"`
	ThreadID         string         `db:"thread_id"`
	StatusMessageID  sql.NullString `db:"status_message_id"`
	WebhookSourceID  sql.NullString `db:"webhook_source_id"`
	WebhookSecret    sql.NullString `db:"webhook_secret"`
	RunCount         int            `db:"run_count"`
	LastRunAt        sql.NullTime   `db:"last_run_at"`
	LastRunStatus    sql.NullString `db:"last_run_status"`
	StartedAt        sql.NullTime   `db:"started_at"`
	LastErrorMessage sql.NullString `db:"last_error_message"`
	Cadence          sql.NullString `db:"cadence"`
	PurposeTags      []byte         `db:"purpose_tags"`
	Model            sql.NullString `db:"model"`
	ModelOverride    sql.NullString `db:"model_override"`
	TriggerType      string         `db:"trigger_type"`
	Silent           bool           `db:"silent"`
	RoutingMode      string         `db:"routing_mode"`
	Chain            []byte         `db:"chain"`
	State            []byte         `db:"state"`
	Schedule         sql.NullString `db:"schedule"`
	Timezone         sql.NullString `db:"timezone"`
	Channel          sql.NullString `db:"channel"`
	Prompt           sql.NullString `db:"prompt"`
	AuthorID         sql.NullString `db:"author_id"`
	PromptMessageID  sql.NullString `db:"prompt_message_id"`
}

const cronSelectCols = `cron_id, thread_id, status_message_id, webhook_source_id, webhook_secret,
	run_count, last_run_at, last_run_status, started_at, last_error_message,
	cadence, purpose_tags, model, model_override, trigger_type,
	silent, routing_mode, chain, state,
	schedule, timezone, channel, prompt, author_id, prompt_message_id`

func (row cronRow) toRecord() *store.CronRunRecord {
	r := &store.CronRunRecord{
		CronID:           row.CronID,
		ThreadID:         row.ThreadID,
		StatusMessageID:  row.StatusMessageID.String,
		WebhookSourceID:  row.WebhookSourceID.String,
		WebhookSecret:    row.WebhookSecret.String,
		RunCount:         row.RunCount,
		LastRunStatus:    store.RunStatus(row.LastRunStatus.String),
		LastErrorMessage: row.LastErrorMessage.String,
		Cadence:          store.Cadence(row.Cadence.String),
		Model:            row.Model.String,
		ModelOverride:    row.ModelOverride.String,
		TriggerType:      store.TriggerType(row.TriggerType),
		Silent:           row.Silent,
		RoutingMode:      store.RoutingMode(row.RoutingMode),
		Schedule:         row.Schedule.String,
		Timezone:         row.Timezone.String,
		Channel:          row.Channel.String,
		Prompt:           row.Prompt.String,
		AuthorID:         row.AuthorID.String,
		PromptMessageID:  row.PromptMessageID.String,
	}
	if row.LastRunAt.Valid {
		s := row.LastRunAt.Time.UTC().Format(time.RFC3339)
		r.LastRunAt = &s
	}
	if row.StartedAt.Valid {
		s := row.StartedAt.Time.UTC().Format(time.RFC3339)
		r.StartedAt = &s
	}
	_ = json.Unmarshal(row.PurposeTags, &r.PurposeTags)
	_ = json.Unmarshal(row.Chain, &r.Chain)
	if len(row.State) > 0 {
		_ = json.Unmarshal(row.State, &r.State)
	}
	return r
}

func (s *CronStore) Get(cronID string) (*store.CronRunRecord, bool) {
	var row cronRow
	err := s.db.Get(&row, `SELECT `+cronSelectCols+` FROM cron_jobs WHERE cron_id = $1`, cronID)
	if err != nil {
		return nil, false
	}
	return row.toRecord(), true
}

func (s *CronStore) GetByThreadID(threadID string) (*store.CronRunRecord, bool) {
	var row cronRow
	err := s.db.Get(&row, `SELECT `+cronSelectCols+` FROM cron_jobs WHERE thread_id = $1`, threadID)
	if err != nil {
		return nil, false
	}
	return row.toRecord(), true
}

func (s *CronStore) GetByStatusMessageID(msgID string) (*store.CronRunRecord, bool) {
	var row cronRow
	err := s.db.Get(&row, `SELECT `+cronSelectCols+` FROM cron_jobs WHERE status_message_id = $1`, msgID)
	if err != nil {
		return nil, false
	}
	return row.toRecord(), true
}

func (s *CronStore) GetBySourceID(sourceID string) (*store.CronRunRecord, bool) {
	var row cronRow
	err := s.db.Get(&row, `SELECT `+cronSelectCols+` FROM cron_jobs WHERE webhook_source_id = $1`, sourceID)
	if err != nil {
		return nil, false
	}
	return row.toRecord(), true
}

func (s *CronStore) List() []*store.CronRunRecord {
	var rows []cronRow
	if err := s.db.Select(&rows, `SELECT `+cronSelectCols+` FROM cron_jobs ORDER BY created_at`); err != nil {
		return nil
	}
	out := make([]*store.CronRunRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out
}

func (s *CronStore) UpsertRecord(cronID, threadID string, updates *store.CronRunRecord) (*store.CronRunRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if updates == nil {
		updates = &store.CronRunRecord{}
	}
	effectiveThreadID := threadID
	if updates.ThreadID != "" {
		effectiveThreadID = updates.ThreadID
	}

	purposeTags, _ := json.Marshal(nonNilStrings(updates.PurposeTags))
	chain, _ := json.Marshal(nonNilStrings(updates.Chain))
	var stateJSON []byte
	if updates.State != nil {
		stateJSON, _ = json.Marshal(updates.State)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cron_jobs (
			cron_id, thread_id, status_message_id, webhook_source_id, webhook_secret,
			cadence, purpose_tags, model, model_override, trigger_type,
			silent, routing_mode, chain, state,
			schedule, timezone, channel, prompt, author_id, prompt_message_id,
			updated_at
		) VALUES (
			$1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''),
			NULLIF($6, ''), $7, NULLIF($8, ''), NULLIF($9, ''), $10,
			$11, $12, $13, $14,
			NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), NULLIF($18, ''), NULLIF($19, ''), NULLIF($20, ''),
			now()
		)
		ON CONFLICT (cron_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			status_message_id = COALESCE(EXCLUDED.status_message_id, cron_jobs.status_message_id),
			webhook_source_id = COALESCE(EXCLUDED.webhook_source_id, cron_jobs.webhook_source_id),
			webhook_secret = COALESCE(EXCLUDED.webhook_secret, cron_jobs.webhook_secret),
			cadence = COALESCE(EXCLUDED.cadence, cron_jobs.cadence),
			purpose_tags = CASE WHEN EXCLUDED.purpose_tags = '[]' THEN cron_jobs.purpose_tags ELSE EXCLUDED.purpose_tags END,
			model = COALESCE(EXCLUDED.model, cron_jobs.model),
			model_override = COALESCE(EXCLUDED.model_override, cron_jobs.model_override),
			trigger_type = EXCLUDED.trigger_type,
			silent = EXCLUDED.silent,
			routing_mode = EXCLUDED.routing_mode,
			chain = CASE WHEN EXCLUDED.chain = '[]' THEN cron_jobs.chain ELSE EXCLUDED.chain END,
			state = COALESCE(EXCLUDED.state, cron_jobs.state),
			schedule = COALESCE(EXCLUDED.schedule, cron_jobs.schedule),
			timezone = COALESCE(EXCLUDED.timezone, cron_jobs.timezone),
			channel = COALESCE(EXCLUDED.channel, cron_jobs.channel),
			prompt = COALESCE(EXCLUDED.prompt, cron_jobs.prompt),
			author_id = COALESCE(EXCLUDED.author_id, cron_jobs.author_id),
			prompt_message_id = COALESCE(EXCLUDED.prompt_message_id, cron_jobs.prompt_message_id),
			updated_at = now()
		`,
		cronID, effectiveThreadID, updates.StatusMessageID, updates.WebhookSourceID, updates.WebhookSecret,
		string(updates.Cadence), purposeTags, updates.Model, updates.ModelOverride, string(orDefault(updates.TriggerType, store.TriggerSchedule)),
		updates.Silent, string(orDefaultRouting(updates.RoutingMode, store.RoutingDefault)), chain, nullableJSON(stateJSON),
		updates.Schedule, updates.Timezone, updates.Channel, updates.Prompt, updates.AuthorID, updates.PromptMessageID,
	)
	if err != nil {
		if isUniqueViolation(err, "cron_jobs_thread_id_key") {
			return nil, store.ErrThreadIDConflict
		}
		if isUniqueViolation(err, "cron_jobs_webhook_source_id_key") {
			return nil, store.ErrSourceIDConflict
		}
		return nil, fmt.Errorf("upsert cron job: %w", err)
	}

	rec, ok := s.Get(cronID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (s *CronStore) RecordRun(cronID string, status store.RunStatus, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errMsg := ""
	if status == store.RunStatusError {
		errMsg = store.TruncateLastError(message)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cron_jobs SET
			run_count = run_count + 1,
			last_run_at = now(),
			last_run_status = $2,
			started_at = NULL,
			last_error_message = NULLIF($3, ''),
			updated_at = now()
		WHERE cron_id = $1`, cronID, string(status), errMsg)
	return checkAffected(res, err)
}

func (s *CronStore) RecordRunStart(cronID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cron_jobs SET last_run_status = $2, started_at = now() WHERE cron_id = $1`,
		cronID, string(store.RunStatusRunning))
	return checkAffected(res, err)
}

func (s *CronStore) SweepInterrupted() []string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var ids []string
	_ = s.db.SelectContext(ctx, &ids,
		`UPDATE cron_jobs SET last_run_status = $1 WHERE last_run_status = $2 RETURNING cron_id`,
		string(store.RunStatusInterrupted), string(store.RunStatusRunning))
	return ids
}

func (s *CronStore) RemoveRecord(cronID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE cron_id = $1`, cronID)
	return checkAffected(res, err)
}

func (s *CronStore) RemoveByThreadID(threadID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE thread_id = $1`, threadID)
	return checkAffected(res, err)
}

func (s *CronStore) Close() error {
	return s.db.Close()
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

func orDefault(t store.TriggerType, def store.TriggerType) store.TriggerType {
	if t == "" {
		return def
	}
	return t
}

func orDefaultRouting(m store.RoutingMode, def store.RoutingMode) store.RoutingMode {
	if m == "" {
		return def
	}
	return m
}
