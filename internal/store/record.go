// Package store defines the persistent record store for scheduled jobs:
// the CronRunRecord document shape, secondary indexes, versioned
// migrations, and the serialized-writer contract every backend
// (file, managed Postgres) must honor.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/mattn/go-runewidth"
)

// Cadence buckets the firing frequency of a job, driving tag/emoji display.
type Cadence string

const (
	CadenceYearly   Cadence = "yearly"
	CadenceFrequent Cadence = "frequent"
	CadenceHourly   Cadence = "hourly"
	CadenceDaily    Cadence = "daily"
	CadenceWeekly   Cadence = "weekly"
	CadenceMonthly  Cadence = "monthly"
)

// RunStatus is the last observed outcome of a job run.
type RunStatus string

const (
	RunStatusSuccess     RunStatus = "success"
	RunStatusError       RunStatus = "error"
	RunStatusRunning     RunStatus = "running"
	RunStatusInterrupted RunStatus = "interrupted"
)

// TriggerType is how a job run was initiated.
type TriggerType string

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
	TriggerManual   TriggerType = "manual"
)

// RoutingMode selects how executor output is delivered.
type RoutingMode string

const (
	RoutingDefault RoutingMode = "default"
	RoutingJSON    RoutingMode = "json"
)

// maxLastErrorChars caps the persisted lastErrorMessage length.
const maxLastErrorChars = 200

// CronRunRecord is the durable unit of a scheduled job: identity,
// classification, execution options, and a cached copy of its definition.
// Field shape follows the spec's data model (§3) and the JSON tags mirror
// the teacher's camelCase document convention (internal/cron/types.go).
type CronRunRecord struct {
	CronID           string `json:"cronId"`
	ThreadID         string `json:"threadId"`
	StatusMessageID  string `json:"statusMessageId,omitempty"`
	WebhookSourceID  string `json:"webhookSourceId,omitempty"`
	WebhookSecret    string `json:"webhookSecret,omitempty"`

	RunCount         int        `json:"runCount"`
	LastRunAt        *string    `json:"lastRunAt,omitempty"` // ISO-8601
	LastRunStatus    RunStatus  `json:"lastRunStatus,omitempty"`
	StartedAt        *string    `json:"startedAt,omitempty"`
	LastErrorMessage string     `json:"lastErrorMessage,omitempty"`

	Cadence     Cadence     `json:"cadence,omitempty"`
	PurposeTags []string    `json:"purposeTags,omitempty"`
	Model       string      `json:"model,omitempty"`
	ModelOverride string    `json:"modelOverride,omitempty"`
	TriggerType TriggerType `json:"triggerType,omitempty"`

	Silent      bool            `json:"silent"`
	RoutingMode RoutingMode     `json:"routingMode,omitempty"`
	Chain       []string        `json:"chain,omitempty"`
	State       map[string]any  `json:"state,omitempty"`

	Schedule string `json:"schedule,omitempty"` // 5-field cron expression
	Timezone string `json:"timezone,omitempty"`
	Channel  string `json:"channel,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	AuthorID string `json:"authorId,omitempty"`

	// PromptMessageID is set once the prompt has been backfilled as a
	// pinned message (sync engine phase 3.5).
	PromptMessageID string `json:"promptMessageId,omitempty"`
}

// Clone returns a deep-enough copy safe for handing to a reader outside
// the writer lock (slices/maps are copied, not aliased).
func (r *CronRunRecord) Clone() *CronRunRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.PurposeTags != nil {
		c.PurposeTags = append([]string(nil), r.PurposeTags...)
	}
	if r.Chain != nil {
		c.Chain = append([]string(nil), r.Chain...)
	}
	if r.State != nil {
		c.State = make(map[string]any, len(r.State))
		for k, v := range r.State {
			c.State[k] = v
		}
	}
	return &c
}

// TruncateLastError caps msg to maxLastErrorChars before assigning it. Uses
// go-runewidth's rune-aware truncation rather than a raw byte slice so a
// multi-byte UTF-8 character (routine in subprocess stderr output) is never
// split in half, which would leave the persisted document holding invalid
// UTF-8.
func TruncateLastError(msg string) string {
	if len(msg) <= maxLastErrorChars {
		return msg
	}
	return runewidth.Truncate(msg, maxLastErrorChars, "")
}

// Document is the on-disk shape of the record store (§3).
type Document struct {
	Version   int                       `json:"version"`
	UpdatedAt int64                     `json:"updatedAt"` // epoch-ms
	Jobs      map[string]*CronRunRecord `json:"jobs"`
}

// generateCronID creates a stable opaque id of the form "cron-<8 hex>",
// following the random-id discipline of internal/cron/types.go's
// generateID (crypto/rand, hex-encoded) in the teacher.
func generateCronID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("cron-%s", hex.EncodeToString(b))
}

// NewCronID is the exported constructor used by callers that mint records.
func NewCronID() string { return generateCronID() }
