package cronjob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nlbuilder/forgehost/internal/actions"
	"github.com/nlbuilder/forgehost/internal/chatplatform"
	"github.com/nlbuilder/forgehost/internal/format"
	"github.com/nlbuilder/forgehost/internal/runtime"
	"github.com/nlbuilder/forgehost/internal/store"
)

// maxChainDepth aborts chained execution as a cycle/runaway guard (§4.5).
const maxChainDepth = 10

// StatusUpdater refreshes a job's pinned status message; implemented by
// the forum sync engine's phase 3. Updates are best-effort (§4.3 step 17).
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, cronID string) error
}

// Invoker is the subset of the runtime adapter framework the executor
// needs: resolve a strategy by model id, run one invocation, and tear down
// on shutdown. Kept as an interface so the executor doesn't depend on any
// one concrete strategy set.
type Invoker interface {
	Invoke(ctx context.Context, model string, opts runtime.InvokeOptions) <-chan runtime.Event
}

// ActionContextBuilder resolves the (guild, channel, user) action context
// a dispatched directive executes under.
type Executor struct {
	Store      store.RecordStore
	Lock       *FileLock
	RunControl *RunControl
	Invoker    Invoker
	ChatClient chatplatform.Client
	Dispatcher func(depth int) *actions.Dispatcher
	ToolTiers  *runtime.ToolTierMap
	Status     StatusUpdater

	GuildID          string
	DefaultModel     string
	AllowedChannels  map[string]bool // nil = no allow-list restriction
	ActionsEnabled   bool
	DefaultTools     []string
	WorkspaceContext string // pre-rendered security preamble + context files

	Scheduler *Scheduler // set after construction for chained re-fires
	Chained   *Lane      // bounds concurrent chained/spawned runs; nil disables bounding
}

// Run executes one fire of job end to end (§4.3 executeCronJob), honoring
// the in-process overlap guard, the cross-process file lock, and chained
// execution at chainDepth + 1.
func (e *Executor) Run(ctx context.Context, job *CronJob, chainDepth int) {
	if !job.setInFlight(true) {
		slog.Info("cronjob: skip, already in flight", "cronId", job.CronID)
		return
	}
	defer job.setInFlight(false)

	handle, err := e.Lock.Acquire(job.CronID)
	if err != nil {
		slog.Info("cronjob: skip, lock held elsewhere", "cronId", job.CronID)
		return
	}
	defer handle.Release()

	runCtx, cancel := context.WithCancel(ctx)
	e.RunControl.Register(job.CronID, cancel)
	job.setCancel(cancel)
	defer func() {
		e.RunControl.Unregister(job.CronID)
		job.setCancel(nil)
	}()

	e.execute(runCtx, job, chainDepth)

	if e.Status != nil {
		if err := e.Status.UpdateStatus(context.Background(), job.CronID); err != nil {
			slog.Warn("cronjob: status message update failed", "cronId", job.CronID, "error", err)
		}
	}
}

func (e *Executor) execute(ctx context.Context, job *CronJob, chainDepth int) {
	cronID := job.CronID

	if err := e.Store.RecordRunStart(cronID); err != nil {
		slog.Warn("cronjob: recordRunStart failed", "cronId", cronID, "error", err)
	}

	rec, ok := e.Store.Get(cronID)
	if !ok {
		slog.Warn("cronjob: record vanished mid-run", "cronId", cronID)
		return
	}

	channel, err := e.resolveChannel(ctx, rec.Channel)
	if err != nil {
		e.fail(cronID, fmt.Sprintf("channel resolution failed: %v", err))
		return
	}

	prompt := e.assemblePrompt(rec)
	model := e.resolveModel(rec)
	tools := e.DefaultTools
	if e.ToolTiers != nil {
		tools = e.ToolTiers.Filter(model, tools)
	}

	var images []chatplatform.FileAttachment
	text, _, runErr := executeWithRetry(ctx, DefaultRetryConfig(), func() (string, string, error) {
		events := e.Invoker.Invoke(ctx, model, runtime.InvokeOptions{
			Prompt:       prompt,
			Tools:        tools,
			SessionKey:   cronID,
			WorkspaceDir: "",
		})
		t, imgs, kind, err := collectInvocation(events)
		if err != nil {
			return "", kind, err
		}
		images = imgs
		return t, "", nil
	})
	if runErr != nil {
		e.postError(ctx, channel, runErr)
		e.fail(cronID, truncateOutput(runErr.Error()))
		return
	}

	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		e.succeed(cronID)
		return
	}

	if e.ActionsEnabled {
		text = e.runActions(store.WithUserID(ctx, rec.AuthorID), rec, text)
	}

	collapsed := collapseWhitespace(text)
	if collapsed == HeartbeatOK || collapsed == "(no output)" {
		if len(images) == 0 {
			e.succeed(cronID)
			e.chain(ctx, rec, chainDepth)
			return
		}
	}
	if rec.Silent && rec.RoutingMode != store.RoutingJSON && len(images) == 0 && len(collapsed) <= 80 {
		e.succeed(cronID)
		e.chain(ctx, rec, chainDepth)
		return
	}

	e.route(ctx, rec, channel, text, images)

	e.succeed(cronID)
	e.chain(ctx, rec, chainDepth)
}

func (e *Executor) resolveModel(rec *store.CronRunRecord) string {
	if rec.ModelOverride != "" {
		return rec.ModelOverride
	}
	if rec.Model != "" {
		return rec.Model
	}
	return e.DefaultModel
}

func (e *Executor) resolveChannel(ctx context.Context, name string) (chatplatform.ChannelRef, error) {
	if e.AllowedChannels != nil && !e.AllowedChannels[strings.ToLower(name)] {
		return nil, fmt.Errorf("channel %q is not in the allow-list", name)
	}
	return e.ChatClient.ResolveChannel(ctx, e.GuildID, name)
}

func (e *Executor) assemblePrompt(rec *store.CronRunRecord) string {
	body := BuildPromptBody(PromptParams{
		JobName:        rec.CronID,
		PromptTemplate: rec.Prompt,
		Channel:        rec.Channel,
		Silent:         rec.Silent,
		RoutingMode:    rec.RoutingMode,
		State:          rec.State,
	})
	if e.WorkspaceContext == "" {
		return body
	}
	return e.WorkspaceContext + "\n\n" + body
}

func collectInvocation(events <-chan runtime.Event) (text string, images []chatplatform.FileAttachment, kind string, runErr error) {
	var final, delta strings.Builder

	for ev := range events {
		switch ev.Type {
		case runtime.EventTextDelta:
			delta.WriteString(ev.Text)
		case runtime.EventTextFinal:
			final.WriteString(ev.Text)
		case runtime.EventImageData:
			if ev.Image != nil {
				images = append(images, chatplatform.FileAttachment{
					Name:        "image.png",
					ContentType: ev.Image.MediaType,
					Data:        []byte(ev.Image.Base64),
				})
			}
		case runtime.EventError:
			runErr = fmt.Errorf("%s", ev.Message)
			kind = string(ev.ErrorKind)
		case runtime.EventDone:
		}
	}

	if final.Len() > 0 {
		text = final.String()
	} else {
		text = delta.String()
	}
	return text, images, kind, runErr
}

func (e *Executor) runActions(ctx context.Context, rec *store.CronRunRecord, text string) string {
	parsed := actions.Parse(text)
	if len(parsed.Actions) == 0 && parsed.ParseFailures == 0 {
		return text
	}

	enabled, disabled := actions.FilterDisabled(parsed.Actions, actions.AllEnabled())
	dispatcher := e.Dispatcher(0)
	results := dispatcher.Dispatch(ctx, enabled, rec.CronID)

	var b strings.Builder
	b.WriteString(parsed.CleanText)
	if lines := actions.DisplayLines(enabled, results); lines != "" {
		b.WriteString("\n\n")
		b.WriteString(lines)
	}
	if notice := actions.UnavailableNotice(append(disabled, parsed.StrippedUnrecognizedTypes...)); notice != "" {
		b.WriteString("\n\n")
		b.WriteString(notice)
	}
	if warning := actions.ParseFailureWarning(parsed.ParseFailures); warning != "" {
		b.WriteString("\n\n")
		b.WriteString(warning)
	}
	return b.String()
}

func (e *Executor) route(ctx context.Context, rec *store.CronRunRecord, defaultChannel chatplatform.ChannelRef, text string, images []chatplatform.FileAttachment) {
	if rec.RoutingMode == store.RoutingJSON {
		switch e.routeJSON(ctx, rec, text) {
		case jsonRouteSent:
			return
		case jsonRouteNoValidItems:
			// Parsed with 0 valid entries (the "[]" silent sentinel, or a
			// document with no usable channel/content pairs): never posts.
			return
		case jsonRouteAllFailed:
			// Entries were valid but none resolved/sent: fall back to the raw output.
		}
	}
	e.sendChunks(ctx, defaultChannel, text, images)
}

type jsonRouteOutcome int

const (
	jsonRouteAllFailed jsonRouteOutcome = iota
	jsonRouteSent
	jsonRouteNoValidItems
)

func (e *Executor) routeJSON(ctx context.Context, rec *store.CronRunRecord, text string) jsonRouteOutcome {
	entries, ok := format.ParseJSONRouteEntries(text)
	if !ok {
		return jsonRouteAllFailed
	}
	if len(entries) == 0 {
		return jsonRouteNoValidItems
	}

	anySucceeded := false
	for _, entry := range entries {
		channel, err := e.resolveChannel(ctx, entry.Channel)
		if err != nil {
			slog.Warn("cronjob: json route entry channel unresolved", "channel", entry.Channel, "error", err)
			continue
		}
		e.sendChunks(ctx, channel, entry.Content, nil)
		anySucceeded = true
	}
	if !anySucceeded {
		return jsonRouteAllFailed
	}
	return jsonRouteSent
}

func (e *Executor) sendChunks(ctx context.Context, channel chatplatform.ChannelRef, text string, images []chatplatform.FileAttachment) {
	if channel == nil {
		return
	}
	for _, chunk := range format.SplitChunks(text, images) {
		_, err := channel.Send(ctx, chatplatform.SendOptions{Content: chunk.Text, Files: chunk.Images})
		if err != nil {
			slog.Warn("cronjob: send failed", "channel", channel.ID(), "error", err)
		}
	}
}

func (e *Executor) postError(ctx context.Context, channel chatplatform.ChannelRef, err error) {
	if channel == nil {
		return
	}
	_, sendErr := channel.Send(ctx, chatplatform.SendOptions{Content: fmt.Sprintf("⚠️ cron run failed: %s", err)})
	if sendErr != nil {
		slog.Warn("cronjob: failed to post error message", "channel", channel.ID(), "error", sendErr)
	}
}

func (e *Executor) succeed(cronID string) {
	if err := e.Store.RecordRun(cronID, store.RunStatusSuccess, ""); err != nil {
		slog.Warn("cronjob: recordRun(success) failed", "cronId", cronID, "error", err)
	}
}

func (e *Executor) fail(cronID, message string) {
	if err := e.Store.RecordRun(cronID, store.RunStatusError, message); err != nil {
		slog.Warn("cronjob: recordRun(error) failed", "cronId", cronID, "error", err)
	}
}

// chain fires every downstream job in rec.Chain, forwarding state under
// state.__upstream (§4.5).
func (e *Executor) chain(ctx context.Context, rec *store.CronRunRecord, chainDepth int) {
	if chainDepth+1 >= maxChainDepth || len(rec.Chain) == 0 || e.Scheduler == nil {
		return
	}
	for _, downstreamID := range rec.Chain {
		downstream, ok := e.Scheduler.GetJob(downstreamID)
		if !ok {
			continue
		}
		downstreamRec, ok := e.Store.Get(downstreamID)
		if !ok {
			continue
		}
		newState := map[string]any{
			"__upstream": map[string]any{
				"fromCronId": rec.CronID,
				"state":      rec.State,
			},
		}
		for k, v := range downstreamRec.State {
			if k == "__upstream" {
				continue
			}
			newState[k] = v
		}
		if _, err := e.Store.UpsertRecord(downstreamID, downstreamRec.ThreadID, &store.CronRunRecord{State: newState}); err != nil {
			slog.Warn("cronjob: chain state forward failed", "fromCronId", rec.CronID, "toCronId", downstreamID, "error", err)
			continue
		}
		e.fireChained(ctx, downstream, chainDepth+1)
	}
}

// fireChained runs a downstream job asynchronously, bounded by e.Chained
// when configured so a long chain can't unboundedly fan out subprocesses.
func (e *Executor) fireChained(ctx context.Context, job *CronJob, chainDepth int) {
	if e.Chained == nil {
		go e.Run(ctx, job, chainDepth)
		return
	}
	go func() {
		if err := e.Chained.Submit(ctx, func() { e.Run(ctx, job, chainDepth) }); err != nil {
			slog.Warn("cronjob: chained run dropped", "cronId", job.CronID, "error", err)
		}
	}()
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
