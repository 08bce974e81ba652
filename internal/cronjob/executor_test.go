package cronjob

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nlbuilder/forgehost/internal/actions"
	"github.com/nlbuilder/forgehost/internal/chatplatform"
	"github.com/nlbuilder/forgehost/internal/runtime"
	"github.com/nlbuilder/forgehost/internal/store"
)

// fakeStore is a minimal in-memory store.RecordStore for executor tests.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*store.CronRunRecord
}

func newFakeStore(recs ...*store.CronRunRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]*store.CronRunRecord)}
	for _, r := range recs {
		s.records[r.CronID] = r
	}
	return s
}

func (s *fakeStore) Get(cronID string) (*store.CronRunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[cronID]
	return r, ok
}
func (s *fakeStore) GetByThreadID(string) (*store.CronRunRecord, bool)       { return nil, false }
func (s *fakeStore) GetByStatusMessageID(string) (*store.CronRunRecord, bool) { return nil, false }
func (s *fakeStore) GetBySourceID(string) (*store.CronRunRecord, bool)       { return nil, false }
func (s *fakeStore) List() []*store.CronRunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.CronRunRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}
func (s *fakeStore) UpsertRecord(cronID, threadID string, updates *store.CronRunRecord) (*store.CronRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[cronID]
	if !ok {
		existing = &store.CronRunRecord{CronID: cronID, ThreadID: threadID}
	}
	if updates.State != nil {
		existing.State = updates.State
	}
	s.records[cronID] = existing
	return existing, nil
}
func (s *fakeStore) RecordRun(cronID string, status store.RunStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[cronID]; ok {
		r.LastRunStatus = status
		r.LastErrorMessage = message
	}
	return nil
}
func (s *fakeStore) RecordRunStart(string) error      { return nil }
func (s *fakeStore) SweepInterrupted() []string       { return nil }
func (s *fakeStore) RemoveRecord(string) error         { return nil }
func (s *fakeStore) RemoveByThreadID(string) error     { return nil }
func (s *fakeStore) Close() error                      { return nil }

// fakeChannel records every Send call.
type fakeChannel struct {
	id   string
	sent []string
}

func (c *fakeChannel) ID() string   { return c.id }
func (c *fakeChannel) Name() string { return c.id }
func (c *fakeChannel) Send(ctx context.Context, opts chatplatform.SendOptions) (string, error) {
	c.sent = append(c.sent, opts.Content)
	return "msg-1", nil
}

// fakeClient resolves any name to the single channel it holds.
type fakeClient struct {
	channel *fakeChannel
}

func (c *fakeClient) ResolveChannel(ctx context.Context, guildID, nameOrID string) (chatplatform.ChannelRef, error) {
	return c.channel, nil
}
func (c *fakeClient) GetChannel(ctx context.Context, channelID string) (chatplatform.ChannelRef, error) {
	return c.channel, nil
}
func (c *fakeClient) GetForumChannel(ctx context.Context, channelID string) (chatplatform.ForumChannel, error) {
	return nil, nil
}

// namedFakeClient resolves a name to its channel when present in channels,
// and otherwise fails resolution — used to model a mix of resolvable and
// unresolvable JSON route targets.
type namedFakeClient struct {
	channels map[string]*fakeChannel
}

func (c *namedFakeClient) ResolveChannel(ctx context.Context, guildID, nameOrID string) (chatplatform.ChannelRef, error) {
	ch, ok := c.channels[nameOrID]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", nameOrID)
	}
	return ch, nil
}
func (c *namedFakeClient) GetChannel(ctx context.Context, channelID string) (chatplatform.ChannelRef, error) {
	return c.ResolveChannel(ctx, "", channelID)
}
func (c *namedFakeClient) GetForumChannel(ctx context.Context, channelID string) (chatplatform.ForumChannel, error) {
	return nil, nil
}

func newJSONRoutingExecutor(t *testing.T, rec *store.CronRunRecord, invokerText string) (*Executor, *namedFakeClient) {
	t.Helper()
	st := newFakeStore(rec)
	client := &namedFakeClient{channels: map[string]*fakeChannel{
		"default": {id: "default"},
		"alpha":   {id: "alpha"},
		"beta":    {id: "beta"},
	}}

	lockDir := filepath.Join(t.TempDir(), "locks")
	lock, err := NewFileLock(lockDir)
	if err != nil {
		t.Fatalf("NewFileLock: %v", err)
	}

	exec := &Executor{
		Store:      st,
		Lock:       lock,
		RunControl: NewRunControl(),
		Invoker:    &fakeInvoker{text: invokerText},
		ChatClient: client,
		Dispatcher: func(depth int) *actions.Dispatcher {
			d := actions.NewDispatcher(nil, depth)
			d.Handle(actions.TypeSendMessage, func(ctx context.Context, dir actions.Directive) actions.Result {
				return actions.OKResult("ok")
			})
			return d
		},
		DefaultModel:   "claude",
		ActionsEnabled: true,
	}
	return exec, client
}

func TestExecutorJSONRouteMixedSuccessSkipsUnresolvedAndDefault(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-json-1", Channel: "default", RoutingMode: store.RoutingJSON}
	invokerText := `[{"channel":"alpha","content":"A"},{"channel":"beta","content":"B"},{"channel":"ghost","content":"C"}]`
	exec, client := newJSONRoutingExecutor(t, rec, invokerText)

	job := &CronJob{CronID: "job-json-1"}
	exec.Run(context.Background(), job, 0)

	if got := client.channels["alpha"].sent; len(got) != 1 || got[0] != "A" {
		t.Fatalf("expected alpha to receive A, got %v", got)
	}
	if got := client.channels["beta"].sent; len(got) != 1 || got[0] != "B" {
		t.Fatalf("expected beta to receive B, got %v", got)
	}
	if got := client.channels["default"].sent; len(got) != 0 {
		t.Fatalf("expected no default-channel send on partial success, got %v", got)
	}
}

func TestExecutorJSONRouteAllFailFallsBackToDefaultChannel(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-json-2", Channel: "default", RoutingMode: store.RoutingJSON}
	invokerText := `[{"channel":"ghost1","content":"x"}]`
	exec, client := newJSONRoutingExecutor(t, rec, invokerText)

	job := &CronJob{CronID: "job-json-2"}
	exec.Run(context.Background(), job, 0)

	got := client.channels["default"].sent
	if len(got) != 1 || got[0] != invokerText {
		t.Fatalf("expected fallback send of the raw output to default, got %v", got)
	}
}

func TestExecutorJSONRouteEmptyArrayIsSilent(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-json-3", Channel: "default", RoutingMode: store.RoutingJSON, Silent: true}
	invokerText := `[]`
	exec, client := newJSONRoutingExecutor(t, rec, invokerText)

	job := &CronJob{CronID: "job-json-3"}
	exec.Run(context.Background(), job, 0)

	for name, ch := range client.channels {
		if len(ch.sent) != 0 {
			t.Fatalf("expected no send on any channel for the [] sentinel, got %v on %q", ch.sent, name)
		}
	}
}

// fakeInvoker streams a fixed canned response.
type fakeInvoker struct {
	text string
}

func (f *fakeInvoker) Invoke(ctx context.Context, model string, opts runtime.InvokeOptions) <-chan runtime.Event {
	out := make(chan runtime.Event, 2)
	out <- runtime.Event{Type: runtime.EventTextFinal, Text: f.text}
	out <- runtime.Event{Type: runtime.EventDone}
	close(out)
	return out
}

func newTestExecutor(t *testing.T, rec *store.CronRunRecord, invokerText string) (*Executor, *fakeChannel, *fakeStore) {
	t.Helper()
	st := newFakeStore(rec)
	channel := &fakeChannel{id: rec.Channel}
	client := &fakeClient{channel: channel}

	lockDir := filepath.Join(t.TempDir(), "locks")
	lock, err := NewFileLock(lockDir)
	if err != nil {
		t.Fatalf("NewFileLock: %v", err)
	}

	exec := &Executor{
		Store:      st,
		Lock:       lock,
		RunControl: NewRunControl(),
		Invoker:    &fakeInvoker{text: invokerText},
		ChatClient: client,
		Dispatcher: func(depth int) *actions.Dispatcher {
			d := actions.NewDispatcher(nil, depth)
			d.Handle(actions.TypeSendMessage, func(ctx context.Context, dir actions.Directive) actions.Result {
				return actions.OKResult("ok")
			})
			return d
		},
		DefaultModel:   "claude",
		ActionsEnabled: true,
	}
	return exec, channel, st
}

func TestExecutorRunSendsOutputAndRecordsSuccess(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-1", Channel: "general", Prompt: "do the thing"}
	exec, channel, st := newTestExecutor(t, rec, "all done here")

	job := &CronJob{CronID: "job-1"}
	exec.Run(context.Background(), job, 0)

	if len(channel.sent) != 1 {
		t.Fatalf("expected 1 send, got %d: %v", len(channel.sent), channel.sent)
	}
	got, _ := st.Get("job-1")
	if got.LastRunStatus != store.RunStatusSuccess {
		t.Fatalf("expected success status, got %v", got.LastRunStatus)
	}
}

func TestExecutorSkipsWhenAlreadyInFlight(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-2", Channel: "general"}
	exec, channel, _ := newTestExecutor(t, rec, "hello")

	job := &CronJob{CronID: "job-2"}
	job.setInFlight(true)
	exec.Run(context.Background(), job, 0)

	if len(channel.sent) != 0 {
		t.Fatalf("expected no sends while in flight, got %v", channel.sent)
	}
}

func TestExecutorSuppressesHeartbeatSentinel(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-3", Channel: "general"}
	exec, channel, st := newTestExecutor(t, rec, HeartbeatOK)

	job := &CronJob{CronID: "job-3"}
	exec.Run(context.Background(), job, 0)

	if len(channel.sent) != 0 {
		t.Fatalf("expected heartbeat sentinel to be suppressed, got %v", channel.sent)
	}
	got, _ := st.Get("job-3")
	if got.LastRunStatus != store.RunStatusSuccess {
		t.Fatalf("expected success status, got %v", got.LastRunStatus)
	}
}

func TestExecutorSuppressesShortSilentReply(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-4", Channel: "general", Silent: true}
	exec, channel, _ := newTestExecutor(t, rec, "nothing much")

	job := &CronJob{CronID: "job-4"}
	exec.Run(context.Background(), job, 0)

	if len(channel.sent) != 0 {
		t.Fatalf("expected short silent reply to be suppressed, got %v", channel.sent)
	}
}

func TestExecutorRejectsChannelNotInAllowList(t *testing.T) {
	rec := &store.CronRunRecord{CronID: "job-5", Channel: "secret-room"}
	exec, channel, st := newTestExecutor(t, rec, "hi")
	exec.AllowedChannels = map[string]bool{"general": true}

	job := &CronJob{CronID: "job-5"}
	exec.Run(context.Background(), job, 0)

	if len(channel.sent) != 0 {
		t.Fatalf("expected no send for disallowed channel, got %v", channel.sent)
	}
	got, _ := st.Get("job-5")
	if got.LastRunStatus != store.RunStatusError {
		t.Fatalf("expected error status, got %v", got.LastRunStatus)
	}
}
