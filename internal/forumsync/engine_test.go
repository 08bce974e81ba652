package forumsync

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
	"github.com/nlbuilder/forgehost/internal/store"
	"github.com/nlbuilder/forgehost/internal/store/file"
)

type fakeThread struct {
	id          string
	name        string
	archived    bool
	appliedTags []string
	messages    map[string]string
	pinned      []string
	nextMsgID   int
}

func newFakeThread(id, name string) *fakeThread {
	return &fakeThread{id: id, name: name, messages: make(map[string]string)}
}

func (t *fakeThread) ID() string            { return t.id }
func (t *fakeThread) ParentID() string      { return "forum-1" }
func (t *fakeThread) Name() string          { return t.name }
func (t *fakeThread) Archived() bool        { return t.archived }
func (t *fakeThread) AppliedTags() []string { return t.appliedTags }

func (t *fakeThread) Edit(_ context.Context, tags []string) error {
	t.appliedTags = tags
	return nil
}
func (t *fakeThread) SetName(_ context.Context, name string) error {
	t.name = name
	return nil
}
func (t *fakeThread) SetArchived(_ context.Context, archived bool) error {
	t.archived = archived
	return nil
}
func (t *fakeThread) FetchStarterMessage(context.Context) (*chatplatform.Message, error) {
	return &chatplatform.Message{ID: "starter"}, nil
}
func (t *fakeThread) FetchMessage(_ context.Context, id string) (*chatplatform.Message, error) {
	return &chatplatform.Message{ID: id, Content: t.messages[id]}, nil
}
func (t *fakeThread) FetchPinnedMessages(context.Context) ([]chatplatform.Message, error) {
	var out []chatplatform.Message
	for _, id := range t.pinned {
		out = append(out, chatplatform.Message{ID: id, Content: t.messages[id]})
	}
	return out, nil
}
func (t *fakeThread) SendMessage(_ context.Context, content string) (string, error) {
	t.nextMsgID++
	id := strconv.Itoa(t.nextMsgID)
	t.messages[id] = content
	return id, nil
}
func (t *fakeThread) EditMessage(_ context.Context, id, content string) error {
	if _, ok := t.messages[id]; !ok {
		return errNotFound
	}
	t.messages[id] = content
	return nil
}
func (t *fakeThread) PinMessage(_ context.Context, id string) error {
	t.pinned = append(t.pinned, id)
	return nil
}

var errNotFound = errors.New("message not found")

type fakeClassifier struct{}

func (fakeClassifier) Classify(context.Context, *store.CronRunRecord) ([]string, string, error) {
	return []string{"ops"}, "claude-3", nil
}

type fakeTagMap struct{ ids map[string]string }

func (m fakeTagMap) TagID(name string) (string, bool) {
	id, ok := m.ids[name]
	return id, ok
}

func newTestStore(t *testing.T) store.RecordStore {
	t.Helper()
	st, err := file.Open(t.TempDir() + "/jobs.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestEngineRunClassifiesAndTags(t *testing.T) {
	st := newTestStore(t)
	if _, err := st.UpsertRecord("cron-1", "thread-1", &store.CronRunRecord{
		Schedule: "0 9 * * *",
		Channel:  "alpha",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	th := newFakeThread("thread-1", "My Job")
	threads := map[string]chatplatform.Thread{"thread-1": th}

	e := &Engine{Store: st, Classifier: fakeClassifier{}, Tags: fakeTagMap{ids: map[string]string{
		"ops": "tag-ops", "cadence:daily": "tag-daily",
	}}}
	stats := e.Run(context.Background(), threads)

	if stats.Phase1Classified != 1 {
		t.Fatalf("expected 1 classified, got %d", stats.Phase1Classified)
	}
	if stats.Phase2Renamed != 1 {
		t.Fatalf("expected thread renamed, got name %q", th.Name())
	}
	if th.Name() != "🌅 My Job" {
		t.Fatalf("unexpected thread name %q", th.Name())
	}
	if len(th.pinned) != 1 {
		t.Fatalf("expected one pinned status message, got %d", len(th.pinned))
	}

	rec, _ := st.Get("cron-1")
	if rec.StatusMessageID == "" {
		t.Fatal("expected status message id to be recorded")
	}
}

func TestEnginePhase4Orphans(t *testing.T) {
	st := newTestStore(t)
	e := &Engine{Store: st}
	threads := map[string]chatplatform.Thread{
		"thread-x": newFakeThread("thread-x", "Unregistered"),
	}
	stats := e.Run(context.Background(), threads)
	if len(stats.Phase4Orphans) != 1 || stats.Phase4Orphans[0] != "thread-x" {
		t.Fatalf("expected thread-x reported orphan, got %v", stats.Phase4Orphans)
	}
}

func TestPlanReconcileArchivesClosedTask(t *testing.T) {
	threads := map[string]chatplatform.Thread{
		"thread-1": newFakeThread("thread-1", "task"),
	}
	ops := PlanReconcile([]TaskRecord{{ID: "t1", ShortID: "ab12", ThreadID: "thread-1", Open: false}}, threads)
	if len(ops) != 1 || ops[0].Kind != OpArchive {
		t.Fatalf("expected one archive op, got %v", ops)
	}
}

func TestPlanReconcileDetectsCollision(t *testing.T) {
	threads := map[string]chatplatform.Thread{
		"thread-1": newFakeThread("thread-1", "a"),
		"thread-2": newFakeThread("thread-2", "b"),
	}
	tasks := []TaskRecord{
		{ID: "t1", ShortID: "ab12", ThreadID: "thread-1", Open: true},
		{ID: "t2", ShortID: "ab12", ThreadID: "thread-2", Open: true},
	}
	ops := PlanReconcile(tasks, threads)
	var collisions int
	for _, op := range ops {
		if op.Kind == OpCollision {
			collisions++
		}
	}
	if collisions != 2 {
		t.Fatalf("expected 2 collision ops, got %d (%v)", collisions, ops)
	}
}

func TestExecuteReconcileDefersInFlightClose(t *testing.T) {
	th := newFakeThread("thread-1", "task")
	threads := map[string]chatplatform.Thread{"thread-1": th}
	ops := []Operation{{Kind: OpArchive, ThreadID: "thread-1", TaskID: "t1"}}

	applied, deferred := ExecuteReconcile(context.Background(), ops, threads, func(string) bool { return true }, 1)
	if applied != 0 || deferred != 1 {
		t.Fatalf("expected deferred close, got applied=%d deferred=%d", applied, deferred)
	}
	if th.Archived() {
		t.Fatal("thread should not be archived while a reply is in-flight")
	}

	applied, deferred = ExecuteReconcile(context.Background(), ops, threads, func(string) bool { return false }, 1)
	if applied != 1 || deferred != 0 {
		t.Fatalf("expected applied=1, got applied=%d deferred=%d", applied, deferred)
	}
	if !th.Archived() {
		t.Fatal("thread should now be archived")
	}
}
