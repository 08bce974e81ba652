package actions

import (
	"context"
	"testing"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
)

func TestNewSendMessageHandlerSendsToResolvedChannel(t *testing.T) {
	fake := chatplatform.NewFake()
	ch := fake.AddChannel("chan-1", "general")

	h := NewSendMessageHandler(fake, "guild-1")
	res := h(context.Background(), Directive{Payload: map[string]any{"channel": "general", "content": "hi"}})
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(ch.Sent) != 1 || ch.Sent[0].Content != "hi" {
		t.Fatalf("expected one send of 'hi', got %+v", ch.Sent)
	}
}

func TestNewSendMessageHandlerRejectsMissingFields(t *testing.T) {
	h := NewSendMessageHandler(chatplatform.NewFake(), "guild-1")
	res := h(context.Background(), Directive{Payload: map[string]any{"channel": "general"}})
	if res.OK {
		t.Fatal("expected failure when content is missing")
	}
}

func TestNewSendMessageHandlerReportsUnresolvedChannel(t *testing.T) {
	h := NewSendMessageHandler(chatplatform.NewFake(), "guild-1")
	res := h(context.Background(), Directive{Payload: map[string]any{"channel": "nope", "content": "hi"}})
	if res.OK {
		t.Fatal("expected failure for an unresolvable channel")
	}
}

type fakeForumThread struct {
	id          string
	appliedTags []string
	archived    bool
	messages    map[string]string
	pinned      map[string]bool
}

func (t *fakeForumThread) ID() string            { return t.id }
func (t *fakeForumThread) ParentID() string      { return "forum-1" }
func (t *fakeForumThread) Name() string          { return t.id }
func (t *fakeForumThread) Archived() bool        { return t.archived }
func (t *fakeForumThread) AppliedTags() []string { return t.appliedTags }
func (t *fakeForumThread) Edit(_ context.Context, tags []string) error {
	t.appliedTags = tags
	return nil
}
func (t *fakeForumThread) SetName(context.Context, string) error { return nil }
func (t *fakeForumThread) SetArchived(_ context.Context, archived bool) error {
	t.archived = archived
	return nil
}
func (t *fakeForumThread) FetchStarterMessage(context.Context) (*chatplatform.Message, error) {
	return nil, nil
}
func (t *fakeForumThread) FetchMessage(_ context.Context, id string) (*chatplatform.Message, error) {
	return &chatplatform.Message{ID: id, Content: t.messages[id]}, nil
}
func (t *fakeForumThread) FetchPinnedMessages(context.Context) ([]chatplatform.Message, error) {
	return nil, nil
}
func (t *fakeForumThread) SendMessage(context.Context, string) (string, error) { return "", nil }
func (t *fakeForumThread) EditMessage(_ context.Context, id, content string) error {
	if t.messages == nil {
		t.messages = map[string]string{}
	}
	t.messages[id] = content
	return nil
}
func (t *fakeForumThread) PinMessage(_ context.Context, id string) error {
	if t.pinned == nil {
		t.pinned = map[string]bool{}
	}
	t.pinned[id] = true
	return nil
}

type fakeForum struct {
	active map[string]chatplatform.Thread
}

func (f *fakeForum) ID() string { return "forum-1" }
func (f *fakeForum) FetchActiveThreads(context.Context) (map[string]chatplatform.Thread, error) {
	return f.active, nil
}
func (f *fakeForum) FetchArchivedThreads(context.Context) (map[string]chatplatform.Thread, error) {
	return map[string]chatplatform.Thread{}, nil
}

func TestNewEditMessageHandlerEditsResolvedThread(t *testing.T) {
	th := &fakeForumThread{id: "thread-1"}
	forum := &fakeForum{active: map[string]chatplatform.Thread{"thread-1": th}}

	h := NewEditMessageHandler(forum)
	res := h(context.Background(), Directive{Payload: map[string]any{"threadId": "thread-1", "messageId": "m1", "content": "updated"}})
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if th.messages["m1"] != "updated" {
		t.Fatalf("expected message m1 updated, got %+v", th.messages)
	}
}

func TestNewPinMessageHandlerPinsResolvedThread(t *testing.T) {
	th := &fakeForumThread{id: "thread-1"}
	forum := &fakeForum{active: map[string]chatplatform.Thread{"thread-1": th}}

	h := NewPinMessageHandler(forum)
	res := h(context.Background(), Directive{Payload: map[string]any{"threadId": "thread-1", "messageId": "m1"}})
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if !th.pinned["m1"] {
		t.Fatal("expected m1 to be pinned")
	}
}

func TestNewArchiveThreadHandlerSetsArchived(t *testing.T) {
	th := &fakeForumThread{id: "thread-1"}
	forum := &fakeForum{active: map[string]chatplatform.Thread{"thread-1": th}}

	h := NewArchiveThreadHandler(forum)
	res := h(context.Background(), Directive{Payload: map[string]any{"threadId": "thread-1", "archived": true}})
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if !th.archived {
		t.Fatal("expected thread to be archived")
	}
}

func TestNewSetTagsHandlerAppliesTagList(t *testing.T) {
	th := &fakeForumThread{id: "thread-1"}
	forum := &fakeForum{active: map[string]chatplatform.Thread{"thread-1": th}}

	h := NewSetTagsHandler(forum)
	res := h(context.Background(), Directive{Payload: map[string]any{"threadId": "thread-1", "tags": []any{"tag-a", "tag-b"}}})
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(th.appliedTags) != 2 || th.appliedTags[0] != "tag-a" {
		t.Fatalf("expected tags applied, got %v", th.appliedTags)
	}
}

func TestResolveThreadReportsNotFound(t *testing.T) {
	forum := &fakeForum{active: map[string]chatplatform.Thread{}}
	h := NewPinMessageHandler(forum)
	res := h(context.Background(), Directive{Payload: map[string]any{"threadId": "missing", "messageId": "m1"}})
	if res.OK {
		t.Fatal("expected failure for an unresolvable thread")
	}
}
