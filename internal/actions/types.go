// Package actions implements the action directive parser and dispatcher
// (§4.6): scanning model output for delimited-JSON directive blocks,
// gating each by a category flag table, executing the recognized ones
// against the chat platform/workspace, and formatting the results back
// into the executor's reply text.
package actions

// Category groups directive types behind a single enable/disable flag.
type Category string

const (
	CategoryMessaging       Category = "messaging"
	CategoryChannelOps      Category = "channel_ops"
	CategoryForumModeration Category = "forum_moderation"
	CategoryTaskCRUD        Category = "task_crud"
	CategoryCronCRUD        Category = "cron_crud"
	CategoryMemory          Category = "memory"
	CategoryPolls           Category = "polls"
	CategoryPlan            Category = "plan"
	CategorySpawn           Category = "spawn"
	CategoryDefer           Category = "defer"
)

// Type is one concrete directive type within the fixed directive
// vocabulary (§3 "Action directive"). Each maps to exactly one Category.
type Type string

const (
	TypeSendMessage   Type = "sendMessage"
	TypeEditMessage   Type = "editMessage"
	TypePinMessage    Type = "pinMessage"
	TypeCreateThread  Type = "createThread"
	TypeArchiveThread Type = "archiveThread"
	TypeSetTags       Type = "setTags"
	TypeCreateTask    Type = "createTask"
	TypeCloseTask     Type = "closeTask"
	TypeCreateCron    Type = "createCron"
	TypeUpdateCron    Type = "updateCron"
	TypeCancelRun     Type = "cancelRun"
	TypeRemember      Type = "remember"
	TypeCreatePoll    Type = "createPoll"
	TypePlan          Type = "plan"
	TypeSpawnAgent    Type = "spawnAgent"
	TypeDefer         Type = "defer"
)

// categoryOf maps every known Type to its gating Category. A Type not
// present here is unrecognized (stripped, recorded in
// strippedUnrecognizedTypes, never dispatched).
var categoryOf = map[Type]Category{
	TypeSendMessage:   CategoryMessaging,
	TypeEditMessage:   CategoryMessaging,
	TypePinMessage:    CategoryMessaging,
	TypeCreateThread:  CategoryChannelOps,
	TypeArchiveThread: CategoryChannelOps,
	TypeSetTags:       CategoryForumModeration,
	TypeCreateTask:    CategoryTaskCRUD,
	TypeCloseTask:     CategoryTaskCRUD,
	TypeCreateCron:    CategoryCronCRUD,
	TypeUpdateCron:    CategoryCronCRUD,
	TypeCancelRun:     CategoryCronCRUD,
	TypeRemember:      CategoryMemory,
	TypeCreatePoll:    CategoryPolls,
	TypePlan:          CategoryPlan,
	TypeSpawnAgent:    CategorySpawn,
	TypeDefer:         CategoryDefer,
}

// queryTypes never mutate anything external; a failure in one of these is
// not eligible to become the dispatcher's single "first failure" retry
// placeholder (§4.6).
var queryTypes = map[Type]bool{}

// Directive is one parsed action: its type plus the raw JSON payload,
// deferred-decoded by the dispatcher per type.
type Directive struct {
	Type    Type
	Payload map[string]any
}

// Flags gates each Category on or off; disabled categories are stripped
// the same as unrecognized types, but recorded separately so the
// formatter can emit an accurate footer (§4.6).
type Flags map[Category]bool

// Enabled reports whether t's category is present and true in f. A nil
// Flags map enables nothing (fail closed).
func (f Flags) Enabled(t Type) bool {
	cat, ok := categoryOf[t]
	if !ok {
		return false
	}
	return f[cat]
}

// AllEnabled returns a Flags map with every known category enabled,
// convenient for tests and for hosts that don't gate anything.
func AllEnabled() Flags {
	f := make(Flags)
	for _, cat := range categoryOf {
		f[cat] = true
	}
	return f
}
