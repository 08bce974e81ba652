// Package runtime implements the CLI adapter framework: a uniform
// "invoke(params) -> lazy stream of events" surface over heterogeneous
// subprocess-based model CLIs. Grounded primarily on
// wingedpig-trellis/internal/claude/manager.go (subprocess lifecycle,
// NDJSON line streaming, stall handling) and adapted to the event-name
// const-table discipline used throughout itsddvn-goclaw/pkg/protocol.
package runtime

// EventType discriminates the tagged Event union emitted by Invoke.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventTextFinal EventType = "text_final"
	EventImageData EventType = "image_data"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventLogLine   EventType = "log_line"
	EventActivity  EventType = "activity"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

// ErrorKind classifies an EventError so callers can distinguish transient
// and terminal failures without parsing the message text.
type ErrorKind string

const (
	ErrorAborted        ErrorKind = "aborted"
	ErrorTimeout        ErrorKind = "timeout"
	ErrorStreamStall    ErrorKind = "stream_stall"
	ErrorProgressStall  ErrorKind = "progress_stall"
	ErrorSpawn          ErrorKind = "spawn"
	ErrorExit           ErrorKind = "exit"
	ErrorLongRunning    ErrorKind = "long_running"
)

// ImageData is a single deduplicated image content block surfaced by a
// jsonl-mode strategy.
type ImageData struct {
	MediaType string `json:"mediaType"`
	Base64    string `json:"base64"`
}

// Event is the single tagged-union type streamed out of Invoke. Exactly one
// of the payload fields is meaningful, selected by Type. Producers must
// terminate every invocation with EventDone; after EventError only EventDone
// may follow (§3).
type Event struct {
	Type EventType

	Text  string // text_delta / text_final
	Image *ImageData

	ToolName  string // tool_start / tool_end
	ToolInput string // tool_start: raw input, if the strategy surfaces one
	ToolOK    bool   // tool_end

	LogStream string // log_line: "stdout" / "stderr"
	LogLine   string // log_line

	ErrorKind ErrorKind // error
	Message   string    // error

	Activity string // activity: free-form progress label from a strategy
}

func textDelta(s string) Event { return Event{Type: EventTextDelta, Text: s} }
func textFinal(s string) Event { return Event{Type: EventTextFinal, Text: s} }
func imageEvent(img ImageData) Event {
	i := img
	return Event{Type: EventImageData, Image: &i}
}
func toolStartEvent(name, input string) Event {
	return Event{Type: EventToolStart, ToolName: name, ToolInput: input}
}
func toolEndEvent(name string, ok bool) Event {
	return Event{Type: EventToolEnd, ToolName: name, ToolOK: ok}
}
func logLineEvent(stream, line string) Event {
	return Event{Type: EventLogLine, LogStream: stream, LogLine: line}
}
func activityEvent(label string) Event { return Event{Type: EventActivity, Activity: label} }
func errorEvent(kind ErrorKind, msg string) Event {
	return Event{Type: EventError, ErrorKind: kind, Message: msg}
}
func doneEvent() Event { return Event{Type: EventDone} }
