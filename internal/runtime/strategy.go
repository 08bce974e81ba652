package runtime

import "context"

// OutputMode selects how Invoke parses a strategy's stdout.
type OutputMode string

const (
	OutputText  OutputMode = "text"
	OutputJSONL OutputMode = "jsonl"
)

// MultiTurnMode selects how the framework manages state across turns of a
// conversation for a given strategy.
type MultiTurnMode string

const (
	MultiTurnNone        MultiTurnMode = "none"
	MultiTurnProcessPool MultiTurnMode = "process-pool"
	MultiTurnSessionResume MultiTurnMode = "session-resume"
)

// ContentBlock is either a text block or an inline image, mirroring the
// stdin payload shape the jsonl strategies (Claude-family CLIs) expect.
type ContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Base64    string `json:"base64,omitempty"`
}

// InvokeOptions carries the per-call parameters a strategy needs to build
// its command line and stdin payload.
type InvokeOptions struct {
	Prompt       string
	Images       []ContentBlock
	Model        string
	ExtraFlags   string // raw string, split into argv tokens by the strategy
	SessionKey   string // set when the caller wants multi-turn continuity
	Tools        []string
	WorkspaceDir string
	TimeoutMs    int
}

// ParsedLine is what a jsonl strategy's ParseLine extracts from one decoded
// JSON line of subprocess stdout.
type ParsedLine struct {
	Text         string
	ResultText   string
	Image        *ImageData
	ResultImages []ImageData
	Activity     string
	InToolUse    bool

	ToolStart bool   // this line announces a tool invocation beginning
	ToolEnd   bool   // this line announces a tool invocation finishing
	ToolName  string // set with ToolStart or ToolEnd
	ToolInput string // set with ToolStart, if the strategy surfaces one
	ToolOK    bool   // set with ToolEnd

	LogLine   string // this line is a raw log/progress line to surface as-is
	LogStream string // "stdout" / "stderr", set with LogLine
}

// Strategy adapts one concrete model CLI to the uniform invoke contract.
// Every method except Identity-level accessors may be nil; the framework
// falls back to documented defaults.
type Strategy interface {
	ID() string
	DefaultBinary() string
	DefaultModel() string
	OutputMode() OutputMode
	MultiTurnMode() MultiTurnMode

	// BuildArgs returns the full argv (excluding the binary itself). It must
	// place "--" before any user-controlled trailing content.
	BuildArgs(ctx context.Context, opts InvokeOptions) []string

	// BuildStdinPayload returns the bytes to write to stdin, or nil if the
	// prompt should instead be passed as a trailing positional argument.
	BuildStdinPayload(ctx context.Context, opts InvokeOptions) []byte

	// ParseLine decodes one jsonl line already confirmed to be valid JSON.
	// Only called when OutputMode() == OutputJSONL.
	ParseLine(ctx context.Context, line []byte) (ParsedLine, bool)

	// SanitizeError strips anything command-line-shaped (which could leak
	// the prompt) from a raw stderr/stdout blob before it reaches the user.
	SanitizeError(raw string) string

	// HandleSpawnError returns a user-safe message for a failure to start
	// the subprocess at all (binary missing, permission denied, ...).
	HandleSpawnError(err error) string

	// HandleExitError returns a user-safe message for a non-zero exit.
	// ok is false to signal "use the generic SanitizeError fallback".
	HandleExitError(exitCode int, stderr, stdout string) (string, bool)
}
