package config

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// RuntimeOverrides is the §6 "Runtime-override file" document: a small,
// hand-editable knob set read at startup and on change, layered on top of
// the main Config without requiring a full reload. Unknown top-level
// fields and wrong-typed entries are dropped (json5.Unmarshal into this
// concrete struct already ignores unrecognized keys); malformed JSON/JSON5
// yields a zero-valued RuntimeOverrides rather than an error, per §6.
type RuntimeOverrides struct {
	// Models maps a role name (e.g. "default", "classifier") to a model id
	// override, consulted ahead of a cron record's own model/modelOverride
	// (§3, §4.3 step 8's override precedence).
	Models map[string]string `json:"models,omitempty"`

	TTSVoice     string `json:"ttsVoice,omitempty"`
	VoiceRuntime string `json:"voiceRuntime,omitempty"`
}

// WarnFunc receives a human-readable warning when LoadRuntimeOverrides
// falls back to an empty document (missing/malformed file) or drops a
// wrong-typed field. Defaults to slog.Warn when nil.
type WarnFunc func(msg string, args ...any)

func (w WarnFunc) call(msg string, args ...any) {
	if w != nil {
		w(msg, args...)
		return
	}
	slog.Warn(msg, args...)
}

// LoadRuntimeOverrides reads path as JSON5 (plain JSON is valid JSON5, so
// ordinary hand-written JSON parses unchanged) into a RuntimeOverrides.
// A missing file, or one that fails to parse, yields a zero-valued
// RuntimeOverrides and a warning — never an error — since this file is
// optional and its absence must never block startup (§6).
func LoadRuntimeOverrides(path string, warn WarnFunc) RuntimeOverrides {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			warn.call("config: runtime overrides file unreadable, using defaults", "path", path, "error", err)
		}
		return RuntimeOverrides{}
	}

	var raw map[string]any
	if err := json5.Unmarshal(data, &raw); err != nil {
		warn.call("config: runtime overrides file malformed, using defaults", "path", path, "error", err)
		return RuntimeOverrides{}
	}

	var out RuntimeOverrides
	for key, value := range raw {
		switch key {
		case "models":
			m, ok := value.(map[string]any)
			if !ok {
				warn.call("config: runtime overrides 'models' has wrong shape, dropping", "path", path)
				continue
			}
			models := make(map[string]string, len(m))
			for role, v := range m {
				s, ok := v.(string)
				if !ok {
					warn.call("config: runtime overrides model entry has wrong shape, dropping", "path", path, "role", role)
					continue
				}
				models[role] = s
			}
			out.Models = models
		case "ttsVoice":
			s, ok := value.(string)
			if !ok {
				warn.call("config: runtime overrides 'ttsVoice' has wrong shape, dropping", "path", path)
				continue
			}
			out.TTSVoice = s
		case "voiceRuntime":
			s, ok := value.(string)
			if !ok {
				warn.call("config: runtime overrides 'voiceRuntime' has wrong shape, dropping", "path", path)
				continue
			}
			out.VoiceRuntime = s
		default:
			warn.call("config: runtime overrides has unknown field, ignoring", "path", path, "field", key)
		}
	}
	return out
}

// ModelFor resolves role against the overrides, falling back to fallback
// when unset — the precedence helper the cron executor consults ahead of
// a record's own classified/overridden model (§4.3 step 8).
func (o RuntimeOverrides) ModelFor(role, fallback string) string {
	if o.Models == nil {
		return fallback
	}
	if m, ok := o.Models[role]; ok && m != "" {
		return m
	}
	return fallback
}

// OverridesHandler is called with the freshly loaded overrides whenever
// the watched file changes.
type OverridesHandler func(RuntimeOverrides)

// OverridesWatcher watches the runtime-override file for changes, the same
// fsnotify + debounce shape as Watcher (internal/config/hotreload.go), a
// second instance per §6's "read at startup and on change".
type OverridesWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	warn     WarnFunc
	mu       sync.Mutex
	handlers []OverridesHandler
	stopChan chan struct{}
}

// NewOverridesWatcher creates a watcher for the runtime-override file at
// path. The parent directory must already exist; callers typically arrange
// this alongside the main config watcher's own directory.
func NewOverridesWatcher(path string, warn WarnFunc) (*OverridesWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &OverridesWatcher{
		path:     path,
		watcher:  w,
		debounce: 300 * time.Millisecond,
		warn:     warn,
	}, nil
}

// OnChange registers a handler invoked with the newly loaded overrides.
func (w *OverridesWatcher) OnChange(h OverridesHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start arms the watcher. Watching a not-yet-existing file's parent
// directory is the caller's responsibility (mirrors Watcher.Start); the
// tag-map watcher (internal/config/tagmap.go) is the variant that handles
// a not-yet-created parent directory via polling.
func (w *OverridesWatcher) Start() error {
	if err := w.watcher.Add(w.path); err != nil {
		return err
	}
	w.stopChan = make(chan struct{})
	go w.loop()
	return nil
}

// Stop halts the watcher.
func (w *OverridesWatcher) Stop() {
	if w.stopChan != nil {
		close(w.stopChan)
	}
	w.watcher.Close()
}

func (w *OverridesWatcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.warn.call("config: runtime overrides watcher error", "error", err)
		}
	}
}

func (w *OverridesWatcher) reload() {
	overrides := LoadRuntimeOverrides(w.path, w.warn)
	w.mu.Lock()
	handlers := append([]OverridesHandler(nil), w.handlers...)
	w.mu.Unlock()
	for _, h := range handlers {
		h(overrides)
	}
}
