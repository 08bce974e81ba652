package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TagMap is the §6 "tag map" file: a JSON object {tagName: tagId} resolving
// a semantic tag name (purpose tag or cadence tag, §4.5 phase 1) to the
// chat platform's applied-tag ID. Safe for concurrent reads while a
// TagMapWatcher refreshes it in the background.
type TagMap struct {
	mu  sync.RWMutex
	ids map[string]string
}

// TagID resolves name, satisfying internal/forumsync.TagMap.
func (t *TagMap) TagID(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.ids[name]
	return id, ok
}

func (t *TagMap) replace(ids map[string]string) {
	t.mu.Lock()
	t.ids = ids
	t.mu.Unlock()
}

// loadTagMapFile reads path as a JSON object. A missing or malformed file
// yields an empty map and a warning — never an error — mirroring the
// store's own "absent ⇒ empty" load semantics.
func loadTagMapFile(path string) map[string]string {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config: tag map unreadable", "path", path, "error", err)
		}
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		slog.Warn("config: tag map malformed, using empty map", "path", path, "error", err)
		return map[string]string{}
	}
	return m
}

const (
	// defaultTagMapDebounce is the debounced-reload delay on a watch event
	// (§5: "debounced (default 2 s)").
	defaultTagMapDebounce = 2 * time.Second
	// defaultTagMapPoll is the fallback stat-poll interval paired with the
	// watch, for platforms where watch notifications are unreliable, and
	// as a safety net against missed atomic-rename replacements (§5, §9).
	defaultTagMapPoll = 30 * time.Second
	// parentDirPoll is the coarser interval used while the tag map's
	// parent directory does not yet exist (§5).
	parentDirPoll = 30 * time.Second
)

// TagMapWatcher loads a tag map file and keeps it fresh via a native
// filesystem watch on its parent directory paired with a baseline
// stat-poll, per §5 and the §9 design note: native watch notifications can
// miss an atomic-rename config reload, so every watch is paired with an
// mtime-keyed poll; the baseline mtime is seeded before the poller arms to
// avoid a spurious initial trigger. If the parent directory does not yet
// exist, the watcher polls at a coarser interval until it appears, then
// arms the real watch and switches to the normal poll interval. Grounded
// on internal/config.Watcher's fsnotify+debounce shape (hotreload.go),
// widened with the poll fallback the plain config watcher doesn't need (it
// is only ever pointed at a file whose directory already exists at
// startup).
type TagMapWatcher struct {
	Map *TagMap

	path     string
	debounce time.Duration
	poll     time.Duration

	stopChan chan struct{}
	mu       sync.Mutex
	handlers []func(*TagMap)

	lastMtime     time.Time
	baselineKnown bool
}

// NewTagMapWatcher constructs a watcher for the tag map file at path. The
// returned TagMap is populated synchronously with whatever Load finds
// (possibly empty) before Start is ever called, so callers can use it
// immediately.
func NewTagMapWatcher(path string) *TagMapWatcher {
	tm := &TagMap{ids: loadTagMapFile(path)}
	return &TagMapWatcher{
		Map:      tm,
		path:     path,
		debounce: defaultTagMapDebounce,
		poll:     defaultTagMapPoll,
	}
}

// OnChange registers a handler invoked after every reload (watch-triggered
// or poll-triggered) with the refreshed TagMap.
func (w *TagMapWatcher) OnChange(h func(*TagMap)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start seeds the baseline mtime and begins the watch+poll loop in the
// background. It never returns an error: a missing parent directory or a
// watch-setup failure both degrade to pure polling (§5).
func (w *TagMapWatcher) Start() {
	if fi, err := os.Stat(w.path); err == nil {
		w.lastMtime = fi.ModTime()
		w.baselineKnown = true
	}
	w.stopChan = make(chan struct{})
	go w.loop()
}

// Stop halts the background loop.
func (w *TagMapWatcher) Stop() {
	if w.stopChan != nil {
		close(w.stopChan)
	}
}

func (w *TagMapWatcher) loop() {
	dir := filepath.Dir(w.path)

	if _, err := os.Stat(dir); err != nil {
		if !w.waitForParentDir(dir) {
			return
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: tag map watcher setup failed, polling only", "error", err)
		w.pollLoop(nil)
		return
	}
	defer fsw.Close()
	if err := fsw.Add(dir); err != nil {
		slog.Warn("config: tag map watch add failed, polling only", "dir", dir, "error", err)
	}
	w.pollLoop(fsw)
}

// waitForParentDir polls at parentDirPoll until dir exists or Stop is
// called, returning false if stopped first.
func (w *TagMapWatcher) waitForParentDir(dir string) bool {
	ticker := time.NewTicker(parentDirPoll)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopChan:
			return false
		case <-ticker.C:
			if _, err := os.Stat(dir); err == nil {
				return true
			}
		}
	}
}

// pollLoop runs the steady-state watch+poll pair. fsw may be nil, in which
// case this degrades to poll-only.
func (w *TagMapWatcher) pollLoop(fsw *fsnotify.Watcher) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var events <-chan fsnotify.Event
	var errs <-chan error
	if fsw != nil {
		events = fsw.Events
		errs = fsw.Errors
	}

	for {
		select {
		case <-w.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case <-ticker.C:
			w.checkAndReload()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.checkAndReload)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("config: tag map watcher error", "error", err)
		}
	}
}

// checkAndReload compares the file's current mtime against the last seen
// baseline, reloading only when it has genuinely changed (or appeared for
// the first time), preventing a spurious reload on every poll tick.
func (w *TagMapWatcher) checkAndReload() {
	fi, err := os.Stat(w.path)
	if err != nil {
		return
	}
	if w.baselineKnown && !fi.ModTime().After(w.lastMtime) {
		return
	}
	w.lastMtime = fi.ModTime()
	w.baselineKnown = true
	w.reload()
}

func (w *TagMapWatcher) reload() {
	ids := loadTagMapFile(w.path)
	w.Map.replace(ids)

	w.mu.Lock()
	handlers := append([]func(*TagMap)(nil), w.handlers...)
	w.mu.Unlock()
	for _, h := range handlers {
		h(w.Map)
	}
}
