package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTagMapMissingFileIsEmpty(t *testing.T) {
	w := NewTagMapWatcher(filepath.Join(t.TempDir(), "tags.json"))
	if _, ok := w.Map.TagID("daily"); ok {
		t.Fatal("expected no tag resolved from a missing file")
	}
}

func TestTagMapLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.json")
	if err := os.WriteFile(path, []byte(`{"cadence:daily":"123","urgent":"456"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewTagMapWatcher(path)
	id, ok := w.Map.TagID("cadence:daily")
	if !ok || id != "123" {
		t.Fatalf("TagID(cadence:daily) = %q, %v", id, ok)
	}
}

func TestTagMapMalformedFileYieldsEmptyMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewTagMapWatcher(path)
	if _, ok := w.Map.TagID("anything"); ok {
		t.Fatal("expected empty map for malformed tag map file")
	}
}

func TestTagMapWatcherPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tags.json")
	if err := os.WriteFile(path, []byte(`{"a":"1"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewTagMapWatcher(path)
	w.debounce = 10 * time.Millisecond
	w.poll = 50 * time.Millisecond
	defer w.Stop()

	changed := make(chan struct{}, 4)
	w.OnChange(func(*TagMap) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	w.Start()

	time.Sleep(20 * time.Millisecond) // let the baseline mtime settle
	if err := os.WriteFile(path, []byte(`{"a":"2"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-changed:
			if id, ok := w.Map.TagID("a"); ok && id == "2" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for tag map reload")
		}
	}
}

func TestTagMapWatcherWaitsForParentDir(t *testing.T) {
	dir := t.TempDir()
	missingParent := filepath.Join(dir, "not-yet-created")
	path := filepath.Join(missingParent, "tags.json")

	w := NewTagMapWatcher(path)
	if _, ok := w.Map.TagID("anything"); ok {
		t.Fatal("expected empty map before parent directory exists")
	}
	w.Stop() // never started; exercises nil stopChan safety
}
