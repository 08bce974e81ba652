package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nlbuilder/forgehost/internal/config"
)

func TestMaskShortSecretIsFullyRedacted(t *testing.T) {
	if got := mask("tiny"); got != "****" {
		t.Fatalf("mask(tiny) = %q", got)
	}
}

func TestMaskLongSecretKeepsPrefixAndSuffix(t *testing.T) {
	got := mask("sk-abcdefghijklmnop")
	if got[:4] != "sk-a" {
		t.Fatalf("expected prefix preserved, got %q", got)
	}
	if got[len(got)-4:] != "mnop" {
		t.Fatalf("expected suffix preserved, got %q", got)
	}
	if got == "sk-abcdefghijklmnop" {
		t.Fatal("mask must not return the secret unredacted")
	}
}

func TestCheckBinaryMissingReportsNotFound(t *testing.T) {
	st := CheckBinary("forgehost-definitely-not-a-real-binary")
	if st.Found {
		t.Fatal("expected a nonexistent binary to be reported as not found")
	}
	if st.Path != "" {
		t.Fatalf("expected empty path for a missing binary, got %q", st.Path)
	}
}

func TestCheckRuntimeBinariesUsesNameAsDefaultBinary(t *testing.T) {
	cfg := &config.Config{Runtimes: map[string]config.RuntimeConfig{
		"forgehost-definitely-not-a-real-binary": {},
	}}
	statuses := CheckRuntimeBinaries(cfg)
	if len(statuses) != 1 {
		t.Fatalf("expected one status, got %d", len(statuses))
	}
	if statuses[0].Name != "forgehost-definitely-not-a-real-binary" {
		t.Fatalf("Name = %q", statuses[0].Name)
	}
	if statuses[0].Found {
		t.Fatal("expected the fake binary not to be found on PATH")
	}
}

func TestStoreWriteCheckSucceedsOnWritableDirs(t *testing.T) {
	root := t.TempDir()
	cfg := &config.Config{
		DataDir: filepath.Join(root, "data"),
		LockDir: filepath.Join(root, "locks"),
	}
	if err := StoreWriteCheck(cfg); err != nil {
		t.Fatalf("expected no error for writable dirs, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "data", ".forgehost-doctor-probe")); !os.IsNotExist(err) {
		t.Fatal("expected the probe file to be cleaned up after the check")
	}
}

func TestStoreWriteCheckFailsWhenDirUnderRegularFile(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{DataDir: filepath.Join(blocker, "data")}
	if err := StoreWriteCheck(cfg); err == nil {
		t.Fatal("expected an error when DataDir's parent is a regular file, not a directory")
	}
}
