// Package preflight groups the host's startup self-checks: credential and
// binary probes (doctor) and the static secret-leak scanner used by the
// legacy-token-guard CLI.
package preflight

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/nlbuilder/forgehost/internal/config"
)

// CredentialStatus is one probed credential's reported state.
type CredentialStatus struct {
	Name   string
	Found  bool
	Source string // "config", "keyring", or "" when not found
	Masked string
}

const keyringService = "forgehost"

// CheckCredentials probes every configured runtime binary's credential,
// preferring the OS keyring over a bare config value so a config file
// leaked to disk need not carry the secret itself. Grounded on the
// teacher's doctor checkProvider probe loop, generalized from a fixed
// provider list to cfg.Runtimes and extended with a keyring fallback.
func CheckCredentials(cfg *config.Config) []CredentialStatus {
	var out []CredentialStatus
	for name, rt := range cfg.Runtimes {
		_ = rt
		out = append(out, checkOne(name))
	}
	if cfg.Discord.Token != "" {
		out = append(out, CredentialStatus{Name: "discord", Found: true, Source: "config", Masked: mask(cfg.Discord.Token)})
	} else if secret, err := keyring.Get(keyringService, "discord"); err == nil {
		out = append(out, CredentialStatus{Name: "discord", Found: true, Source: "keyring", Masked: mask(secret)})
	} else {
		out = append(out, CredentialStatus{Name: "discord"})
	}
	return out
}

func checkOne(name string) CredentialStatus {
	if secret, err := keyring.Get(keyringService, name); err == nil && secret != "" {
		return CredentialStatus{Name: name, Found: true, Source: "keyring", Masked: mask(secret)}
	}
	return CredentialStatus{Name: name}
}

func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// BinaryStatus reports whether an external tool is on PATH.
type BinaryStatus struct {
	Name  string
	Path  string
	Found bool
}

// CheckBinary looks up name on PATH, matching the teacher's checkBinary
// probe (cmd/doctor.go).
func CheckBinary(name string) BinaryStatus {
	path, err := exec.LookPath(name)
	if err != nil {
		return BinaryStatus{Name: name}
	}
	return BinaryStatus{Name: name, Path: path, Found: true}
}

// CheckRuntimeBinaries probes every configured runtime's binary.
func CheckRuntimeBinaries(cfg *config.Config) []BinaryStatus {
	out := make([]BinaryStatus, 0, len(cfg.Runtimes))
	for name, rt := range cfg.Runtimes {
		bin := rt.Binary
		if bin == "" {
			bin = name
		}
		st := CheckBinary(bin)
		st.Name = name
		out = append(out, st)
	}
	return out
}

// StoreWriteCheck verifies the store's data and lock directories are
// writable, returning a human-readable error describing the first failure.
func StoreWriteCheck(cfg *config.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.LockDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("%s not writable: %w", dir, err)
		}
		probe := dir + "/.forgehost-doctor-probe"
		if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
			return fmt.Errorf("%s not writable: %w", dir, err)
		}
		_ = os.Remove(probe)
	}
	return nil
}
