// Package config loads and hot-reloads the host's on-disk configuration:
// provider binaries, store paths, lock directory, channel allow-list, and
// throttle/debounce knobs (SPEC_FULL AMBIENT STACK). Grounded on the
// teacher's config package shape (hotreload.go's Watcher already assumes a
// Load(path) *Config function; this file supplies it) using
// gopkg.in/yaml.v3 for the document, matching the teacher's own choice of
// YAML over JSON for human-edited config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig configures one CLI-backed model runtime strategy (§4.2).
type RuntimeConfig struct {
	Binary       string `yaml:"binary,omitempty"`
	DefaultModel string `yaml:"defaultModel,omitempty"`
}

// DatabaseConfig selects standalone (file) vs managed (Postgres) store mode.
type DatabaseConfig struct {
	Mode        string `yaml:"mode,omitempty"` // "standalone" (default) or "managed"
	PostgresDSN string `yaml:"postgresDsn,omitempty"`
}

// RedisConfig configures the optional read-through cache in front of the
// record store (§4.1).
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// TelemetryConfig parameterizes the optional OTLP trace exporter
// (build-tag gated, see cmd/otel.go).
type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled,omitempty"`
	Endpoint    string            `yaml:"endpoint,omitempty"`
	Protocol    string            `yaml:"protocol,omitempty"` // "grpc" or "http"
	Insecure    bool              `yaml:"insecure,omitempty"`
	ServiceName string            `yaml:"serviceName,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// ContextConfig names the local and/or S3 sources the executor prepends to
// every job's prompt as workspace context (§4.3 step 6, §6 DOMAIN STACK).
type ContextConfig struct {
	Dir      string `yaml:"dir,omitempty"`
	S3Bucket string `yaml:"s3Bucket,omitempty"`
	S3Prefix string `yaml:"s3Prefix,omitempty"`
	S3Region string `yaml:"s3Region,omitempty"`
}

// SyncConfig parameterizes the forum sync engine's throttle/debounce knobs
// (§4.5, §9).
type SyncConfig struct {
	ThrottleMs      int    `yaml:"throttleMs,omitempty"`      // default 250
	DebounceMs      int    `yaml:"debounceMs,omitempty"`      // default 2000
	PollIntervalMs  int    `yaml:"pollIntervalMs,omitempty"`  // default 30000
	TagMapPath      string `yaml:"tagMapPath,omitempty"`
	ForumChannelID  string `yaml:"forumChannelId,omitempty"`
	PolicyExpr      string `yaml:"policyExpr,omitempty"` // CEL channel/category allow-list
}

// Config is the top-level host configuration document, loaded from YAML at
// startup and on every debounced file-watch change (internal/config/hotreload.go).
type Config struct {
	// DataDir roots every on-disk store the host owns (cron run-stats
	// document, lock directory) unless overridden individually.
	DataDir string `yaml:"dataDir,omitempty"`

	// LockDir holds the cross-process file locks keyed by cronId (§4.3, §5).
	LockDir string `yaml:"lockDir,omitempty"`

	// CronStorePath is the cron run-stats document path (§6). Defaults to
	// DataDir/cron/jobs.json when empty.
	CronStorePath string `yaml:"cronStorePath,omitempty"`

	DefaultTimezone string `yaml:"defaultTimezone,omitempty"`

	// Channels is the allow-list of chat channel names/IDs the executor and
	// JSON router may resolve and send to (§4.3 step 5, §8 property 7).
	Channels []string `yaml:"channels,omitempty"`

	// GuildID is the chat platform guild the forum/channels live in.
	GuildID string `yaml:"guildId,omitempty"`

	// ToolTiers is the model=tier override map (§4.2, §6), e.g.
	// {"opus": "full", "haiku": "basic"}.
	ToolTiers map[string]string `yaml:"toolTiers,omitempty"`

	Runtimes map[string]RuntimeConfig `yaml:"runtimes,omitempty"`

	Database DatabaseConfig `yaml:"database,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`

	EncryptionKey string `yaml:"encryptionKey,omitempty"`

	Discord struct {
		Token string `yaml:"token,omitempty"`
	} `yaml:"discord,omitempty"`

	Sync SyncConfig `yaml:"sync,omitempty"`

	Context ContextConfig `yaml:"context,omitempty"`

	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// secretFields lists the YAML keys redactConfig blanks before printing
// (cmd's `config show`).
var secretFields = []string{"token", "encryptionKey", "postgresDsn", "authKey", "password"}

// Load reads path as YAML into a Config, applying defaults for the knobs
// the spec gives explicit numbers for (§4.5, §9). A missing file is not an
// error — the caller gets the zero-valued default Config, matching the
// store's own "absent ⇒ empty" load semantics (§4.1) for consistency
// across the host's persistence layers.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = ExpandHome("~/.forgehost/data")
	}
	if cfg.LockDir == "" {
		cfg.LockDir = filepath.Join(cfg.DataDir, "locks")
	}
	if cfg.CronStorePath == "" {
		cfg.CronStorePath = filepath.Join(cfg.DataDir, "cron", "jobs.json")
	}
	if cfg.Database.Mode == "" {
		cfg.Database.Mode = "standalone"
	}
	if cfg.Sync.ThrottleMs == 0 {
		cfg.Sync.ThrottleMs = 250
	}
	if cfg.Sync.DebounceMs == 0 {
		cfg.Sync.DebounceMs = 2000
	}
	if cfg.Sync.PollIntervalMs == 0 {
		cfg.Sync.PollIntervalMs = 30000
	}
}

// ExpandHome expands a leading "~" to the current user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Redact returns a copy of cfg suitable for printing: every field named in
// secretFields is blanked out. Implemented by round-tripping through a
// generic map so new secret-shaped fields don't need a bespoke copy method.
func Redact(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	redactRecursive(generic)
	return generic, nil
}

func redactRecursive(v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	for k, val := range m {
		for _, secret := range secretFields {
			if strings.EqualFold(k, secret) {
				if s, ok := val.(string); ok && s != "" {
					m[k] = "***"
				}
			}
		}
		redactRecursive(val)
	}
}
