package store

import "strings"

// Config selects and parameterizes a RecordStore backend. The zero value is
// standalone file-mode: a single JSON document under DataDir. Setting
// DatabaseURL switches to managed mode, where the authoritative copy lives
// in Postgres and the JSON document (if DataDir is still set) becomes a
// best-effort local mirror for offline reads.
type Config struct {
	DataDir       string
	DatabaseURL   string
	EncryptionKey string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// IsManaged reports whether this configuration points at a managed
// Postgres-backed deployment rather than the standalone file backend.
// Named to match the split already implied by the teacher's
// internal/store/pg package existing alongside its JSON-document paths.
func (c Config) IsManaged() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}

// UseCache reports whether a Redis read-through cache should wrap the
// chosen backend.
func (c Config) UseCache() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}
