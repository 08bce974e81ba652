package cronjob

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff retry around a transient
// runtime-adapter failure (spawn/exit errors), distinct from the action
// dispatcher's retry-placeholder mechanism (§4.6), which instructs the
// model to retry a failed directive rather than replaying the whole turn.
// Grounded on itsddvn-goclaw/internal/cron/retry.go, widened with a
// ctx-aware wait so a cancelRun directive can interrupt a pending retry.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches the teacher's defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   15 * time.Second,
	}
}

// retryable reports whether an invoke-level error is worth retrying: spawn
// failures and bare exit failures are often transient (binary briefly
// unavailable, momentary resource exhaustion); timeouts, aborts, and
// stalls are not, since retrying them just burns the same budget again.
func retryable(kind string) bool {
	switch kind {
	case "spawn", "exit":
		return true
	default:
		return false
	}
}

// executeWithRetry runs fn, retrying on error with exponential backoff plus
// jitter, up to cfg.MaxRetries additional attempts. Aborts early if ctx is
// canceled during a backoff wait.
func executeWithRetry(ctx context.Context, cfg RetryConfig, fn func() (string, string, error)) (result string, attempts int, err error) {
	var kind string
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, kind, err = fn()
		if err == nil {
			return result, attempt + 1, nil
		}
		if attempt >= cfg.MaxRetries || !retryable(kind) {
			break
		}
		delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", attempt + 1, ctx.Err()
		}
	}
	return "", cfg.MaxRetries + 1, err
}

func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}

// maxOutputBytes caps persisted run-log output.
const maxOutputBytes = 16 * 1024

// truncateOutput truncates s to maxOutputBytes for storage in a run record.
func truncateOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "...[truncated]"
}
