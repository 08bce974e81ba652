// Package forumsync reconciles in-memory cron/task records against live
// forum state: tags, thread names, pinned status messages, and orphan
// threads, across independently-throttled phases (§4.5). Grounded on
// itsddvn-goclaw/internal/bus/inbound_debounce.go's per-key debounce timer
// for the watch-triggered re-sync, and on the chatplatform contract (§6).
package forumsync

import (
	"strings"

	"github.com/nlbuilder/forgehost/internal/store"
)

// threadNameMaxLen is the platform's forum-thread name cap (§4.5 phase 2).
const threadNameMaxLen = 100

// cadenceEmoji is the canonical cadence → display emoji table. Kept
// alongside a variation-selector-stripped shadow so prefix matching is
// resilient to platform emoji-normalization, per §9's design note.
var cadenceEmoji = map[store.Cadence]string{
	store.CadenceYearly:   "🗓️",
	store.CadenceFrequent: "⚡",
	store.CadenceHourly:   "⏰",
	store.CadenceDaily:    "🌅",
	store.CadenceWeekly:   "📅",
	store.CadenceMonthly:  "🌙",
}

func stripVariationSelectors(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '️' || r == '︎' {
			return -1
		}
		return r
	}, s)
}

// BuildCronThreadName computes the expected thread name: the cadence emoji
// (if any) followed by a space and the stripped base name, truncated to
// threadNameMaxLen with an ellipsis (§4.5 phase 2, §8 property 4).
// Idempotent under repeated application with the same cadence (§8
// property 5, scenario S6): any cadence-prefix already present on name is
// stripped before the new one is applied, so re-running never stacks.
func BuildCronThreadName(name string, cadence store.Cadence) string {
	base := StripCadencePrefix(name)
	full := base
	if emoji, ok := cadenceEmoji[cadence]; ok && emoji != "" {
		full = emoji + " " + base
	}
	return truncateThreadName(full)
}

// StripCadencePrefix removes every cadence-emoji prefix from the front of
// name, canonical or variation-selector-stripped, repeatedly until none
// remain.
func StripCadencePrefix(name string) string {
	for {
		next, ok := stripOnePrefix(name)
		if !ok {
			return name
		}
		name = next
	}
}

func stripOnePrefix(name string) (string, bool) {
	for _, emoji := range cadenceEmoji {
		for _, variant := range [2]string{emoji, stripVariationSelectors(emoji)} {
			prefix := variant + " "
			if strings.HasPrefix(name, prefix) {
				return name[len(prefix):], true
			}
		}
	}
	return name, false
}

func truncateThreadName(s string) string {
	r := []rune(s)
	if len(r) <= threadNameMaxLen {
		return s
	}
	return string(r[:threadNameMaxLen-1]) + "…"
}

// CadenceFromSchedule buckets a 5-field cron expression into a cadence,
// used by phase 1 when a record is missing one. Heuristic, grounded on the
// glossary's "bucketed firing frequency derived from the schedule":
// every-minute-class expressions bucket as frequent, hour-field wildcards
// as hourly, day-of-month/month wildcards with a fixed hour as daily, a
// fixed day-of-week as weekly, a fixed day-of-month as monthly, and a
// fixed month as yearly.
func CadenceFromSchedule(expr string) store.Cadence {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return ""
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	switch {
	case strings.Contains(minute, "*/") || minute == "*":
		if hour == "*" {
			return store.CadenceFrequent
		}
		return store.CadenceHourly
	case month != "*":
		return store.CadenceYearly
	case dom != "*":
		return store.CadenceMonthly
	case dow != "*":
		return store.CadenceWeekly
	default:
		return store.CadenceDaily
	}
}
