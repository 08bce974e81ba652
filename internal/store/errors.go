package store

import "errors"

// ErrSourceIDConflict is returned by upsertRecord when the requested
// webhookSourceId already belongs to a different record (§3 invariant 2).
var ErrSourceIDConflict = errors.New("sourceIdConflict: webhookSourceId already in use")

// ErrNotFound is returned by single-record lookups/mutators that miss.
var ErrNotFound = errors.New("record not found")

// ErrThreadIDConflict mirrors ErrSourceIDConflict for the threadId uniqueness
// invariant (§3 invariant 1): at most one active record per thread.
var ErrThreadIDConflict = errors.New("threadIdConflict: threadId already bound to another record")
