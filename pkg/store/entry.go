package store

import (
	"encoding/json"
	"time"
)

// Entry represents one cached resource: an opaque JSON value (typically an
// ordered array of normalized records) and the time it was committed.
type Entry struct {
	// Data is the cached value as stored by the last successful refresh.
	Data json.RawMessage `json:"data"`

	// StoredAt is when the value was committed.
	StoredAt time.Time `json:"stored_at"`
}

// Age returns how old the entry is at the given instant.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Freshness classifies a cache entry against a max age.
type Freshness int

const (
	// Missing means no usable entry exists.
	Missing Freshness = iota

	// Stale means the entry exists but its age is at or beyond the max age.
	Stale

	// Fresh means the entry's age is below the max age.
	Fresh
)

// String returns the freshness as a lowercase status string.
func (f Freshness) String() string {
	switch f {
	case Stale:
		return "stale"
	case Fresh:
		return "fresh"
	default:
		return "missing"
	}
}

// Evaluate classifies an entry. A nil entry is Missing. An entry aged exactly
// maxAge is Stale, not Fresh. Pure function, no side effects.
func Evaluate(entry *Entry, maxAge time.Duration, now time.Time) Freshness {
	if entry == nil {
		return Missing
	}
	if entry.Age(now) < maxAge {
		return Fresh
	}
	return Stale
}
