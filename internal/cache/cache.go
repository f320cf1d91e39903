// Package cache provides the two-tier response cache: a hot in-memory tier
// in front of a durable tier backed by the run store. Entries are immutable
// once written; freshness is governed entirely by per-class TTLs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Class determines how long a cached artifact stays fresh. Search results go
// stale fastest, raw pages next, distilled structured data slowest.
type Class string

const (
	ClassSearch     Class = "search"
	ClassPage       Class = "page"
	ClassStructured Class = "structured"
)

// TTL policy per artifact class.
const (
	TTLSearch     = 15 * time.Minute
	TTLPage       = 24 * time.Hour
	TTLStructured = 7 * 24 * time.Hour
)

// TTLFor returns the freshness window for a class. Unknown classes get the
// shortest window so a typo never produces a long-lived entry.
func TTLFor(class Class) time.Duration {
	switch class {
	case ClassPage:
		return TTLPage
	case ClassStructured:
		return TTLStructured
	default:
		return TTLSearch
	}
}

// Key derives the cache key for a resource. The transport participates in
// the key because a rendered fetch and a lightweight fetch of the same URL
// are different artifacts.
func Key(url, transport string) string {
	sum := sha256.Sum256([]byte(url + "|" + transport))
	return hex.EncodeToString(sum[:])
}

// Entry is one cached artifact with its expiry.
type Entry struct {
	Key       string
	Class     Class
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its freshness window.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
