package model

import (
	"net/http"
	"time"
)

// Transport selects how a URL is fetched.
type Transport string

const (
	// TransportAuto lets the fetch client pick; lightweight unless the
	// origin has a history of challenges.
	TransportAuto Transport = "auto"
	// TransportLightweight is a plain HTTP GET.
	TransportLightweight Transport = "lightweight"
	// TransportRendered fetches through a full-rendering reader service.
	TransportRendered Transport = "rendered"
)

// FetchStatus is the terminal outcome of a fetch. Ordinary network failure
// is encoded here, never raised as an error.
type FetchStatus string

const (
	FetchOK      FetchStatus = "ok"
	FetchBlocked FetchStatus = "blocked"
	FetchError   FetchStatus = "error"
	FetchTimeout FetchStatus = "timeout"
)

// FetchRequest describes a single acquisition step. Immutable; escalation
// produces a new request.
type FetchRequest struct {
	URL       string            `json:"url"`
	Transport Transport         `json:"transport"`
	Priority  int               `json:"priority"`
	Timeout   time.Duration     `json:"timeout"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// FetchResult is the outcome of a fetch. Owned by the fetch client until
// handed to the extractor.
type FetchResult struct {
	URL        string        `json:"url"`
	Status     FetchStatus   `json:"status"`
	StatusCode int           `json:"status_code,omitempty"`
	Body       []byte        `json:"body,omitempty"`
	Header     http.Header   `json:"header,omitempty"`
	Transport  Transport     `json:"transport"`
	Elapsed    time.Duration `json:"elapsed"`
	CacheHit   bool          `json:"cache_hit"`
	// Reason carries the last error or block classification when Status
	// is not ok. Consumers use it to tell "found nothing" apart from
	// "could not access".
	Reason string `json:"reason,omitempty"`
}
