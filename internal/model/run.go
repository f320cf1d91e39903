package model

import "time"

// Goal describes what an acquisition run is looking for.
type Goal struct {
	// Query is the primary search phrasing, e.g. "clay suppliers in Asheville".
	Query string `json:"query"`
	// Phrasings are alternative formulations fanned out alongside Query.
	Phrasings []string `json:"phrasings,omitempty"`
	// EntityType hints what kind of subject is expected (supplier, event, trend).
	EntityType string `json:"entity_type,omitempty"`
}

// Constraints bound an acquisition run. Every run has an explicit wall-clock
// budget; neither fetch count nor duration may be unbounded.
type Constraints struct {
	MaxCandidates int           `json:"max_candidates"`
	MaxWallClock  time.Duration `json:"max_wall_clock"`
	MaxConcurrent int           `json:"max_concurrent"`
	MinConfidence float64       `json:"min_confidence"`
}

// RunStatus represents the current state of an acquisition run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusSearching RunStatus = "searching"
	RunStatusFetching  RunStatus = "fetching"
	RunStatusVerifying RunStatus = "verifying"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a persisted acquisition run.
type Run struct {
	ID        string     `json:"id"`
	Goal      Goal       `json:"goal"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult is the final output of one orchestration run. Partial results
// are still populated when the budget expires.
type RunResult struct {
	Entities        []VerifiedEntity `json:"entities"`
	Audit           AuditLog         `json:"audit"`
	Errors          []string         `json:"errors,omitempty"`
	Candidates      int              `json:"candidates"`
	FetchesIssued   int              `json:"fetches_issued"`
	BudgetExhausted bool             `json:"budget_exhausted"`
	Elapsed         time.Duration    `json:"elapsed"`
}
