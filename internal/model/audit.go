package model

import "time"

// Acquisition stages recorded in the audit log and reported to observers.
const (
	StageSearchIssued   = "search_issued"
	StageSearchFailed   = "search_failed"
	StageFetchCompleted = "fetch_completed"
	StageExtracted      = "extracted"
	StageEntityVerified = "entity_verified"
	StageBudget         = "budget_exhausted"
)

// AuditEntry is one structured record in a run's audit trail.
type AuditEntry struct {
	Time     time.Time     `json:"time"`
	Stage    string        `json:"stage"`
	Input    string        `json:"input"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

// AuditLog is the ordered, append-only trail of one orchestration run.
// Appends are serialized by the orchestrator.
type AuditLog []AuditEntry
