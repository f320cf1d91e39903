// Package store persists runs, verified entities, and the durable cache
// tier. Two implementations exist: sqlite for single-node CLI use and
// postgres for shared deployments.
package store

import (
	"context"

	"github.com/sells-group/prospector/internal/cache"
	"github.com/sells-group/prospector/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// EntityFilter specifies criteria for querying verified entities.
type EntityFilter struct {
	// Subject is a substring match against the canonical subject key.
	Subject       string                  `json:"subject,omitempty"`
	State         model.VerificationState `json:"state,omitempty"`
	MinConfidence float64                 `json:"min_confidence,omitempty"`
	Limit         int                     `json:"limit,omitempty"`
	Offset        int                     `json:"offset,omitempty"`
}

// Store defines the persistence interface for the acquisition engine. It
// doubles as the durable cache tier behind the in-memory cache.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, goal model.Goal) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Verified entities
	PutEntity(ctx context.Context, runID string, entity model.VerifiedEntity) error
	QueryEntities(ctx context.Context, filter EntityFilter) ([]model.VerifiedEntity, error)

	// Durable cache tier
	CacheGet(ctx context.Context, key string) (cache.Entry, bool, error)
	CacheSet(ctx context.Context, e cache.Entry) error
	PurgeExpired(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
