package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

// Observer receives stage notifications as a run progresses. Notifications
// are synchronous and in order; observers must return quickly.
type Observer interface {
	OnStage(runID string, entry model.AuditEntry)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(runID string, entry model.AuditEntry)

func (f ObserverFunc) OnStage(runID string, entry model.AuditEntry) { f(runID, entry) }

// LoggingObserver mirrors every stage into the structured log.
func LoggingObserver() Observer {
	return ObserverFunc(func(runID string, entry model.AuditEntry) {
		zap.L().Debug("run stage",
			zap.String("run_id", runID),
			zap.String("stage", entry.Stage),
			zap.String("input", entry.Input),
			zap.String("outcome", entry.Outcome),
			zap.Duration("duration", entry.Duration),
		)
	})
}

// auditTrail accumulates the ordered audit log for one run and fans entries
// out to observers.
type auditTrail struct {
	runID     string
	observers []Observer
	entries   model.AuditLog
}

func (a *auditTrail) append(stage, input, outcome string, duration time.Duration) {
	entry := model.AuditEntry{
		Time:     time.Now().UTC(),
		Stage:    stage,
		Input:    input,
		Outcome:  outcome,
		Duration: duration,
	}
	a.entries = append(a.entries, entry)
	for _, o := range a.observers {
		o.OnStage(a.runID, entry)
	}
}
