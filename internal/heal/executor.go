// Package heal maps recognized fault signatures onto a small fixed set of
// corrective actions. At most one remediation fires per signal, and every
// action is safe to invoke repeatedly.
package heal

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/snapshot"
)

// safeLandingPath is the known-safe view targeted by state-reset redirects.
const safeLandingPath = "/"

// redirectDelay gives in-flight work a moment to settle before navigation.
const redirectDelay = 2 * time.Second

// InterventionRecorder is the slice of the recorder the executor needs.
type InterventionRecorder interface {
	Record(ctx context.Context, actionType, message string, details map[string]interface{}) model.Intervention
}

// Navigator performs client navigation. Implementations must tolerate being
// asked to redirect while a redirect is already pending.
type Navigator interface {
	Redirect(path string, delay time.Duration)
}

// Notifier shows a transient, dismissible notice describing a remediation.
// Raw error payloads are never shown to users.
type Notifier interface {
	Notify(message string)
}

// Executor pattern-matches critical runtime faults against the signature
// table and performs the mapped remediation.
type Executor struct {
	rules     []Rule
	snapshots *snapshot.Store
	recorder  InterventionRecorder
	navigator Navigator
	notifier  Notifier
	logger    *slog.Logger
}

// NewExecutor creates an executor. navigator and notifier may be nil when
// the host provides no navigation or notice surface.
func NewExecutor(rules []Rule, snapshots *snapshot.Store, rec InterventionRecorder, nav Navigator, notifier Notifier, logger *slog.Logger) *Executor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Executor{
		rules:     rules,
		snapshots: snapshots,
		recorder:  rec,
		navigator: nav,
		notifier:  notifier,
		logger:    logger,
	}
}

// AnalyzeAndHeal matches the entry's lowercased message against the
// signature table and fires at most one remediation. It reports whether an
// action was taken; unmatched signals stay recorded as log entries only.
func (e *Executor) AnalyzeAndHeal(ctx context.Context, entry model.LogEntry) bool {
	lowered := strings.ToLower(entry.Message)
	for _, rule := range e.rules {
		if !rule.Matches(lowered) {
			continue
		}
		e.execute(ctx, rule, entry)
		return true
	}
	return false
}

func (e *Executor) execute(ctx context.Context, rule Rule, entry model.LogEntry) {
	details := map[string]interface{}{
		"trigger":  entry.Message,
		"entry_id": entry.ID,
	}

	switch rule.Action {
	case ActionStorageCleanup:
		// No-op when nothing is persisted, so repeated triggers are safe.
		if e.snapshots != nil {
			if err := e.snapshots.EvictOldest(); err != nil {
				e.logger.Warn("snapshot eviction failed", "error", err)
			}
		}
		e.recorder.Record(ctx, ActionStorageCleanup, "Evicted oldest telemetry snapshot after storage pressure", details)
	case ActionStateReset:
		e.recorder.Record(ctx, ActionStateReset, "Reset application state after rendering fault", details)
		if e.navigator != nil {
			e.navigator.Redirect(safeLandingPath, redirectDelay)
		}
	case ActionRedirect:
		// Recorded for audit only; no navigation is forced.
		e.recorder.Record(ctx, ActionRedirect, "Unroutable path observed", details)
	default:
		e.logger.Warn("unknown remediation action", "action", rule.Action)
		return
	}

	e.logger.Info("remediation applied", "action", rule.Action, "entry_id", entry.ID)
	if e.notifier != nil && rule.Notice != "" {
		e.notifier.Notify(rule.Notice)
	}
}
