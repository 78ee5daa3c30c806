// Package recorder appends interventions to the bounded local cache and
// mirrors them to the remote audit store on a best-effort basis.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianapps/resilience-core/internal/metrics"
	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/remote"
	"github.com/meridianapps/resilience-core/internal/store"
)

// Source tags every outbound audit row with the producing subsystem.
const Source = "resilience-core"

// Recorder records automated remediation and security events. The local
// append is the immediately consistent view; the remote mirror is eventually
// consistent and its failures never propagate to callers.
type Recorder struct {
	store     *store.MemoryStore
	audit     remote.AuditStore  // may be nil
	publisher *remote.Publisher  // may be nil
	actorID   func() string      // authenticated principal, "" when anonymous
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// onRemoteFailure lets the owner downgrade a failed remote write into a
	// warning-severity log entry.
	onRemoteFailure func(message string)
}

// NewRecorder creates a recorder. audit and publisher may be nil for
// local-only operation.
func NewRecorder(st *store.MemoryStore, audit remote.AuditStore, publisher *remote.Publisher, actorID func() string, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	if actorID == nil {
		actorID = func() string { return "" }
	}
	return &Recorder{
		store:     st,
		audit:     audit,
		publisher: publisher,
		actorID:   actorID,
		metrics:   m,
		logger:    logger,
	}
}

// OnRemoteFailure registers the downgrade hook for failed remote writes.
func (r *Recorder) OnRemoteFailure(fn func(message string)) {
	r.onRemoteFailure = fn
}

// Record appends a new intervention locally, then mirrors it to the remote
// audit store. The local append always succeeds and is never rolled back.
func (r *Recorder) Record(ctx context.Context, actionType, message string, details map[string]interface{}) model.Intervention {
	iv := model.Intervention{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      actionType,
		Message:   message,
		Details:   details,
	}
	r.store.AddIntervention(iv)
	if r.metrics != nil {
		r.metrics.InterventionsTotal.WithLabelValues(actionType).Inc()
	}
	r.logger.Info("recorded intervention", "id", iv.ID, "type", actionType, "message", message)

	r.mirror(ctx, iv)
	return iv
}

// mirror writes the intervention to the remote store and push channel.
func (r *Recorder) mirror(ctx context.Context, iv model.Intervention) {
	if r.audit == nil && r.publisher == nil {
		return
	}

	metadata := make(map[string]interface{}, len(iv.Details)+1)
	for k, v := range iv.Details {
		metadata[k] = v
	}
	metadata["message"] = iv.Message

	record := model.AuditRecord{
		ID:         iv.ID,
		ActorID:    r.actorID(),
		Action:     iv.Type,
		EntityType: model.EntityTypeSecurityIntervention,
		Metadata:   metadata,
		Severity:   auditSeverity(iv.Type),
		Source:     Source,
		CreatedAt:  iv.Timestamp,
	}

	if r.audit != nil {
		if err := r.audit.Insert(ctx, record); err != nil {
			r.remoteFailed("audit store write failed", err)
			return
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Publish(record); err != nil {
			r.remoteFailed("audit push publish failed", err)
		}
	}
}

func (r *Recorder) remoteFailed(what string, err error) {
	r.logger.Warn(what, "error", err)
	if r.metrics != nil {
		r.metrics.RemoteSyncFailures.Inc()
	}
	if r.onRemoteFailure != nil {
		r.onRemoteFailure(what + ": " + err.Error())
	}
}

// auditSeverity maps an action type onto the audit row severity enum.
// Security events are critical; remediation actions land as warnings.
func auditSeverity(actionType string) model.Severity {
	if actionType == "mtd-block" {
		return model.SeverityCritical
	}
	return model.SeverityWarning
}
