// Package remote reconciles the authoritative audit log with the bounded
// local intervention cache: one pull at startup, then a standing push
// subscription with id-based merge.
package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/meridianapps/resilience-core/internal/metrics"
	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/store"
)

// SyncEngine keeps the local intervention cache reconciled with the remote
// audit store. All remote interaction is best-effort: failures are logged at
// warning and never propagated to callers.
type SyncEngine struct {
	nc      *nats.Conn
	audit   AuditStore
	store   *store.MemoryStore
	subject string
	limit   int
	metrics *metrics.Metrics
	logger  *slog.Logger

	// onMerge is invoked for each newly merged remote record, after the
	// cache mutation, so the owner can recompute health.
	onMerge func(model.Intervention)

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewSyncEngine creates a sync engine. nc and audit may each be nil, in which
// case the corresponding half of the reconciliation is skipped.
func NewSyncEngine(nc *nats.Conn, audit AuditStore, st *store.MemoryStore, subject string, limit int, m *metrics.Metrics, logger *slog.Logger) *SyncEngine {
	if limit <= 0 || limit > store.DefaultCap {
		limit = store.DefaultCap
	}
	return &SyncEngine{
		nc:      nc,
		audit:   audit,
		store:   st,
		subject: subject,
		limit:   limit,
		metrics: m,
		logger:  logger,
	}
}

// OnMerge registers the merge callback. Must be set before SyncFromRemote.
func (e *SyncEngine) OnMerge(fn func(model.Intervention)) {
	e.onMerge = fn
}

// SyncFromRemote pulls the most recent remote interventions, replaces the
// local cache wholesale, and establishes the push subscription. It is
// invoked once at startup; afterwards the push channel keeps the cache
// current. Remote failures leave the local cache untouched.
func (e *SyncEngine) SyncFromRemote(ctx context.Context) {
	if e.audit != nil {
		records, err := e.audit.RecentInterventions(ctx, e.limit)
		if err != nil {
			e.logger.Warn("initial audit pull failed, keeping local cache", "error", err)
			if e.metrics != nil {
				e.metrics.RemoteSyncFailures.Inc()
			}
		} else {
			ivs := make([]model.Intervention, 0, len(records))
			for _, rec := range records {
				ivs = append(ivs, rec.ToIntervention())
			}
			e.store.ReplaceInterventions(ivs)
			e.logger.Info("replaced intervention cache from remote", "count", len(ivs))
		}
	}

	if e.nc != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.sub != nil {
			return
		}
		sub, err := e.nc.Subscribe(e.subject, e.handlePush)
		if err != nil {
			e.logger.Warn("failed to subscribe to audit push stream", "subject", e.subject, "error", err)
			if e.metrics != nil {
				e.metrics.RemoteSyncFailures.Inc()
			}
			return
		}
		e.sub = sub
		e.logger.Info("subscribed to audit push stream", "subject", e.subject)
	}
}

// Close drops the push subscription. Safe to call more than once; bundled
// with the rotation timer in Core teardown.
func (e *SyncEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub != nil {
		if err := e.sub.Unsubscribe(); err != nil {
			e.logger.Warn("failed to unsubscribe from audit push stream", "error", err)
		}
		e.sub = nil
	}
}

// handlePush merges one pushed record into the local cache. Records the Core
// itself published come back on the same subject; id-based dedup drops them.
func (e *SyncEngine) handlePush(msg *nats.Msg) {
	var record model.AuditRecord
	if err := json.Unmarshal(msg.Data, &record); err != nil {
		e.logger.Warn("dropping malformed audit push", "error", err)
		return
	}
	if record.EntityType != model.EntityTypeSecurityIntervention {
		return
	}

	iv := record.ToIntervention()
	if !e.store.MergeRemote(iv) {
		e.logger.Debug("dropped duplicate audit push", "id", record.ID)
		return
	}

	e.logger.Info("merged remote intervention", "id", record.ID, "action", record.Action)
	if e.metrics != nil {
		e.metrics.RemoteMergedTotal.Inc()
	}
	if e.onMerge != nil {
		e.onMerge(iv)
	}
}
