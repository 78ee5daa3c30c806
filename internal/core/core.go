// Package core wires the telemetry pipeline together: classification,
// health aggregation, intervention recording, remote reconciliation,
// remediation, and MTD rotation. The Core is an explicitly owned context
// object with defined construction and teardown; nothing here is ambient
// global state.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/meridianapps/resilience-core/internal/classify"
	"github.com/meridianapps/resilience-core/internal/heal"
	"github.com/meridianapps/resilience-core/internal/health"
	"github.com/meridianapps/resilience-core/internal/metrics"
	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/mtd"
	"github.com/meridianapps/resilience-core/internal/recorder"
	"github.com/meridianapps/resilience-core/internal/remote"
	"github.com/meridianapps/resilience-core/internal/snapshot"
	"github.com/meridianapps/resilience-core/internal/store"
)

// Options configures a Core. Every external collaborator is optional: a nil
// NATS connection, audit store, snapshot store, navigator, or notifier
// degrades the Core to purely local operation of that concern.
type Options struct {
	NATS            *nats.Conn
	Audit           remote.AuditStore
	Snapshots       *snapshot.Store
	Navigator       heal.Navigator
	Notifier        heal.Notifier
	ActorID         func() string
	Subject         string
	DedupWindow     time.Duration
	Rotation        time.Duration
	Rules           []heal.Rule
	EntryCap        int
	InterventionCap int
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// Core is the resilience and security telemetry core. All public operations
// swallow internal failures; signal sources can never crash the Core.
type Core struct {
	store      *store.MemoryStore
	classifier *classify.Classifier
	recorder   *recorder.Recorder
	executor   *heal.Executor
	scheduler  *mtd.Scheduler
	sync       *remote.SyncEngine
	snapshots  *snapshot.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger

	healthMu sync.RWMutex
	health   model.HealthState

	closeOnce sync.Once
}

// New builds a Core from options, restoring persisted local state when a
// snapshot store is configured. Call Start to begin background work.
func New(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subject := opts.Subject
	if subject == "" {
		subject = "audit.interventions"
	}

	st := store.NewMemoryStore(opts.EntryCap, opts.InterventionCap)
	c := &Core{
		store:     st,
		snapshots: opts.Snapshots,
		metrics:   opts.Metrics,
		logger:    logger,
		health:    model.HealthGreen,
	}

	c.classifier = classify.NewClassifier(st, opts.DedupWindow, opts.Metrics, logger)

	publisher := (*remote.Publisher)(nil)
	if opts.NATS != nil {
		publisher = remote.NewPublisher(opts.NATS, subject, logger)
	}
	c.recorder = recorder.NewRecorder(st, opts.Audit, publisher, opts.ActorID, opts.Metrics, logger)
	c.recorder.OnRemoteFailure(c.submitInternalWarning)

	c.executor = heal.NewExecutor(opts.Rules, opts.Snapshots, c.recorder, opts.Navigator, opts.Notifier, logger)
	c.scheduler = mtd.NewScheduler(opts.Rotation, opts.Metrics, logger)

	c.sync = remote.NewSyncEngine(opts.NATS, opts.Audit, st, subject, store.DefaultCap, opts.Metrics, logger)
	c.sync.OnMerge(func(model.Intervention) { c.recomputeHealth() })

	// Restore before wiring the change hook so the restore itself does not
	// rewrite the snapshot it came from.
	if opts.Snapshots != nil {
		if state, ok := opts.Snapshots.Load(); ok {
			st.RestoreEntries(state.Entries)
			st.ReplaceInterventions(state.Interventions)
			logger.Info("restored local telemetry snapshot",
				"entries", len(state.Entries),
				"interventions", len(state.Interventions))
		}
		st.SetOnChange(c.persist)
	}

	c.recomputeHealth()
	return c
}

// Start begins the MTD rotation timer, performs the one-time remote pull,
// and establishes the push subscription.
func (c *Core) Start(ctx context.Context) {
	c.scheduler.Start()
	c.sync.SyncFromRemote(ctx)
	c.recomputeHealth()
}

// Close tears the Core down: the rotation timer and the push subscription
// are cancelled together so neither emits into a disposed state container.
func (c *Core) Close() {
	c.closeOnce.Do(func() {
		c.scheduler.Stop()
		c.sync.Close()
		c.logger.Info("telemetry core closed")
	})
}

// Submit classifies one raw signal. The returned entry is zero and ok is
// false when the signal was discarded as a duplicate. A newly classified
// critical runtime entry is handed to the remediation executor before Submit
// returns.
func (c *Core) Submit(ctx context.Context, sig model.Signal) (entry model.LogEntry, ok bool) {
	defer c.guard("submit")

	entry, ok = c.classifier.Classify(sig)
	if !ok {
		return model.LogEntry{}, false
	}
	c.recomputeHealth()

	if entry.Severity == model.SeverityCritical && entry.Kind == model.KindRuntime {
		if c.executor.AnalyzeAndHeal(ctx, entry) {
			c.recomputeHealth()
		}
	}
	return entry, true
}

// Record appends an intervention through the recorder and re-evaluates
// health, which lands at yellow or worse once any intervention exists.
func (c *Core) Record(ctx context.Context, actionType, message string, details map[string]interface{}) model.Intervention {
	defer c.guard("record")

	iv := c.recorder.Record(ctx, actionType, message, details)
	c.recomputeHealth()
	return iv
}

// LogMtdEvent records a honeytoken activation: one critical security log
// entry plus one mtd-block intervention carrying the current session nonce
// and client fingerprint, in the same call.
func (c *Core) LogMtdEvent(ctx context.Context, eventType, targetID string, metadata map[string]string) {
	defer c.guard("mtd-event")

	state := c.scheduler.State()
	md := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		md[k] = v
	}
	md["session_nonce"] = state.SessionNonce
	md["fingerprint"] = c.scheduler.Fingerprint()

	c.Submit(ctx, model.TrapActivation(targetID, md))

	details := map[string]interface{}{
		"event_type":    eventType,
		"target_id":     targetID,
		"session_nonce": state.SessionNonce,
		"fingerprint":   c.scheduler.Fingerprint(),
	}
	for k, v := range metadata {
		details[k] = v
	}
	c.Record(ctx, "mtd-block", "Honeytoken interaction blocked: "+targetID, details)
}

// Resolve marks one entry resolved and re-evaluates health. The dedup state
// for the entry's message is invalidated so a fresh observation of the same
// fault is accepted immediately.
func (c *Core) Resolve(id string) bool {
	defer c.guard("resolve")

	entry, ok := c.store.Resolve(id)
	if !ok {
		return false
	}
	c.classifier.Invalidate(entry)
	c.recomputeHealth()
	return true
}

// ClearAll empties the log entry collection and resets the session
// intervention count; health returns to green.
func (c *Core) ClearAll() {
	defer c.guard("clear")

	c.store.ClearAll()
	c.classifier.Reset()
	c.recomputeHealth()
}

// Health returns the current derived health indicator.
func (c *Core) Health() model.HealthState {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.health
}

// Entries returns all log entries.
func (c *Core) Entries() []model.LogEntry {
	return c.store.Entries()
}

// UnresolvedEntries returns the entries still awaiting resolution.
func (c *Core) UnresolvedEntries() []model.LogEntry {
	return c.store.UnresolvedEntries()
}

// Interventions returns the local intervention cache, newest first.
func (c *Core) Interventions() []model.Intervention {
	return c.store.Interventions()
}

// MtdState returns the current rotation state.
func (c *Core) MtdState() model.MtdState {
	return c.scheduler.State()
}

// ForceRotate rotates the session nonce outside the timer schedule.
func (c *Core) ForceRotate() model.MtdState {
	c.scheduler.Rotate()
	return c.scheduler.State()
}

// recomputeHealth re-derives the aggregate from scratch. Recomputing rather
// than tracking incrementally means there is no downgrade bookkeeping to
// get wrong.
func (c *Core) recomputeHealth() {
	state := health.Evaluate(c.store.UnresolvedEntries(), c.store.SessionInterventionCount())

	c.healthMu.Lock()
	changed := c.health != state
	c.health = state
	c.healthMu.Unlock()

	if c.metrics != nil {
		c.metrics.SetHealth(state)
	}
	if changed {
		c.logger.Info("health state changed", "state", state)
	}
}

// persist writes the current collections to the snapshot store.
func (c *Core) persist() {
	state := snapshot.State{
		SavedAt:       time.Now().UTC(),
		Entries:       c.store.Entries(),
		Interventions: c.store.Interventions(),
	}
	if err := c.snapshots.Save(state); err != nil {
		c.logger.Warn("failed to persist telemetry snapshot", "error", err)
	}
}

// submitInternalWarning downgrades an internal failure to a warning entry.
func (c *Core) submitInternalWarning(message string) {
	sig := model.RuntimeFault(message, "")
	sig.SeverityHint = "warning"
	sig.Component = recorder.Source
	if _, ok := c.classifier.Classify(sig); ok {
		c.recomputeHealth()
	}
}

// guard keeps internal panics from escaping public operations.
func (c *Core) guard(op string) {
	if r := recover(); r != nil {
		c.logger.Error("recovered panic in core operation", "op", op, "panic", r)
	}
}
