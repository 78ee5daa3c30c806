// Package classify turns raw signals into canonical log entries, collapsing
// near-duplicate reports inside a fixed time window.
package classify

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meridianapps/resilience-core/internal/metrics"
	"github.com/meridianapps/resilience-core/internal/model"
	"github.com/meridianapps/resilience-core/internal/store"
)

// DefaultWindow is the interval within which identical-message signals are
// collapsed into the existing entry.
const DefaultWindow = 5 * time.Second

const defaultDedupeCap = 1024

// UnknownMessage is substituted when a signal carries no usable message.
const UnknownMessage = "Unknown Error"

// Classifier normalizes raw signals into log entries and drops duplicates.
// The recent-message cache is the dedup state; it is invalidated when the
// matching entry is resolved or the collection is cleared, so a resolved
// entry never suppresses a fresh observation.
type Classifier struct {
	store   *store.MemoryStore
	recent  *lru.Cache[string, time.Time]
	window  time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger

	now func() time.Time
}

// NewClassifier creates a classifier over the given store.
func NewClassifier(st *store.MemoryStore, window time.Duration, m *metrics.Metrics, logger *slog.Logger) *Classifier {
	if window <= 0 {
		window = DefaultWindow
	}
	recent, _ := lru.New[string, time.Time](defaultDedupeCap)
	return &Classifier{
		store:   st,
		recent:  recent,
		window:  window,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Classify normalizes a signal and inserts the resulting entry. It returns
// the stored entry and true, or a zero entry and false when the signal was
// discarded as a duplicate. Malformed input degrades to an info-severity
// "Unknown Error" entry rather than failing.
func (c *Classifier) Classify(sig model.Signal) (model.LogEntry, bool) {
	entry := c.normalize(sig)

	key := dedupeKey(entry)
	if last, ok := c.recent.Get(key); ok {
		if c.now().Sub(last) < c.window {
			if c.metrics != nil {
				c.metrics.SignalsDeduped.Inc()
			}
			c.logger.Debug("discarded duplicate signal", "message", entry.Message, "kind", entry.Kind)
			return model.LogEntry{}, false
		}
	}

	c.recent.Add(key, entry.Timestamp)
	c.store.AddEntry(entry)
	if c.metrics != nil {
		c.metrics.SignalsTotal.WithLabelValues(string(entry.Kind), string(entry.Severity)).Inc()
	}
	c.logger.Info("classified signal",
		"id", entry.ID,
		"kind", entry.Kind,
		"severity", entry.Severity,
		"message", entry.Message)
	return entry, true
}

// Invalidate recomputes the dedup state after an entry is resolved. The key
// is dropped only when no other unresolved entry with the same message
// remains; otherwise it is re-seeded with the newest remaining timestamp, so
// resolving an older duplicate never reopens the window while a newer
// unresolved entry is still inside it.
func (c *Classifier) Invalidate(entry model.LogEntry) {
	key := dedupeKey(entry)

	var newest time.Time
	found := false
	for _, e := range c.store.UnresolvedEntries() {
		if dedupeKey(e) != key {
			continue
		}
		found = true
		if e.Timestamp.After(newest) {
			newest = e.Timestamp
		}
	}

	if !found {
		c.recent.Remove(key)
		return
	}
	c.recent.Add(key, newest)
}

// Reset purges all dedup state. Called on bulk clear.
func (c *Classifier) Reset() {
	c.recent.Purge()
}

func (c *Classifier) normalize(sig model.Signal) model.LogEntry {
	entry := model.LogEntry{
		ID:        uuid.New().String(),
		Timestamp: c.now(),
		Component: sig.Component,
		Severity:  model.NormalizeSeverity(sig.SeverityHint),
	}

	switch sig.Kind {
	case model.SignalRuntimeFault:
		entry.Kind = model.KindRuntime
		entry.Message = sig.Message
		entry.Stack = sig.Stack
	case model.SignalAsyncRejection:
		entry.Kind = model.KindPromiseRejection
		entry.Message = sig.Reason
	case model.SignalContentFault:
		entry.Kind = model.KindContent
		entry.Message = fmt.Sprintf("Missing translation: %s (%s)", sig.ContentKey, sig.Lang)
		entry.Severity = model.NormalizeSeverity("content")
	case model.SignalTrapActivation:
		entry.Kind = model.KindSecurity
		entry.Message = fmt.Sprintf("Honeytoken activated: %s", sig.TargetID)
		entry.Severity = model.SeverityCritical
		if len(sig.Metadata) > 0 {
			entry.Context = sig.Metadata
		}
	default:
		entry.Kind = model.KindRuntime
	}

	if strings.TrimSpace(entry.Message) == "" {
		entry.Message = UnknownMessage
		entry.Severity = model.SeverityInfo
	}
	return entry
}

// dedupeKey scopes security entries separately so a trap activation is never
// collapsed against a non-security entry with the same message.
func dedupeKey(entry model.LogEntry) string {
	if entry.Kind == model.KindSecurity {
		return "security:" + entry.Message
	}
	return entry.Message
}
